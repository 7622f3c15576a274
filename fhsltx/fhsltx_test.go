package fhsltx

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestAdd(t *testing.T) {
	Convey("When Add is called", t, func() {
		seed := uint64(1)

		Convey("on an empty list", func() {
			l := New()
			So(l.Add(5, &seed), ShouldBeTrue)
			So(l.Contains(5), ShouldBeTrue)
		})

		Convey("with a duplicate key", func() {
			l := New()
			So(l.Add(5, &seed), ShouldBeTrue)
			So(l.Add(5, &seed), ShouldBeFalse)
			So(l.Stats().Len, ShouldEqual, 1)
		})

		Convey("with many keys", func() {
			l := New()
			for _, k := range []int64{50, 10, 30, 20, 40} {
				So(l.Add(k, &seed), ShouldBeTrue)
			}
			So(l.Stats().Len, ShouldEqual, 5)
			So(l.Stats().MinKey, ShouldEqual, 10)
			So(l.Stats().MaxKey, ShouldEqual, 50)
		})
	})
}

func TestContains(t *testing.T) {
	Convey("When Contains is called", t, func() {
		seed := uint64(2)

		Convey("on an empty list", func() {
			l := New()
			So(l.Contains(1), ShouldBeFalse)
		})

		Convey("for a present and an absent key", func() {
			l := New()
			l.Add(7, &seed)
			So(l.Contains(7), ShouldBeTrue)
			So(l.Contains(8), ShouldBeFalse)
		})
	})
}

func TestRemove(t *testing.T) {
	Convey("When Remove is called", t, func() {
		seed := uint64(3)

		Convey("on an empty list", func() {
			l := New()
			So(l.Remove(1), ShouldBeFalse)
		})

		Convey("for a key that was inserted", func() {
			l := New()
			l.Add(9, &seed)
			So(l.Remove(9), ShouldBeTrue)
			So(l.Contains(9), ShouldBeFalse)

			Convey("removing it again fails", func() {
				So(l.Remove(9), ShouldBeFalse)
			})
		})
	})
}

func TestPopMin(t *testing.T) {
	Convey("When PopMin drains a list", t, func() {
		seed := uint64(4)
		l := New()
		for _, k := range []int64{9, 1, 5, 3, 7} {
			l.Add(k, &seed)
		}

		var got []int64
		for {
			k, ok := l.PopMin()
			if !ok {
				break
			}
			got = append(got, k)
		}

		So(got, ShouldResemble, []int64{1, 3, 5, 7, 9})

		Convey("PopMin on the now-empty list reports false", func() {
			_, ok := l.PopMin()
			So(ok, ShouldBeFalse)
		})
	})
}
