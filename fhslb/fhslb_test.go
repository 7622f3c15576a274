package fhslb

import (
	"testing"
	"time"

	"github.com/willtor/pqueues-go/internal/testutil"
	"github.com/willtor/pqueues-go/reclaim"
	"github.com/willtor/pqueues-go/xrand"
)

func TestBasicOperations(t *testing.T) {
	l := New()
	seed := uint64(1)
	if !l.Add(5, &seed) {
		t.Fatal("Add(5) should succeed on empty list")
	}
	if l.Add(5, &seed) {
		t.Fatal("Add(5) twice should fail")
	}
	if !l.Contains(5) {
		t.Fatal("Contains(5) should be true")
	}
	if l.Contains(4) {
		t.Fatal("Contains(4) should be false")
	}
	if !l.Remove(5) {
		t.Fatal("Remove(5) should succeed")
	}
	if l.Contains(5) {
		t.Fatal("Contains(5) should be false after remove")
	}
}

func TestPopMinOrdering(t *testing.T) {
	l := New()
	seed := uint64(7)
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
	want := []int64{1, 3, 5, 7, 9}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestBulkPopPush(t *testing.T) {
	src := New()
	seed := uint64(3)
	keys := []int64{10, 20, 30, 40, 50, 60, 70, 80}
	for _, k := range keys {
		src.Add(k, &seed)
	}

	head, tail, n := src.BulkPop(3)
	if n != 3 {
		t.Fatalf("BulkPop count = %d, want 3", n)
	}
	if head.key != 10 || tail.key != 30 {
		t.Fatalf("chain = [%d..%d], want [10..30]", head.key, tail.key)
	}
	for _, k := range []int64{10, 20, 30} {
		if src.Contains(k) {
			t.Fatalf("source should no longer contain %d", k)
		}
	}
	for _, k := range []int64{40, 50, 60, 70, 80} {
		if !src.Contains(k) {
			t.Fatalf("source should still contain %d", k)
		}
	}
	stats := src.Stats()
	if stats.Len != 5 || stats.MinKey != 40 {
		t.Fatalf("source Stats() = %+v, want Len=5 MinKey=40", stats)
	}

	dst := New()
	dst.Add(5, &seed)
	dst.BulkPush(head, tail)
	for _, k := range []int64{5, 10, 20, 30} {
		if !dst.Contains(k) {
			t.Fatalf("dest should contain %d after BulkPush", k)
		}
	}
	got, _ := dst.PopMin()
	if got != 5 {
		t.Fatalf("dest min = %d, want 5", got)
	}
}

func TestBulkPopEmpty(t *testing.T) {
	l := New()
	head, tail, n := l.BulkPop(4)
	if head != nil || tail != nil || n != 0 {
		t.Fatalf("BulkPop on empty list = (%v,%v,%d), want (nil,nil,0)", head, tail, n)
	}
}

func TestConcurrentAddRemoveParity(t *testing.T) {
	testutil.WithTimeout(t, 30*time.Second, func() {
		l := NewWithReclaimer(reclaim.NewEpoch[node]())
		const keyspace = 1024
		const goroutines = 8
		const perG = 4000

		totals := testutil.ParityWorkload(goroutines, perG, keyspace,
			func(key int64) bool {
				seed := xrand.NewSeed(uint64(key)*2 + 1)
				return l.Add(key, &seed)
			},
			func(key int64) bool {
				return l.Remove(key)
			},
		)

		for k := 0; k < keyspace; k++ {
			want := totals[k] > 0
			got := l.Contains(int64(k))
			if got != want {
				t.Fatalf("key %d: Contains=%v, want %v (parity=%d)", k, got, want, totals[k])
			}
		}
	})
}
