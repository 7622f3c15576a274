package slpq

import (
	"sync"
	"testing"
	"time"

	"github.com/willtor/pqueues-go/internal/testutil"
	"github.com/willtor/pqueues-go/reclaim"
	"github.com/willtor/pqueues-go/xrand"
)

func TestBasicOperations(t *testing.T) {
	q := New()
	seed := uint64(1)
	if !q.Add(5, &seed) {
		t.Fatal("Add(5) should succeed on empty queue")
	}
	if q.Add(5, &seed) {
		t.Fatal("Add(5) twice should fail")
	}
	if !q.Contains(5) {
		t.Fatal("Contains(5) should be true")
	}
	if !q.Remove(5) {
		t.Fatal("Remove(5) should succeed")
	}
	if q.Contains(5) {
		t.Fatal("Contains(5) should be false after remove")
	}
}

func TestPopMinOrdering(t *testing.T) {
	q := New()
	seed := uint64(11)
	for _, k := range []int64{9, 1, 5, 3, 7} {
		q.Add(k, &seed)
	}
	var got []int64
	for {
		k, ok := q.PopMin()
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

func TestPopMinRaceHasUniqueWinner(t *testing.T) {
	testutil.WithTimeout(t, 10*time.Second, func() {
		q := NewWithReclaimer(reclaim.NewEpoch[node]())
		seed := uint64(99)
		q.Add(1, &seed)

		const goroutines = 16
		var wg sync.WaitGroup
		wins := make([]bool, goroutines)
		for g := 0; g < goroutines; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				if _, ok := q.PopMin(); ok {
					wins[g] = true
				}
			}(g)
		}
		wg.Wait()

		count := 0
		for _, w := range wins {
			if w {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("exactly one goroutine should win PopMin on a singleton queue, got %d", count)
		}
	})
}

func TestConcurrentAddRemoveParity(t *testing.T) {
	testutil.WithTimeout(t, 30*time.Second, func() {
		q := NewWithReclaimer(reclaim.NewEpoch[node]())
		const keyspace = 1024
		const goroutines = 8
		const perG = 5000
		var wg sync.WaitGroup
		deltas := make([][keyspace]int64, goroutines)
		for g := 0; g < goroutines; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				seed := xrand.NewSeed(uint64(g) + 1)
				for i := 0; i < perG; i++ {
					key := int64(xrand.Next(&seed) % keyspace)
					switch xrand.Next(&seed) % 3 {
					case 0:
						if q.Add(key, &seed) {
							deltas[g][key]++
						}
					case 1:
						if q.Remove(key) {
							deltas[g][key]--
						}
					default:
						q.Contains(key)
					}
				}
			}(g)
		}
		wg.Wait()

		var totals [keyspace]int64
		for g := 0; g < goroutines; g++ {
			for k := 0; k < keyspace; k++ {
				totals[k] += deltas[g][k]
			}
		}
		for k := 0; k < keyspace; k++ {
			want := totals[k] > 0
			got := q.Contains(int64(k))
			if got != want {
				t.Fatalf("key %d: Contains=%v, want %v (parity=%d)", k, got, want, totals[k])
			}
		}
	})
}
