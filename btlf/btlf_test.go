package btlf

import (
	"sync"
	"testing"
	"time"

	"github.com/willtor/pqueues-go/internal/testutil"
	"github.com/willtor/pqueues-go/reclaim"
)

// TestSmoke runs a short fixed sequence of add/remove/contains calls.
func TestSmoke(t *testing.T) {
	tr := New()
	steps := []struct {
		op   string
		key  int64
		want bool
	}{
		{"add", 5, true},
		{"add", 3, true},
		{"add", 7, true},
		{"add", 5, false},
		{"contains", 5, true},
		{"contains", 4, false},
		{"remove", 5, true},
		{"contains", 5, false},
	}
	for i, s := range steps {
		var got bool
		switch s.op {
		case "add":
			got = tr.Add(s.key)
		case "contains":
			got = tr.Contains(s.key)
		case "remove":
			got = tr.Remove(s.key)
		}
		if got != s.want {
			t.Fatalf("step %d: %s(%d) = %v, want %v", i, s.op, s.key, got, s.want)
		}
	}
}

func TestRemoveAbsentKey(t *testing.T) {
	tr := New()
	if tr.Remove(1) {
		t.Fatal("Remove of absent key should be false")
	}
}

func TestOrderedContents(t *testing.T) {
	tr := New()
	keys := []int64{50, 20, 70, 10, 30, 60, 80, 5}
	for _, k := range keys {
		tr.Add(k)
	}
	stats := tr.Stats()
	if stats.Len != len(keys) {
		t.Fatalf("Stats().Len = %d, want %d", stats.Len, len(keys))
	}
	if stats.MinKey != 5 || stats.MaxKey != 80 {
		t.Fatalf("Stats() min/max = %d/%d, want 5/80", stats.MinKey, stats.MaxKey)
	}
	for _, k := range keys {
		if !tr.Contains(k) {
			t.Fatalf("tree should contain %d", k)
		}
	}
}

func TestConcurrentAddRemoveParity(t *testing.T) {
	testutil.WithTimeout(t, 30*time.Second, func() {
		tr := NewWithReclaimer(reclaim.NewEpoch[node]())
		const keyspace = 512
		const goroutines = 8
		const perG = 4000
		var wg sync.WaitGroup
		deltas := make([][keyspace]int64, goroutines)
		for g := 0; g < goroutines; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				s := uint64(g)*2685821657736338717 + 1
				for i := 0; i < perG; i++ {
					s ^= s << 13
					s ^= s >> 7
					s ^= s << 17
					key := int64(s % keyspace)
					if s&4 == 0 {
						if tr.Add(key) {
							deltas[g][key]++
						}
					} else {
						if tr.Remove(key) {
							deltas[g][key]--
						}
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
			got := tr.Contains(int64(k))
			if got != want {
				t.Fatalf("key %d: Contains=%v, want %v (parity=%d)", k, got, want, totals[k])
			}
		}
	})
}
