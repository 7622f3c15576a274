package apqserver

import (
	"sync"
	"testing"
	"time"

	"github.com/willtor/pqueues-go/internal/testutil"
	"github.com/willtor/pqueues-go/xrand"
)

func TestBasicOperations(t *testing.T) {
	s := New(4, 1000)
	defer s.Close()
	seed := uint64(1)

	if s.Contains(0, 5) {
		t.Fatal("empty server should not contain 5")
	}
	if !s.Add(0, 5, &seed) {
		t.Fatal("Add on absent key should succeed")
	}
	if s.Add(0, 5, &seed) {
		t.Fatal("Add on present key should fail")
	}
	if !s.Contains(0, 5) {
		t.Fatal("server should contain 5 after Add")
	}
	if !s.Remove(0, 5) {
		t.Fatal("Remove on present key should succeed")
	}
	if s.Remove(0, 5) {
		t.Fatal("Remove on absent key should fail")
	}
}

func TestAddAboveCutoffBypassesServer(t *testing.T) {
	s := New(2, 100)
	defer s.Close()
	seed := uint64(7)

	if !s.Add(0, 500, &seed) {
		t.Fatal("Add above cutoff should succeed via the concurrent tier")
	}
	if !s.Contains(0, 500) {
		t.Fatal("Contains above cutoff should see the concurrently-added key")
	}
}

func TestPopMinDrainsBelowCutoffInOrder(t *testing.T) {
	s := New(2, 1000)
	defer s.Close()
	seed := uint64(3)

	for _, k := range []int64{9, 1, 5, 3, 7} {
		s.Add(0, k, &seed)
	}
	var got []int64
	for {
		k, ok := s.PopMin(0)
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

func TestBulkTransferRefillsServerTier(t *testing.T) {
	testutil.WithTimeout(t, 10*time.Second, func() {
		s := New(2, 20)
		defer s.Close()
		seed := uint64(11)

		for k := int64(0); k < 10; k++ {
			s.Add(0, k, &seed)
		}
		drained := 0
		for i := 0; i < 10; i++ {
			if _, ok := s.PopMin(0); ok {
				drained++
			}
		}

		for k := int64(30); k < 80; k++ {
			s.Add(0, k, &seed)
		}

		deadline := time.Now().Add(5 * time.Second)
		popped := 0
		for time.Now().Before(deadline) {
			if _, ok := s.PopMin(0); ok {
				popped++
				if popped == 50 {
					break
				}
			}
		}
		if popped != 50 {
			t.Fatalf("expected the bulk transfer to eventually surface all 50 keys, got %d", popped)
		}
	})
}

func TestConcurrentClientsPopsNeverExceedAdds(t *testing.T) {
	testutil.WithTimeout(t, 30*time.Second, func() {
		const clients = 6
		const perClient = 300
		s := New(clients, 100000)
		defer s.Close()

		var wg sync.WaitGroup
		var mu sync.Mutex
		added, popped := 0, 0
		for c := 0; c < clients; c++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				seed := xrand.NewSeed(uint64(id) + 1)
				localAdded, localPopped := 0, 0
				for i := 0; i < perClient; i++ {
					key := int64(xrand.Next(&seed) % 200000)
					if s.Add(id, key, &seed) {
						localAdded++
					}
					if xrand.Next(&seed)%2 == 0 {
						if _, ok := s.PopMin(id); ok {
							localPopped++
						}
					}
				}
				mu.Lock()
				added += localAdded
				popped += localPopped
				mu.Unlock()
			}(c)
		}
		wg.Wait()

		if popped > added {
			t.Fatalf("popped(%d) exceeds added(%d)", popped, added)
		}
	})
}
