package fhslfc

import (
	"sync"
	"testing"
	"time"

	"github.com/willtor/pqueues-go/internal/testutil"
)

func TestBasicOperations(t *testing.T) {
	s := New(4)
	defer s.Close()

	if s.Contains(0, 5) {
		t.Fatal("empty set should not contain 5")
	}
	if !s.Add(0, 5) {
		t.Fatal("Add on absent key should succeed")
	}
	if s.Add(0, 5) {
		t.Fatal("Add on present key should fail")
	}
	if !s.Contains(0, 5) {
		t.Fatal("set should contain 5 after Add")
	}
	if !s.Remove(0, 5) {
		t.Fatal("Remove on present key should succeed")
	}
	if s.Remove(0, 5) {
		t.Fatal("Remove on absent key should fail")
	}
}

func TestPopMinOrdering(t *testing.T) {
	s := New(2)
	defer s.Close()

	for _, k := range []int64{9, 1, 5, 3, 7} {
		s.Add(0, k)
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

func TestConcurrentClientsAddPopMinParity(t *testing.T) {
	testutil.WithTimeout(t, 30*time.Second, func() {
		const clients = 8
		const perClient = 500
		s := New(clients)
		defer s.Close()

		var wg sync.WaitGroup
		var mu sync.Mutex
		added, popped := 0, 0
		for c := 0; c < clients; c++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				localAdded, localPopped := 0, 0
				for i := 0; i < perClient; i++ {
					key := int64(id*perClient + i)
					if s.Add(id, key) {
						localAdded++
					}
					if _, ok := s.PopMin(id); ok {
						localPopped++
					}
				}
				mu.Lock()
				added += localAdded
				popped += localPopped
				mu.Unlock()
			}(c)
		}
		wg.Wait()

		drained := 0
		for {
			if _, ok := s.PopMin(0); !ok {
				break
			}
			drained++
		}
		if added != popped+drained {
			t.Fatalf("added(%d) != popped(%d) + drained(%d)", added, popped, drained)
		}
	})
}
