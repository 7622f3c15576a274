// Package testutil provides the shared concurrent-stress test harness
// used across this module's packages: a goroutine+channel+timeout
// livelock guard plus a generic concurrent add/remove parity workload.
package testutil

import (
	"testing"
	"time"
)

// WithTimeout runs fn in its own goroutine and fails t if fn has not
// returned within d. It does not and cannot forcibly kill a stuck fn;
// it exists purely to turn a hang into a fast, readable test failure
// instead of a CI timeout.
func WithTimeout(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("operation did not complete within timeout; suspected livelock or deadlock")
	}
}

// ParityWorkload drives goroutines concurrently calling add/remove on
// keys in [0, keyspace) and returns, for each key, the signed count of
// successful adds minus successful removes observed across all workers.
// Structures under test pass in their own add/remove closures.
func ParityWorkload(goroutines, iterationsPerGoroutine, keyspace int, add, remove func(key int64) bool) []int64 {
	type delta struct {
		key int64
		d   int64
	}
	results := make(chan []delta, goroutines)
	for g := 0; g < goroutines; g++ {
		go func(seed int64) {
			local := make(map[int64]int64)
			s := seed
			for i := 0; i < iterationsPerGoroutine; i++ {
				s = s*6364136223846793005 + 1442695040888963407
				key := int64(uint64(s) % uint64(keyspace))
				if s&1 == 0 {
					if add(key) {
						local[key]++
					}
				} else {
					if remove(key) {
						local[key]--
					}
				}
			}
			out := make([]delta, 0, len(local))
			for k, v := range local {
				out = append(out, delta{k, v})
			}
			results <- out
		}(int64(uint64(g)*0x9E3779B97F4A7C15 + 1))
	}
	totals := make([]int64, keyspace)
	for g := 0; g < goroutines; g++ {
		for _, d := range <-results {
			totals[d.key] += d.d
		}
	}
	return totals
}
