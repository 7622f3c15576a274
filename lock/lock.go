// Package lock provides the base synchronization primitives shared by
// the lock-coupled and transactional structures: a cache-line-aligned
// test-and-test-and-set spinlock used by every per-node and per-bucket
// lock in the module, and an elided lock standing in for the
// hardware-transactional fast path used only by fhsltx.
package lock

import (
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Spin is a cache-line-padded test-and-test-and-set spinlock. Holders
// are expected to do only O(1) work between Lock and Unlock.
type Spin struct {
	_ cpu.CacheLinePad
	held atomic.Bool
	_ cpu.CacheLinePad
}

// Lock acquires the spinlock, spinning with exponential backoff capped
// at a short ceiling.
func (s *Spin) Lock() {
	backoff := 1
	for {
		if !s.held.Load() && s.held.CompareAndSwap(false, true) {
			return
		}
		for i := 0; i < backoff; i++ {
			runtime.Gosched()
		}
		if backoff < 64 {
			backoff *= 2
		}
	}
}

// TryLock attempts to acquire the lock without blocking.
func (s *Spin) TryLock() bool {
	return !s.held.Load() && s.held.CompareAndSwap(false, true)
}

// Unlock releases the spinlock. Unlocking an unheld lock is a
// programmer error and is not checked, matching the base C spinlock's
// contract.
func (s *Spin) Unlock() {
	s.held.Store(false)
}

// Elided is a mutual-exclusion lock with a contract matching a
// hardware lock elision primitive, treated as an opaque collaborator:
// create/lock/unlock. The actual elision (a hardware transactional
// fast path that lets non-conflicting critical sections run
// concurrently) is out of scope here; this implementation is a plain
// mutex and never elides, which is always a legal (conservative)
// implementation of the contract.
type Elided struct {
	mu sync.Mutex
}

// NewElided constructs an elided lock.
func NewElided() *Elided {
	return &Elided{}
}

// Lock acquires the lock.
func (e *Elided) Lock() {
	e.mu.Lock()
}

// Unlock releases the lock.
func (e *Elided) Unlock() {
	e.mu.Unlock()
}
