package reclaim

import (
	"sync"
	"sync/atomic"
)

// flushOffset is added to a session's live count when the session is
// closed, so that accessors still racing to join it can detect the
// close (liveCount > flushOffset) and retry against the new session,
// while the session owner can detect drain-to-zero (liveCount ==
// flushOffset) unambiguously.
const flushOffset = int64(1) << 40

// epochSession is one barrier session: the set of goroutines that
// entered the structure while this session was current.
type epochSession struct {
	live    atomic.Int64
	closed  atomic.Bool
	seq     uint64
	pending []any
}

// Epoch is an epoch-based Reclaimer grounded on the Couchbase moss
// "access barrier" algorithm: a goroutine that wants to read or mutate
// the structure acquires the current session, does its work, and
// releases it. Retire attaches the node to the current session's
// pending list, so it is only dropped once that session has been
// flushed and every accessor that joined it has left.
//
// This is deliberately simpler than the moss original: sessions are
// flushed explicitly (FlushSession), not continuously. The structures
// in this module call only Retire; they never call Acquire, Release or
// FlushSession, so retired nodes stay on the current session's pending
// list until a caller flushes it.
type Epoch[T any] struct {
	mu      sync.Mutex
	session atomic.Pointer[epochSession]
}

// NewEpoch constructs an epoch-based reclaimer for node type T.
func NewEpoch[T any]() *Epoch[T] {
	e := &Epoch[T]{}
	e.session.Store(&epochSession{seq: 1})
	return e
}

func (e *Epoch[T]) Alloc() *T { return new(T) }

func (e *Epoch[T]) Free(ptr *T) { _ = ptr }

// Acquire marks entry into a read/mutate critical section and returns
// a token that must be passed to Release. A caller brackets a traversal
// that may dereference nodes concurrently being unlinked with it.
func (e *Epoch[T]) Acquire() *epochSession {
	for {
		s := e.session.Load()
		live := s.live.Add(1)
		if live > flushOffset {
			e.release(s)
			continue
		}
		return s
	}
}

// Release ends the critical section started by Acquire.
func (e *Epoch[T]) Release(tok *epochSession) { e.release(tok) }

func (e *Epoch[T]) release(s *epochSession) {
	live := s.live.Add(-1)
	if live == flushOffset {
		// We are the last accessor to leave a closed session: reclaim
		// everything it accumulated.
		if s.closed.CompareAndSwap(true, true) {
			e.mu.Lock()
			pending := s.pending
			s.pending = nil
			e.mu.Unlock()
			_ = pending // nodes become unreachable here; GC reclaims them
		}
	}
}

// Retire attaches ptr to the current session's pending list; it will
// become eligible for collection once that session fully drains.
func (e *Epoch[T]) Retire(ptr *T) {
	s := e.session.Load()
	e.mu.Lock()
	s.pending = append(s.pending, ptr)
	e.mu.Unlock()
}

// FlushSession closes the current session (so its accumulated retired
// nodes become collectible once drained) and installs a fresh one.
// Callers invoke this after a batch of logical deletions, matching the
// moss algorithm's session-flush-on-delete discipline.
func (e *Epoch[T]) FlushSession() {
	e.mu.Lock()
	defer e.mu.Unlock()
	old := e.session.Load()
	next := &epochSession{seq: old.seq + 1}
	e.session.Store(next)
	old.closed.Store(true)
	if old.live.Add(flushOffset) == flushOffset {
		pending := old.pending
		old.pending = nil
		_ = pending
	}
}
