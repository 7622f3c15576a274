// Package fhslfc implements a flat-combining front end over a serial
// skip-list: clients never touch the inner set directly. Each client
// publishes its request into its own cache-line-padded slot and spins
// on that slot's op field until the server resets it to none; a single
// server goroutine round-robins the
// slots, applies each pending request to the inner set, and publishes
// the result before moving to the next slot. Because only the server
// ever calls into the inner set, that set needs no internal locking
// beyond what fhsltx's elided lock already provides as a harmless
// no-op under single-goroutine access.
package fhslfc

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/willtor/pqueues-go/fhsltx"
)

type opType int32

const (
	opNone opType = iota
	opContains
	opAdd
	opRemove
	opPopMin
)

// slot is one client's mailbox. arg carries the request's key in and,
// for PopMin, carries the popped key back out alongside ret; the
// source this is grounded on only returns a bool from its pop-min
// call and never surfaces the popped value itself, a gap this widens
// the arg field's use to close.
type slot struct {
	_   cpu.CacheLinePad
	op  atomic.Int32
	arg atomic.Int64
	ret atomic.Bool
	_   cpu.CacheLinePad
}

func (s *slot) wait() {
	for opType(s.op.Load()) != opNone {
		runtime.Gosched()
	}
}

// Set is a flat-combined skip-list set of int64 keys, accessed by a
// fixed number of client threads each identified by a small integer
// id in [0, numThreads).
type Set struct {
	slots   []slot
	seeds   []uint64
	inner   *fhsltx.List
	stopped atomic.Bool
	done    chan struct{}
}

// New constructs a Set serving numThreads clients and starts its
// server goroutine. Call Close when the set is no longer needed to
// stop that goroutine; the C original this is grounded on runs its
// server on an unkillable pthread for the process lifetime, which a
// Go test suite cannot afford per case.
func New(numThreads int) *Set {
	if numThreads < 1 {
		numThreads = 1
	}
	s := &Set{
		slots: make([]slot, numThreads),
		seeds: make([]uint64, numThreads),
		inner: fhsltx.New(),
		done:  make(chan struct{}),
	}
	for i := range s.slots {
		s.slots[i].op.Store(int32(opNone))
		s.seeds[i] = uint64(i)*2685821657736338717 + 1
	}
	go s.run()
	return s
}

// Close stops the server goroutine. Outstanding requests in flight
// when Close is called are not guaranteed to complete.
func (s *Set) Close() {
	s.stopped.Store(true)
	<-s.done
}

func (s *Set) run() {
	defer close(s.done)
	for !s.stopped.Load() {
		for i := range s.slots {
			sl := &s.slots[i]
			switch opType(sl.op.Load()) {
			case opContains:
				sl.ret.Store(s.inner.Contains(sl.arg.Load()))
			case opAdd:
				sl.ret.Store(s.inner.Add(sl.arg.Load(), &s.seeds[i]))
			case opRemove:
				sl.ret.Store(s.inner.Remove(sl.arg.Load()))
			case opPopMin:
				key, ok := s.inner.PopMin()
				sl.arg.Store(key)
				sl.ret.Store(ok)
			default:
				continue
			}
			sl.op.Store(int32(opNone))
		}
		runtime.Gosched()
	}
}

func (s *Set) submit(threadID int, op opType, arg int64) (int64, bool) {
	sl := &s.slots[threadID]
	sl.arg.Store(arg)
	sl.op.Store(int32(op))
	sl.wait()
	return sl.arg.Load(), sl.ret.Load()
}

// Contains reports whether key is present, routed through the server
// on behalf of client threadID.
func (s *Set) Contains(threadID int, key int64) bool {
	_, ok := s.submit(threadID, opContains, key)
	return ok
}

// Add inserts key on behalf of client threadID, returning false if it
// was already present.
func (s *Set) Add(threadID int, key int64) bool {
	_, ok := s.submit(threadID, opAdd, key)
	return ok
}

// Remove deletes key on behalf of client threadID, returning false if
// it was absent.
func (s *Set) Remove(threadID int, key int64) bool {
	_, ok := s.submit(threadID, opRemove, key)
	return ok
}

// PopMin removes and returns the minimum key on behalf of client
// threadID.
func (s *Set) PopMin(threadID int) (int64, bool) {
	return s.submit(threadID, opPopMin, 0)
}
