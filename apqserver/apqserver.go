// Package apqserver implements the two-tier flat-combining priority
// queue server: a server-owned near-minimum set (fc_set) fed by a
// concurrently-accessed overflow set (p_set), split at a moving
// cutoff key. Requests for keys below the cutoff are routed through a
// per-client slot to the single server goroutine, which applies them
// to fc_set with no lock contention since it is the set's only
// caller; requests at or above the cutoff bypass the server entirely
// and hit p_set's ordinary lock-coupled concurrent path. Periodically
// the server tops fc_set back up from p_set in one bulk transfer so
// the server-owned tier never runs dry under steady pop pressure.
package apqserver

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/willtor/pqueues-go/fhslb"
)

type opType int32

const (
	opNone opType = iota
	opContains
	opAdd
	opRemove
	opRemoveLeaky
	opPopMin
	opPopMinLeaky
)

// slot is one client's mailbox, identical in shape to fhslfc's: arg
// carries the key in and, for the pop variants, carries the popped
// key back out alongside ret.
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

// Server is a flat-combined priority queue of int64 keys split across
// a server-owned fcSet and a concurrently-shared pSet.
type Server struct {
	slots  []slot
	seeds  []uint64
	fcSet  *fhslb.List
	pSet   *fhslb.List
	cutoff atomic.Int64

	fcSize           atomic.Int64
	fcSizeThreshold  int
	fcTransferAmount int

	stopped atomic.Bool
	done    chan struct{}
}

// New constructs a server for numThreads clients with the given
// initial cutoff key and starts its server goroutine. Keys strictly
// below cutoffKey live in the server-owned tier; cutoffKey itself and
// above live in the concurrently-shared tier until a bulk transfer
// moves the boundary. Call Close to stop the server goroutine.
func New(numThreads int, cutoffKey int64) *Server {
	if numThreads < 1 {
		numThreads = 1
	}
	threshold := numThreads * 4
	if int64(threshold) > cutoffKey {
		threshold = int(cutoffKey)
	}
	if threshold < 1 {
		threshold = 1
	}
	s := &Server{
		slots:            make([]slot, numThreads),
		seeds:            make([]uint64, numThreads),
		fcSet:            fhslb.New(),
		pSet:             fhslb.New(),
		fcSizeThreshold:  threshold,
		fcTransferAmount: threshold,
		done:             make(chan struct{}),
	}
	s.cutoff.Store(cutoffKey)
	for i := range s.slots {
		s.slots[i].op.Store(int32(opNone))
		s.seeds[i] = uint64(i)*2685821657736338717 + 1
	}
	go s.run()
	return s
}

// Close stops the server goroutine.
func (s *Server) Close() {
	s.stopped.Store(true)
	<-s.done
}

func (s *Server) run() {
	defer close(s.done)
	for !s.stopped.Load() {
		for i := range s.slots {
			sl := &s.slots[i]
			switch opType(sl.op.Load()) {
			case opContains:
				sl.ret.Store(s.fcSet.Contains(sl.arg.Load()))
			case opAdd:
				if s.fcSet.Add(sl.arg.Load(), &s.seeds[i]) {
					s.fcSize.Add(1)
					sl.ret.Store(true)
				} else {
					sl.ret.Store(false)
				}
			case opRemove:
				if s.fcSet.Remove(sl.arg.Load()) {
					s.fcSize.Add(-1)
					sl.ret.Store(true)
				} else {
					sl.ret.Store(false)
				}
			case opRemoveLeaky:
				if s.fcSet.RemoveLeaky(sl.arg.Load()) {
					s.fcSize.Add(-1)
					sl.ret.Store(true)
				} else {
					sl.ret.Store(false)
				}
			case opPopMin:
				key, ok := s.fcSet.PopMin()
				if ok {
					s.fcSize.Add(-1)
				}
				sl.arg.Store(key)
				sl.ret.Store(ok)
			case opPopMinLeaky:
				key, ok := s.fcSet.PopMinLeaky()
				if ok {
					s.fcSize.Add(-1)
				}
				sl.arg.Store(key)
				sl.ret.Store(ok)
			default:
				continue
			}
			sl.op.Store(int32(opNone))
		}

		if s.fcSize.Load() < int64(s.fcSizeThreshold) {
			head, tail, count := s.pSet.BulkPop(s.fcTransferAmount)
			if tail != nil {
				s.fcSet.BulkPush(head, tail)
				s.fcSize.Add(int64(count))
				s.cutoff.Store(tail.Key())
			}
		}
		runtime.Gosched()
	}
}

func (s *Server) submit(threadID int, op opType, arg int64) (int64, bool) {
	sl := &s.slots[threadID]
	sl.arg.Store(arg)
	sl.op.Store(int32(op))
	sl.wait()
	return sl.arg.Load(), sl.ret.Load()
}

// Contains reports whether key is present, checking whichever tier
// currently owns it.
func (s *Server) Contains(threadID int, key int64) bool {
	if key < s.cutoff.Load() {
		_, ok := s.submit(threadID, opContains, key)
		return ok
	}
	return s.pSet.Contains(key)
}

// Add inserts key on behalf of client threadID, using seed as the
// caller-local random source for the concurrent tier's level draw
// when key lands there. Keys below the cutoff are routed through the
// server; keys at or above it go straight to the concurrent tier.
func (s *Server) Add(threadID int, key int64, seed *uint64) bool {
	if key < s.cutoff.Load() {
		_, ok := s.submit(threadID, opAdd, key)
		return ok
	}
	return s.pSet.Add(key, seed)
}

// Remove deletes key, retiring the unlinked node through the owning
// tier's configured reclaimer.
func (s *Server) Remove(threadID int, key int64) bool {
	if key < s.cutoff.Load() {
		_, ok := s.submit(threadID, opRemove, key)
		return ok
	}
	return s.pSet.Remove(key)
}

// RemoveLeaky behaves like Remove but never retires the unlinked node.
func (s *Server) RemoveLeaky(threadID int, key int64) bool {
	if key < s.cutoff.Load() {
		_, ok := s.submit(threadID, opRemoveLeaky, key)
		return ok
	}
	return s.pSet.RemoveLeaky(key)
}

// PopMin removes and returns the minimum key. Pop operations always
// target the server-owned tier: every key there is <= cutoff (after a
// bulk transfer the cutoff is the largest transferred key, which sits
// in fcSet) and every key in the concurrent tier is >= cutoff, so
// fcSet holds the true
// minimum whenever it is non-empty. The periodic bulk transfer in the
// server loop exists to keep it that way; a pop can still legitimately
// report empty with keys waiting in the concurrent tier if the
// transfer has not yet caught up, matching the source this is
// grounded on.
func (s *Server) PopMin(threadID int) (int64, bool) {
	return s.submit(threadID, opPopMin, 0)
}

// PopMinLeaky behaves like PopMin but never retires the popped node.
func (s *Server) PopMinLeaky(threadID int) (int64, bool) {
	return s.submit(threadID, opPopMinLeaky, 0)
}
