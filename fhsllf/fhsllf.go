// Package fhsllf implements a lock-free fixed-height skip-list ordered
// set, using Harris/Michael mark-before-unlink deletion: compare-and-
// swap only, no locks, logical delete (mark) followed by lazy physical
// unlink performed by whichever goroutine next traverses the marked
// node.
package fhsllf

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/willtor/pqueues-go/reclaim"
	"github.com/willtor/pqueues-go/xrand"
)

const (
	headKey = int64(math.MinInt64)
	tailKey = int64(math.MaxInt64)
)

// node is the shared skip-list node shape. marked stands in for the
// per-level mark bit the C source carries on each next pointer: every
// traversal treats a marked node as logically deleted at every level
// at once, which is the invariant the source's top-down per-level
// marking converges to once level 0 is marked.
type node struct {
	key      int64
	toplevel int
	next     []atomic.Pointer[node]
	marked   atomic.Bool
}

// List is a lock-free fixed-height skip-list set of int64 keys.
type List struct {
	head, tail *node
	reclaimer  reclaim.Reclaimer[node]
}

// New constructs an empty list backed by a leaky reclaimer: unlinked
// nodes are simply abandoned to the Go garbage collector, matching the
// `_leaky` destructive-operation family.
func New() *List {
	return NewWithReclaimer(reclaim.NewLeaky[node]())
}

// NewWithReclaimer constructs an empty list using r for the reclaiming
// destructive-operation family (Remove, PopMin).
func NewWithReclaimer(r reclaim.Reclaimer[node]) *List {
	l := &List{reclaimer: r}
	l.head = &node{key: headKey, toplevel: xrand.MaxHeight - 1, next: make([]atomic.Pointer[node], xrand.MaxHeight)}
	l.tail = &node{key: tailKey, toplevel: xrand.MaxHeight - 1, next: make([]atomic.Pointer[node], xrand.MaxHeight)}
	for i := 0; i < xrand.MaxHeight; i++ {
		l.head.next[i].Store(l.tail)
	}
	return l
}

// find locates, for every level, the last unmarked node with key < key
// (preds[level]) and its successor (succs[level]), physically unlinking
// any marked nodes it passes over along the way. It returns whether
// succs[0] is an exact, live match for key. Concurrent find calls race
// on the helping CASes; a loser simply restarts from head.
func (l *List) find(key int64, preds, succs []*node) bool {
retry:
	for {
		pred := l.head
		for level := xrand.MaxHeight - 1; level >= 0; level-- {
			curr := pred.next[level].Load()
			for {
				if curr == nil {
					break
				}
				if curr.marked.Load() {
					succ := curr.next[level].Load()
					if !pred.next[level].CompareAndSwap(curr, succ) {
						continue retry
					}
					curr = succ
					continue
				}
				if curr.key >= key {
					break
				}
				pred = curr
				curr = pred.next[level].Load()
			}
			preds[level] = pred
			succs[level] = curr
		}
		return succs[0] != nil && succs[0].key == key
	}
}

// Contains is read-only and never helps unlink marked nodes, making it
// wait-free.
func (l *List) Contains(key int64) bool {
	pred := l.head
	var curr *node
	for level := xrand.MaxHeight - 1; level >= 0; level-- {
		curr = pred.next[level].Load()
		for curr != nil && curr.key < key {
			pred = curr
			curr = pred.next[level].Load()
		}
	}
	return curr != nil && curr.key == key && !curr.marked.Load()
}

// Add inserts key, returning false if it is already present. seed is
// the caller's thread-local xorshift PRNG state (see xrand), threaded
// through so level sampling never depends on structure state.
func (l *List) Add(key int64, seed *uint64) bool {
	toplevel := xrand.Level(seed)
	preds := make([]*node, xrand.MaxHeight)
	succs := make([]*node, xrand.MaxHeight)
	for {
		if l.find(key, preds, succs) {
			return false
		}

		n := &node{key: key, toplevel: toplevel, next: make([]atomic.Pointer[node], toplevel+1)}
		for i := 0; i <= toplevel; i++ {
			n.next[i].Store(succs[i])
		}

		if !preds[0].next[0].CompareAndSwap(succs[0], n) {
			continue
		}

		for level := 1; level <= toplevel; level++ {
			for {
				n.next[level].Store(succs[level])
				if preds[level].next[level].CompareAndSwap(succs[level], n) {
					break
				}
				l.find(key, preds, succs)
			}
		}
		return true
	}
}

// RemoveLeaky removes key without retiring the unlinked node to the
// reclaimer; in this Go port that only means the bookkeeping call is
// skipped, since the node is reclaimed by the garbage collector as soon
// as it becomes unreachable regardless.
func (l *List) RemoveLeaky(key int64) bool {
	return l.remove(key, true)
}

// Remove removes key and retires the unlinked node through the
// configured reclaimer.
func (l *List) Remove(key int64) bool {
	return l.remove(key, false)
}

func (l *List) remove(key int64, leaky bool) bool {
	preds := make([]*node, xrand.MaxHeight)
	succs := make([]*node, xrand.MaxHeight)
	if !l.find(key, preds, succs) {
		return false
	}
	victim := succs[0]
	if !victim.marked.CompareAndSwap(false, true) {
		return false
	}
	// Physically unlink; find()'s helping path does the actual work.
	l.find(key, preds, succs)
	if !leaky {
		l.reclaimer.Retire(victim)
	}
	return true
}

// PopMinLeaky removes and returns the minimum key without retiring the
// unlinked node.
func (l *List) PopMinLeaky() (int64, bool) {
	return l.popMin(true)
}

// PopMin removes and returns the minimum key, retiring the unlinked
// node through the configured reclaimer.
func (l *List) PopMin() (int64, bool) {
	return l.popMin(false)
}

func (l *List) popMin(leaky bool) (int64, bool) {
	for {
		curr := l.head.next[0].Load()
		if curr == nil || curr == l.tail {
			return 0, false
		}
		if curr.marked.Load() {
			continue
		}
		if curr.marked.CompareAndSwap(false, true) {
			key := curr.key
			preds := make([]*node, xrand.MaxHeight)
			succs := make([]*node, xrand.MaxHeight)
			l.find(key, preds, succs)
			if !leaky {
				l.reclaimer.Retire(curr)
			}
			return key, true
		}
	}
}

// Stats summarizes the live contents of the list, standing in for the
// original C sources' debug print routines.
type Stats struct {
	Len       int
	MaxLevel  int
	MinKey    int64
	MaxKey    int64
	HasValues bool
}

// Stats walks level 0 once and reports a snapshot; it is not
// linearizable with respect to concurrent mutators.
func (l *List) Stats() Stats {
	var s Stats
	curr := l.head.next[0].Load()
	for curr != nil && curr != l.tail {
		if !curr.marked.Load() {
			if !s.HasValues {
				s.MinKey = curr.key
				s.HasValues = true
			}
			s.MaxKey = curr.key
			s.Len++
			if curr.toplevel > s.MaxLevel {
				s.MaxLevel = curr.toplevel
			}
		}
		curr = curr.next[0].Load()
	}
	return s
}

// String renders the live keys in ascending order.
func (l *List) String() string {
	var b strings.Builder
	b.WriteByte('[')
	curr := l.head.next[0].Load()
	first := true
	for curr != nil && curr != l.tail {
		if !curr.marked.Load() {
			if !first {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%d", curr.key)
			first = false
		}
		curr = curr.next[0].Load()
	}
	b.WriteByte(']')
	return b.String()
}
