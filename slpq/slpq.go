// Package slpq implements the Shavit-Lotan lock-free priority queue: a
// Harris/Michael-style lock-free fixed-height skip-list (identical in
// shape to fhsllf's find/add/remove) augmented with a per-node logical
// "deleted" flag that PopMin uses to claim the current minimum before
// physically unlinking it via the ordinary remove path.
package slpq

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

type node struct {
	key      int64
	toplevel int
	next     []atomic.Pointer[node]
	marked   atomic.Bool
	deleted  atomic.Bool
}

// Queue is a Shavit-Lotan priority queue of int64 keys.
type Queue struct {
	head, tail *node
	reclaimer  reclaim.Reclaimer[node]
}

// New constructs an empty queue backed by a leaky reclaimer.
func New() *Queue {
	return NewWithReclaimer(reclaim.NewLeaky[node]())
}

// NewWithReclaimer constructs an empty queue using r for the reclaiming
// destructive-operation family.
func NewWithReclaimer(r reclaim.Reclaimer[node]) *Queue {
	q := &Queue{reclaimer: r}
	q.head = &node{key: headKey, toplevel: xrand.MaxHeight - 1, next: make([]atomic.Pointer[node], xrand.MaxHeight)}
	q.tail = &node{key: tailKey, toplevel: xrand.MaxHeight - 1, next: make([]atomic.Pointer[node], xrand.MaxHeight)}
	for i := 0; i < xrand.MaxHeight; i++ {
		q.head.next[i].Store(q.tail)
	}
	return q
}

// find is fhsllf's find verbatim: it locates, for every level, the last
// unmarked node with key < key and its successor, physically unlinking
// marked nodes it passes over. It returns whether succs[0] is an exact,
// live match for key.
func (q *Queue) find(key int64, preds, succs []*node) bool {
retry:
	for {
		pred := q.head
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

// Contains reports whether key is present and neither physically nor
// logically deleted.
func (q *Queue) Contains(key int64) bool {
	pred := q.head
	var curr *node
	for level := xrand.MaxHeight - 1; level >= 0; level-- {
		curr = pred.next[level].Load()
		for curr != nil && curr.key < key {
			pred = curr
			curr = pred.next[level].Load()
		}
	}
	return curr != nil && curr.key == key && !curr.marked.Load() && !curr.deleted.Load()
}

// Add inserts key, returning false if it is already present.
func (q *Queue) Add(key int64, seed *uint64) bool {
	toplevel := xrand.Level(seed)
	preds := make([]*node, xrand.MaxHeight)
	succs := make([]*node, xrand.MaxHeight)
	for {
		if q.find(key, preds, succs) {
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
				q.find(key, preds, succs)
			}
		}
		return true
	}
}

// RemoveLeaky removes key without retiring the unlinked node.
func (q *Queue) RemoveLeaky(key int64) bool {
	return q.remove(key, true)
}

// Remove removes key, retiring the unlinked node through the configured
// reclaimer.
func (q *Queue) Remove(key int64) bool {
	return q.remove(key, false)
}

func (q *Queue) remove(key int64, leaky bool) bool {
	preds := make([]*node, xrand.MaxHeight)
	succs := make([]*node, xrand.MaxHeight)
	if !q.find(key, preds, succs) {
		return false
	}
	victim := succs[0]
	if !victim.marked.CompareAndSwap(false, true) {
		return false
	}
	q.find(key, preds, succs)
	if !leaky {
		q.reclaimer.Retire(victim)
	}
	return true
}

// PopMin claims and physically removes the current minimum key. The
// linearization point is the successful CAS that flips a candidate
// node's deleted flag from false to true; the winner of that CAS owns
// the pop and performs the physical unlink via remove.
func (q *Queue) PopMin() (int64, bool) {
	return q.popMin(false)
}

// PopMinLeaky behaves like PopMin but does not retire the unlinked node.
func (q *Queue) PopMinLeaky() (int64, bool) {
	return q.popMin(true)
}

func (q *Queue) popMin(leaky bool) (int64, bool) {
	for {
		curr := q.head.next[0].Load()
		for curr != nil && curr != q.tail && (curr.marked.Load() || curr.deleted.Load()) {
			curr = curr.next[0].Load()
		}
		if curr == nil || curr == q.tail {
			return 0, false
		}
		if curr.deleted.CompareAndSwap(false, true) {
			key := curr.key
			q.remove(key, leaky)
			return key, true
		}
		// Lost the race for this candidate; retry from the new head.
	}
}

// Stats summarizes the live contents of the queue.
type Stats struct {
	Len       int
	MinKey    int64
	MaxKey    int64
	HasValues bool
}

func (q *Queue) Stats() Stats {
	var s Stats
	curr := q.head.next[0].Load()
	for curr != nil && curr != q.tail {
		if !curr.marked.Load() && !curr.deleted.Load() {
			if !s.HasValues {
				s.MinKey = curr.key
				s.HasValues = true
			}
			s.MaxKey = curr.key
			s.Len++
		}
		curr = curr.next[0].Load()
	}
	return s
}

// String renders the live keys in ascending order.
func (q *Queue) String() string {
	var b strings.Builder
	b.WriteByte('[')
	curr := q.head.next[0].Load()
	first := true
	for curr != nil && curr != q.tail {
		if !curr.marked.Load() && !curr.deleted.Load() {
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
