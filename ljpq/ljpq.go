// Package ljpq implements the Lindén-Jonsson relaxed priority queue: a
// lock-free skip-list where a node's deletion is recorded on the
// pointer that currently targets it (the classic Harris mark), pop-min
// claims the first live node it finds by winning a single
// compare-and-swap, and cleanup of the resulting garbage prefix is
// amortized across many pops via an offset-triggered restructure pass
// instead of happening inline on every pop.
//
// Go cannot steal the low bit of a pointer word without defeating the
// garbage collector, so the mark lives in its own atomic.Bool field.
// Because the skip-list is singly linked at every level, a node has
// exactly one physical predecessor at a time, so a bool owned by the
// node itself is observationally identical to a bit owned by whichever
// predecessor edge currently targets it.
package ljpq

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

	insertPending int32 = 0
	inserted      int32 = 1
)

type node struct {
	key         int64
	toplevel    int
	insertState atomic.Int32
	marked      atomic.Bool
	next0       atomic.Pointer[node]
	upper       []atomic.Pointer[node] // levels 1..toplevel, index level-1
}

func (n *node) loadNext(level int) *node {
	if level == 0 {
		return n.next0.Load()
	}
	return n.upper[level-1].Load()
}

func (n *node) storeNext(level int, v *node) {
	if level == 0 {
		n.next0.Store(v)
		return
	}
	n.upper[level-1].Store(v)
}

func (n *node) casNext(level int, old, new *node) bool {
	if level == 0 {
		return n.next0.CompareAndSwap(old, new)
	}
	return n.upper[level-1].CompareAndSwap(old, new)
}

// defaultBoundOffset bounds how many already-deleted nodes pop-min will
// walk over before it bothers attempting the amortized head advance.
const defaultBoundOffset = 8

// Queue is a Lindén-Jonsson relaxed priority queue of int64 keys.
type Queue struct {
	head, tail  *node
	boundOffset int
	reclaimer   reclaim.Reclaimer[node]
}

// New constructs an empty queue with the default bound offset, backed
// by a leaky reclaimer.
func New() *Queue {
	return NewWithReclaimer(reclaim.NewLeaky[node](), defaultBoundOffset)
}

// NewWithBoundOffset constructs an empty queue with an explicit bound
// offset controlling how aggressively pop-min amortizes cleanup.
func NewWithBoundOffset(boundOffset int) *Queue {
	return NewWithReclaimer(reclaim.NewLeaky[node](), boundOffset)
}

// NewWithReclaimer constructs an empty queue using r for the reclaiming
// destructive-operation family and boundOffset for amortized cleanup.
func NewWithReclaimer(r reclaim.Reclaimer[node], boundOffset int) *Queue {
	q := &Queue{reclaimer: r, boundOffset: boundOffset}
	q.head = &node{key: headKey, toplevel: xrand.MaxHeight - 1, upper: make([]atomic.Pointer[node], xrand.MaxHeight-1)}
	q.tail = &node{key: tailKey, toplevel: xrand.MaxHeight - 1, upper: make([]atomic.Pointer[node], xrand.MaxHeight-1)}
	q.head.insertState.Store(inserted)
	q.tail.insertState.Store(inserted)
	for level := 0; level < xrand.MaxHeight; level++ {
		q.head.storeNext(level, q.tail)
	}
	return q
}

// locatePreds fills preds/succs at every level and returns the
// rightmost node observed as already deleted while skipping past a
// deleted predecessor at level 0 (the splice target the amortized
// cleanup in pop-min/restructure targets).
func (q *Queue) locatePreds(key int64, preds, succs []*node) *node {
	cur := q.head
	var del *node
	for level := xrand.MaxHeight - 1; level >= 0; level-- {
		next := cur.loadNext(level)
		deleted := cur.marked.Load()
		for next != q.tail && (next.key < key || next.marked.Load() || (level == 0 && deleted)) {
			if level == 0 && deleted {
				del = next
			}
			cur = next
			next = cur.loadNext(level)
			deleted = cur.marked.Load()
		}
		preds[level] = cur
		succs[level] = next
	}
	return del
}

// Contains reports whether key is present and not logically deleted.
func (q *Queue) Contains(key int64) bool {
	preds := make([]*node, xrand.MaxHeight)
	succs := make([]*node, xrand.MaxHeight)
	q.locatePreds(key, preds, succs)
	return succs[0] != q.tail && succs[0].key == key && !succs[0].marked.Load()
}

// Add inserts key, returning false if it is already present.
func (q *Queue) Add(key int64, seed *uint64) bool {
	toplevel := xrand.Level(seed)
	preds := make([]*node, xrand.MaxHeight)
	succs := make([]*node, xrand.MaxHeight)
	var n *node
	for {
		del := q.locatePreds(key, preds, succs)
		predNext := preds[0].next0.Load()
		if succs[0] != q.tail && succs[0].key == key && !preds[0].marked.Load() && predNext == succs[0] {
			return false
		}

		if n == nil {
			n = &node{key: key, toplevel: toplevel}
			if toplevel > 0 {
				n.upper = make([]atomic.Pointer[node], toplevel)
			}
		}
		for level := 0; level <= toplevel; level++ {
			n.storeNext(level, succs[level])
		}
		if !preds[0].next0.CompareAndSwap(succs[0], n) {
			continue
		}

		for level := 1; level <= toplevel; level++ {
			if n.marked.Load() || succs[level].marked.Load() || del == succs[level] {
				n.insertState.Store(inserted)
				return true
			}
			n.storeNext(level, succs[level])
			if preds[level].casNext(level, succs[level], n) {
				continue
			}
			del = q.locatePreds(key, preds, succs)
			if succs[0] != n {
				n.insertState.Store(inserted)
				return true
			}
		}
		n.insertState.Store(inserted)
		return true
	}
}

// PopMin claims and returns the current approximate minimum. Pop-min is
// only quiescently consistent: it may return a node that is not the
// strict global minimum if a concurrent deletion prefix has not yet
// been observed, but the multiset of values popped across all callers
// still equals the multiset of values added and never popped.
func (q *Queue) PopMin() (int64, bool) {
	return q.popMin(false)
}

// PopMinLeaky behaves like PopMin but never retires unlinked nodes.
func (q *Queue) PopMinLeaky() (int64, bool) {
	return q.popMin(true)
}

func (q *Queue) popMin(leaky bool) (int64, bool) {
	pred := q.head
	obsHead := pred.next0.Load()
	var newhead *node
	offset := 0
	for {
		offset++
		target := pred.next0.Load()
		if target == q.tail {
			return 0, false
		}
		if newhead == nil && pred.insertState.Load() == insertPending {
			newhead = pred
		}
		if target.marked.Load() {
			pred = target
			continue
		}
		won := target.marked.CompareAndSwap(false, true)
		pred = target
		if won {
			break
		}
	}
	if newhead == nil {
		newhead = pred
	}
	key := pred.key

	if offset > q.boundOffset && q.head.next0.Load() == obsHead {
		if q.head.next0.CompareAndSwap(obsHead, newhead) {
			q.restructure()
			if !leaky {
				n := obsHead
				for n != newhead {
					next := n.next0.Load()
					q.reclaimer.Retire(n)
					n = next
				}
			}
		}
	}
	return key, true
}

// restructure performs a best-effort single pass splicing each level's
// head pointer past an already-deleted prefix. Unlike the original
// algorithm's retry-until-success loop per level, a lost CAS here
// simply leaves that level's cleanup for a later restructure call; this
// is purely a performance optimization, never required for correctness.
func (q *Queue) restructure() {
	pred := q.head
	for level := xrand.MaxHeight - 1; level > 0; level-- {
		head := q.head.loadNext(level)
		if !head.marked.Load() {
			continue
		}
		cur := pred.loadNext(level)
		for cur.marked.Load() {
			pred = cur
			cur = pred.loadNext(level)
		}
		q.head.casNext(level, head, cur)
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
	curr := q.head.next0.Load()
	for curr != q.tail {
		if !curr.marked.Load() {
			if !s.HasValues {
				s.MinKey = curr.key
				s.HasValues = true
			}
			s.MaxKey = curr.key
			s.Len++
		}
		curr = curr.next0.Load()
	}
	return s
}

// String renders the live keys in ascending order.
func (q *Queue) String() string {
	var b strings.Builder
	b.WriteByte('[')
	curr := q.head.next0.Load()
	first := true
	for curr != q.tail {
		if !curr.marked.Load() {
			if !first {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%d", curr.key)
			first = false
		}
		curr = curr.next0.Load()
	}
	b.WriteByte(']')
	return b.String()
}
