// Package spraypq implements the spray-list priority queue: a
// Harris-style lock-free skip-list of PADDING/ACTIVE/DELETED nodes,
// fronted by a chain of pure PADDING nodes that lets pop-min's random
// "spray" descent start away from the real head so concurrent poppers
// rarely collide on the same first few elements.
//
// Of the variants the source carries, this package implements plain
// spray (used by every pop-min call) and the mutex-guarded "cleaner"
// role that a caller takes on with probability 1/T (used only by the
// leaky pop-min): the cleaner takes an explicit mutex against other
// cleaners, walks level 0 from head, and splices head.next[0] past a
// prefix of DELETED nodes while reclaiming one ACTIVE node as its pop
// result. The source's third, in-progress swinging-pointers cleaner is
// explicitly not implemented: its own comments call it unproven, and
// carrying an admittedly-broken concurrency protocol forward would not
// teach the algorithm correctly.
package spraypq

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/willtor/pqueues-go/reclaim"
	"github.com/willtor/pqueues-go/xrand"
)

const (
	headKey = int64(math.MinInt64)
	tailKey = int64(math.MaxInt64)
)

type nodeState int32

const (
	padding nodeState = iota
	active
	deleted
)

type node struct {
	key      int64
	toplevel int
	state    atomic.Int32
	marked   atomic.Bool
	next     []atomic.Pointer[node]
}

func (n *node) loadNext(level int) *node {
	if level >= len(n.next) {
		return nil
	}
	return n.next[level].Load()
}

// config mirrors the paper's thread-count-derived spray parameters.
type config struct {
	threadCount   int64
	startHeight   int64
	maxJump       int64
	descendAmount int64
	paddingAmount int64
}

func paperConfig(threads int64) config {
	logArg := threads
	if threads <= 1 {
		logArg = 2
	}
	return config{
		threadCount:   threads,
		startHeight:   int64(math.Log2(float64(threads)) + 1),
		maxJump:       int64(math.Log2(float64(threads)) + 1),
		descendAmount: 1,
		paddingAmount: int64(float64(threads) * math.Log2(float64(logArg)) / 2),
	}
}

// Queue is a spray-list priority queue of int64 keys, tuned for use by
// approximately threadCount concurrent goroutines.
type Queue struct {
	cfg         config
	paddingHead *node
	head, tail  *node
	reclaimer   reclaim.Reclaimer[node]
	cleanerMu   sync.Mutex
}

// New constructs an empty queue tuned for threads concurrent callers,
// backed by a leaky reclaimer.
func New(threads int) *Queue {
	return NewWithReclaimer(threads, reclaim.NewLeaky[node]())
}

// NewWithReclaimer constructs an empty queue using r for the reclaiming
// destructive-operation family.
func NewWithReclaimer(threads int, r reclaim.Reclaimer[node]) *Queue {
	if threads < 1 {
		threads = 1
	}
	q := &Queue{cfg: paperConfig(int64(threads)), reclaimer: r}
	q.head = &node{key: headKey, toplevel: xrand.MaxHeight - 1, next: make([]atomic.Pointer[node], xrand.MaxHeight)}
	q.tail = &node{key: tailKey, toplevel: xrand.MaxHeight - 1, next: make([]atomic.Pointer[node], xrand.MaxHeight)}
	q.head.state.Store(int32(padding))
	q.tail.state.Store(int32(padding))
	for i := 0; i < xrand.MaxHeight; i++ {
		q.head.next[i].Store(q.tail)
	}
	q.paddingHead = q.head
	for i := int64(1); i < q.cfg.paddingAmount; i++ {
		p := &node{key: headKey, toplevel: xrand.MaxHeight - 1, next: make([]atomic.Pointer[node], xrand.MaxHeight)}
		p.state.Store(int32(padding))
		prev := q.paddingHead
		for j := 0; j < xrand.MaxHeight; j++ {
			p.next[j].Store(prev)
		}
		q.paddingHead = p
	}
	return q
}

// find is the shared Harris-style lock-free search: it locates, for
// every level, the last unmarked node with key < key and its successor,
// physically unlinking marked nodes it passes over.
func (q *Queue) find(key int64, preds, succs []*node) bool {
retry:
	for {
		pred := q.head
		for level := xrand.MaxHeight - 1; level >= 0; level-- {
			curr := pred.loadNext(level)
			for {
				if curr == nil {
					break
				}
				if curr.marked.Load() {
					succ := curr.loadNext(level)
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
				curr = pred.loadNext(level)
			}
			preds[level] = pred
			succs[level] = curr
		}
		return succs[0] != nil && succs[0].key == key
	}
}

// Contains reports whether key is present, active, and unmarked.
func (q *Queue) Contains(key int64) bool {
	preds := make([]*node, xrand.MaxHeight)
	succs := make([]*node, xrand.MaxHeight)
	if !q.find(key, preds, succs) {
		return false
	}
	n := succs[0]
	return !n.marked.Load() && nodeState(n.state.Load()) == active
}

// Add inserts key as an ACTIVE node, returning false if an undeleted
// copy is already present. If Add observes a DELETED node occupying
// key's slot, it helps finish unlinking it and retries.
func (q *Queue) Add(key int64, seed *uint64) bool {
	toplevel := xrand.Level(seed)
	preds := make([]*node, xrand.MaxHeight)
	succs := make([]*node, xrand.MaxHeight)
	var n *node
	for {
		if q.find(key, preds, succs) {
			found := succs[0]
			if nodeState(found.state.Load()) == deleted {
				found.marked.Store(true)
				continue
			}
			return false
		}

		if n == nil {
			n = &node{key: key, toplevel: toplevel, next: make([]atomic.Pointer[node], toplevel+1)}
			n.state.Store(int32(active))
		}
		for i := 0; i <= toplevel; i++ {
			n.next[i].Store(succs[i])
		}
		if !preds[0].next[0].CompareAndSwap(succs[0], n) {
			continue
		}
		for level := 1; level <= toplevel; level++ {
			for {
				pred, succ := preds[level], succs[level]
				n.next[level].Store(succ)
				if pred.next[level].CompareAndSwap(succ, n) {
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
	for {
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
}

// spray performs the randomized descent from the padding head that
// pop-min uses to pick a starting point away from the contended head.
func (q *Queue) spray(seed *uint64) *node {
	cur := q.paddingHead
	for h := q.cfg.startHeight; h >= 0; h -= q.cfg.descendAmount {
		jump := int64(xrand.Next(seed) % uint64(q.cfg.maxJump+1))
		for ; jump > 0; jump-- {
			next := cur.loadNext(int(h))
			if next == nil || next == q.tail {
				break
			}
			cur = next
		}
	}
	return cur
}

// PopMin always performs a plain spray: it sprays to a starting point,
// walks forward at level 0 past PADDING/DELETED nodes and any node it
// loses the claim race on, and on the first ACTIVE node it successfully
// claims, physically removes it (retiring the node) before returning.
// Pop-min is only quiescently consistent: it is not guaranteed to
// return the strict global minimum under concurrent mutation.
func (q *Queue) PopMin(seed *uint64) (int64, bool) {
	node := q.spray(seed)
	if nodeState(node.state.Load()) == padding {
		node = q.head.next[0].Load()
	}
	for node != q.tail {
		if nodeState(node.state.Load()) == active && node.state.CompareAndSwap(int32(active), int32(deleted)) {
			key := node.key
			q.remove(key, false)
			return key, true
		}
		node = node.loadNext(0)
	}
	return 0, false
}

// PopMinLeaky is PopMin's leaky counterpart, additionally taking on the
// cleaner role with probability 1/threadCount instead of always
// spraying: the cleaner takes a mutex serializing it against other
// cleaners, walks level 0 from head once, claims the first ACTIVE node
// it finds as the pop result, keeps scanning to find a second ACTIVE
// node (or tail) as a splice target, and advances head.next[0] past the
// claimed node and any DELETED nodes it observed. The underlying state
// transitions are still atomic compare-and-swaps, since ordinary spray
// pops and adds keep running lock-free concurrently with a cleaner.
func (q *Queue) PopMinLeaky(seed *uint64) (int64, bool) {
	if int64(xrand.Next(seed)%uint64(q.cfg.threadCount)) == 0 {
		return q.popMinCleanerLeaky()
	}
	return q.popMinSprayLeaky(seed)
}

func (q *Queue) popMinSprayLeaky(seed *uint64) (int64, bool) {
	node := q.spray(seed)
	if nodeState(node.state.Load()) == padding {
		node = q.head.next[0].Load()
	}
	for node != q.tail {
		if nodeState(node.state.Load()) == active && node.state.CompareAndSwap(int32(active), int32(deleted)) {
			node.marked.Store(true)
			return node.key, true
		}
		node = node.loadNext(0)
	}
	return 0, false
}

func (q *Queue) popMinCleanerLeaky() (int64, bool) {
	q.cleanerMu.Lock()
	defer q.cleanerMu.Unlock()

	left := q.head
	leftNext := left.next[0].Load()
	right := leftNext
	claimed := false
	var claimedKey int64

	for right != q.tail {
		switch nodeState(right.state.Load()) {
		case deleted:
			right.marked.Store(true)
			right = right.loadNext(0)
		case active:
			if !claimed {
				if right.state.CompareAndSwap(int32(active), int32(deleted)) {
					claimed = true
					claimedKey = right.key
				}
				right.marked.Store(true)
				right = right.loadNext(0)
				continue
			}
			if left.next[0].Load() == leftNext {
				left.next[0].CompareAndSwap(leftNext, right)
			}
			return claimedKey, claimed
		default: // padding, shouldn't occur past head but handled for safety
			right = right.loadNext(0)
		}
	}
	if left.next[0].Load() == leftNext {
		left.next[0].CompareAndSwap(leftNext, right)
	}
	return claimedKey, claimed
}

// Stats summarizes the live (active, unmarked) contents of the queue.
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
		if !curr.marked.Load() && nodeState(curr.state.Load()) == active {
			if !s.HasValues {
				s.MinKey = curr.key
				s.HasValues = true
			}
			s.MaxKey = curr.key
			s.Len++
		}
		curr = curr.loadNext(0)
	}
	return s
}

// String renders the live active keys in ascending order.
func (q *Queue) String() string {
	var b strings.Builder
	b.WriteByte('[')
	curr := q.head.next[0].Load()
	first := true
	for curr != nil && curr != q.tail {
		if !curr.marked.Load() && nodeState(curr.state.Load()) == active {
			if !first {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%d", curr.key)
			first = false
		}
		curr = curr.loadNext(0)
	}
	b.WriteByte(']')
	return b.String()
}
