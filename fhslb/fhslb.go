// Package fhslb implements a lock-coupled fixed-height skip-list
// ordered set (the "LazySkipList" shape: optimistic lock-free search,
// pred-locking mutation, a fullyLinked publication flag) plus the bulk
// transfer operations (BulkPop/BulkPush) that the flat-combining APQ
// server uses to move batches of low keys into its serial near-min
// store.
package fhslb

import (
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/willtor/pqueues-go/lock"
	"github.com/willtor/pqueues-go/reclaim"
	"github.com/willtor/pqueues-go/xrand"
)

const (
	headKey = int64(math.MinInt64)
	tailKey = int64(math.MaxInt64)
)

type node struct {
	key         int64
	toplevel    int
	next        []atomic.Pointer[node]
	marked      atomic.Bool
	fullyLinked atomic.Bool
	mu          lock.Spin
}

// Key returns n's key. It exists so a bulk-transferred chain's
// boundary node, handed back opaquely by BulkPop, can be inspected by
// callers outside this package (the apqserver flat-combining tier
// needs the transferred tail's key to advance its cutoff).
func (n *node) Key() int64 {
	return n.key
}

// List is a lock-coupled fixed-height skip-list set of int64 keys.
type List struct {
	head, tail *node
	reclaimer  reclaim.Reclaimer[node]
}

// New constructs an empty list backed by a leaky reclaimer.
func New() *List {
	return NewWithReclaimer(reclaim.NewLeaky[node]())
}

// NewWithReclaimer constructs an empty list using r for the reclaiming
// destructive-operation family.
func NewWithReclaimer(r reclaim.Reclaimer[node]) *List {
	l := &List{reclaimer: r}
	l.head = &node{key: headKey, toplevel: xrand.MaxHeight - 1, next: make([]atomic.Pointer[node], xrand.MaxHeight)}
	l.tail = &node{key: tailKey, toplevel: xrand.MaxHeight - 1, next: make([]atomic.Pointer[node], xrand.MaxHeight)}
	l.head.fullyLinked.Store(true)
	l.tail.fullyLinked.Store(true)
	for i := 0; i < xrand.MaxHeight; i++ {
		l.head.next[i].Store(l.tail)
	}
	return l
}

// find is the optimistic, lock-free search shared by every operation.
// It returns the highest level at which a node with key was observed,
// marked or not, or -1 if none was found at any level; callers check
// the found node's marked and fullyLinked flags themselves.
func (l *List) find(key int64, preds, succs []*node) int {
	lFound := -1
	pred := l.head
	for level := xrand.MaxHeight - 1; level >= 0; level-- {
		curr := pred.next[level].Load()
		for curr != nil && curr.key < key {
			pred = curr
			curr = pred.next[level].Load()
		}
		if lFound == -1 && curr != nil && curr.key == key {
			lFound = level
		}
		preds[level] = pred
		succs[level] = curr
	}
	return lFound
}

// Contains returns true iff key is present and fully linked.
func (l *List) Contains(key int64) bool {
	preds := make([]*node, xrand.MaxHeight)
	succs := make([]*node, xrand.MaxHeight)
	lFound := l.find(key, preds, succs)
	if lFound == -1 {
		return false
	}
	found := succs[lFound]
	return found.fullyLinked.Load() && !found.marked.Load()
}

func okToDelete(n *node, lFound int) bool {
	return n.fullyLinked.Load() && n.toplevel == lFound && !n.marked.Load()
}

func unlockAll(nodes []*node) {
	for _, n := range nodes {
		n.mu.Unlock()
	}
}

// Add inserts key, returning false if it is already present.
func (l *List) Add(key int64, seed *uint64) bool {
	toplevel := xrand.Level(seed)
	preds := make([]*node, xrand.MaxHeight)
	succs := make([]*node, xrand.MaxHeight)
	for {
		lFound := l.find(key, preds, succs)
		if lFound != -1 {
			found := succs[lFound]
			if !found.marked.Load() {
				for !found.fullyLinked.Load() {
					runtime.Gosched()
				}
				return false
			}
			continue
		}

		var locked []*node
		valid := true
		var prevPred *node
		for level := 0; valid && level <= toplevel; level++ {
			pred, succ := preds[level], succs[level]
			if pred != prevPred {
				pred.mu.Lock()
				locked = append(locked, pred)
				prevPred = pred
			}
			valid = !pred.marked.Load() && (succ == nil || !succ.marked.Load()) && pred.next[level].Load() == succ
		}
		if !valid {
			unlockAll(locked)
			continue
		}

		n := &node{key: key, toplevel: toplevel, next: make([]atomic.Pointer[node], toplevel+1)}
		for level := 0; level <= toplevel; level++ {
			n.next[level].Store(succs[level])
		}
		for level := 0; level <= toplevel; level++ {
			preds[level].next[level].Store(n)
		}
		n.fullyLinked.Store(true)
		unlockAll(locked)
		return true
	}
}

// RemoveLeaky removes key without retiring the unlinked node.
func (l *List) RemoveLeaky(key int64) bool {
	return l.remove(key, true)
}

// Remove removes key, retiring the unlinked node through the configured
// reclaimer.
func (l *List) Remove(key int64) bool {
	return l.remove(key, false)
}

func (l *List) remove(key int64, leaky bool) bool {
	var victim *node
	isMarked := false
	topLevel := -1
	preds := make([]*node, xrand.MaxHeight)
	succs := make([]*node, xrand.MaxHeight)
	for {
		lFound := l.find(key, preds, succs)
		if !isMarked && (lFound == -1 || !okToDelete(succs[lFound], lFound)) {
			return false
		}
		if !isMarked {
			victim = succs[lFound]
			topLevel = victim.toplevel
			victim.mu.Lock()
			if victim.marked.Load() {
				victim.mu.Unlock()
				return false
			}
			victim.marked.Store(true)
			isMarked = true
		}

		var locked []*node
		valid := true
		var prevPred *node
		for level := 0; valid && level <= topLevel; level++ {
			pred := preds[level]
			if pred != prevPred {
				pred.mu.Lock()
				locked = append(locked, pred)
				prevPred = pred
			}
			valid = !pred.marked.Load() && pred.next[level].Load() == victim
		}
		if !valid {
			unlockAll(locked)
			continue
		}

		for level := topLevel; level >= 0; level-- {
			preds[level].next[level].Store(victim.next[level].Load())
		}
		victim.mu.Unlock()
		unlockAll(locked)
		if !leaky {
			l.reclaimer.Retire(victim)
		}
		return true
	}
}

// PopMinLeaky removes and returns the minimum key without retiring the
// unlinked node.
func (l *List) PopMinLeaky() (int64, bool) {
	return l.popMin(true)
}

// PopMin removes and returns the minimum key.
func (l *List) PopMin() (int64, bool) {
	return l.popMin(false)
}

func (l *List) popMin(leaky bool) (int64, bool) {
	for {
		n := l.head.next[0].Load()
		if n == nil || n == l.tail {
			return 0, false
		}
		key := n.key
		if l.remove(key, leaky) {
			return key, true
		}
		if !l.Contains(key) {
			// Someone else already removed this exact key; the list
			// may now be empty or have a new minimum. Retry from head.
			continue
		}
	}
}

// BulkPop detaches up to n nodes starting at the current minimum,
// returning the chain's head and tail and the number of nodes moved.
// This is documented in the source as unsafe in the presence of
// concurrent Remove/PopMin calls on the same list: the re-homing step
// below reads an approximate view of "what follows the popped chain"
// and does not coordinate with concurrent removers the way Add/Remove
// coordinate with each other.
func (l *List) BulkPop(n int) (head, tail *node, count int) {
	curr := l.head.next[0].Load()
	if curr == nil || curr == l.tail {
		return nil, nil, 0
	}
	head = curr
	for count < n && curr != l.tail {
		tail = curr
		curr = curr.next[0].Load()
		count++
	}
	if tail == nil {
		return nil, nil, 0
	}

	var succs [xrand.MaxHeight]*node
	if curr == l.tail {
		for i := range succs {
			succs[i] = l.tail
		}
	} else {
		preds := make([]*node, xrand.MaxHeight)
		s := make([]*node, xrand.MaxHeight)
		l.find(curr.key, preds, s)
		copy(succs[:], s)
	}

	l.head.mu.Lock()
	for i := 0; i < xrand.MaxHeight; i++ {
		l.head.next[i].Store(succs[i])
	}
	l.head.mu.Unlock()

	for i := range tail.next {
		tail.next[i].Store(nil)
	}
	return head, tail, count
}

// BulkPush splices a sorted, disjoint chain of nodes (as produced by
// BulkPop, possibly from another List) in just before tail.
func (l *List) BulkPush(chainHead, chainTail *node) {
	if chainHead == nil {
		return
	}
	preds := make([]*node, xrand.MaxHeight)
	succs := make([]*node, xrand.MaxHeight)
	l.find(tailKey, preds, succs)

	for level := 0; level < xrand.MaxHeight; level++ {
		var first, last *node
		var prev *node
		for n := chainHead; ; {
			next := n.next[0].Load()
			if n.toplevel >= level {
				if first == nil {
					first = n
				}
				if prev != nil {
					prev.next[level].Store(n)
				}
				prev = n
				last = n
			}
			if n == chainTail {
				break
			}
			n = next
		}
		if first == nil {
			continue
		}
		last.next[level].Store(succs[level])
		preds[level].next[level].Store(first)
	}
}

// Stats summarizes the live contents of the list.
type Stats struct {
	Len       int
	MaxLevel  int
	MinKey    int64
	MaxKey    int64
	HasValues bool
}

func (l *List) Stats() Stats {
	var s Stats
	curr := l.head.next[0].Load()
	for curr != nil && curr != l.tail {
		if curr.fullyLinked.Load() && !curr.marked.Load() {
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
		if curr.fullyLinked.Load() && !curr.marked.Load() {
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
