// Package fhsltx implements a fixed-height skip-list ordered set whose
// every operation runs inside a single elided lock. With no concurrent
// mutators ever interleaved within a critical section, the skip-list
// itself needs none of the CAS retries or mark bits its lock-free and
// lock-coupled siblings carry: it is plain single-threaded insertion
// logic, serialized end to end by the one elided lock.
package fhsltx

import (
	"fmt"
	"math"
	"strings"

	"github.com/willtor/pqueues-go/lock"
	"github.com/willtor/pqueues-go/xrand"
)

const (
	headKey = int64(math.MinInt64)
	tailKey = int64(math.MaxInt64)
)

type node struct {
	key      int64
	toplevel int
	next     []*node
}

// List is a skip-list set of int64 keys, safe for concurrent use: every
// exported method runs under one lock.Elided.
type List struct {
	mu         lock.Elided
	head, tail *node
	size       int
}

// New constructs an empty list.
func New() *List {
	l := &List{}
	l.head = &node{key: headKey, toplevel: xrand.MaxHeight - 1, next: make([]*node, xrand.MaxHeight)}
	l.tail = &node{key: tailKey, toplevel: xrand.MaxHeight - 1, next: make([]*node, xrand.MaxHeight)}
	for i := 0; i < xrand.MaxHeight; i++ {
		l.head.next[i] = l.tail
	}
	return l
}

// findLocked fills preds/succs with the predecessor/successor at every
// level for key and returns whether key itself was found.
func (l *List) findLocked(key int64, preds, succs []*node) bool {
	pred := l.head
	for level := xrand.MaxHeight - 1; level >= 0; level-- {
		curr := pred.next[level]
		for curr.key < key {
			pred = curr
			curr = pred.next[level]
		}
		preds[level] = pred
		succs[level] = curr
	}
	return succs[0].key == key
}

// Contains reports whether key is present.
func (l *List) Contains(key int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	preds := make([]*node, xrand.MaxHeight)
	succs := make([]*node, xrand.MaxHeight)
	return l.findLocked(key, preds, succs)
}

// Add inserts key, returning false if it is already present.
func (l *List) Add(key int64, seed *uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	preds := make([]*node, xrand.MaxHeight)
	succs := make([]*node, xrand.MaxHeight)
	if l.findLocked(key, preds, succs) {
		return false
	}
	toplevel := xrand.Level(seed)
	n := &node{key: key, toplevel: toplevel, next: make([]*node, toplevel+1)}
	for level := 0; level <= toplevel; level++ {
		n.next[level] = succs[level]
		preds[level].next[level] = n
	}
	l.size++
	return true
}

// Remove deletes key, returning false if it was absent.
func (l *List) Remove(key int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	preds := make([]*node, xrand.MaxHeight)
	succs := make([]*node, xrand.MaxHeight)
	if !l.findLocked(key, preds, succs) {
		return false
	}
	victim := succs[0]
	for level := 0; level <= victim.toplevel; level++ {
		preds[level].next[level] = victim.next[level]
	}
	l.size--
	return true
}

// PopMin removes and returns the minimum key.
func (l *List) PopMin() (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	victim := l.head.next[0]
	if victim == l.tail {
		return 0, false
	}
	preds := make([]*node, xrand.MaxHeight)
	succs := make([]*node, xrand.MaxHeight)
	l.findLocked(victim.key, preds, succs)
	for level := 0; level <= victim.toplevel; level++ {
		preds[level].next[level] = victim.next[level]
	}
	l.size--
	return victim.key, true
}

// Stats summarizes the current contents of the list.
type Stats struct {
	Len       int
	MaxLevel  int
	MinKey    int64
	MaxKey    int64
	HasValues bool
}

func (l *List) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	var s Stats
	curr := l.head.next[0]
	for curr != l.tail {
		if !s.HasValues {
			s.MinKey = curr.key
			s.HasValues = true
		}
		s.MaxKey = curr.key
		s.Len++
		if curr.toplevel > s.MaxLevel {
			s.MaxLevel = curr.toplevel
		}
		curr = curr.next[0]
	}
	return s
}

// String renders the keys in ascending order.
func (l *List) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var b strings.Builder
	b.WriteByte('[')
	curr := l.head.next[0]
	first := true
	for curr != l.tail {
		if !first {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d", curr.key)
		first = false
		curr = curr.next[0]
	}
	b.WriteByte(']')
	return b.String()
}
