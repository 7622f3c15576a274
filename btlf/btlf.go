// Package btlf implements the lock-free external binary search tree of
// Ellen, Fatourou, Ruppert and van Breugel: routing keys live only in
// internal nodes, real keys live only at leaves, and every mutation is
// coordinated through flag/tag bits carried on parent-to-child edges.
//
// Go cannot stash two extra bits inside a pointer word without
// unsafe.Pointer tricks that defeat the garbage collector's ability to
// trace the target, so each edge's (child, flag, tag) triple is instead
// packed into one small immutable edgeState value, and the edge itself
// is an atomic.Pointer to that value. A single CompareAndSwap on the
// edge therefore moves address, flag and tag together exactly as the
// two-low-bits pointer packing in the original C source does; this is
// the "dedicated atomic field adjacent to the pointer" realization the
// spec calls out as the preferred approach in a language with tagged
// unions.
package btlf

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/willtor/pqueues-go/reclaim"
)

const (
	headKey = int64(math.MinInt64)
	tailKey = int64(math.MaxInt64)
)

type node struct {
	key    int64
	isLeaf bool
	left   edge
	right  edge
}

// edgeState is the immutable snapshot carried by an edge: which child
// it points to, and whether that pointer is flagged (child leaf marked
// for deletion) or tagged (subtree marked as needing cleanup help).
type edgeState struct {
	child *node
	flag  bool
	tag   bool
}

type edge struct {
	state atomic.Pointer[edgeState]
}

func (e *edge) load() *edgeState { return e.state.Load() }

func (e *edge) cas(old, new *edgeState) bool { return e.state.CompareAndSwap(old, new) }

func (e *edge) store(s *edgeState) { e.state.Store(s) }

// childEdge returns the edge of n that a search for key would follow.
func (n *node) childEdge(key int64) *edge {
	if key < n.key {
		return &n.left
	}
	return &n.right
}

// Tree is a lock-free external binary search tree of int64 keys.
type Tree struct {
	r, s      *node
	reclaimer reclaim.Reclaimer[node]
}

// New constructs an empty tree backed by a leaky reclaimer.
func New() *Tree {
	return NewWithReclaimer(reclaim.NewLeaky[node]())
}

// NewWithReclaimer constructs an empty tree using r for the reclaiming
// destructive-operation family.
func NewWithReclaimer(r reclaim.Reclaimer[node]) *Tree {
	t := &Tree{reclaimer: r}
	headLeaf := &node{key: headKey, isLeaf: true}
	tailLeaf := &node{key: tailKey, isLeaf: true}
	t.s = &node{key: tailKey, isLeaf: false}
	t.s.left.store(&edgeState{child: headLeaf})
	t.s.right.store(&edgeState{child: tailLeaf})
	t.r = &node{key: tailKey, isLeaf: false}
	t.r.left.store(&edgeState{child: t.s})
	// R's right child is an unreachable sentinel leaf; no real search
	// key ever routes there since all real keys are < tailKey.
	t.r.right.store(&edgeState{child: &node{key: tailKey, isLeaf: true}})
	return t
}

type seekRecord struct {
	ancestor, successor, parent, leaf *node
	// leafState is the state of the edge from parent to leaf observed
	// during the seek, needed so mutators can CAS against the exact
	// value they saw.
	leafState *edgeState
}

// seek walks from R, tracking the last node whose incoming edge was
// untagged (ancestor) and that node's child taken at that point
// (successor), alongside the immediate parent and terminating leaf.
func (t *Tree) seek(key int64) seekRecord {
	sr := seekRecord{ancestor: t.r, successor: t.s, parent: t.s}
	parentEdgeState := t.s.left.load()
	sr.leaf = parentEdgeState.child
	sr.leafState = parentEdgeState
	for !sr.leaf.isLeaf {
		parentEdge := sr.parent.childEdge(key)
		if !parentEdge.load().tag {
			sr.ancestor = sr.parent
			sr.successor = sr.leaf
		}
		sr.parent = sr.leaf
		nextEdge := sr.leaf.childEdge(key)
		state := nextEdge.load()
		sr.leaf = state.child
		sr.leafState = state
	}
	return sr
}

// Contains is read-only and wait-free.
func (t *Tree) Contains(key int64) bool {
	sr := t.seek(key)
	return sr.leaf.key == key
}

// Add inserts key, returning false if it is already present.
func (t *Tree) Add(key int64) bool {
	for {
		sr := t.seek(key)
		if sr.leaf.key == key {
			return false
		}

		newLeaf := &node{key: key, isLeaf: true}
		var internal *node
		if key < sr.leaf.key {
			internal = &node{key: sr.leaf.key}
			internal.left.store(&edgeState{child: newLeaf})
			internal.right.store(&edgeState{child: sr.leaf})
		} else {
			internal = &node{key: key}
			internal.left.store(&edgeState{child: sr.leaf})
			internal.right.store(&edgeState{child: newLeaf})
		}

		parentEdge := sr.parent.childEdge(key)
		if parentEdge.cas(sr.leafState, &edgeState{child: internal}) {
			return true
		}

		cur := parentEdge.load()
		if cur.child == sr.leaf && (cur.flag || cur.tag) {
			t.cleanup(key)
		}
	}
}

// RemoveLeaky removes key without retiring the unlinked nodes.
func (t *Tree) RemoveLeaky(key int64) bool {
	return t.remove(key, true)
}

// Remove removes key, retiring the unlinked leaf through the configured
// reclaimer. The internal node unlinked along with the leaf is not
// retired.
func (t *Tree) Remove(key int64) bool {
	return t.remove(key, false)
}

func (t *Tree) remove(key int64, leaky bool) bool {
	const (
		injection = iota
		cleanupPhase
	)
	mode := injection
	var leaf *node

	for {
		sr := t.seek(key)
		parentEdge := sr.parent.childEdge(key)

		if mode == injection {
			leaf = sr.leaf
			if leaf.key != key {
				return false
			}
			flagged := &edgeState{child: leaf, flag: true, tag: sr.leafState.tag}
			if parentEdge.cas(sr.leafState, flagged) {
				mode = cleanupPhase
				if t.cleanup(key) {
					if !leaky {
						t.reclaimer.Retire(leaf)
					}
					return true
				}
				continue
			}
			cur := parentEdge.load()
			if cur.child == leaf && (cur.flag || cur.tag) {
				t.cleanup(key)
			}
			continue
		}

		// cleanupPhase: keep helping cleanup until our target leaf is
		// gone (someone finished it, possibly us) or we finish it.
		if sr.leaf != leaf {
			if !leaky {
				t.reclaimer.Retire(leaf)
			}
			return true
		}
		if t.cleanup(key) {
			if !leaky {
				t.reclaimer.Retire(leaf)
			}
			return true
		}
	}
}

// cleanup replaces ancestor's pointer to successor with a pointer to
// the flagged leaf's sibling, completing a remove's second phase. It
// returns false if the ancestor's edge had already moved (someone else
// finished or superseded this cleanup), in which case the caller must
// re-seek.
func (t *Tree) cleanup(key int64) bool {
	sr := t.seek(key)

	parentEdge := sr.parent.childEdge(key)
	childState := parentEdge.load()

	var siblingEdge *edge
	if key < sr.parent.key {
		siblingEdge = &sr.parent.right
	} else {
		siblingEdge = &sr.parent.left
	}
	siblingState := siblingEdge.load()

	if !childState.flag {
		// No flag visible on the child edge: injection has not (yet)
		// happened from this seek's point of view, or already
		// completed; either way the live child itself plays the role
		// of "sibling" for the swing below.
		siblingEdge = parentEdge
		siblingState = childState
	}

	// Reserving the sibling drops any flag it may have carried, matching
	// the source's bt_lf_node_address-then-tag sequence: the flag on a
	// node about to be swung up to the ancestor is meaningless there,
	// since flag is a property of a parent-to-leaf edge specifically.
	taggedSibling := &edgeState{child: siblingState.child, tag: true}
	if !siblingEdge.cas(siblingState, taggedSibling) {
		taggedSibling = siblingEdge.load()
		if !taggedSibling.tag {
			return false
		}
	}

	ancestorEdge := sr.ancestor.childEdge(key)
	ancestorState := ancestorEdge.load()
	if ancestorState.child != sr.successor {
		return false
	}
	newState := &edgeState{child: taggedSibling.child, flag: taggedSibling.flag, tag: false}
	return ancestorEdge.cas(ancestorState, newState)
}

// Stats summarizes the live contents of the tree via an in-order walk.
type Stats struct {
	Len    int
	MinKey int64
	MaxKey int64
}

func (t *Tree) Stats() Stats {
	var s Stats
	first := true
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		if n.isLeaf {
			if n.key == headKey || n.key == tailKey {
				return
			}
			if first {
				s.MinKey = n.key
				first = false
			}
			s.MaxKey = n.key
			s.Len++
			return
		}
		walk(n.left.load().child)
		walk(n.right.load().child)
	}
	walk(t.s)
	return s
}

// String renders the live keys in ascending order.
func (t *Tree) String() string {
	var b strings.Builder
	b.WriteByte('[')
	first := true
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		if n.isLeaf {
			if n.key == headKey || n.key == tailKey {
				return
			}
			if !first {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%d", n.key)
			first = false
			return
		}
		walk(n.left.load().child)
		walk(n.right.load().child)
	}
	walk(t.s)
	b.WriteByte(']')
	return b.String()
}
