// Package reclaim provides the memory reclamation collaborator the core
// algorithms treat as opaque: alloc/free/retire. The core never frees a
// published node directly; it either calls Free (only legal on the
// losing side of a publish race, before the node has become reachable
// from any other goroutine) or Retire (the only safe way to reclaim a
// node that was, even briefly, reachable).
//
// Go already allocates safely via new/composite literals, so Alloc here
// is a thin typed constructor rather than a raw allocator; the contract
// that matters is Free vs Retire.
package reclaim

// Reclaimer is the collaborator contract shared by every structure in
// this module. T is the node type of the structure using it.
type Reclaimer[T any] interface {
	// Alloc returns a new zero-valued, not-yet-published node.
	Alloc() *T

	// Free immediately reclaims ptr. Legal only when the caller is the
	// sole owner: the publish-race loser case, where ptr was never
	// observed by any other goroutine.
	Free(ptr *T)

	// Retire publishes ptr for deferred reclamation once no goroutine
	// can still hold a reference obtained before the unlink that made
	// ptr unreachable. It is the only safe way to free a node that was
	// ever linked into a structure.
	Retire(ptr *T)
}

// Leaky never reclaims anything itself: Free and Retire are both
// no-ops that abandon the node, leaving it to the garbage collector
// once it is unreachable. This backs every `_leaky`
// operation variant in this module.
type Leaky[T any] struct{}

// NewLeaky constructs a Leaky reclaimer for node type T.
func NewLeaky[T any]() *Leaky[T] { return &Leaky[T]{} }

func (l *Leaky[T]) Alloc() *T { return new(T) }

func (l *Leaky[T]) Free(ptr *T) { _ = ptr }

func (l *Leaky[T]) Retire(ptr *T) { _ = ptr }
