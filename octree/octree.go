// Package octree implements a sparse, growable octree that stores values at power-of-two cubes of
// voxel space, along with a ray caster that walks the tree to find the first occupied cube a ray
// passes through.
package octree

// Each node in the octree is either empty, a leaf holding a caller value, or a branch that owns
// exactly eight children, one per octant.
const (
	EmptyNode = NodeType(iota)
	LeafNode
	BranchNode
)

// NodeType represents the possible types of nodes in an octree.
type NodeType uint8

func (n NodeType) String() string {
	switch n {
	case EmptyNode:
		return "EmptyNode"
	case LeafNode:
		return "LeafNode"
	case BranchNode:
		return "BranchNode"
	}
	return "UnknownNode"
}

// Node is the recursive part of the tree. The zero value is an empty node.
type Node[T any] struct {
	nodeType NodeType
	value    T
	children *Branches[T]
}

// NewLeaf returns a leaf node holding v.
func NewLeaf[T any](v T) Node[T] {
	return Node[T]{nodeType: LeafNode, value: v}
}

// NewBranch returns a branch node owning children.
func NewBranch[T any](children *Branches[T]) Node[T] {
	return Node[T]{nodeType: BranchNode, children: children}
}

// Type returns the kind of node.
func (n *Node[T]) Type() NodeType {
	return n.nodeType
}

// Value returns the value held by a leaf. The boolean is false for any other kind of node.
func (n *Node[T]) Value() (T, bool) {
	if n.nodeType != LeafNode {
		var zero T
		return zero, false
	}
	return n.value, true
}

// Children returns the octants of a branch, or nil for any other kind of node.
func (n *Node[T]) Children() *Branches[T] {
	if n.nodeType != BranchNode {
		return nil
	}
	return n.children
}

// SetLeaf turns n into a leaf holding v. Whatever n held before, including a whole subtree, is
// discarded.
func (n *Node[T]) SetLeaf(v T) {
	*n = NewLeaf(v)
}

// Clear turns n into an empty node.
func (n *Node[T]) Clear() {
	*n = Node[T]{}
}

// Split replaces n with a branch of eight empty children and returns them. A leaf value held by n
// is erased.
func (n *Node[T]) Split() *Branches[T] {
	children := NewBranches[T]()
	*n = NewBranch(children)
	return children
}

// Branches holds the eight octants of a branch. The index of an octant is x | y<<1 | z<<2, where
// each of x, y and z is 0 for the low half of that axis and 1 for the high half.
type Branches[T any] [8]Node[T]

// NewBranches returns eight empty octants.
func NewBranches[T any]() *Branches[T] {
	return &Branches[T]{}
}

func octantIndex(x, y, z int) int {
	return x | y<<1 | z<<2
}

// At returns the octant selected by x, y and z.
func (b *Branches[T]) At(x, y, z int) *Node[T] {
	return &b[octantIndex(x, y, z)]
}

// Octant returns the octant with the given 3-bit index.
func (b *Branches[T]) Octant(i int) *Node[T] {
	return &b[i]
}
