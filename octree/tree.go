package octree

import (
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"go.viam.com/voxeltree/voxel"
)

// coordBits is the width of a voxel coordinate. Once a tree is this many doublings larger than a
// cube, every coordinate at that cube's scale is in range.
const coordBits = 32

var errNotBranch = errors.New("node is not a branch")

// Tree is a sparse octree centered on the origin. With lgSize = k it covers the cube
// [-2^k, 2^k) in each dimension, split at the root into eight octants of edge 2^k. The tree grows
// on demand to hold whatever is inserted, and never shrinks.
//
// A Tree is not safe for concurrent mutation. Get and CastRay only read the tree and may run
// concurrently with each other once all writers are done.
type Tree[T any] struct {
	logger golog.Logger
	lgSize uint16
	// The top level is always a full set of branches; it saves a case in GrowToHold.
	root Branches[T]
}

// New returns an empty tree with lgSize 0.
func New[T any](logger golog.Logger) *Tree[T] {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Tree[T]{logger: logger}
}

// LgSize returns the log_2 of the edge length of each of the root's octants.
func (t *Tree[T]) LgSize() uint16 {
	return t.lgSize
}

// ContainsBounds reports whether b lies within the origin-centered cube the tree currently covers.
// Cubes smaller than a unit are always considered contained.
//
// The low side is exclusive: with high = 2^lgSize scaled to b's units, a coordinate must satisfy
// -high < c and c+1 <= high.
func (t *Tree[T]) ContainsBounds(b voxel.Bounds) bool {
	if b.LgSize < 0 {
		return true
	}

	gap := int(t.lgSize) - int(b.LgSize)
	if gap < 0 {
		// high is 0; nothing fits.
		return false
	}
	if gap > coordBits {
		gap = coordBits
	}
	high := int64(1) << gap
	low := -high

	x, y, z := int64(b.X), int64(b.Y), int64(b.Z)
	if x <= low || y <= low || z <= low {
		return false
	}
	return x+1 <= high && y+1 <= high && z+1 <= high
}

// reachable reports whether a walk to b lands on the node for b. ContainsBounds accepts every
// sub-unit cube, but those are only addressed correctly once the tree has at least one level
// below the root and covers the unit cube around them.
func (t *Tree[T]) reachable(b voxel.Bounds) bool {
	if b.LgSize >= 0 {
		return t.ContainsBounds(b)
	}
	return t.lgSize > 0 && t.ContainsBounds(unitCube(b))
}

// unitCube returns the unit cube enclosing the sub-unit cube b.
func unitCube(b voxel.Bounds) voxel.Bounds {
	shift := uint(-int(b.LgSize))
	return voxel.New(b.X>>shift, b.Y>>shift, b.Z>>shift, 0)
}

// GrowToHold doubles the tree until it can hold b. Each doubling costs eight new branches; existing
// contents are moved, never copied or re-inserted.
func (t *Tree[T]) GrowToHold(b voxel.Bounds) {
	for !t.reachable(b) {
		t.lgSize++

		// Every old octant becomes the innermost corner of a new octant twice its size, e.g. in 2D:
		//
		//                      ---------------------------
		//                      |     |     |0|     |     |
		// ---------------      ------------|0|------------
		// |  1  |0|  2  |      |     |  1  |0|  2  |     |
		// |------0------|      |------------0------------|
		// 000000000000000  ==> |0000000000000000000000000|
		// |------0------|      |------------0------------|
		// |  3  |0|  4  |      |     |  3  |0|  4  |     |
		// ---------------      |------------0------------|
		//                      |     |     |0|     |     |
		//                      ---------------------------
		old := t.root
		for c := range t.root {
			children := NewBranches[T]()
			children[c^7] = old[c]
			t.root[c] = NewBranch(children)
		}
		t.logger.Debugw("grew octree", "lgSize", t.lgSize, "bounds", b.String())
	}
}

// findMask returns the position of the single set bit of the traversal mask for b, or -1 when the
// mask is zero and b is one of the root's octants.
//
// Below the root, octants are chosen by the bits of b's coordinates: the root splits at zero, so
// the first step looks at the sign, and from there two's complement makes plain bit tests work
// for negative coordinates too.
func (t *Tree[T]) findMask(b voxel.Bounds) int {
	if t.lgSize == 0 {
		return -1
	}
	mask := int(t.lgSize) - 1 - int(b.LgSize)
	if mask < 0 {
		return -1
	}
	return mask
}

func signHalf(c int32) int {
	if c >= 0 {
		return 1
	}
	return 0
}

func bitHalf(c int32, bit int) int {
	if bit > coordBits-1 {
		bit = coordBits - 1
	}
	return int(c>>uint(bit)) & 1
}

// find walks from the root to the node addressing b. step is called on every node above the
// target and must return that node's children to continue; an error from step aborts the walk.
// The same walk serves insertion, whose step creates branches, and lookup, whose step only
// reads them.
func (t *Tree[T]) find(b voxel.Bounds, step func(*Node[T]) (*Branches[T], error)) (*Node[T], error) {
	node := t.root.At(signHalf(b.X), signHalf(b.Y), signHalf(b.Z))
	for mask := t.findMask(b); mask >= 0; mask-- {
		branches, err := step(node)
		if err != nil {
			return nil, err
		}
		node = branches.At(bitHalf(b.X, mask), bitHalf(b.Y, mask), bitHalf(b.Z, mask))
	}
	return node, nil
}

// createStep descends into n, turning it into a branch first if it is not one.
func createStep[T any](n *Node[T]) (*Branches[T], error) {
	switch n.nodeType {
	case BranchNode:
		return n.children, nil
	default:
		// Inserting inside a leaf erases the whole leaf. It is easier to debug accidentally
		// replacing a big chunk with a smaller one than to debug a no-op.
		return n.Split(), nil
	}
}

func readStep[T any](n *Node[T]) (*Branches[T], error) {
	if n.nodeType != BranchNode {
		return nil, errNotBranch
	}
	return n.children, nil
}

// GetMutOrCreate returns the node at exactly b, growing the tree and creating empty branches along
// the way as needed. The returned node may be assigned directly; assigning a leaf over a branch
// discards everything under it.
func (t *Tree[T]) GetMutOrCreate(b voxel.Bounds) *Node[T] {
	t.GrowToHold(b)
	// createStep never fails.
	node, _ := t.find(b, createStep[T])
	return node
}

// Set stores v at exactly b.
func (t *Tree[T]) Set(b voxel.Bounds, v T) {
	t.GetMutOrCreate(b).SetLeaf(v)
}

// SetPoint stores v at the cube of edge 2^lgSize that contains the world-space point p.
func (t *Tree[T]) SetPoint(p r3.Vector, lgSize int16, v T) (voxel.Bounds, error) {
	b, err := voxel.FromPoint(p, lgSize)
	if err != nil {
		return voxel.Bounds{}, errors.Wrap(err, "cannot place point in octree")
	}
	t.Set(b, v)
	return b, nil
}

// Get returns the value stored at exactly b. A value stored at a different scale, even one whose
// cube contains b, is not found.
func (t *Tree[T]) Get(b voxel.Bounds) (T, bool) {
	var zero T
	if !t.reachable(b) {
		return zero, false
	}
	node, err := t.find(b, readStep[T])
	if err != nil {
		return zero, false
	}
	return node.Value()
}

// Remove empties the node at exactly b, along with anything beneath it. It reports whether there
// was anything to remove. Unlike GetMutOrCreate it never grows the tree or creates branches.
func (t *Tree[T]) Remove(b voxel.Bounds) bool {
	if !t.reachable(b) {
		return false
	}
	node, err := t.find(b, readStep[T])
	if err != nil || node.nodeType == EmptyNode {
		return false
	}
	node.Clear()
	return true
}

// cube tracks a node's position during a walk. lg is kept wider than voxel.Bounds.LgSize since the
// tree can be taller than any single cube's scale.
type cube struct {
	x, y, z int32
	lg      int
}

func (c cube) child(i int) cube {
	return cube{
		x:  c.x<<1 + int32(i&1),
		y:  c.y<<1 + int32((i>>1)&1),
		z:  c.z<<1 + int32((i>>2)&1),
		lg: c.lg - 1,
	}
}

func (c cube) bounds() voxel.Bounds {
	return voxel.New(c.x, c.y, c.z, int16(c.lg))
}

func (t *Tree[T]) rootCube(i int) cube {
	return cube{
		x:  int32(i&1) - 1,
		y:  int32((i>>1)&1) - 1,
		z:  int32((i>>2)&1) - 1,
		lg: int(t.lgSize),
	}
}

// Iterate calls fn for every leaf in the tree with the leaf's bounds, stopping early if fn returns
// false.
func (t *Tree[T]) Iterate(fn func(b voxel.Bounds, v T) bool) {
	for i := range t.root {
		if !iterateNode(&t.root[i], t.rootCube(i), fn) {
			return
		}
	}
}

func iterateNode[T any](n *Node[T], c cube, fn func(b voxel.Bounds, v T) bool) bool {
	switch n.nodeType {
	case LeafNode:
		return fn(c.bounds(), n.value)
	case BranchNode:
		for i := range n.children {
			if !iterateNode(&n.children[i], c.child(i), fn) {
				return false
			}
		}
	case EmptyNode:
	}
	return true
}

// Len returns the number of leaves in the tree.
func (t *Tree[T]) Len() int {
	var n int
	t.Iterate(func(voxel.Bounds, T) bool {
		n++
		return true
	})
	return n
}
