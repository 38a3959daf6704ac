package octree

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/voxeltree/voxel"
)

// maxCastLgSize bounds the trees Tree.CastRay walks so that the extent stays a finite float64.
const maxCastLgSize = 1000

// Sides of a cube, as used by Entry and Exit. side % 3 is the axis the side is perpendicular to.
const (
	SideLowX = iota
	SideLowY
	SideLowZ
	SideHighX
	SideHighY
	SideHighZ
	numSides
)

// TOI is a time of intersection: the ray parameter t at which origin + t*direction crosses a side.
type TOI float64

// Compare returns -1, 0 or 1 as t is before, at or after o. Comparing a NaN panics; an undefined
// time of intersection means the ray was degenerate and no ordering would be correct.
func (t TOI) Compare(o TOI) int {
	if math.IsNaN(float64(t)) || math.IsNaN(float64(o)) {
		panic(fmt.Sprintf("octree: cannot order times of intersection %v and %v", t, o))
	}
	switch {
	case t < o:
		return -1
	case t > o:
		return 1
	default:
		return 0
	}
}

// Entry describes a ray entering a cube.
type Entry struct {
	// Side is the index of the side the ray crossed.
	Side int
	// TOI is (roughly) when the side was crossed.
	TOI TOI
}

// Exit describes a ray leaving a cube.
type Exit struct {
	// Side is the index of the side the ray crossed.
	Side int
	// TOI is (roughly) when the side was crossed.
	TOI TOI
}

// EntryFromExit returns the entry into the neighboring cube that shares the side exit crossed.
func EntryFromExit(exit Exit) Entry {
	return Entry{Side: (exit.Side + 3) % numSides, TOI: exit.TOI}
}

// ExitError is returned by CastRay when the ray leaves the cube without hitting a leaf.
type ExitError struct {
	Exit Exit
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("ray exits through side %d at t=%v without a hit", e.Exit.Side, e.Exit.TOI)
}

// Hit is the first leaf a ray passes through.
type Hit[T any] struct {
	Bounds voxel.Bounds
	Value  T
}

func component(v r3.Vector, dim int) float64 {
	switch dim {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func half(v, mid float64) int {
	if v >= mid {
		return 1
	}
	return 0
}

// CastRay finds the first leaf at or below node that the ray origin + t*direction passes through.
// bounds is node's cube, which the ray must intersect. entry, if known, is where the ray entered
// bounds; otherwise the search starts at t = 0.
//
// If the ray leaves bounds without a hit the error is an *ExitError describing where it left.
// CastRay panics if a time of intersection is NaN or the ray does not actually cross bounds.
func CastRay[T any](
	node *Node[T],
	origin, direction r3.Vector,
	bounds voxel.Bounds,
	entry *Entry,
) (Hit[T], error) {
	hit, exit, ok := castRay(node, origin, direction, bounds, entry)
	if !ok {
		return Hit[T]{}, &ExitError{Exit: exit}
	}
	return hit, nil
}

func castRay[T any](
	node *Node[T],
	origin, direction r3.Vector,
	bounds voxel.Bounds,
	entry *Entry,
) (Hit[T], Exit, bool) {
	switch node.nodeType {
	case LeafNode:
		return Hit[T]{Bounds: bounds, Value: node.value}, Exit{}, true
	case BranchNode:
		var entryTOI TOI
		if entry != nil {
			entryTOI = entry.TOI
		}
		at := origin.Add(direction.Mul(float64(entryTOI)))
		mid := bounds.Center()
		coords := [3]int{half(at.X, mid.X), half(at.Y, mid.Y), half(at.Z, mid.Z)}
		return castRayBranches(node.children, origin, direction, entry, coords, bounds.Child)
	default:
		return Hit[T]{}, exitEmpty(origin, direction, bounds, entry), false
	}
}

// exitEmpty finds the side through which the ray leaves an empty cube: the earliest crossing that
// is not the entry side and not before the entry.
func exitEmpty(origin, direction r3.Vector, bounds voxel.Bounds, entry *Entry) Exit {
	lo, hi := bounds.Min(), bounds.Max()
	sides := [numSides]float64{lo.X, lo.Y, lo.Z, hi.X, hi.Y, hi.Z}

	var exit Exit
	found := false
	for side, plane := range sides {
		dim := side % 3
		d := component(direction, dim)
		if d == 0 {
			continue
		}
		if entry != nil && side == entry.Side {
			continue
		}
		toi := TOI((plane - component(origin, dim)) / d)
		if entry != nil {
			if toi.Compare(entry.TOI) < 0 {
				continue
			}
		} else if toi.Compare(0) < 0 {
			continue
		}
		if !found || toi.Compare(exit.TOI) < 0 {
			exit = Exit{Side: side, TOI: toi}
			found = true
		}
	}
	if !found {
		panic(errors.Errorf("octree: ray %v + t*%v never leaves %v", origin, direction, bounds))
	}
	return exit
}

// castRayBranches steps between the octants of one branch, starting at coords, until the ray hits a
// leaf or leaves the branch. It never goes back up to the parent.
func castRayBranches[T any](
	branches *Branches[T],
	origin, direction r3.Vector,
	entry *Entry,
	coords [3]int,
	makeBounds func(cx, cy, cz int) voxel.Bounds,
) (Hit[T], Exit, bool) {
	for {
		child := branches.At(coords[0], coords[1], coords[2])
		hit, exit, ok := castRay(child, origin, direction, makeBounds(coords[0], coords[1], coords[2]), entry)
		if ok {
			return hit, Exit{}, true
		}

		dim := exit.Side % 3
		if component(direction, dim) < 0 {
			if coords[dim] == 0 {
				return Hit[T]{}, exit, false
			}
			coords[dim] = 0
		} else {
			if coords[dim] == 1 {
				return Hit[T]{}, exit, false
			}
			coords[dim] = 1
		}
		next := EntryFromExit(exit)
		entry = &next
	}
}

func finite(v r3.Vector) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// clipToExtent finds where the ray enters the cube [-extent, extent)^3. The entry is nil when the
// origin is already inside; ok is false when the ray misses the cube.
func clipToExtent(origin, direction r3.Vector, extent float64) (entry *Entry, ok bool) {
	inside := true
	tNear, tFar := math.Inf(-1), math.Inf(1)
	nearSide := -1
	for dim := 0; dim < 3; dim++ {
		o, d := component(origin, dim), component(direction, dim)
		outside := o < -extent || o >= extent
		if outside {
			inside = false
		}
		if d == 0 {
			if outside {
				return nil, false
			}
			continue
		}
		t0, t1 := (-extent-o)/d, (extent-o)/d
		side := dim
		if t0 > t1 {
			t0, t1 = t1, t0
			side = dim + 3
		}
		if t0 > tNear {
			tNear, nearSide = t0, side
		}
		if t1 < tFar {
			tFar = t1
		}
	}
	if inside {
		return nil, true
	}
	// The origin is outside, so a ray whose exit is at or behind it has already left the cube.
	if tNear > tFar || tFar <= 0 {
		return nil, false
	}
	return &Entry{Side: nearSide, TOI: TOI(tNear)}, true
}

// CastRay finds the first leaf in the tree that the ray origin + t*direction, t >= 0, passes
// through. The origin may be outside the tree. ok is false if the ray leaves the tree, or never
// reaches it, without hitting a leaf.
func (t *Tree[T]) CastRay(origin, direction r3.Vector) (hit Hit[T], ok bool, err error) {
	if !finite(origin) {
		return Hit[T]{}, false, errors.Errorf("invalid ray origin %v", origin)
	}
	if !finite(direction) || direction == (r3.Vector{}) {
		return Hit[T]{}, false, errors.Errorf("invalid ray direction %v", direction)
	}
	if t.lgSize > maxCastLgSize {
		return Hit[T]{}, false, errors.Errorf("tree with lgSize %d is too large to cast rays through", t.lgSize)
	}

	entry, ok := clipToExtent(origin, direction, math.Ldexp(1, int(t.lgSize)))
	if !ok {
		return Hit[T]{}, false, nil
	}

	var entryTOI TOI
	if entry != nil {
		entryTOI = entry.TOI
	}
	// The root is split at the origin.
	at := origin.Add(direction.Mul(float64(entryTOI)))
	coords := [3]int{half(at.X, 0), half(at.Y, 0), half(at.Z, 0)}

	lgSize := int16(t.lgSize)
	rootBounds := func(cx, cy, cz int) voxel.Bounds {
		return voxel.New(int32(cx)-1, int32(cy)-1, int32(cz)-1, lgSize)
	}
	hit, _, ok = castRayBranches(&t.root, origin, direction, entry, coords, rootBounds)
	return hit, ok, nil
}
