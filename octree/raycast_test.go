package octree

import (
	"math"
	"math/rand"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/voxeltree/voxel"
)

func TestTOICompare(t *testing.T) {
	test.That(t, TOI(1).Compare(2), test.ShouldEqual, -1)
	test.That(t, TOI(2).Compare(1), test.ShouldEqual, 1)
	test.That(t, TOI(2).Compare(2), test.ShouldEqual, 0)
	test.That(t, func() { TOI(math.NaN()).Compare(0) }, test.ShouldPanic)
	test.That(t, func() { TOI(0).Compare(TOI(math.NaN())) }, test.ShouldPanic)
}

func TestEntryFromExit(t *testing.T) {
	for side, expected := range []int{SideHighX, SideHighY, SideHighZ, SideLowX, SideLowY, SideLowZ} {
		entry := EntryFromExit(Exit{Side: side, TOI: 1.5})
		test.That(t, entry.Side, test.ShouldEqual, expected)
		test.That(t, entry.TOI, test.ShouldEqual, TOI(1.5))
	}
}

func TestCastRayEmpty(t *testing.T) {
	var empty Node[int]
	bounds := voxel.New(0, 0, 0, 0)

	t.Run("nearest side ahead of the origin", func(t *testing.T) {
		_, err := CastRay(&empty, r3.Vector{X: .5, Y: .5, Z: .5}, r3.Vector{X: 1, Y: 2, Z: 0}, bounds, nil)
		var exitErr *ExitError
		test.That(t, errors.As(err, &exitErr), test.ShouldBeTrue)
		test.That(t, exitErr.Exit, test.ShouldResemble, Exit{Side: SideHighY, TOI: .25})
	})

	t.Run("entry side is never the exit", func(t *testing.T) {
		entry := &Entry{Side: SideLowX, TOI: 1}
		_, err := CastRay(&empty, r3.Vector{X: -1, Y: .5, Z: .5}, r3.Vector{X: 1}, bounds, entry)
		var exitErr *ExitError
		test.That(t, errors.As(err, &exitErr), test.ShouldBeTrue)
		test.That(t, exitErr.Exit, test.ShouldResemble, Exit{Side: SideHighX, TOI: 2})
		test.That(t, err.Error(), test.ShouldContainSubstring, "side 3")
	})

	t.Run("negative direction", func(t *testing.T) {
		_, err := CastRay(&empty, r3.Vector{X: .5, Y: .5, Z: .25}, r3.Vector{Z: -1}, bounds, nil)
		var exitErr *ExitError
		test.That(t, errors.As(err, &exitErr), test.ShouldBeTrue)
		test.That(t, exitErr.Exit, test.ShouldResemble, Exit{Side: SideLowZ, TOI: .25})
	})

	t.Run("NaN aborts", func(t *testing.T) {
		test.That(t, func() {
			CastRay(&empty, r3.Vector{X: math.NaN()}, r3.Vector{X: 1}, bounds, nil)
		}, test.ShouldPanic)
	})

	t.Run("no way out aborts", func(t *testing.T) {
		test.That(t, func() {
			CastRay(&empty, r3.Vector{X: .5, Y: .5, Z: .5}, r3.Vector{}, bounds, nil)
		}, test.ShouldPanic)
	})
}

func TestCastRayLeaf(t *testing.T) {
	leaf := NewLeaf("stone")
	bounds := voxel.New(3, -1, 2, 2)
	hit, err := CastRay(&leaf, r3.Vector{}, r3.Vector{X: 1}, bounds, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, hit, test.ShouldResemble, Hit[string]{Bounds: bounds, Value: "stone"})
}

func TestCastRayBranch(t *testing.T) {
	children := NewBranches[int]()
	children.At(1, 0, 0).SetLeaf(9)
	branch := NewBranch(children)
	bounds := voxel.New(0, 0, 0, 1)

	t.Run("steps across siblings", func(t *testing.T) {
		entry := &Entry{Side: SideLowX, TOI: 1}
		hit, err := CastRay(&branch, r3.Vector{X: -1, Y: .5, Z: .5}, r3.Vector{X: 1}, bounds, entry)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, hit, test.ShouldResemble, Hit[int]{Bounds: voxel.New(1, 0, 0, 0), Value: 9})
	})

	t.Run("exits the branch", func(t *testing.T) {
		entry := &Entry{Side: SideLowX, TOI: 1}
		_, err := CastRay(&branch, r3.Vector{X: -1, Y: 1.5, Z: .5}, r3.Vector{X: 1}, bounds, entry)
		var exitErr *ExitError
		test.That(t, errors.As(err, &exitErr), test.ShouldBeTrue)
		test.That(t, exitErr.Exit, test.ShouldResemble, Exit{Side: SideHighX, TOI: 3})
	})

	t.Run("travelling away from the leaf", func(t *testing.T) {
		hit, err := CastRay(&branch, r3.Vector{X: 1.5, Y: .5, Z: .5}, r3.Vector{X: -1}, bounds, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, hit.Value, test.ShouldEqual, 9)

		_, err = CastRay(&branch, r3.Vector{X: .5, Y: .5, Z: .5}, r3.Vector{X: -1}, bounds, nil)
		var exitErr *ExitError
		test.That(t, errors.As(err, &exitErr), test.ShouldBeTrue)
		test.That(t, exitErr.Exit, test.ShouldResemble, Exit{Side: SideLowX, TOI: .5})
	})
}

func TestTreeCastRay(t *testing.T) {
	tree := New[int](golog.NewTestLogger(t))
	tree.Set(voxel.New(1, 1, 1, 0), 7)
	test.That(t, tree.LgSize(), test.ShouldEqual, uint16(1))
	leafBounds := voxel.New(1, 1, 1, 0)

	cases := []struct {
		name      string
		origin    r3.Vector
		direction r3.Vector
		hit       bool
	}{
		{"from outside the tree", r3.Vector{X: -5, Y: 1.5, Z: 1.5}, r3.Vector{X: 1}, true},
		{"from outside, travelling backwards", r3.Vector{X: 5, Y: 1.5, Z: 1.5}, r3.Vector{X: -1}, true},
		{"from inside the tree", r3.Vector{X: .5, Y: 1.5, Z: 1.5}, r3.Vector{X: 1}, true},
		{"from inside the leaf", r3.Vector{X: 1.5, Y: 1.5, Z: 1.5}, r3.Vector{Y: -1}, true},
		{"diagonal", r3.Vector{X: -3, Y: -2.7, Z: -2.4}, r3.Vector{X: 1, Y: 1, Z: 1}, true},
		{"through empty space", r3.Vector{X: -5, Y: -1.5, Z: 1.5}, r3.Vector{X: 1}, false},
		{"pointing away", r3.Vector{X: -5, Y: 1.5, Z: 1.5}, r3.Vector{X: -1}, false},
		{"passing beside the tree", r3.Vector{X: -5, Y: 10}, r3.Vector{X: 1}, false},
		{"leaving the leaf behind", r3.Vector{X: .5, Y: 1.5, Z: 1.5}, r3.Vector{X: -1}, false},
		{"on the high face, pointing out", r3.Vector{X: 2, Y: 1.5, Z: 1.5}, r3.Vector{X: 1}, false},
		{"on the high face, pointing out at an angle", r3.Vector{X: 2, Y: 1.5, Z: 1.5}, r3.Vector{X: 1, Y: .01}, false},
		{"on the high face, pointing in", r3.Vector{X: 2, Y: 1.5, Z: 1.5}, r3.Vector{X: -1}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			hit, ok, err := tree.CastRay(c.origin, c.direction)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, ok, test.ShouldEqual, c.hit)
			if c.hit {
				test.That(t, hit, test.ShouldResemble, Hit[int]{Bounds: leafBounds, Value: 7})
			}
		})
	}

	t.Run("invalid rays", func(t *testing.T) {
		_, _, err := tree.CastRay(r3.Vector{}, r3.Vector{})
		test.That(t, err, test.ShouldNotBeNil)
		_, _, err = tree.CastRay(r3.Vector{X: math.NaN()}, r3.Vector{X: 1})
		test.That(t, err, test.ShouldNotBeNil)
		_, _, err = tree.CastRay(r3.Vector{}, r3.Vector{Y: math.Inf(-1)})
		test.That(t, err, test.ShouldNotBeNil)
	})
}

func TestTreeCastRayFindsNearestLeaf(t *testing.T) {
	tree := New[string](golog.NewTestLogger(t))
	tree.Set(voxel.New(-3, -3, -3, 0), "near")
	tree.Set(voxel.New(1, 1, 1, 1), "far")
	tree.Set(voxel.New(5, -6, 0, -1), "aside")

	hit, ok, err := tree.CastRay(r3.Vector{X: -10, Y: -9.7, Z: -9.4}, r3.Vector{X: 1, Y: 1, Z: 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, hit.Value, test.ShouldEqual, "near")
	test.That(t, hit.Bounds, test.ShouldResemble, voxel.New(-3, -3, -3, 0))

	hit, ok, err = tree.CastRay(r3.Vector{X: 10, Y: 10.3, Z: 10.6}, r3.Vector{X: -1, Y: -1, Z: -1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, hit.Value, test.ShouldEqual, "far")
	test.That(t, hit.Bounds, test.ShouldResemble, voxel.New(1, 1, 1, 1))

	hit, ok, err = tree.CastRay(r3.Vector{X: 2.75, Y: -20, Z: .25}, r3.Vector{Y: 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, hit.Value, test.ShouldEqual, "aside")
}

// rayEntersCube returns the earliest t >= 0 at which the ray is inside b.
func rayEntersCube(origin, direction r3.Vector, b voxel.Bounds) (float64, bool) {
	lo, hi := b.Min(), b.Max()
	tNear, tFar := 0., math.Inf(1)
	for dim := 0; dim < 3; dim++ {
		o, d := component(origin, dim), component(direction, dim)
		l, h := component(lo, dim), component(hi, dim)
		if d == 0 {
			if o < l || o >= h {
				return 0, false
			}
			continue
		}
		t0, t1 := (l-o)/d, (h-o)/d
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tNear, tFar = math.Max(tNear, t0), math.Min(tFar, t1)
	}
	return tNear, tNear < tFar
}

func TestTreeCastRayMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	uniform := func(lo, hi float64) float64 { return lo + rng.Float64()*(hi-lo) }

	for trial := 0; trial < 500; trial++ {
		tree := New[int](nil)
		for i := 0; i < 1+rng.Intn(12); i++ {
			lg := int16(rng.Intn(5) - 1)
			r := int32(32)
			if lg >= 0 {
				r = 16 >> lg
			}
			b := voxel.New(rng.Int31n(2*r)-r, rng.Int31n(2*r)-r, rng.Int31n(2*r)-r, lg)
			tree.Set(b, i)
		}

		origin := r3.Vector{X: uniform(-40, 40), Y: uniform(-40, 40), Z: uniform(-40, 40)}
		direction := r3.Vector{X: uniform(-1, 1), Y: uniform(-1, 1), Z: uniform(-1, 1)}
		if rng.Float64() < .2 {
			switch rng.Intn(3) {
			case 0:
				direction.X = 0
			case 1:
				direction.Y = 0
			default:
				direction.Z = 0
			}
		}

		var (
			best     voxel.Bounds
			bestTOI  = math.Inf(1)
			expected bool
		)
		tree.Iterate(func(b voxel.Bounds, _ int) bool {
			if toi, ok := rayEntersCube(origin, direction, b); ok && toi < bestTOI {
				best, bestTOI, expected = b, toi, true
			}
			return true
		})

		hit, ok, err := tree.CastRay(origin, direction)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ok, test.ShouldEqual, expected)
		if expected {
			test.That(t, hit.Bounds, test.ShouldResemble, best)
		}
	}
}
