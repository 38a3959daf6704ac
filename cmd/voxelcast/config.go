package main

import (
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"go.uber.org/multierr"

	"go.viam.com/voxeltree/voxel"
)

// LeafSpec is one leaf to insert, given on the command line as "x:y:z:lg=value".
type LeafSpec struct {
	Bounds voxel.Bounds
	Value  string
}

// Config describes the tree to build and the ray to cast through it.
type Config struct {
	Leaves    []LeafSpec
	Origin    r3.Vector
	Direction r3.Vector
}

func splitFields(s, sep string) []string {
	return lo.Map(strings.Split(s, sep), func(f string, _ int) string {
		return strings.TrimSpace(f)
	})
}

func parseInt(s string, low, high int64) (int64, error) {
	// Coordinates are always decimal; a leading zero is not an octal prefix.
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid integer %q", s)
	}
	if v < low || v > high {
		return 0, errors.Errorf("%d is out of range [%d, %d]", v, low, high)
	}
	return v, nil
}

// ParseLeaf parses a leaf of the form "x:y:z:lg=value".
func ParseLeaf(s string) (LeafSpec, error) {
	pos, value, found := strings.Cut(s, "=")
	if !found {
		return LeafSpec{}, errors.Errorf("leaf %q is missing =value", s)
	}
	fields := splitFields(pos, ":")
	if len(fields) != 4 {
		return LeafSpec{}, errors.Errorf("leaf %q should have 4 coordinates x:y:z:lg, got %d", s, len(fields))
	}

	var coords [3]int32
	for i := range coords {
		v, err := parseInt(fields[i], math.MinInt32, math.MaxInt32)
		if err != nil {
			return LeafSpec{}, errors.Wrapf(err, "leaf %q", s)
		}
		coords[i] = int32(v)
	}
	lg, err := parseInt(fields[3], math.MinInt16, math.MaxInt16)
	if err != nil {
		return LeafSpec{}, errors.Wrapf(err, "leaf %q", s)
	}

	return LeafSpec{
		Bounds: voxel.New(coords[0], coords[1], coords[2], int16(lg)),
		Value:  value,
	}, nil
}

// ParseVector parses a vector of the form "x,y,z".
func ParseVector(s string) (r3.Vector, error) {
	fields := splitFields(s, ",")
	if len(fields) != 3 {
		return r3.Vector{}, errors.Errorf("vector %q should have 3 components, got %d", s, len(fields))
	}
	var v [3]float64
	for i, f := range fields {
		c, err := cast.ToFloat64E(f)
		if err != nil {
			return r3.Vector{}, errors.Wrapf(err, "vector %q", s)
		}
		v[i] = c
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}, nil
}

// NewConfig parses the raw flag values into a Config, reporting every malformed value at once.
func NewConfig(leaves []string, origin, direction string) (*Config, error) {
	cfg := &Config{}
	var errs error
	for _, l := range leaves {
		spec, err := ParseLeaf(l)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		cfg.Leaves = append(cfg.Leaves, spec)
	}

	var err error
	if cfg.Origin, err = ParseVector(origin); err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "origin"))
	}
	if cfg.Direction, err = ParseVector(direction); err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "direction"))
	}
	if errs != nil {
		return nil, errs
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the ray can be cast.
func (cfg *Config) Validate() error {
	var errs error
	for _, named := range []struct {
		name string
		v    r3.Vector
	}{{"origin", cfg.Origin}, {"direction", cfg.Direction}} {
		if lo.SomeBy([]float64{named.v.X, named.v.Y, named.v.Z}, func(c float64) bool {
			return math.IsNaN(c) || math.IsInf(c, 0)
		}) {
			errs = multierr.Append(errs, errors.Errorf("%s %v is not finite", named.name, named.v))
		}
	}
	if cfg.Direction == (r3.Vector{}) {
		errs = multierr.Append(errs, errors.New("direction must be non-zero"))
	}
	return errs
}
