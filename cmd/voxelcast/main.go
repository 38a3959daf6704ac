// Package main is a debugging tool that builds a voxel octree from leaves given on the command line
// and casts a single ray through it.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/edaniels/golog"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"go.viam.com/voxeltree/octree"
)

const (
	flagLeaf      = "leaf"
	flagOrigin    = "origin"
	flagDirection = "direction"
	flagDebug     = "debug"
)

func main() {
	var logger golog.Logger

	app := &cli.App{
		Name:      "voxelcast",
		Usage:     "cast a ray through a voxel octree",
		UsageText: "voxelcast --leaf 1:1:1:0=stone --origin=-5,1.5,1.5 --direction 1,0,0",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    flagLeaf,
				Aliases: []string{"l"},
				Usage:   "insert a leaf, as `x:y:z:lg=value`; repeat for more, later leaves overwrite earlier ones",
			},
			&cli.StringFlag{
				Name:     flagOrigin,
				Required: true,
				Usage:    "ray origin as `x,y,z`",
			},
			&cli.StringFlag{
				Name:     flagDirection,
				Required: true,
				Usage:    "ray direction as `x,y,z`",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger = golog.NewDebugLogger("voxelcast")
			} else {
				logger = zap.NewNop().Sugar()
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			cfg, err := NewConfig(c.StringSlice(flagLeaf), c.String(flagOrigin), c.String(flagDirection))
			if err != nil {
				return err
			}
			return run(cfg, logger, c.App.Writer)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *Config, logger golog.Logger, w io.Writer) error {
	tree := octree.New[string](logger)
	for _, leaf := range cfg.Leaves {
		logger.Debugw("inserting leaf", "bounds", leaf.Bounds.String(), "value", leaf.Value)
		tree.Set(leaf.Bounds, leaf.Value)
	}
	fmt.Fprintf(w, "tree lgSize %d with %d leaves\n", tree.LgSize(), tree.Len())

	hit, ok, err := tree.CastRay(cfg.Origin, cfg.Direction)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(w, "miss")
		return nil
	}
	fmt.Fprintf(w, "hit %s at %s\n", hit.Value, hit.Bounds)
	return nil
}
