// Package main is the pcdoctree command.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/pc"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seqsense/pcdoctree/pcd"
	"github.com/seqsense/pcdoctree/pcd/storage/octree"
	"github.com/seqsense/pcdoctree/pcd/storage/outofcore"
)

const (
	flagConfig     = "config"
	flagLogLevel   = "log-level"
	flagResolution = "resolution"
	flagAdapt      = "adapt-bounding-box"
	flagCompress   = "compress"
)

type runner struct {
	stdin  io.Reader
	stdout io.Writer

	cfg    *config
	logger *zap.Logger
}

func main() {
	if err := newApp(os.Stdin, os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(stdin io.Reader, stdout io.Writer) *cli.App {
	r := &runner{stdin: stdin, stdout: stdout}
	return &cli.App{
		Name:            "pcdoctree",
		Usage:           "index and query point clouds with an octree",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "override log level",
			},
			&cli.Float64Flag{
				Name:  flagResolution,
				Usage: "override leaf voxel size",
			},
			&cli.BoolFlag{
				Name:  flagAdapt,
				Usage: "grow the bounding box to fit the points",
			},
		},
		Before: r.setup,
		After: func(*cli.Context) error {
			if r.logger != nil {
				_ = r.logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "stats",
				Usage:     "build the tree and print its statistics",
				ArgsUsage: "<in.pcd>",
				Action:    r.stats,
			},
			{
				Name:      "query",
				Usage:     "run search commands read from stdin",
				ArgsUsage: "<in.pcd>",
				Action:    r.query,
			},
			{
				Name:      "export",
				Usage:     "build the tree with leaves stored in a directory",
				ArgsUsage: "<in.pcd> <dir>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagCompress,
						Usage: "also write each leaf as binary_compressed PCD",
					},
				},
				Action: r.export,
			},
		},
	}
}

func (r *runner) setup(c *cli.Context) error {
	cfg, err := loadConfig(c.String(flagConfig))
	if err != nil {
		return err
	}
	if c.IsSet(flagLogLevel) {
		cfg.LogLevel = c.String(flagLogLevel)
	}
	if c.IsSet(flagResolution) {
		cfg.Resolution = c.Float64(flagResolution)
	}
	if c.IsSet(flagAdapt) {
		cfg.AdaptBoundingBox = c.Bool(flagAdapt)
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	r.cfg, r.logger = cfg, logger
	return nil
}

func readCloud(path string) (*pc.PointCloud, pc.Vec3Slice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	pp, err := pc.Unmarshal(f)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading %s", path)
	}
	it, err := pp.Vec3Iterator()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading %s", path)
	}
	points := make(pc.Vec3Slice, pp.Points)
	for i := range points {
		points[i] = it.Vec3At(i)
	}
	return pp, points, nil
}

// build returns the tree, its input points and a function releasing the tree.
func (r *runner) build(path string) (*octree.Octree, pc.Vec3Slice, func() error, error) {
	_, points, err := readCloud(path)
	if err != nil {
		return nil, nil, nil, err
	}
	opts, release, err := r.cfg.treeOptions(r.logger)
	if err != nil {
		return nil, nil, nil, err
	}
	o, err := octree.New(r.cfg.Resolution, opts...)
	if err != nil {
		release()
		return nil, nil, nil, err
	}
	closeTree := func() error {
		defer release()
		return o.Close()
	}
	if err := r.fill(o, points); err != nil {
		return nil, nil, nil, multierr.Append(err, closeTree())
	}
	r.logger.Info("Built octree",
		zap.String("input", path),
		zap.Int("points", o.Size()),
		zap.Int("depth", o.Depth()),
		zap.Int("leaves", o.LeafCount()),
		zap.Int("branches", o.BranchCount()),
	)
	return o, points, closeTree, nil
}

func (r *runner) fill(o *octree.Octree, points pc.Vec3Slice) error {
	if err := o.SetInputCloud(points, nil); err != nil {
		return err
	}
	if bb := r.cfg.BoundingBox; bb != nil {
		if err := o.DefineBoundingBox(bb.vec3()); err != nil {
			return err
		}
	} else if len(points) == 0 {
		return nil
	}
	return o.AddPointsFromInputCloud()
}

func inputArg(c *cli.Context, n int) error {
	if c.NArg() != n {
		return errors.Errorf("%s requires %d arguments: %s", c.Command.Name, n, c.Command.ArgsUsage)
	}
	return nil
}

func (r *runner) stats(c *cli.Context) (err error) {
	if err := inputArg(c, 1); err != nil {
		return err
	}
	o, _, closeTree, err := r.build(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, closeTree())
	}()

	min, max := o.BoundingBox()
	fmt.Fprintf(r.stdout, "points %d\n", o.Size())
	fmt.Fprintf(r.stdout, "depth %d\n", o.Depth())
	fmt.Fprintf(r.stdout, "leaves %d\n", o.LeafCount())
	fmt.Fprintf(r.stdout, "branches %d\n", o.BranchCount())
	fmt.Fprintf(r.stdout, "min %g %g %g\n", min[0], min[1], min[2])
	fmt.Fprintf(r.stdout, "max %g %g %g\n", max[0], max[1], max[2])
	return nil
}

func (r *runner) query(c *cli.Context) (err error) {
	if err := inputArg(c, 1); err != nil {
		return err
	}
	o, points, closeTree, err := r.build(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, closeTree())
	}()

	con := &console{tree: o, cloud: points, rng: r.cfg.rand()}
	s := bufio.NewScanner(r.stdin)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		res, err := con.Run(line)
		if err != nil {
			fmt.Fprintf(r.stdout, "error: %v\n", err)
			continue
		}
		if res != "" {
			fmt.Fprintln(r.stdout, res)
		}
	}
	return s.Err()
}

func (r *runner) export(c *cli.Context) (err error) {
	if err := inputArg(c, 2); err != nil {
		return err
	}
	r.cfg.OutOfCore.Directory = c.Args().Get(1)
	if c.IsSet(flagCompress) {
		r.cfg.OutOfCore.Compress = c.Bool(flagCompress)
	}
	o, _, closeTree, err := r.build(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, closeTree())
	}()

	if err := o.Flush(c.Context); err != nil {
		return err
	}
	if !r.cfg.OutOfCore.Compress {
		return nil
	}
	return exportCompressed(c.Context, o, r.cfg.OutOfCore.Directory, r.logger)
}

// exportCompressed writes a binary_compressed copy of each leaf file to dir/compressed.
func exportCompressed(ctx context.Context, o *octree.Octree, dir string, logger *zap.Logger) error {
	out := filepath.Join(dir, "compressed")
	if err := os.MkdirAll(out, 0755); err != nil {
		return errors.Wrapf(err, "creating %s", out)
	}
	var leaves []*outofcore.Leaf
	o.Leaves(func(_ octree.NodeID, _ octree.Key, c octree.LeafContainer) bool {
		if l, ok := c.(*outofcore.Leaf); ok {
			leaves = append(leaves, l)
		}
		return true
	})

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for _, l := range leaves {
		l := l
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(out, filepath.Base(l.Container().Path()))
			f, err := os.Create(path)
			if err != nil {
				return errors.Wrapf(err, "creating %s", path)
			}
			err = l.Container().ExportPCD(f, pcd.BinaryCompressed)
			return multierr.Append(err, f.Close())
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	logger.Info("Exported compressed leaves", zap.Int("leaves", len(leaves)))
	return nil
}
