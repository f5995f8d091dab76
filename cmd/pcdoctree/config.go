package main

import (
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/mat"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/seqsense/pcdoctree/pcd/storage/octree"
	"github.com/seqsense/pcdoctree/pcd/storage/outofcore"
)

type config struct {
	Resolution       float64      `yaml:"resolution"`
	AdaptBoundingBox bool         `yaml:"adapt_bounding_box"`
	BoundingBox      *boundingBox `yaml:"bounding_box"`
	OutOfCore        outOfCore    `yaml:"out_of_core"`
	LogLevel         string       `yaml:"log_level"`
}

type boundingBox struct {
	Min []float32 `yaml:"min"`
	Max []float32 `yaml:"max"`
}

type outOfCore struct {
	Directory      string `yaml:"directory"`
	WriteBufferMax int    `yaml:"write_buffer_max"`
	PageCacheBytes int64  `yaml:"page_cache_bytes"`
	Seed           *int64 `yaml:"seed"`
	Compress       bool   `yaml:"compress"`
}

func defaultConfig() *config {
	return &config{
		Resolution: 0.1,
		LogLevel:   "info",
		OutOfCore: outOfCore{
			WriteBufferMax: outofcore.DefaultWriteBuffMax,
		},
	}
}

func readConfig(r io.Reader) (*config, error) {
	c := defaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "parsing config")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func loadConfig(path string) (*config, error) {
	if path == "" {
		return defaultConfig(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening config %s", path)
	}
	defer f.Close()
	return readConfig(f)
}

// rand returns the random source of the commands, seeded by out_of_core.seed if set.
func (c *config) rand() *rand.Rand {
	if c.OutOfCore.Seed != nil {
		return rand.New(rand.NewSource(*c.OutOfCore.Seed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func (c *config) validate() error {
	if !(c.Resolution > 0) {
		return errors.Errorf("resolution must be positive, got %v", c.Resolution)
	}
	if bb := c.BoundingBox; bb != nil {
		if len(bb.Min) != 3 || len(bb.Max) != 3 {
			return errors.New("bounding_box min and max must have 3 elements")
		}
	}
	if c.OutOfCore.WriteBufferMax < 1 {
		return errors.Errorf("out_of_core.write_buffer_max must be positive, got %d", c.OutOfCore.WriteBufferMax)
	}
	if c.OutOfCore.PageCacheBytes < 0 {
		return errors.Errorf("out_of_core.page_cache_bytes must not be negative, got %d", c.OutOfCore.PageCacheBytes)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.Config{
		Level:    zap.NewAtomicLevelAt(lvl),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		// stdout is used for command results.
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return cfg.Build()
}

// treeOptions returns the octree options and a function releasing the page cache.
func (c *config) treeOptions(logger *zap.Logger) ([]octree.Option, func(), error) {
	opts := []octree.Option{
		octree.WithLogger(logger),
		octree.WithBoundingBoxAdaptation(c.AdaptBoundingBox),
	}
	if c.OutOfCore.Directory == "" {
		return opts, func() {}, nil
	}
	if err := os.MkdirAll(c.OutOfCore.Directory, 0755); err != nil {
		return nil, nil, errors.Wrapf(err, "creating %s", c.OutOfCore.Directory)
	}
	leafOpts := []outofcore.Option{
		outofcore.WithLogger(logger),
		outofcore.WithWriteBuffMax(c.OutOfCore.WriteBufferMax),
	}
	if c.OutOfCore.Seed != nil {
		leafOpts = append(leafOpts, outofcore.WithSeed(*c.OutOfCore.Seed))
	}
	release := func() {}
	if c.OutOfCore.PageCacheBytes > 0 {
		cache, err := outofcore.NewPageCache(c.OutOfCore.PageCacheBytes)
		if err != nil {
			return nil, nil, err
		}
		leafOpts = append(leafOpts, outofcore.WithPageCache(cache))
		release = cache.Close
	}
	opts = append(opts, octree.WithLeafContainer(outofcore.LeafFactory(c.OutOfCore.Directory, leafOpts...)))
	return opts, release, nil
}

func (b *boundingBox) vec3() (min, max mat.Vec3) {
	return mat.Vec3{b.Min[0], b.Min[1], b.Min[2]}, mat.Vec3{b.Max[0], b.Max[1], b.Max[2]}
}
