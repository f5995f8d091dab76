package main

import (
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"

	"github.com/seqsense/pcdoctree/pcd/sac"
	segmentation "github.com/seqsense/pcdoctree/pcd/segmentation/octree"
	"github.com/seqsense/pcdoctree/pcd/storage/octree"
)

type console struct {
	tree  *octree.Octree
	cloud pc.Vec3RandomAccessor
	rng   *rand.Rand
}

var errArgumentNumber = errors.New("invalid number of arguments")
var errInvalidCommand = errors.New("invalid command")

func vec3(args []float32) mat.Vec3 {
	return mat.Vec3{args[0], args[1], args[2]}
}

func indexRows(indices []int, dists []float64) [][]float32 {
	res := make([][]float32, 0, len(indices))
	for i, idx := range indices {
		if dists != nil {
			res = append(res, []float32{float32(idx), float32(dists[i])})
		} else {
			res = append(res, []float32{float32(idx)})
		}
	}
	return res
}

var consoleCommands = map[string]func(c *console, args []float32) ([][]float32, error){
	"stats": func(c *console, args []float32) ([][]float32, error) {
		switch len(args) {
		case 0:
			min, max := c.tree.BoundingBox()
			return [][]float32{
				{float32(c.tree.Size()), float32(c.tree.Depth()), float32(c.tree.LeafCount()), float32(c.tree.BranchCount())},
				min[:],
				max[:],
			}, nil
		default:
			return nil, errArgumentNumber
		}
	},
	"voxel": func(c *console, args []float32) ([][]float32, error) {
		switch len(args) {
		case 3:
			indices, _, err := c.tree.VoxelSearch(vec3(args))
			if err != nil {
				return nil, err
			}
			return indexRows(indices, nil), nil
		default:
			return nil, errArgumentNumber
		}
	},
	"knn": func(c *console, args []float32) ([][]float32, error) {
		switch len(args) {
		case 4:
			indices, dists, err := c.tree.NearestKSearch(vec3(args), int(args[3]))
			if err != nil {
				return nil, err
			}
			return indexRows(indices, dists), nil
		default:
			return nil, errArgumentNumber
		}
	},
	"radius": func(c *console, args []float32) ([][]float32, error) {
		var maxNN int
		switch len(args) {
		case 4:
		case 5:
			maxNN = int(args[4])
		default:
			return nil, errArgumentNumber
		}
		indices, dists, err := c.tree.RadiusSearch(vec3(args), float64(args[3]), maxNN, true)
		if err != nil {
			return nil, err
		}
		return indexRows(indices, dists), nil
	},
	"approx": func(c *console, args []float32) ([][]float32, error) {
		switch len(args) {
		case 3:
			idx, dist, err := c.tree.ApproxNearestSearch(vec3(args))
			if err != nil {
				return nil, err
			}
			if idx < 0 {
				return nil, nil
			}
			return [][]float32{{float32(idx), float32(dist)}}, nil
		default:
			return nil, errArgumentNumber
		}
	},
	"box": func(c *console, args []float32) ([][]float32, error) {
		switch len(args) {
		case 6:
			indices, err := c.tree.BoxSearch(vec3(args), vec3(args[3:]))
			if err != nil {
				return nil, err
			}
			sort.Ints(indices)
			return indexRows(indices, nil), nil
		default:
			return nil, errArgumentNumber
		}
	},
	"ray": func(c *console, args []float32) ([][]float32, error) {
		var maxVoxels int
		switch len(args) {
		case 6:
		case 7:
			maxVoxels = int(args[6])
		default:
			return nil, errArgumentNumber
		}
		centers, err := c.tree.IntersectedVoxelCenters(vec3(args), vec3(args[3:]), maxVoxels)
		if err != nil {
			return nil, err
		}
		res := make([][]float32, 0, len(centers))
		for _, c := range centers {
			res = append(res, []float32{c[0], c[1], c[2]})
		}
		return res, nil
	},
	"segment": func(c *console, args []float32) ([][]float32, error) {
		switch len(args) {
		case 3:
			indices, err := segmentation.Segment(c.tree, vec3(args))
			if err != nil {
				return nil, err
			}
			sort.Ints(indices)
			return indexRows(indices, nil), nil
		default:
			return nil, errArgumentNumber
		}
	},
	"plane": func(c *console, args []float32) ([][]float32, error) {
		switch len(args) {
		case 2:
			if c.tree.Size() < 3 {
				return nil, nil
			}
			s := sac.New(
				sac.NewRandomSampler(c.rng, c.cloud.Len()),
				sac.NewOctreeSurfaceModel(c.tree, c.cloud),
			)
			if !s.Compute(int(args[0])) {
				return nil, nil
			}
			return indexRows(s.Coefficients().Inliers(args[1]), nil), nil
		default:
			return nil, errArgumentNumber
		}
	},
}

func (c *console) Run(line string) (string, error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return "", nil
	}
	fn, ok := consoleCommands[args[0]]
	if !ok {
		return "", errInvalidCommand
	}
	var argsFloat []float32
	for i := 1; i < len(args); i++ {
		f, err := strconv.ParseFloat(args[i], 32)
		if err != nil {
			return "", err
		}
		argsFloat = append(argsFloat, float32(f))
	}
	res, err := fn(c, argsFloat)
	if err != nil {
		return "", err
	}
	var resStr []string
	for _, vv := range res {
		var resLine []string
		for _, v := range vv {
			resLine = append(resLine, strconv.FormatFloat(float64(v), 'f', 3, 32))
		}
		resStr = append(resStr, strings.Join(resLine, " "))
	}
	return strings.Join(resStr, "\n"), nil
}
