// Package depgraph holds a static asset dependency graph loaded from a YAML
// or JSON(C) file. It answers one-hop dependency queries and size lookups, so
// it can stand in for a live content database in CI and tests.
//
// File shape:
//
//	assets:
//	  Assets/ui/panel.prefab:
//	    size: 2048
//	    deps: [Assets/shared/atlas.png, Assets/ui/Panel.cs]
//	  Assets/shared/atlas.png:
//	    size: 1048576
//
// Notes:
//   - deps lists direct references only; transitive walks are the caller's job.
//   - Edges are deduplicated and self references are dropped.
//   - An asset without size is "unmeasurable": Size returns ErrNoSize.
package depgraph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"bundle-dupscan/internal/filefmt"
)

// ErrNoSize is returned by Size for assets the graph has no footprint for.
var ErrNoSize = errors.New("depgraph: no size recorded")

// Node is one asset entry in the graph file.
type Node struct {
	Size *int64   `yaml:"size,omitempty" json:"size,omitempty"`
	Deps []string `yaml:"deps,omitempty" json:"deps,omitempty"`
}

type fileGraph struct {
	Assets map[string]Node `yaml:"assets" json:"assets"`
}

// Graph is an immutable adjacency list with per-asset sizes.
type Graph struct {
	deps  map[string][]string
	sizes map[string]int64
}

// Build constructs a graph from asset -> node entries.
func Build(assets map[string]Node) *Graph {
	g := &Graph{
		deps:  make(map[string][]string, len(assets)),
		sizes: make(map[string]int64, len(assets)),
	}
	for asset, n := range assets {
		if asset == "" {
			continue
		}
		if n.Size != nil {
			g.sizes[asset] = *n.Size
		}
		set := make(map[string]struct{}, len(n.Deps))
		for _, d := range n.Deps {
			addEdge(set, asset, d)
		}
		if len(set) > 0 {
			g.deps[asset] = setToSortedSlice(set)
		}
	}
	return g
}

// Load reads a graph file.
func Load(path string) (*Graph, error) {
	var fg fileGraph
	if err := filefmt.ReadFile(path, &fg); err != nil {
		return nil, err
	}
	return Build(fg.Assets), nil
}

// Dependencies returns the direct references of asset in sorted order. An
// asset unknown to the graph has no references.
func (g *Graph) Dependencies(_ context.Context, asset string) ([]string, error) {
	return append([]string(nil), g.deps[asset]...), nil
}

// Size returns the recorded footprint of asset.
func (g *Graph) Size(_ context.Context, asset string) (int64, error) {
	if s, ok := g.sizes[asset]; ok {
		return s, nil
	}
	return 0, fmt.Errorf("%w for %q", ErrNoSize, asset)
}

// Nodes returns every asset mentioned in the graph, as a source or a target,
// sorted.
func (g *Graph) Nodes() []string {
	set := make(map[string]struct{}, len(g.deps)+len(g.sizes))
	for from, tos := range g.deps {
		set[from] = struct{}{}
		for _, to := range tos {
			set[to] = struct{}{}
		}
	}
	for a := range g.sizes {
		set[a] = struct{}{}
	}
	return setToSortedSlice(set)
}

// Edges returns every (from, to) pair sorted by from, then to.
func (g *Graph) Edges() [][2]string {
	edges := make([][2]string, 0, len(g.deps)*2)
	for from, tos := range g.deps {
		for _, to := range tos {
			edges = append(edges, [2]string{from, to})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] == edges[j][0] {
			return edges[i][1] < edges[j][1]
		}
		return edges[i][0] < edges[j][0]
	})
	return edges
}

// Sizes returns a copy of the recorded footprints.
func (g *Graph) Sizes() map[string]int64 {
	out := make(map[string]int64, len(g.sizes))
	for k, v := range g.sizes {
		out[k] = v
	}
	return out
}

// --- helpers -----------------------------------------------------------------

func addEdge(set map[string]struct{}, from, to string) {
	if from == "" || to == "" || from == to {
		return
	}
	set[to] = struct{}{}
}

func setToSortedSlice(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
