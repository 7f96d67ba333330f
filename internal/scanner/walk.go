package scanner

import (
	"context"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"bundle-dupscan/internal/registry"
)

// walker holds the working state of one scan. Nothing here outlives Scan.
type walker struct {
	deps    Resolver
	marked  map[string]string
	exclude []string

	unmarked map[string]*registry.AssetInfo
	// visited[bundle] holds the unmarked assets already expanded for that
	// bundle.
	visited map[string]map[string]struct{}
	// refs memoizes resolver answers; an asset reached from several bundles
	// is resolved once.
	refs map[string][]string
}

func newWalker(deps Resolver, marked map[string]string, exclude []string) *walker {
	return &walker{
		deps:     deps,
		marked:   marked,
		exclude:  exclude,
		unmarked: make(map[string]*registry.AssetInfo, 256),
		visited:  make(map[string]map[string]struct{}, 16),
		refs:     make(map[string][]string, 256),
	}
}

// collect walks everything reachable from root and attributes it to bundle.
func (w *walker) collect(ctx context.Context, root, bundle string) error {
	seen := w.visited[bundle]
	if seen == nil {
		seen = make(map[string]struct{}, 64)
		w.visited[bundle] = seen
	}

	stack := []string{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		refs, err := w.dependencies(ctx, cur)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if !w.follows(cur, ref) {
				continue
			}
			ai, ok := w.unmarked[ref]
			if !ok {
				ai = registry.NewAssetInfo(ref, false)
				w.unmarked[ref] = ai
			}
			ai.ContainingABs.Add(bundle)
			ai.DirectContainingAssets.Add(cur)

			if _, done := seen[ref]; done {
				continue
			}
			seen[ref] = struct{}{}
			stack = append(stack, ref)
		}
	}
	return nil
}

// follows reports whether the edge cur -> ref pulls ref into cur's bundle.
func (w *walker) follows(cur, ref string) bool {
	if ref == "" || ref == cur {
		return false
	}
	if _, ok := w.marked[ref]; ok {
		return false
	}
	return !w.excluded(ref)
}

func (w *walker) excluded(asset string) bool {
	for _, p := range w.exclude {
		if ok, _ := doublestar.Match(p, asset); ok {
			return true
		}
	}
	return false
}

func (w *walker) dependencies(ctx context.Context, asset string) ([]string, error) {
	if refs, ok := w.refs[asset]; ok {
		return refs, nil
	}
	refs, err := w.deps.Dependencies(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("dependencies of %q: %w", asset, err)
	}
	w.refs[asset] = refs
	return refs, nil
}
