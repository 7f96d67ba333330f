// Package scanner finds assets that end up embedded in more than one bundle.
//
// For every asset a bundle declares, the scanner walks one-hop references
// transitively. Each undeclared ("unmarked") asset reached this way is
// attributed to the originating bundle however deep it sits, and to the
// asset that referenced it directly. Declared ("marked") assets are never
// walked into from other assets: they ship in their own bundle and are
// referenced across bundles rather than copied.
//
// The walk uses an explicit stack and a visited set per (asset, bundle), so
// cyclic graphs terminate and deep chains do not grow the goroutine stack.
// Every edge is still annotated, so revisiting an asset through a new parent
// records that parent even though its children are not walked again.
package scanner

import (
	"context"
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"

	"bundle-dupscan/internal/manifest"
	"bundle-dupscan/internal/registry"
)

// DefaultExclude filters references to script sources, which are compiled
// rather than packaged.
var DefaultExclude = []string{"**/*.cs"}

// Resolver returns the direct (one-hop) references of an asset.
type Resolver interface {
	Dependencies(ctx context.Context, asset string) ([]string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, asset string) ([]string, error)

func (f ResolverFunc) Dependencies(ctx context.Context, asset string) ([]string, error) {
	return f(ctx, asset)
}

// Estimator returns the runtime memory footprint of an asset in bytes.
type Estimator interface {
	Size(ctx context.Context, asset string) (int64, error)
}

// EstimatorFunc adapts a function to Estimator.
type EstimatorFunc func(ctx context.Context, asset string) (int64, error)

func (f EstimatorFunc) Size(ctx context.Context, asset string) (int64, error) {
	return f(ctx, asset)
}

// Releaser is optionally implemented by an Estimator that holds resources
// for an asset after measuring it. Release is called once per measurement.
type Releaser interface {
	Release(asset string)
}

// Options tunes a scan.
type Options struct {
	// Exclude holds doublestar patterns; matching references are dropped
	// before they produce any record. Nil means DefaultExclude; an empty
	// non-nil slice disables filtering.
	Exclude []string
}

// Result is the outcome of a successful scan.
type Result struct {
	Registry *registry.Registry
	Summary  registry.Summary

	Marked   int
	Unmarked int

	// Warnings lists assets kept with a zero footprint because the estimator
	// failed on them.
	Warnings []*UnreadableAssetError
}

// Scan runs a full pass over m and returns the ranked, summed registry.
func Scan(ctx context.Context, m manifest.Manifest, deps Resolver, sizes Estimator, opts Options) (*Result, error) {
	exclude := opts.Exclude
	if exclude == nil {
		exclude = DefaultExclude
	}
	for _, p := range exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, &StageError{Stage: StageConfig, Err: fmt.Errorf("invalid exclude pattern %q", p)}
		}
	}

	marked, err := m.MarkedIndex()
	if err != nil {
		return nil, &StageError{Stage: StageManifest, Err: err}
	}
	log.Info().Int("count", len(marked)).Msg("marked assets")

	w := newWalker(deps, marked, exclude)
	roots := sortedKeys(marked)
	for _, asset := range roots {
		if err := w.collect(ctx, asset, marked[asset]); err != nil {
			return nil, &StageError{Stage: StageTraverse, Err: err}
		}
	}

	infos := make([]*registry.AssetInfo, 0, len(w.unmarked)+len(marked))
	for _, a := range sortedKeys(w.unmarked) {
		infos = append(infos, w.unmarked[a])
	}
	for _, a := range roots {
		ai := registry.NewAssetInfo(a, true)
		ai.ContainingABs.Add(marked[a])
		infos = append(infos, ai)
	}
	log.Info().Int("count", len(infos)).Int("unmarked", len(w.unmarked)).Msg("all assets")

	warnings, err := measure(ctx, infos, sizes)
	if err != nil {
		return nil, &StageError{Stage: StageMeasure, Err: err}
	}

	reg := registry.New()
	for _, ai := range infos {
		if err := reg.Add(ai); err != nil {
			return nil, &StageError{Stage: StageRegistry, Err: err}
		}
	}
	reg.Sort()
	sum := reg.Sum()
	log.Info().Int("warnings", len(warnings)).Msg(sum.String())

	return &Result{
		Registry: reg,
		Summary:  sum,
		Marked:   len(marked),
		Unmarked: len(w.unmarked),
		Warnings: warnings,
	}, nil
}

// measure fills in the cost fields. Estimator failures are downgraded to
// warnings; only cancellation aborts.
func measure(ctx context.Context, infos []*registry.AssetInfo, sizes Estimator) ([]*UnreadableAssetError, error) {
	releaser, _ := sizes.(Releaser)
	var warnings []*UnreadableAssetError
	for _, ai := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := sizes.Size(ctx, ai.Asset)
		if releaser != nil {
			releaser.Release(ai.Asset)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			w := &UnreadableAssetError{Asset: ai.Asset, Err: err}
			log.Warn().Err(err).Str("asset", ai.Asset).Msg("cannot measure asset; counting it as zero")
			warnings = append(warnings, w)
			n = 0
		}
		ai.ApplyCost(n)
	}
	return warnings, nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
