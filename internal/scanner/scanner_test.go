package scanner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bundle-dupscan/internal/depgraph"
	"bundle-dupscan/internal/manifest"
	"bundle-dupscan/internal/registry"
)

func sz(n int64) *int64 { return &n }

func scan(t *testing.T, bundles map[string][]string, nodes map[string]depgraph.Node) *Result {
	t.Helper()
	g := depgraph.Build(nodes)
	res, err := Scan(context.Background(), manifest.New(bundles), g, g, Options{})
	require.NoError(t, err)
	return res
}

func get(t *testing.T, res *Result, asset string) *registry.AssetInfo {
	t.Helper()
	ai, ok := res.Registry.Get(asset)
	require.True(t, ok, "missing %s", asset)
	return ai
}

func assertInvariants(t *testing.T, reg *registry.Registry) {
	t.Helper()
	for _, ai := range reg.All() {
		assert.Equal(t, ai.ContainingABs.Len(), ai.ContainingABCount, ai.Asset)
		assert.GreaterOrEqual(t, ai.ContainingABCount, 1, ai.Asset)
		assert.Equal(t, ai.MemSize*int64(ai.ContainingABCount-1), ai.CanSaveMemSize, ai.Asset)
	}
}

func TestScenarioSharedDuplicate(t *testing.T) {
	res := scan(t,
		map[string][]string{"A": {"X"}, "B": {"Y"}},
		map[string]depgraph.Node{
			"X": {Size: sz(10), Deps: []string{"S"}},
			"Y": {Size: sz(20), Deps: []string{"S"}},
			"S": {Size: sz(200)},
		})

	s := get(t, res, "S")
	assert.False(t, s.IsMarked)
	assert.Equal(t, []string{"A", "B"}, s.ContainingABs.Sorted())
	assert.Equal(t, []string{"X", "Y"}, s.DirectContainingAssets.Sorted())
	assert.Equal(t, 2, s.ContainingABCount)
	assert.EqualValues(t, 200, s.CanSaveMemSize)

	assert.Equal(t, 2, res.Marked)
	assert.Equal(t, 1, res.Unmarked)
	assert.Equal(t, "S", res.Registry.All()[0].Asset, "largest saving ranks first")
	assert.EqualValues(t, 200, res.Summary.CanSaveSum)
	assert.EqualValues(t, 10+20+400, res.Summary.AllSize)
	assertInvariants(t, res.Registry)
}

func TestScenarioExcludedReference(t *testing.T) {
	res := scan(t,
		map[string][]string{"C": {"Assets/M.prefab"}},
		map[string]depgraph.Node{
			"Assets/M.prefab":     {Size: sz(5), Deps: []string{"Assets/Scripts/M.cs", "M.cs"}},
			"Assets/Scripts/M.cs": {Size: sz(1)},
		})

	assert.Equal(t, 1, res.Registry.Len())
	_, ok := res.Registry.Get("Assets/Scripts/M.cs")
	assert.False(t, ok)
	_, ok = res.Registry.Get("M.cs")
	assert.False(t, ok)
}

func TestScenarioChainPropagation(t *testing.T) {
	res := scan(t,
		map[string][]string{"A": {"X"}},
		map[string]depgraph.Node{
			"X": {Size: sz(1), Deps: []string{"Y"}},
			"Y": {Size: sz(2), Deps: []string{"Z"}},
			"Z": {Size: sz(3)},
		})

	y, z := get(t, res, "Y"), get(t, res, "Z")
	assert.Equal(t, []string{"A"}, y.ContainingABs.Sorted())
	assert.Equal(t, []string{"A"}, z.ContainingABs.Sorted())
	assert.Equal(t, []string{"X"}, y.DirectContainingAssets.Sorted())
	assert.Equal(t, []string{"Y"}, z.DirectContainingAssets.Sorted())
	assertInvariants(t, res.Registry)
}

func TestScenarioEmptyManifest(t *testing.T) {
	res := scan(t, map[string][]string{}, nil)
	assert.Zero(t, res.Registry.Len())
	assert.Zero(t, res.Summary.AllSize)
	assert.Equal(t, "0.00", res.Summary.CanSavePercent)
}

func TestScenarioMarkedNeverDuplicated(t *testing.T) {
	res := scan(t,
		map[string][]string{"A": {"X"}, "B": {"Y"}, "C": {"M"}},
		map[string]depgraph.Node{
			"X": {Size: sz(1), Deps: []string{"M", "U"}},
			"Y": {Size: sz(1), Deps: []string{"M", "U"}},
			"U": {Size: sz(1), Deps: []string{"M"}},
			"M": {Size: sz(999)},
		})

	m := get(t, res, "M")
	assert.True(t, m.IsMarked)
	assert.Equal(t, 1, m.ContainingABCount)
	assert.Equal(t, []string{"C"}, m.ContainingABs.Sorted())
	assert.Zero(t, m.CanSaveMemSize)
	assert.Zero(t, m.DirectContainingAssets.Len())
	assertInvariants(t, res.Registry)
}

func TestTransitiveAttributionAcrossBundles(t *testing.T) {
	// a -> b -> c with a and b marked in different bundles: c is only
	// embedded in b's bundle.
	res := scan(t,
		map[string][]string{"A": {"a"}, "B": {"b"}},
		map[string]depgraph.Node{
			"a": {Size: sz(1), Deps: []string{"b"}},
			"b": {Size: sz(1), Deps: []string{"c"}},
			"c": {Size: sz(1)},
		})
	assert.Equal(t, []string{"B"}, get(t, res, "c").ContainingABs.Sorted())
}

func TestCycleTerminates(t *testing.T) {
	res := scan(t,
		map[string][]string{"A": {"X"}, "B": {"Y"}},
		map[string]depgraph.Node{
			"X": {Size: sz(1), Deps: []string{"P"}},
			"Y": {Size: sz(1), Deps: []string{"Q"}},
			"P": {Size: sz(10), Deps: []string{"Q", "P"}},
			"Q": {Size: sz(20), Deps: []string{"P"}},
		})

	p, q := get(t, res, "P"), get(t, res, "Q")
	assert.Equal(t, []string{"A", "B"}, p.ContainingABs.Sorted())
	assert.Equal(t, []string{"A", "B"}, q.ContainingABs.Sorted())
	assert.Equal(t, []string{"Q", "X"}, p.DirectContainingAssets.Sorted(), "self references are ignored")
	assert.Equal(t, []string{"P", "Y"}, q.DirectContainingAssets.Sorted())
	assertInvariants(t, res.Registry)
}

func TestRevisitRecordsEveryParent(t *testing.T) {
	// Both X1 and X2 sit in bundle A. S is expanded once for A, but both
	// parents must be recorded.
	res := scan(t,
		map[string][]string{"A": {"X1", "X2"}},
		map[string]depgraph.Node{
			"X1": {Deps: []string{"S"}},
			"X2": {Deps: []string{"S"}},
			"S":  {Size: sz(5), Deps: []string{"T"}},
			"T":  {Size: sz(5)},
		})
	s := get(t, res, "S")
	assert.Equal(t, []string{"X1", "X2"}, s.DirectContainingAssets.Sorted())
	assert.Equal(t, 1, s.ContainingABCount)
	assert.Equal(t, []string{"S"}, get(t, res, "T").DirectContainingAssets.Sorted())
}

func TestDuplicateDeclarationIsFatal(t *testing.T) {
	g := depgraph.Build(nil)
	_, err := Scan(context.Background(), manifest.New(map[string][]string{"A": {"x"}, "B": {"x"}}), g, g, Options{})
	require.Error(t, err)
	assert.Equal(t, StageManifest, Stage(err))
	assert.True(t, manifest.IsDuplicateAsset(err))
}

func TestEmptyBundleNameIsFatal(t *testing.T) {
	g := depgraph.Build(map[string]depgraph.Node{
		"X.prefab": {Size: sz(10), Deps: []string{"S.png"}},
		"Y.prefab": {Size: sz(20), Deps: []string{"S.png"}},
		"S.png":    {Size: sz(200)},
	})
	cases := map[string]map[string][]string{
		"empty bundle": {"": {"X.prefab"}, "B": {"Y.prefab"}},
		"empty asset":  {"A": {"X.prefab", ""}, "B": {"Y.prefab"}},
	}
	for name, bundles := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := Scan(context.Background(), manifest.New(bundles), g, g, Options{})
			assert.Nil(t, res)
			assert.Equal(t, StageManifest, Stage(err))
			assert.True(t, manifest.IsEmptyName(err))
		})
	}
}

func TestResolverFailureIsFatal(t *testing.T) {
	boom := errors.New("database locked")
	deps := ResolverFunc(func(context.Context, string) ([]string, error) { return nil, boom })
	sizes := EstimatorFunc(func(context.Context, string) (int64, error) { return 1, nil })

	res, err := Scan(context.Background(), manifest.New(map[string][]string{"A": {"x"}}), deps, sizes, Options{})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StageTraverse, Stage(err))
}

func TestInvalidExcludePattern(t *testing.T) {
	g := depgraph.Build(nil)
	_, err := Scan(context.Background(), manifest.New(nil), g, g, Options{Exclude: []string{"[unclosed"}})
	assert.Equal(t, StageConfig, Stage(err))
}

func TestCustomAndDisabledExclude(t *testing.T) {
	nodes := map[string]depgraph.Node{
		"X":           {Deps: []string{"a.cs", "shader.hlsl"}},
		"a.cs":        {Size: sz(1)},
		"shader.hlsl": {Size: sz(1)},
	}
	g := depgraph.Build(nodes)
	m := manifest.New(map[string][]string{"A": {"X"}})

	res, err := Scan(context.Background(), m, g, g, Options{Exclude: []string{}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Registry.Len())

	res, err = Scan(context.Background(), m, g, g, Options{Exclude: []string{"**/*.hlsl"}})
	require.NoError(t, err)
	_, ok := res.Registry.Get("a.cs")
	assert.True(t, ok)
	_, ok = res.Registry.Get("shader.hlsl")
	assert.False(t, ok)
}

type releasingEstimator struct {
	sizes    map[string]int64
	released []string
}

func (e *releasingEstimator) Size(_ context.Context, asset string) (int64, error) {
	n, ok := e.sizes[asset]
	if !ok {
		return 0, fmt.Errorf("cannot load %s", asset)
	}
	return n, nil
}

func (e *releasingEstimator) Release(asset string) { e.released = append(e.released, asset) }

func TestUnreadableAssetKeptWithZeroSize(t *testing.T) {
	deps := depgraph.Build(map[string]depgraph.Node{
		"X": {Deps: []string{"broken"}},
		"Y": {Deps: []string{"broken"}},
	})
	est := &releasingEstimator{sizes: map[string]int64{"X": 3, "Y": 4}}

	res, err := Scan(context.Background(), manifest.New(map[string][]string{"A": {"X"}, "B": {"Y"}}), deps, est, Options{})
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "broken", res.Warnings[0].Asset)

	b := get(t, res, "broken")
	assert.Zero(t, b.MemSize)
	assert.Zero(t, b.CanSaveMemSize)
	assert.Equal(t, 2, b.ContainingABCount)

	assert.ElementsMatch(t, []string{"X", "Y", "broken"}, est.released, "every measurement is released")
}

func TestCancellationAbortsWithoutResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	deps := ResolverFunc(func(context.Context, string) ([]string, error) {
		cancel()
		return []string{"child"}, nil
	})
	sizes := EstimatorFunc(func(context.Context, string) (int64, error) { return 1, nil })

	res, err := Scan(ctx, manifest.New(map[string][]string{"A": {"x"}}), deps, sizes, Options{})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolverCalledOncePerAsset(t *testing.T) {
	calls := map[string]int{}
	graph := map[string][]string{"X": {"S"}, "Y": {"S"}, "S": {"T"}}
	deps := ResolverFunc(func(_ context.Context, a string) ([]string, error) {
		calls[a]++
		return graph[a], nil
	})
	sizes := EstimatorFunc(func(context.Context, string) (int64, error) { return 1, nil })

	_, err := Scan(context.Background(), manifest.New(map[string][]string{"A": {"X"}, "B": {"Y"}}), deps, sizes, Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"X": 1, "Y": 1, "S": 1, "T": 1}, calls)
}

// naive is the plain recursive walk without any visited set. It only
// terminates on acyclic graphs and serves as the reference for the
// explicit-stack walk.
func naive(marked map[string]string, deps map[string][]string) map[string][2]registry.StringSet {
	out := map[string][2]registry.StringSet{}
	var rec func(cur, bundle string)
	rec = func(cur, bundle string) {
		for _, r := range deps[cur] {
			if _, ok := marked[r]; ok || r == cur {
				continue
			}
			e, ok := out[r]
			if !ok {
				e = [2]registry.StringSet{registry.NewStringSet(), registry.NewStringSet()}
				out[r] = e
			}
			e[0].Add(bundle)
			e[1].Add(cur)
			rec(r, bundle)
		}
	}
	for a, b := range marked {
		rec(a, b)
	}
	return out
}

func TestMatchesRecursiveReferenceOnRandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		const n = 24
		name := func(i int) string { return fmt.Sprintf("n%02d", i) }

		deps := map[string][]string{}
		nodes := map[string]depgraph.Node{}
		for i := 0; i < n; i++ {
			var out []string
			for k := 0; k < 2; k++ {
				if j := i + 1 + rng.Intn(n); j < n {
					out = append(out, name(j))
				}
			}
			deps[name(i)] = out
			nodes[name(i)] = depgraph.Node{Size: sz(int64(rng.Intn(100))), Deps: out}
		}
		bundles := map[string][]string{}
		marked := map[string]string{}
		for i := 0; i < n; i++ {
			if rng.Intn(4) == 0 {
				b := fmt.Sprintf("B%d", rng.Intn(4))
				bundles[b] = append(bundles[b], name(i))
				marked[name(i)] = b
			}
		}

		want := naive(marked, deps)
		g := depgraph.Build(nodes)
		res, err := Scan(context.Background(), manifest.New(bundles), g, g, Options{})
		require.NoError(t, err)

		require.Equal(t, len(want)+len(marked), res.Registry.Len(), "round %d", round)
		for asset, sets := range want {
			ai := get(t, res, asset)
			assert.Equal(t, sets[0].Sorted(), ai.ContainingABs.Sorted(), "round %d %s bundles", round, asset)
			assert.Equal(t, sets[1].Sorted(), ai.DirectContainingAssets.Sorted(), "round %d %s parents", round, asset)
		}
		assertInvariants(t, res.Registry)

		all := res.Registry.All()
		for i := 1; i < len(all); i++ {
			assert.Negative(t, registry.Compare(all[i-1], all[i]))
		}
	}
}
