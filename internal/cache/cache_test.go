package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bundle-dupscan/internal/registry"
)

func row(asset string, mem int64, bundles ...string) *registry.AssetInfo {
	ai := registry.NewAssetInfo(asset, false)
	for _, b := range bundles {
		ai.ContainingABs.Add(b)
	}
	ai.ApplyCost(mem)
	return ai
}

func report(t *testing.T, rows ...*registry.AssetInfo) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, ai := range rows {
		require.NoError(t, reg.Add(ai))
	}
	reg.Sort()
	reg.Sum()
	return reg
}

func TestPathKeyStable(t *testing.T) {
	a := PathKey("/work/game/manifest.yaml")
	assert.Len(t, a, 12)
	assert.Equal(t, a, PathKey("/work/game/manifest.yaml"))
	assert.NotEqual(t, a, PathKey("/work/other/manifest.yaml"))
}

func TestCacheDirDefaultRoot(t *testing.T) {
	assert.Equal(t, filepath.Join("tmp/.dupscan", PathKey("k")), CacheDir("", "k"))
	assert.Equal(t, filepath.Join("/c", PathKey("k")), CacheDir("/c", "k"))
}

func TestBaselineMissingIsNil(t *testing.T) {
	reg, err := LoadBaseline(filepath.Join(t.TempDir(), "nothing"))
	require.NoError(t, err)
	assert.Nil(t, reg)
}

func TestBaselineRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "proj")
	want := report(t, row("a.png", 100, "x", "y"), row("b.png", 5, "x"))
	require.NoError(t, SaveBaseline(dir, want))

	got, err := LoadBaseline(dir)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Len(), got.Len())
	a, ok := got.Get("a.png")
	require.True(t, ok)
	assert.EqualValues(t, 100, a.CanSaveMemSize)
}

func TestBaselineCorruptIsError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, baselineFileName), []byte("garbage\n"), 0o644))
	_, err := LoadBaseline(dir)
	assert.True(t, registry.IsParse(err))
}

func TestClear(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "proj")
	require.NoError(t, SaveBaseline(dir, report(t)))
	require.NoError(t, Clear(dir))
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, Clear(dir))
	assert.NoError(t, Clear(""))
}

func TestBuildDeltaFirstRun(t *testing.T) {
	curr := report(t, row("b", 1, "x"), row("a", 1, "x"))
	d := BuildDelta(nil, curr)
	require.Len(t, d.Added, 2)
	assert.Equal(t, "a", d.Added[0].Asset)
	assert.Empty(t, d.Removed)
	assert.False(t, d.Empty())
}

func TestBuildDeltaClassifies(t *testing.T) {
	prev := report(t,
		row("same", 10, "x", "y"),
		row("grew", 10, "x", "y"),
		row("gone", 7, "x"),
		row("old/path.png", 50, "x", "y"),
	)
	curr := report(t,
		row("same", 10, "x", "y"),
		row("grew", 10, "x", "y", "z"),
		row("new", 3, "x", "y"),
		row("new/path.png", 50, "x", "y"),
	)

	d := BuildDelta(prev, curr)

	require.Len(t, d.Changed, 1)
	assert.Equal(t, Change{Asset: "grew", CanSaveBefore: 10, CanSaveAfter: 20, CountBefore: 2, CountAfter: 3}, d.Changed[0])

	require.Len(t, d.Removed, 1)
	assert.Equal(t, "gone", d.Removed[0].Asset)

	require.Len(t, d.Added, 1)
	assert.Equal(t, "new", d.Added[0].Asset)

	require.Len(t, d.Moved, 1)
	assert.Equal(t, "old/path.png", d.Moved[0].From)
	assert.Equal(t, "new/path.png", d.Moved[0].To)

	assert.EqualValues(t, 3+10, d.SavingsShift())
}

func TestBuildDeltaIdentical(t *testing.T) {
	prev := report(t, row("a", 1, "x", "y"))
	curr := report(t, row("a", 1, "x", "y"))
	assert.True(t, BuildDelta(prev, curr).Empty())
}

func TestMovesRequireSameBundles(t *testing.T) {
	prev := report(t, row("a", 50, "x", "y"))
	curr := report(t, row("b", 50, "x", "z"))
	d := BuildDelta(prev, curr)
	assert.Empty(t, d.Moved)
	assert.Len(t, d.Added, 1)
	assert.Len(t, d.Removed, 1)
}
