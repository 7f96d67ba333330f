package cache

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"bundle-dupscan/internal/registry"
)

// Layout:
//   - The cache root defaults to "tmp/.dupscan" unless overridden by the caller.
//   - A per-project cache lives at: <base>/<pathKey>/
//   - The last report is stored at: <base>/<pathKey>/baseline.csv
const (
	defaultCacheRoot = "tmp/.dupscan"
	baselineFileName = "baseline.csv"
)

// PathKey returns a short, stable identifier for a project key (typically the
// absolute manifest path).
func PathKey(key string) string {
	sum := blake3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}

// CacheDir resolves the cache directory for key under base. If base is
// empty, it falls back to "tmp/.dupscan".
func CacheDir(base, key string) string {
	if base == "" {
		base = defaultCacheRoot
	}
	return filepath.Join(base, PathKey(key))
}

// LoadBaseline reads the stored report from dir. If none exists it returns
// (nil, nil) so callers can treat it as "first run".
func LoadBaseline(dir string) (*registry.Registry, error) {
	path := filepath.Join(dir, baselineFileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	reg := registry.New()
	if err := reg.LoadFromCsv(path); err != nil {
		return nil, err
	}
	return reg, nil
}

// SaveBaseline replaces the stored report in dir with reg.
func SaveBaseline(dir string, reg *registry.Registry) error {
	return reg.SaveToCsv(filepath.Join(dir, baselineFileName))
}

// Clear removes the cache directory. Safe to call if it does not exist.
func Clear(dir string) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return os.RemoveAll(dir)
}
