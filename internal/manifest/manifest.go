// Package manifest provides the bundle manifest: which assets each bundle
// explicitly declares ("marked" assets).
package manifest

import (
	"errors"
	"fmt"
	"sort"

	"bundle-dupscan/internal/filefmt"
)

// Bundle is one named packaging unit and the assets it declares, in declared
// order.
type Bundle struct {
	Name   string
	Assets []string
}

// Manifest lists bundles sorted by name.
type Manifest struct {
	Bundles []Bundle
}

// fileManifest is the on-disk shape: bundles: { <name>: [<asset>, ...] }.
type fileManifest struct {
	Bundles map[string][]string `yaml:"bundles" json:"bundles"`
}

// DuplicateAssetError reports an asset declared by more than one bundle.
// Attribution for such an asset is undefined, so the scan refuses to run.
type DuplicateAssetError struct {
	Asset   string
	Bundles [2]string
}

func (e *DuplicateAssetError) Error() string {
	return fmt.Sprintf("manifest: asset %q declared in bundles %q and %q", e.Asset, e.Bundles[0], e.Bundles[1])
}

// IsDuplicateAsset reports whether err is (or wraps) a *DuplicateAssetError.
func IsDuplicateAsset(err error) bool {
	var e *DuplicateAssetError
	return errors.As(err, &e)
}

// EmptyNameError reports a bundle with an empty name or an empty asset id in
// a bundle's list. Neither can be attributed, so the scan refuses to run.
type EmptyNameError struct {
	Bundle string
	Index  int // position of the empty asset id; -1 for an empty bundle name
}

func (e *EmptyNameError) Error() string {
	if e.Index < 0 {
		return "manifest: bundle with empty name"
	}
	return fmt.Sprintf("manifest: bundle %q: empty asset id at position %d", e.Bundle, e.Index)
}

// IsEmptyName reports whether err is (or wraps) an *EmptyNameError.
func IsEmptyName(err error) bool {
	var e *EmptyNameError
	return errors.As(err, &e)
}

// New builds a manifest from bundle name -> declared assets.
func New(bundles map[string][]string) Manifest {
	m := Manifest{Bundles: make([]Bundle, 0, len(bundles))}
	for name, assets := range bundles {
		m.Bundles = append(m.Bundles, Bundle{Name: name, Assets: append([]string(nil), assets...)})
	}
	sort.Slice(m.Bundles, func(i, j int) bool { return m.Bundles[i].Name < m.Bundles[j].Name })
	return m
}

// Load reads a YAML or JSON(C) manifest file.
func Load(path string) (Manifest, error) {
	var fm fileManifest
	if err := filefmt.ReadFile(path, &fm); err != nil {
		return Manifest{}, err
	}
	return New(fm.Bundles), nil
}

// AssetCount is the number of declarations across all bundles.
func (m Manifest) AssetCount() int {
	n := 0
	for _, b := range m.Bundles {
		n += len(b.Assets)
	}
	return n
}

// MarkedIndex maps every declared asset to its bundle. An asset declared in
// two bundles (or twice in different bundles' lists) is a fatal integrity
// error, as is an empty bundle name or asset id. Repeating an asset inside
// the same bundle is tolerated.
func (m Manifest) MarkedIndex() (map[string]string, error) {
	idx := make(map[string]string, m.AssetCount())
	for _, b := range m.Bundles {
		if b.Name == "" {
			return nil, &EmptyNameError{Index: -1}
		}
		for i, a := range b.Assets {
			if a == "" {
				return nil, &EmptyNameError{Bundle: b.Name, Index: i}
			}
			if prev, ok := idx[a]; ok && prev != b.Name {
				return nil, &DuplicateAssetError{Asset: a, Bundles: [2]string{prev, b.Name}}
			}
			idx[a] = b.Name
		}
	}
	return idx, nil
}
