// Package registry defines the per-asset duplication record and the ordered,
// keyed collection used to rank, summarize and persist a scan.
package registry

import (
	"sort"
	"strings"
)

// SetSeparator joins set-valued fields in the persisted report.
const SetSeparator = ":"

// StringSet is an unordered set of identifiers. Serialized forms are always
// sorted so reports are byte-for-byte stable.
type StringSet map[string]struct{}

// NewStringSet returns a set holding the non-empty values.
func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v; empty strings are ignored.
func (s StringSet) Add(v string) {
	if v == "" {
		return
	}
	s[v] = struct{}{}
}

func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s StringSet) Len() int { return len(s) }

// Sorted returns the members in ascending byte order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Join renders the sorted members separated by sep.
func (s StringSet) Join(sep string) string {
	return strings.Join(s.Sorted(), sep)
}

// ParseSet is the inverse of Join. An empty field yields an empty set.
func ParseSet(field, sep string) StringSet {
	if field == "" {
		return NewStringSet()
	}
	return NewStringSet(strings.Split(field, sep)...)
}

// AssetInfo is one asset encountered during a scan.
//
// ContainingABs holds every bundle the asset ends up embedded in;
// DirectContainingAssets holds every asset that references it one hop away
// and caused it to be pulled in.
type AssetInfo struct {
	Asset    string
	IsMarked bool

	MemSize           int64
	CanSaveMemSize    int64
	ContainingABCount int

	ContainingABs          StringSet
	DirectContainingAssets StringSet
}

// NewAssetInfo returns a record with empty, non-nil sets.
func NewAssetInfo(asset string, marked bool) *AssetInfo {
	return &AssetInfo{
		Asset:                  asset,
		IsMarked:               marked,
		ContainingABs:          NewStringSet(),
		DirectContainingAssets: NewStringSet(),
	}
}

// ApplyCost sets the measured footprint and derives the bundle count and the
// reclaimable amount: memSize * (count - 1).
func (ai *AssetInfo) ApplyCost(memSize int64) {
	ai.MemSize = memSize
	ai.ContainingABCount = ai.ContainingABs.Len()
	ai.CanSaveMemSize = 0
	if ai.ContainingABCount > 1 {
		ai.CanSaveMemSize = memSize * int64(ai.ContainingABCount-1)
	}
}

// Compare orders records by reclaimable memory (desc), then footprint (desc),
// then asset id ascending by bytes. Two distinct assets never compare equal.
func Compare(a, b *AssetInfo) int {
	switch {
	case a.CanSaveMemSize > b.CanSaveMemSize:
		return -1
	case a.CanSaveMemSize < b.CanSaveMemSize:
		return 1
	}
	switch {
	case a.MemSize > b.MemSize:
		return -1
	case a.MemSize < b.MemSize:
		return 1
	}
	return strings.Compare(a.Asset, b.Asset)
}
