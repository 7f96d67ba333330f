package registry

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
)

// Registry owns the scan records: an ordered slice for ranked reporting and a
// key index for O(1) lookup. Both views are updated together by Add.
//
// Aggregates are derived on demand by Sum and go stale on the next Add.
type Registry struct {
	sorted []*AssetInfo
	byKey  map[string]*AssetInfo

	sum    Summary
	summed bool
}

// Summary is the aggregate state computed by Sum.
type Summary struct {
	Count      int
	CanSaveSum int64
	// AllSize counts every asset once per embedding bundle: the footprint
	// across the shipped product, not the size on disk.
	AllSize        int64
	Ratio          float64
	CanSavePercent string
}

// String renders the one-line summary: cnt=N,cansave/all=X/Y=P.
func (s Summary) String() string {
	return fmt.Sprintf("cnt=%d,cansave/all=%s/%s=%s",
		s.Count, ReadableSize(s.CanSaveSum), ReadableSize(s.AllSize), s.CanSavePercent)
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{byKey: make(map[string]*AssetInfo, 256)}
}

// Add appends ai and indexes it by asset id.
func (r *Registry) Add(ai *AssetInfo) error {
	if _, ok := r.byKey[ai.Asset]; ok {
		return &DuplicateKeyError{Key: ai.Asset}
	}
	r.sorted = append(r.sorted, ai)
	r.byKey[ai.Asset] = ai
	r.summed = false
	return nil
}

// Get looks up an asset by id.
func (r *Registry) Get(key string) (*AssetInfo, bool) {
	ai, ok := r.byKey[key]
	return ai, ok
}

func (r *Registry) Len() int { return len(r.sorted) }

// All returns the records in current order. The slice is a copy; the records
// are shared.
func (r *Registry) All() []*AssetInfo {
	return append([]*AssetInfo(nil), r.sorted...)
}

// Sort reorders the records by Compare. The index is not touched.
func (r *Registry) Sort() {
	sort.Slice(r.sorted, func(i, j int) bool { return Compare(r.sorted[i], r.sorted[j]) < 0 })
}

// Sum recomputes the aggregates from the current contents.
func (r *Registry) Sum() Summary {
	var s Summary
	s.Count = len(r.sorted)
	for _, ai := range r.sorted {
		s.CanSaveSum += ai.CanSaveMemSize
		s.AllSize += ai.MemSize * int64(ai.ContainingABCount)
	}
	ratio, err := ratio(s.CanSaveSum, s.AllSize)
	if err != nil {
		ratio = 0
	}
	s.Ratio = ratio
	s.CanSavePercent = fmt.Sprintf("%.2f", ratio)

	r.sum = s
	r.summed = true
	return s
}

// Summary returns the last computed aggregates; ok is false when Sum has not
// run since the last Add.
func (r *Registry) Summary() (Summary, bool) {
	return r.sum, r.summed
}

func ratio(part, total int64) (float64, error) {
	if total == 0 {
		return 0, ErrZeroTotal
	}
	return float64(part) / float64(total), nil
}

// ReadableSize formats a byte count with IEC units (e.g. "1.5 MiB").
func ReadableSize(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}
