// Package cache keeps the previous scan report per project and computes what
// changed between two reports.
package cache

// Entry is one report row reduced to what a delta needs.
type Entry struct {
	Asset    string `json:"asset"`
	IsMarked bool   `json:"isMarked"`
	MemSize  int64  `json:"memSize"`
	CanSave  int64  `json:"canSave"`
	Count    int    `json:"count"`
	// Print is a content fingerprint over size, marking and bundles. Two
	// rows with the same Print describe the same asset under another path.
	Print string `json:"print"`
}

// Change is an asset present in both reports whose cost moved.
type Change struct {
	Asset         string `json:"asset"`
	CanSaveBefore int64  `json:"canSaveBefore"`
	CanSaveAfter  int64  `json:"canSaveAfter"`
	CountBefore   int    `json:"countBefore"`
	CountAfter    int    `json:"countAfter"`
}

// Move pairs a removed and an added row with identical fingerprints.
type Move struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Print string `json:"print"`
}

// Delta describes how a report changed since the baseline:
//
//   - Added: assets in the current report only
//   - Removed: assets in the baseline only
//   - Changed: same asset, different canSave or bundle count
//   - Moved: an asset that disappeared and reappeared under another path
//     with the same size and bundles
type Delta struct {
	Added   []Entry  `json:"added"`
	Removed []Entry  `json:"removed"`
	Changed []Change `json:"changed"`
	Moved   []Move   `json:"moved"`
}

// Empty reports whether nothing changed.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0 && len(d.Moved) == 0
}

// SavingsShift is the net change in reclaimable bytes.
func (d Delta) SavingsShift() int64 {
	var n int64
	for _, e := range d.Added {
		n += e.CanSave
	}
	for _, e := range d.Removed {
		n -= e.CanSave
	}
	for _, c := range d.Changed {
		n += c.CanSaveAfter - c.CanSaveBefore
	}
	return n
}
