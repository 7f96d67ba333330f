package cache

import (
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/zeebo/blake3"

	"bundle-dupscan/internal/registry"
)

// BuildDelta computes the change set from the prev report to curr. A nil
// report counts as empty.
func BuildDelta(prev, curr *registry.Registry) Delta {
	prevMap := indexByAsset(prev)
	currMap := indexByAsset(curr)

	removed, changed := classifyRemovedAndChanged(prevMap, currMap)
	d := Delta{
		Removed: removed,
		Added:   classifyAdded(prevMap, currMap),
		Changed: changed,
	}
	d.Moved, d.Removed, d.Added = matchMoves(d.Removed, d.Added)

	sortDelta(&d)
	return d
}

func entryOf(ai *registry.AssetInfo) Entry {
	return Entry{
		Asset:    ai.Asset,
		IsMarked: ai.IsMarked,
		MemSize:  ai.MemSize,
		CanSave:  ai.CanSaveMemSize,
		Count:    ai.ContainingABCount,
		Print:    fingerprint(ai),
	}
}

// fingerprint hashes what identifies an asset's content and placement, not
// its path.
func fingerprint(ai *registry.AssetInfo) string {
	key := strconv.FormatInt(ai.MemSize, 10) + "|" +
		strconv.FormatBool(ai.IsMarked) + "|" +
		ai.ContainingABs.Join(registry.SetSeparator)
	sum := blake3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

func indexByAsset(reg *registry.Registry) map[string]Entry {
	if reg == nil {
		return map[string]Entry{}
	}
	m := make(map[string]Entry, reg.Len())
	for _, ai := range reg.All() {
		m[ai.Asset] = entryOf(ai)
	}
	return m
}

func classifyRemovedAndChanged(prev, curr map[string]Entry) ([]Entry, []Change) {
	removed := make([]Entry, 0)
	changed := make([]Change, 0)
	for asset, pe := range prev {
		if ce, ok := curr[asset]; ok {
			if pe.CanSave != ce.CanSave || pe.Count != ce.Count {
				changed = append(changed, Change{
					Asset:         asset,
					CanSaveBefore: pe.CanSave,
					CanSaveAfter:  ce.CanSave,
					CountBefore:   pe.Count,
					CountAfter:    ce.Count,
				})
			}
			continue
		}
		removed = append(removed, pe)
	}
	return removed, changed
}

func classifyAdded(prev, curr map[string]Entry) []Entry {
	added := make([]Entry, 0)
	for asset, ce := range curr {
		if _, ok := prev[asset]; !ok {
			added = append(added, ce)
		}
	}
	return added
}

// matchMoves pairs removed and added entries by fingerprint. Candidates are
// consumed in path order so the pairing is deterministic.
func matchMoves(removed, added []Entry) ([]Move, []Entry, []Entry) {
	if len(removed) == 0 || len(added) == 0 {
		return nil, removed, added
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].Asset < removed[j].Asset })
	sort.Slice(added, func(i, j int) bool { return added[i].Asset < added[j].Asset })

	byPrint := make(map[string][]int, len(removed))
	for i, e := range removed {
		byPrint[e.Print] = append(byPrint[e.Print], i)
	}

	usedRemoved := make(map[int]bool)
	usedAdded := make(map[int]bool)
	var moves []Move
	for j, ae := range added {
		cands := byPrint[ae.Print]
		if len(cands) == 0 {
			continue
		}
		i := cands[0]
		byPrint[ae.Print] = cands[1:]
		usedRemoved[i] = true
		usedAdded[j] = true
		moves = append(moves, Move{From: removed[i].Asset, To: ae.Asset, Print: ae.Print})
	}
	return moves, filterEntries(removed, usedRemoved), filterEntries(added, usedAdded)
}

func filterEntries(entries []Entry, used map[int]bool) []Entry {
	if len(used) == 0 {
		return entries
	}
	out := make([]Entry, 0, len(entries)-len(used))
	for i, e := range entries {
		if !used[i] {
			out = append(out, e)
		}
	}
	return out
}

func sortDelta(d *Delta) {
	sort.Slice(d.Removed, func(i, j int) bool { return d.Removed[i].Asset < d.Removed[j].Asset })
	sort.Slice(d.Added, func(i, j int) bool { return d.Added[i].Asset < d.Added[j].Asset })
	sort.Slice(d.Changed, func(i, j int) bool { return d.Changed[i].Asset < d.Changed[j].Asset })
	sort.Slice(d.Moved, func(i, j int) bool {
		if d.Moved[i].From == d.Moved[j].From {
			return d.Moved[i].To < d.Moved[j].To
		}
		return d.Moved[i].From < d.Moved[j].From
	})
}
