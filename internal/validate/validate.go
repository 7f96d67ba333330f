// Package validate performs lightweight validation of scan inputs and saved
// reports. It checks structural and semantic constraints that commonly catch
// bad manifests, graphs exported from a broken project, or hand-edited CSVs.
//
// Goals:
//   - Aggregate multiple issues into a single error for better UX
//   - Deterministic messages (inputs are walked in sorted order)
//   - Strict enough to catch mistakes without rejecting what the scanner
//     tolerates; callers decide whether issues are fatal
package validate

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"bundle-dupscan/internal/depgraph"
	"bundle-dupscan/internal/manifest"
	"bundle-dupscan/internal/registry"
)

// Manifest validates the bundle declarations:
//
//   - Bundle names must be non-empty and free of the report set separator.
//   - Asset ids must be well-formed relative paths (see assetPath).
//   - An asset must not be declared by two bundles.
//   - An asset should not be repeated inside one bundle.
func Manifest(m manifest.Manifest) error {
	var errs errlist

	owner := make(map[string]string, m.AssetCount())
	for _, b := range m.Bundles {
		if strings.TrimSpace(b.Name) == "" {
			errs.add("bundle with empty name declares %d assets", len(b.Assets))
		}
		if strings.Contains(b.Name, registry.SetSeparator) {
			errs.add("bundle %q: name must not contain %q", b.Name, registry.SetSeparator)
		}
		seen := make(map[string]struct{}, len(b.Assets))
		for i, a := range b.Assets {
			prefix := fmt.Sprintf("bundles[%s][%d] (%s)", b.Name, i, a)
			assetPath(&errs, prefix, a)

			if _, dup := seen[a]; dup {
				errs.add("%s: repeated in the same bundle", prefix)
				continue
			}
			seen[a] = struct{}{}

			if prev, ok := owner[a]; ok {
				errs.add("%s: also declared by bundle %q", prefix, prev)
				continue
			}
			owner[a] = b.Name
		}
	}
	return errs.err()
}

// Graph validates a dependency graph against the manifest it will be scanned
// with:
//
//   - Every asset id in the graph must be a well-formed relative path.
//   - Sizes must be >= 0.
//   - Every declared asset should be known to the graph.
func Graph(g *depgraph.Graph, m manifest.Manifest) error {
	var errs errlist

	known := make(map[string]struct{})
	for _, a := range g.Nodes() {
		known[a] = struct{}{}
		assetPath(&errs, fmt.Sprintf("graph asset (%s)", a), a)
	}
	sizes := g.Sizes()
	for _, a := range g.Nodes() {
		if n, ok := sizes[a]; ok && n < 0 {
			errs.add("graph asset (%s): size must be >= 0 (got %d)", a, n)
		}
	}
	for _, b := range m.Bundles {
		for _, a := range b.Assets {
			if _, ok := known[a]; !ok {
				errs.add("bundles[%s] (%s): declared asset unknown to the graph", b.Name, a)
			}
		}
	}
	return errs.err()
}

// Report validates the cost invariants of a loaded report:
//
//   - count equals the number of containing bundles and is >= 1
//   - canSaveMemSize equals memSize * (count - 1)
//   - a marked asset has no direct containing assets
func Report(reg *registry.Registry) error {
	var errs errlist

	for i, ai := range reg.All() {
		prefix := fmt.Sprintf("rows[%d] (%s)", i, ai.Asset)
		if ai.ContainingABCount != ai.ContainingABs.Len() {
			errs.add("%s: count %d does not match %d containing bundles", prefix, ai.ContainingABCount, ai.ContainingABs.Len())
		}
		if ai.ContainingABCount < 1 {
			errs.add("%s: count must be >= 1 (got %d)", prefix, ai.ContainingABCount)
		}
		if ai.MemSize < 0 {
			errs.add("%s: memSize must be >= 0 (got %d)", prefix, ai.MemSize)
		}
		if ai.ContainingABCount >= 1 {
			if want := ai.MemSize * int64(ai.ContainingABCount-1); ai.CanSaveMemSize != want {
				errs.add("%s: canSaveMemSize must be %d (got %d)", prefix, want, ai.CanSaveMemSize)
			}
		}
		if ai.IsMarked && ai.DirectContainingAssets.Len() > 0 {
			errs.add("%s: marked asset has direct containing assets", prefix)
		}
	}
	return errs.err()
}

// --- helpers -----------------------------------------------------------------

// assetPath checks that an asset id is a normalized relative path: non-empty,
// no leading slash, forward slashes only, no ".." segments. The report set
// separator is rejected too, since the id could not be read back from a
// saved report.
func assetPath(errs *errlist, prefix, p string) {
	if p == "" {
		errs.add("%s: asset id must be non-empty", prefix)
		return
	}
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		errs.add("%s: asset id must be relative, got %q", prefix, p)
	}
	if strings.Contains(p, `\`) {
		errs.add("%s: asset id must use forward slashes ('/'), found backslash", prefix)
	}
	if hasDotDot(p) {
		errs.add("%s: asset id must not contain '..' segments", prefix)
	}
	if strings.Contains(p, registry.SetSeparator) {
		errs.add("%s: asset id must not contain %q", prefix, registry.SetSeparator)
	}
}

func hasDotDot(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// errlist aggregates multiple validation issues into a single error.
type errlist struct {
	msgs []string
}

func (e *errlist) add(format string, args ...any) {
	if e == nil {
		return
	}
	e.msgs = append(e.msgs, fmt.Sprintf(format, args...))
}

func (e *errlist) err() error {
	if e == nil || len(e.msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(e.msgs, "\n"))
}
