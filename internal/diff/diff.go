// Package diff renders unified diffs between two scan reports. It uses
// github.com/pmezard/go-difflib/difflib to produce classic unified patches
// (---/+++ headers, @@ hunks, lines prefixed with ' ', '-', '+').
//
// Reports are compared on their canonical form: data rows only, ordered by
// asset id. Ranking order and the summary header move whenever any cost
// changes, so diffing the files as written would mostly show noise.
package diff

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	"bundle-dupscan/internal/registry"
)

// Options controls patch generation behavior.
type Options struct {
	// MaxBytes is a guardrail on input size (old+new). When exceeded,
	// a minimal placeholder patch is returned and oversize=true.
	// 0 means "no limit".
	MaxBytes int

	// Context controls the number of context lines in unified hunks.
	// If 0, default to 3.
	Context int
}

// Reports produces a unified patch from report a to report b. An empty body
// means the reports carry the same rows.
func Reports(aName, bName string, a, b *registry.Registry, opt Options) (body string, oversize bool, err error) {
	ca, err := Canonical(a)
	if err != nil {
		return "", false, err
	}
	cb, err := Canonical(b)
	if err != nil {
		return "", false, err
	}
	if bytes.Equal(ca, cb) {
		return "", false, nil
	}
	body, oversize = Unified(aName, bName, ca, cb, opt)
	return body, oversize, nil
}

// Canonical renders the data rows of reg sorted by asset id, as CSV.
func Canonical(reg *registry.Registry) ([]byte, error) {
	var buf bytes.Buffer
	if reg == nil {
		return buf.Bytes(), nil
	}
	rows := reg.All()
	sort.Slice(rows, func(i, j int) bool { return rows[i].Asset < rows[j].Asset })

	cw := csv.NewWriter(&buf)
	for _, ai := range rows {
		if err := cw.Write(ai.Record()); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	return buf.Bytes(), cw.Error()
}

// Unified produces a classic unified patch for a↦b.
// Returns the patch body and a flag indicating it was omitted due to size.
func Unified(aName, bName string, a, b []byte, opt Options) (body string, oversize bool) {
	if opt.MaxBytes > 0 && (len(a)+len(b)) > opt.MaxBytes {
		return omitted(aName, bName), true
	}

	ctx := opt.Context
	if ctx <= 0 {
		ctx = 3
	}

	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(string(a)),
		B:        splitLinesKeepNL(string(b)),
		FromFile: aName,
		ToFile:   bName,
		Context:  ctx,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil || s == "" {
		return omitted(aName, bName), false
	}
	return s, false
}

// splitLinesKeepNL splits into lines and keeps newline characters,
// which produces better unified hunks.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.SplitAfter(s, "\n")
}

// omitted returns a compact placeholder when size limits are exceeded.
func omitted(aName, bName string) string {
	return fmt.Sprintf("--- %s\n+++ %s\n@@\n# diff omitted (oversize)\n", aName, bName)
}
