package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"bundle-dupscan/internal/assetdb"
	"bundle-dupscan/internal/cache"
	"bundle-dupscan/internal/depgraph"
	"bundle-dupscan/internal/diff"
	"bundle-dupscan/internal/manifest"
	"bundle-dupscan/internal/registry"
	"bundle-dupscan/internal/report"
	"bundle-dupscan/internal/validate"
)

// cmdShow re-renders a saved report.
func cmdShow(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("show", stderr)
	top := fs.IntP("top", "n", 0, "rows to print (0 = all)")
	strict := fs.Bool("strict", false, "fail when the report breaks a cost invariant")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef("show takes one report path")
	}
	if *top < 0 {
		return usagef("--top must be >= 0")
	}

	reg, err := loadReport(fs.Arg(0))
	if err != nil {
		return err
	}
	if err := validate.Report(reg); err != nil {
		if *strict {
			return fmt.Errorf("%s: %w", fs.Arg(0), err)
		}
		log.Warn().Str("path", fs.Arg(0)).Msg(err.Error())
	}
	reg.Sort()
	return report.Write(stdout, reg, *top, isTerminal(stdout))
}

// cmdDiff prints a unified diff of two reports and a summary of the change.
func cmdDiff(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("diff", stderr)
	ctxLines := fs.IntP("context", "U", 3, "lines of context in the diff")
	maxBytes := fs.Int("max-bytes", 0, "skip the textual diff above this input size (0 = no limit)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return usagef("diff takes two report paths")
	}

	oldPath, newPath := fs.Arg(0), fs.Arg(1)
	prev, err := loadReport(oldPath)
	if err != nil {
		return err
	}
	curr, err := loadReport(newPath)
	if err != nil {
		return err
	}

	body, oversize, err := diff.Reports(oldPath, newPath, prev, curr, diff.Options{MaxBytes: *maxBytes, Context: *ctxLines})
	if err != nil {
		return err
	}
	if oversize {
		log.Warn().Int("max_bytes", *maxBytes).Msg("reports too large for a textual diff")
	}
	if _, err := io.WriteString(stdout, body); err != nil {
		return err
	}
	return report.Delta(stdout, cache.BuildDelta(prev, curr))
}

// cmdImport loads a manifest and a graph file, validates both and stores them
// in an asset database.
func cmdImport(ctx context.Context, args []string, stderr io.Writer) error {
	fs := newFlagSet("import", stderr)
	manifestPath := fs.StringP("manifest", "m", "", "bundle manifest (YAML or JSONC)")
	graphPath := fs.StringP("graph", "g", "", "asset dependency graph (YAML or JSONC)")
	dbPath := fs.String("db", "", "database file to create or replace")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *manifestPath == "" || *graphPath == "" || *dbPath == "" {
		return usagef("import needs --manifest, --graph and --db")
	}

	m, err := manifest.Load(*manifestPath)
	if err != nil {
		return err
	}
	g, err := depgraph.Load(*graphPath)
	if err != nil {
		return err
	}
	if err := errors.Join(validate.Manifest(m), validate.Graph(g, m)); err != nil {
		return fmt.Errorf("refusing to import: %w", err)
	}

	db, err := assetdb.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Import(ctx, m, g)
}

func loadReport(path string) (*registry.Registry, error) {
	reg := registry.New()
	if err := reg.LoadFromCsv(path); err != nil {
		return nil, err
	}
	return reg, nil
}
