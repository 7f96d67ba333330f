package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"bundle-dupscan/internal/assetdb"
	"bundle-dupscan/internal/cache"
	"bundle-dupscan/internal/config"
	"bundle-dupscan/internal/depgraph"
	"bundle-dupscan/internal/manifest"
	"bundle-dupscan/internal/report"
	"bundle-dupscan/internal/scanner"
	"bundle-dupscan/internal/sizer"
	"bundle-dupscan/internal/validate"
)

func cmdScan(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("scan", stderr)
	configPath := fs.StringP("config", "c", "", "config file (default ./"+config.DefaultFileName+" if present)")
	manifestPath := fs.StringP("manifest", "m", "", "bundle manifest (YAML or JSONC)")
	graphPath := fs.StringP("graph", "g", "", "asset dependency graph (YAML or JSONC)")
	dbPath := fs.String("db", "", "asset database built by 'dupscan import' (replaces --graph)")
	root := fs.String("root", "", "content root for measuring assets on disk")
	out := fs.StringP("out", "o", "", "report CSV path (default "+config.DefaultOut+")")
	exclude := fs.StringArray("exclude", nil, "glob of references to ignore (repeatable; default **/*.cs)")
	zeroExts := fs.StringSlice("zero-size-ext", nil, "extensions counted as zero size (default .unity)")
	baselineDir := fs.String("baseline-dir", "", "keep the last report here and print what changed since")
	clearBaseline := fs.Bool("clear-baseline", false, "drop the stored baseline before comparing")
	top := fs.IntP("top", "n", 0, "rows to print (0 = all)")
	logLevel := fs.String("log-level", config.DefaultLogLevel, "trace, debug, info, warn or error")
	strict := fs.Bool("strict", false, "treat manifest and graph validation issues as fatal")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return usagef("scan takes no positional arguments, got %q", fs.Args())
	}

	cli := config.CLIArgs{
		Manifest:     changed(fs, "manifest", manifestPath),
		Graph:        changed(fs, "graph", graphPath),
		DB:           changed(fs, "db", dbPath),
		Root:         changed(fs, "root", root),
		Out:          changed(fs, "out", out),
		Exclude:      *exclude,
		ExcludeSet:   fs.Changed("exclude"),
		ZeroSizeExts: *zeroExts,
		ZeroSizeSet:  fs.Changed("zero-size-ext"),
		BaselineDir:  changed(fs, "baseline-dir", baselineDir),
		Top:          changed(fs, "top", top),
		LogLevel:     changed(fs, "log-level", logLevel),
		Strict:       changed(fs, "strict", strict),
	}
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	eff, err := config.LoadEffective(cwd, *configPath, cli)
	if err != nil {
		return &scanner.StageError{Stage: scanner.StageConfig, Err: err}
	}
	if err := setupLogging(stderr, eff.LogLevel); err != nil {
		return &scanner.StageError{Stage: scanner.StageConfig, Err: err}
	}
	if eff.Source != "" {
		log.Debug().Str("path", eff.Source).Msg("loaded config")
	}
	if *clearBaseline && eff.BaselineDir == "" {
		return usagef("--clear-baseline needs --baseline-dir")
	}

	src, err := openSources(ctx, eff)
	if err != nil {
		return err
	}
	defer src.close()

	if err := checkInputs(src, eff.Strict); err != nil {
		return err
	}

	res, err := scanner.Scan(ctx, src.manifest, src.deps, src.sizes, scanner.Options{Exclude: eff.Exclude})
	if err != nil {
		return err
	}
	if err := res.Registry.SaveToCsv(eff.Out); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	log.Info().Str("path", eff.Out).Int("rows", res.Registry.Len()).Msg("saved report")

	if eff.BaselineDir != "" {
		if err := compareBaseline(eff.BaselineDir, src.key, *clearBaseline, res, stdout); err != nil {
			return err
		}
	}
	return report.Write(stdout, res.Registry, eff.Top, isTerminal(stdout))
}

// sources are the scan inputs resolved from the effective config.
type sources struct {
	manifest manifest.Manifest
	graph    *depgraph.Graph
	deps     scanner.Resolver
	sizes    scanner.Estimator
	// key identifies the project for the baseline cache.
	key   string
	close func()
}

func openSources(ctx context.Context, eff config.Effective) (*sources, error) {
	src := &sources{close: func() {}}
	var base scanner.Estimator

	if eff.DB != "" {
		db, err := assetdb.OpenReadOnly(eff.DB)
		if err != nil {
			return nil, &scanner.StageError{Stage: scanner.StageTraverse, Err: err}
		}
		src.close = func() {
			if err := db.Close(); err != nil {
				log.Warn().Err(err).Str("path", eff.DB).Msg("closing asset database")
			}
		}
		src.deps, base, src.key = db, db, eff.DB
		if eff.Manifest == "" {
			m, err := db.Manifest(ctx)
			if err != nil {
				src.close()
				return nil, &scanner.StageError{Stage: scanner.StageManifest, Err: err}
			}
			src.manifest = m
		}
	} else {
		g, err := depgraph.Load(eff.Graph)
		if err != nil {
			return nil, &scanner.StageError{Stage: scanner.StageTraverse, Err: err}
		}
		src.graph, src.deps, base, src.key = g, g, g, eff.Manifest
	}

	if eff.Manifest != "" {
		m, err := manifest.Load(eff.Manifest)
		if err != nil {
			src.close()
			return nil, &scanner.StageError{Stage: scanner.StageManifest, Err: err}
		}
		src.manifest = m
		src.key = eff.Manifest
	}
	if abs, err := filepath.Abs(src.key); err == nil {
		src.key = abs
	}

	chain := sizer.Chain{base}
	if eff.Root != "" {
		chain = append(chain, sizer.File{Root: eff.Root})
	}
	src.sizes = sizer.ZeroSize{Exts: eff.ZeroSizeExts, Next: chain}

	log.Info().
		Int("bundles", len(src.manifest.Bundles)).
		Int("declared", src.manifest.AssetCount()).
		Str("deps", depsName(eff)).
		Msg("inputs ready")
	return src, nil
}

func depsName(eff config.Effective) string {
	if eff.DB != "" {
		return eff.DB
	}
	return eff.Graph
}

type inputIssue struct {
	stage string
	err   error
}

// checkInputs runs the input validators. Issues are logged as warnings, or
// returned when strict is set.
func checkInputs(src *sources, strict bool) error {
	issues := []inputIssue{{scanner.StageManifest, validate.Manifest(src.manifest)}}
	if src.graph != nil {
		issues = append(issues, inputIssue{scanner.StageTraverse, validate.Graph(src.graph, src.manifest)})
	}

	for _, is := range issues {
		if is.err == nil {
			continue
		}
		if strict {
			return &scanner.StageError{Stage: is.stage, Err: is.err}
		}
		for _, line := range strings.Split(is.err.Error(), "\n") {
			log.Warn().Str("stage", is.stage).Msg(line)
		}
	}
	return nil
}

func compareBaseline(base, key string, reset bool, res *scanner.Result, stdout io.Writer) error {
	dir := cache.CacheDir(base, key)
	if reset {
		if err := cache.Clear(dir); err != nil {
			return fmt.Errorf("clear baseline: %w", err)
		}
		log.Info().Str("dir", dir).Msg("cleared baseline")
	}
	prev, err := cache.LoadBaseline(dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("ignoring unreadable baseline")
		prev = nil
	}
	if prev != nil {
		if err := report.Delta(stdout, cache.BuildDelta(prev, res.Registry)); err != nil {
			return err
		}
	} else {
		log.Info().Str("dir", dir).Msg("no baseline yet")
	}
	if err := cache.SaveBaseline(dir, res.Registry); err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}
	return nil
}
