// Package main provides the dupscan CLI. It finds assets that end up copied
// into more than one bundle and ranks them by the memory a fix would save.
//
// Commands:
//   - scan   : dupscan scan --manifest bundles.yaml --graph graph.yaml [flags]
//   - show   : dupscan show report.csv [--top N]
//   - diff   : dupscan diff old.csv new.csv [--context N]
//   - import : dupscan import --manifest bundles.yaml --graph graph.yaml --db assets.db
//
// Exit codes: 0 ok, 1 the run failed (nothing written), 2 bad usage.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"bundle-dupscan/internal/report"
	"bundle-dupscan/internal/scanner"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// usageError marks a failure caused by how the command was invoked.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if err := setupLogging(stderr, "info"); err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		return exitFailure
	}
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}

	var err error
	switch args[0] {
	case "scan":
		err = cmdScan(ctx, args[1:], stdout, stderr)
	case "show":
		err = cmdShow(args[1:], stdout, stderr)
	case "diff":
		err = cmdDiff(args[1:], stdout, stderr)
	case "import":
		err = cmdImport(ctx, args[1:], stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return exitUsage
	}
	return exitCode(err, stderr)
}

func exitCode(err error, stderr io.Writer) int {
	var uerr *usageError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pflag.ErrHelp):
		return exitOK
	case errors.As(err, &uerr):
		fmt.Fprintln(stderr, "ERROR:", uerr.err)
		return exitUsage
	default:
		ev := log.Error().Err(err)
		if stage := scanner.Stage(err); stage != "" {
			ev = ev.Str("stage", stage)
		}
		ev.Msg("dupscan failed")
		return exitFailure
	}
}

func usage(w io.Writer) {
	name := filepath.Base(os.Args[0])
	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  %s scan   [--config f] --manifest f (--graph f | --db f) [--root dir] [--out f] [flags]\n", name)
	fmt.Fprintf(w, "  %s show   <report.csv> [--top N]\n", name)
	fmt.Fprintf(w, "  %s diff   <old.csv> <new.csv> [--context N]\n", name)
	fmt.Fprintf(w, "  %s import --manifest f --graph f --db out.db\n", name)
	fmt.Fprintf(w, "\nRun '%s <command> --help' for the flags of a command.\n", name)
}

// setupLogging points the global logger at w: a console writer on a
// terminal, JSON lines otherwise.
func setupLogging(w io.Writer, level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	out := w
	if f, ok := w.(*os.File); ok && report.IsTerminal(f) {
		out = zerolog.ConsoleWriter{Out: f, TimeFormat: "15:04:05"}
	}
	log.Logger = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && report.IsTerminal(f)
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false
	return fs
}

func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return &usageError{err: err}
	}
	return nil
}

// changed returns p when the flag was set on the command line, nil otherwise.
func changed[T any](fs *pflag.FlagSet, name string, p *T) *T {
	if fs.Changed(name) {
		return p
	}
	return nil
}
