// Package config resolves the effective settings of a scan from three
// layers: command-line flags, an optional dupscan.yaml, and built-in
// defaults. A flag that was set always wins, even when set to its zero value.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"bundle-dupscan/internal/filefmt"
	"bundle-dupscan/internal/scanner"
	"bundle-dupscan/internal/sizer"
)

const (
	// ErrCodeNotFound means an explicitly named config file does not exist.
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid means the config file cannot be read or parsed, or the
	// merged settings break a constraint.
	ErrCodeInvalid = "config_invalid"
)

const (
	// DefaultFileName is looked up in the working directory when no config
	// file is named. Its absence is not an error.
	DefaultFileName = "dupscan.yaml"
	// DefaultOut is the report path when neither flag nor file sets one.
	DefaultOut = "dupassets.csv"
	// DefaultLogLevel is the zerolog level name used by default.
	DefaultLogLevel = "info"
)

// CLIArgs carries the flag values of a scan. A nil field was not set on the
// command line.
type CLIArgs struct {
	Manifest     *string
	Graph        *string
	DB           *string
	Root         *string
	Out          *string
	Exclude      []string
	ExcludeSet   bool
	ZeroSizeExts []string
	ZeroSizeSet  bool
	BaselineDir  *string
	Top          *int
	LogLevel     *string
	Strict       *bool
}

// FileConfig is the shape of dupscan.yaml (or .json/.jsonc). Relative paths
// are resolved against the directory holding the file.
type FileConfig struct {
	Manifest     string   `yaml:"manifest" json:"manifest"`
	Graph        string   `yaml:"graph" json:"graph"`
	DB           string   `yaml:"db" json:"db"`
	Root         string   `yaml:"root" json:"root"`
	Out          string   `yaml:"out" json:"out"`
	Exclude      []string `yaml:"exclude" json:"exclude"`
	ZeroSizeExts []string `yaml:"zero_size_exts" json:"zero_size_exts"`
	BaselineDir  string   `yaml:"baseline_dir" json:"baseline_dir"`
	Top          *int     `yaml:"top" json:"top"`
	LogLevel     string   `yaml:"log_level" json:"log_level"`
	Strict       *bool    `yaml:"strict" json:"strict"`
}

// Effective is the merged, validated configuration. Consumers use it as is.
type Effective struct {
	// Manifest may be empty when DB is set; the manifest is then read from
	// the database.
	Manifest string `validate:"required_without=DB"`
	Graph    string `validate:"required_without=DB,excluded_with=DB"`
	DB       string
	// Root enables on-disk sizing of assets under it. With Graph or DB it
	// only serves assets they hold no size for.
	Root         string
	Out          string   `validate:"required"`
	Exclude      []string `validate:"dive,required"`
	ZeroSizeExts []string `validate:"dive,startswith=."`
	BaselineDir  string
	Top          int    `validate:"gte=0"`
	LogLevel     string `validate:"oneof=trace debug info warn error"`
	Strict       bool

	// Source is the config file that was read, or "" when none was.
	Source string
}

// Error is a structured configuration error carrying an error code.
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Path, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Path)
	default:
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code extracts the error code from err, or "" if err is not an *Error.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadEffective reads the config file and merges it with cli.
//
// Discovery:
//  1. path given: it must exist.
//  2. path empty: <cwd>/dupscan.yaml is read if present.
//
// Precedence per field: flag > file > default.
func LoadEffective(cwd, path string, cli CLIArgs) (Effective, error) {
	var (
		fc      FileConfig
		source  string
		baseDir = cwd
	)

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = filepath.Join(cwd, DefaultFileName)
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}

	if _, err := os.Stat(path); err == nil {
		if err := filefmt.ReadFile(path, &fc); err != nil {
			return Effective{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
		}
		source = path
		baseDir = filepath.Dir(path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return Effective{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	} else if explicit {
		return Effective{}, &Error{Code: ErrCodeNotFound, Path: path, Err: os.ErrNotExist}
	}

	eff := merge(baseDir, cli, fc)
	eff.Source = source
	if err := validate.Struct(eff); err != nil {
		return Effective{}, &Error{Code: ErrCodeInvalid, Path: source, Err: describe(err)}
	}
	return eff, nil
}

func merge(baseDir string, cli CLIArgs, fc FileConfig) Effective {
	eff := Effective{
		Manifest:    pickPath(cli.Manifest, fc.Manifest, baseDir, ""),
		Graph:       pickPath(cli.Graph, fc.Graph, baseDir, ""),
		DB:          pickPath(cli.DB, fc.DB, baseDir, ""),
		Root:        pickPath(cli.Root, fc.Root, baseDir, ""),
		Out:         pickPath(cli.Out, fc.Out, baseDir, DefaultOut),
		BaselineDir: pickPath(cli.BaselineDir, fc.BaselineDir, baseDir, ""),
		LogLevel:    DefaultLogLevel,
	}

	switch {
	case cli.ExcludeSet:
		eff.Exclude = append([]string{}, cli.Exclude...)
	case fc.Exclude != nil:
		eff.Exclude = append([]string{}, fc.Exclude...)
	default:
		eff.Exclude = append([]string{}, scanner.DefaultExclude...)
	}

	switch {
	case cli.ZeroSizeSet:
		eff.ZeroSizeExts = append([]string{}, cli.ZeroSizeExts...)
	case fc.ZeroSizeExts != nil:
		eff.ZeroSizeExts = append([]string{}, fc.ZeroSizeExts...)
	default:
		eff.ZeroSizeExts = append([]string{}, sizer.DefaultZeroSizeExts...)
	}

	if cli.Top != nil {
		eff.Top = *cli.Top
	} else if fc.Top != nil {
		eff.Top = *fc.Top
	}

	if cli.LogLevel != nil {
		eff.LogLevel = strings.ToLower(*cli.LogLevel)
	} else if fc.LogLevel != "" {
		eff.LogLevel = strings.ToLower(fc.LogLevel)
	}

	if cli.Strict != nil {
		eff.Strict = *cli.Strict
	} else if fc.Strict != nil {
		eff.Strict = *fc.Strict
	}
	return eff
}

// pickPath returns the flag value as given, else the file value resolved
// against baseDir, else def.
func pickPath(flag *string, file, baseDir, def string) string {
	if flag != nil {
		return *flag
	}
	if file = strings.TrimSpace(file); file != "" {
		if filepath.IsAbs(file) {
			return filepath.Clean(file)
		}
		return filepath.Join(baseDir, file)
	}
	return def
}

// describe turns validator output into one readable line per field.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required_without":
			msgs = append(msgs, fmt.Sprintf("%s is required unless %s is set", strings.ToLower(fe.Field()), strings.ToLower(fe.Param())))
		case "excluded_with":
			msgs = append(msgs, fmt.Sprintf("%s and %s are mutually exclusive", strings.ToLower(fe.Field()), strings.ToLower(fe.Param())))
		default:
			rule := fe.Tag()
			if fe.Param() != "" {
				rule += "=" + fe.Param()
			}
			msgs = append(msgs, fmt.Sprintf("%s failed %s (got %v)", fe.Namespace(), rule, fe.Value()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
