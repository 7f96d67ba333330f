package scanner

import (
	"errors"
	"fmt"
)

// Scan stages, reported by StageError so a failed run says where it stopped.
const (
	StageConfig   = "config"
	StageManifest = "manifest"
	StageTraverse = "traverse"
	StageMeasure  = "measure"
	StageRegistry = "registry"
)

// StageError wraps a fatal scan failure with the stage it happened in. No
// partial result accompanies it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Stage extracts the failing stage from err, or "" if err carries none.
func Stage(err error) string {
	var e *StageError
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// UnreadableAssetError records an asset the estimator could not measure. It
// is a warning: the asset stays in the report with a zero footprint.
type UnreadableAssetError struct {
	Asset string
	Err   error
}

func (e *UnreadableAssetError) Error() string {
	return fmt.Sprintf("unreadable asset %q: %v", e.Asset, e.Err)
}

func (e *UnreadableAssetError) Unwrap() error { return e.Err }
