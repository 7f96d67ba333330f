// Package sizer provides size estimators for assets: the on-disk footprint
// under a content root, and a chain that falls back across estimators.
package sizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultZeroSizeExts are scene/container kinds that are never loaded as
// standalone runtime objects and therefore cost nothing on their own.
var DefaultZeroSizeExts = []string{".unity"}

// Estimator is the shape shared by every size source.
type Estimator interface {
	Size(ctx context.Context, asset string) (int64, error)
}

// File measures an asset as the byte length of Root/<asset>.
type File struct {
	Root string
}

func (f File) Size(ctx context.Context, asset string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rel := filepath.FromSlash(asset)
	if !filepath.IsLocal(rel) {
		return 0, fmt.Errorf("sizer: asset path %q escapes content root", asset)
	}
	fi, err := os.Stat(filepath.Join(f.Root, rel))
	if err != nil {
		return 0, err
	}
	if fi.IsDir() {
		return 0, fmt.Errorf("sizer: %q is a directory", asset)
	}
	return fi.Size(), nil
}

// ZeroSize reports 0 for assets with one of Exts and asks Next otherwise. It
// lets zero-size kinds win over a source that records a size for them.
type ZeroSize struct {
	Exts []string
	Next Estimator
}

func (z ZeroSize) Size(ctx context.Context, asset string) (int64, error) {
	if hasExt(z.Exts, asset) {
		return 0, nil
	}
	return z.Next.Size(ctx, asset)
}

func hasExt(exts []string, asset string) bool {
	ext := strings.ToLower(filepath.Ext(asset))
	if ext == "" {
		return false
	}
	for _, z := range exts {
		if strings.ToLower(z) == ext {
			return true
		}
	}
	return false
}

// Chain asks each estimator in turn and returns the first success. When every
// estimator fails the errors are joined.
type Chain []Estimator

func (c Chain) Size(ctx context.Context, asset string) (int64, error) {
	if len(c) == 0 {
		return 0, errors.New("sizer: empty chain")
	}
	var errs []error
	for _, e := range c {
		n, err := e.Size(ctx, asset)
		if err == nil {
			return n, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		errs = append(errs, err)
	}
	return 0, errors.Join(errs...)
}
