// Package filefmt decodes the hand-authored input files (manifests, graphs,
// config) from YAML or JSONC, chosen by file extension.
package filefmt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Format is the on-disk encoding of an input file.
type Format string

const (
	YAML Format = "yaml"
	JSON Format = "json"
)

// Detect maps .json/.jsonc to JSON and everything else to YAML.
func Detect(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return JSON
	default:
		return YAML
	}
}

// Decode unmarshals data into v. JSON input may carry comments and trailing
// commas. Unknown fields are rejected in both formats.
func Decode(format Format, data []byte, v any) error {
	switch format {
	case JSON:
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	}
}

// ReadFile reads path and decodes it by extension.
func ReadFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := Decode(Detect(path), data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
