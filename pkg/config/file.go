package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Format is a config file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf picks the format from the file extension. Anything that is not
// .json is read as YAML.
func FormatOf(path string) Format {
	if filepath.Ext(path) == ".json" {
		return FormatJSON
	}
	return FormatYAML
}

// Load decodes the file at path into target. Unknown keys are rejected so a
// misspelt setting fails loudly instead of silently keeping its default.
func Load(path string, target interface{}) error {
	// #nosec G304 -- the path comes from the operator's -config flag.
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := Decode(bytes.NewReader(data), FormatOf(path), target); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Decode reads one document in format from r into target.
func Decode(r io.Reader, format Format, target interface{}) error {
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(target); err != nil {
			return fmt.Errorf("failed to unmarshal JSON: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		// An empty file leaves the defaults in place.
		if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to unmarshal YAML: %w", err)
		}
	default:
		return fmt.Errorf("unknown config format %q", format)
	}
	return nil
}

// Write encodes config to w, e.g. to print the effective configuration.
func Write(w io.Writer, format Format, config interface{}) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(config); err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(config); err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown config format %q", format)
	}
	return nil
}
