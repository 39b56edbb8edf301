// Package cliutil holds small pieces of CLI presentation shared across
// docqa's subcommands: the global --output format switch and its writers.
package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Format is one of the CLI's supported structured rendering formats.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// DefaultFormat is used when --output names an unrecognized format.
const DefaultFormat Format = FormatYAML

var active Format = DefaultFormat

// SetFormat parses the root command's --output flag value and stores it
// for subsequent Write/WriteStdout calls.
func SetFormat(raw string) {
	switch Format(raw) {
	case FormatJSON:
		active = FormatJSON
	case FormatYAML:
		active = FormatYAML
	default:
		active = DefaultFormat
	}
}

// CurrentFormat returns the format set by the most recent SetFormat call.
func CurrentFormat() Format {
	return active
}

var encoders = map[Format]func(io.Writer, any) error{
	FormatJSON: func(w io.Writer, data any) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	},
	FormatYAML: func(w io.Writer, data any) error {
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		enc.SetIndent(2)
		return enc.Encode(data)
	},
}

// Write renders data to w in the given format.
func Write(w io.Writer, format Format, data any) error {
	enc, ok := encoders[format]
	if !ok {
		return fmt.Errorf("cliutil: unknown output format %q", format)
	}
	return enc(w, data)
}

// WriteStdout renders data to stdout using the active format.
func WriteStdout(data any) error {
	return Write(os.Stdout, active, data)
}

// IsStructured reports whether the active format is a structured one
// (as opposed to a command's own hand-formatted human-readable output).
func IsStructured() bool {
	return active == FormatJSON || active == FormatYAML
}
