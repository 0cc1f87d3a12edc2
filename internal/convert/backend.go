// Package convert holds the three file conversion backends and the temp
// workspace they share.
package convert

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
)

// Status is the expected outcome of a conversion
type Status int

const (
	StatusConverted Status = iota
	// StatusUnsupportedFormat means the source/target pair cannot be converted
	StatusUnsupportedFormat
)

func (s Status) String() string {
	switch s {
	case StatusConverted:
		return "converted"
	case StatusUnsupportedFormat:
		return "unsupported format"
	default:
		return "unknown"
	}
}

// Result is the typed outcome of Backend.Convert. Path is set only when
// Status is StatusConverted.
type Result struct {
	Status Status
	Path   string
	Reason string
}

// Converted builds a successful result
func Converted(path string) Result {
	return Result{Status: StatusConverted, Path: path}
}

// Unsupported builds a rejected result
func Unsupported(reason string) Result {
	return Result{Status: StatusUnsupportedFormat, Reason: reason}
}

// Backend converts a source file into a new file of the target format.
// It never mutates the source. The error return is reserved for failures
// that are not the user's doing.
type Backend interface {
	Name() string
	InputFormats() FormatSet
	OutputFormats() FormatSet
	Convert(ctx context.Context, sourcePath, targetFormat string) (Result, error)
}

// FormatSet is an ordered set of lower-case format names
type FormatSet []string

// Contains reports whether format is in the set
func (s FormatSet) Contains(format string) bool {
	format = strings.ToLower(format)
	for _, f := range s {
		if f == format {
			return true
		}
	}
	return false
}

// Without returns the set minus the given formats
func (s FormatSet) Without(formats ...string) FormatSet {
	out := make(FormatSet, 0, len(s))
	for _, f := range s {
		if !FormatSet(formats).Contains(f) {
			out = append(out, f)
		}
	}
	return out
}

func (s FormatSet) String() string {
	return strings.Join(s, ", ")
}

// FormatOf returns the lower-case extension of path without the dot
func FormatOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Runner executes an external program and returns its combined output
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs programs with os/exec
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
