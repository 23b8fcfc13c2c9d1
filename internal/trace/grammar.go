// Package trace parses and replays recorded cache operation scripts.
//
// A script is a sequence of steps, one per line by convention:
//
//	set entity 42 "payload" ttl 10m
//	get entity 42
//	get search "Blue  Whale"
//	advance 1h
//	cleanup fraction 1.0 max 500
//	stats
//
// Comments start with '#'. Replaying a script against a registry with a
// manual clock gives a deterministic hit rate for a workload.
package trace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/electwix/apicache/internal/registry"
)

// ErrUnknownCache is reported for a cache name other than entity or search.
var ErrUnknownCache = errors.New("unknown cache")

// Script is a parsed trace.
//
//nolint:govet // Participle struct tags are DSL, not reflect tags
type Script struct {
	Steps []*Step `@@*`
}

// Step is one operation. Exactly one field other than Pos is set.
//
//nolint:govet // Participle struct tags are DSL, not reflect tags
type Step struct {
	Pos lexer.Position

	Get     *GetStep     `  @@`
	Set     *SetStep     `| @@`
	Delete  *DeleteStep  `| @@`
	Clear   *ClearStep   `| @@`
	Advance *AdvanceStep `| @@`
	Cleanup *CleanupStep `| @@`
	Stats   bool         `| @"stats"`
}

// GetStep reads one key.
//
//nolint:govet // Participle struct tags are DSL, not reflect tags
type GetStep struct {
	Cache CacheName `"get" @Ident`
	ID    string    `@(String | Ident | Number | Duration)`
}

// SetStep writes one key, optionally with its own TTL.
//
//nolint:govet // Participle struct tags are DSL, not reflect tags
type SetStep struct {
	Cache CacheName `"set" @Ident`
	ID    string    `@(String | Ident | Number | Duration)`
	Value string    `@(String | Ident | Number | Duration)`
	TTL   *Duration `("ttl" @Duration)?`
}

// DeleteStep removes one key.
//
//nolint:govet // Participle struct tags are DSL, not reflect tags
type DeleteStep struct {
	Cache CacheName `"delete" @Ident`
	ID    string    `@(String | Ident | Number | Duration)`
}

// ClearStep empties one cache and resets its counters.
//
//nolint:govet // Participle struct tags are DSL, not reflect tags
type ClearStep struct {
	Cache CacheName `"clear" @Ident`
}

// AdvanceStep moves the replay clock.
//
//nolint:govet // Participle struct tags are DSL, not reflect tags
type AdvanceStep struct {
	By Duration `"advance" @Duration`
}

// CleanupStep sweeps every built store once. Omitted parameters are nil
// and take the sweep defaults.
//
//nolint:govet // Participle struct tags are DSL, not reflect tags
type CleanupStep struct {
	Keyword  string   `@"cleanup"`
	Fraction *float64 `( "fraction" @Number`
	Min      *int     `| "min" @Number`
	Max      *int     `| "max" @Number )*`
}

// CacheName is a registry.Name captured from an identifier.
type CacheName registry.Name

// Capture implements participle.Capture.
func (c *CacheName) Capture(values []string) error {
	n, err := registry.ParseName(values[0])
	if err != nil {
		return fmt.Errorf("%w %q (want entity or search)", ErrUnknownCache, values[0])
	}
	*c = CacheName(n)
	return nil
}

// Name returns the registry name.
func (c CacheName) Name() registry.Name {
	return registry.Name(c)
}

// Duration is a time.Duration captured from Go duration syntax.
type Duration time.Duration

// Capture implements participle.Capture.
func (d *Duration) Capture(values []string) error {
	parsed, err := time.ParseDuration(values[0])
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

//nolint:govet // Participle DSL uses unkeyed fields
var traceLexer = lexer.MustSimple([]lexer.SimpleRule{
	{"Comment", `#[^\n]*`},
	{"Whitespace", `[ \t\r\n]+`},
	{"String", `"(\\.|[^"\\])*"`},
	{"Duration", `-?([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+`},
	{"Number", `-?[0-9]+(\.[0-9]+)?`},
	{"Ident", `[A-Za-z_][A-Za-z0-9_.:/-]*`},
})

var parser = participle.MustBuild[Script](
	participle.Lexer(traceLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.Unquote("String"),
)

// ParseError locates a syntax or capture error in a trace file.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
}

// Parse parses src. path is used only in error positions.
func Parse(path string, src []byte) (*Script, error) {
	script, err := parser.ParseBytes(path, src)
	if err != nil {
		var perr participle.Error
		if errors.As(err, &perr) {
			pos := perr.Position()
			return nil, &ParseError{
				Path:    path,
				Line:    pos.Line,
				Column:  pos.Column,
				Message: perr.Message(),
			}
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return script, nil
}

// ParseFile reads and parses the trace at path.
func ParseFile(path string) (*Script, error) {
	src, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(path, src)
}
