// Package reader loads the identifiers for a batch from the command line,
// a newline-delimited file, or a structured links document.
//
// Identifiers are passed through untouched apart from trimming surrounding
// whitespace. Input order is preserved and duplicates are kept.
package reader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pithecene-io/magnetmeta/types"
)

// ErrNoIdentifiers is returned when a source yields no identifiers.
var ErrNoIdentifiers = errors.New("no identifiers in input")

// ErrAmbiguousSource is returned when more than one source is given.
var ErrAmbiguousSource = errors.New("exactly one input source is allowed")

// DefaultField is the document field holding an identifier, matching the
// documents written by the scrape command.
const DefaultField = "magnet"

// maxLineSize bounds a single line of a list file (1 MiB).
const maxLineSize = 1 << 20

// Format is a structured document format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath infers the document format from the file extension.
// Unknown extensions are read as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Options selects the input source. Exactly one of Arg, ListFile and
// Document must be set.
type Options struct {
	// Arg is a single identifier given on the command line.
	Arg string
	// ListFile is a newline-delimited file of identifiers. "-" reads stdin.
	ListFile string
	// Document is a JSON or YAML array of objects. "-" reads stdin as JSON.
	Document string
	// Field is the document field to read (default "magnet").
	Field string
	// Stdin overrides os.Stdin for "-" sources.
	Stdin io.Reader
}

// Single reports whether opts selects single-identifier mode.
func (o Options) Single() bool {
	return o.Arg != "" && o.ListFile == "" && o.Document == ""
}

// Load reads identifiers from the source selected by opts.
func Load(opts Options) ([]types.Identifier, error) {
	set := 0
	for _, s := range []string{opts.Arg, opts.ListFile, opts.Document} {
		if s != "" {
			set++
		}
	}
	switch {
	case set == 0:
		return nil, ErrNoIdentifiers
	case set > 1:
		return nil, ErrAmbiguousSource
	}

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}

	switch {
	case opts.Arg != "":
		return FromArg(opts.Arg)
	case opts.ListFile != "":
		return readFrom(opts.ListFile, stdin, ReadLines)
	default:
		field := opts.Field
		if field == "" {
			field = DefaultField
		}
		format := FormatFromPath(opts.Document)
		return readFrom(opts.Document, stdin, func(r io.Reader) ([]types.Identifier, error) {
			return ReadDocument(r, format, field)
		})
	}
}

func readFrom(path string, stdin io.Reader, read func(io.Reader) ([]types.Identifier, error)) ([]types.Identifier, error) {
	if path == "-" {
		return read(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	ids, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ids, nil
}

// FromArg returns the single identifier given on the command line.
func FromArg(arg string) ([]types.Identifier, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, ErrNoIdentifiers
	}
	return []types.Identifier{types.Identifier(arg)}, nil
}

// ReadLines reads one identifier per line. Blank lines are skipped and
// surrounding whitespace is dropped.
func ReadLines(r io.Reader) ([]types.Identifier, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var ids []types.Identifier
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		ids = append(ids, types.Identifier(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrNoIdentifiers
	}
	return ids, nil
}
