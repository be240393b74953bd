// Package source provides restartable row sources over tabular files.
//
// Every source yields its header row separately from its data rows and can
// restart iteration at an arbitrary data-row offset, which is what a paused
// ingestion needs to resume. Data rows are never buffered in full.
package source

import (
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned by Open for unknown file extensions.
	ErrUnsupportedFormat = errors.New("unsupported source format")

	// ErrNoHeader is returned when the source has no header row.
	ErrNoHeader = errors.New("source has no header row")
)

// Source is a tabular file that can be iterated from any data-row offset.
type Source interface {
	Path() string
	Header() ([]string, error)
	RowsFrom(offset int) iter.Seq2[[]string, error]
	TotalRowCount() (int, error)
}

// Options tune how Open interprets a file.
type Options struct {
	// Delimiter for delimited files. Zero means detect from the header line.
	Delimiter rune

	// Sheet selects a worksheet in a spreadsheet. Empty means the first sheet.
	Sheet string
}

// Open picks a source implementation from the file extension.
func Open(path string, opts Options) (Source, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".txt":
		return NewDelimited(path, opts.Delimiter)
	case ".tsv":
		d := opts.Delimiter
		if d == 0 {
			d = '\t'
		}
		return NewDelimited(path, d)
	case ".xlsx", ".xlsm", ".xltx":
		return NewSpreadsheet(path, opts.Sheet)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// ParseDelimiter converts a configured delimiter into a rune. "tab" and "\t"
// both mean a tab; an empty string means auto-detect.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case "tab", `\t`, "\t":
		return '\t', nil
	}
	r := []rune(s)
	if len(r) != 1 || r[0] == '"' || r[0] == '\r' || r[0] == '\n' {
		return 0, fmt.Errorf("invalid delimiter %q", s)
	}
	return r[0], nil
}
