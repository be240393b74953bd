package source

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"sync"
)

// candidateDelimiters are tried in order; ties go to the earlier one.
var candidateDelimiters = []rune{',', '\t', ';', '|'}

// Delimited reads CSV-style files. Each pass reopens the file, so a paused
// ingestion holds no descriptor.
type Delimited struct {
	path  string
	comma rune

	mu      sync.Mutex
	total   int
	counted bool
}

// NewDelimited opens path for row access. A zero comma is detected from the
// header line.
func NewDelimited(path string, comma rune) (*Delimited, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	d := &Delimited{path: path, comma: comma}
	if comma == 0 {
		line, err := d.firstLine()
		if err != nil {
			return nil, err
		}
		d.comma = DetectDelimiter(line)
	}
	return d, nil
}

// DetectDelimiter picks the candidate delimiter occurring most often in line,
// defaulting to a comma.
func DetectDelimiter(line string) rune {
	winner, best := ',', 0
	for _, c := range candidateDelimiters {
		if n := strings.Count(line, string(c)); n > best {
			winner, best = c, n
		}
	}
	return winner
}

func (d *Delimited) Path() string    { return d.path }
func (d *Delimited) Delimiter() rune { return d.comma }

// Header returns the raw header row.
func (d *Delimited) Header() ([]string, error) {
	f, r, err := d.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", d.path, ErrNoHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", d.path, err)
	}
	return header, nil
}

// RowsFrom yields data rows starting at the zero-based data-row offset. An
// offset at or past the end yields nothing.
func (d *Delimited) RowsFrom(offset int) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		f, r, err := d.open()
		if err != nil {
			yield(nil, err)
			return
		}
		defer f.Close()

		// header
		if _, err := r.Read(); err != nil {
			if !errors.Is(err, io.EOF) {
				yield(nil, fmt.Errorf("%s: read header: %w", d.path, err))
			}
			return
		}

		for i := 0; ; i++ {
			rec, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("%s: data row %d: %w", d.path, i, err))
				return
			}
			if i < offset {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// TotalRowCount counts data rows on first use and caches the result.
func (d *Delimited) TotalRowCount() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.counted {
		return d.total, nil
	}

	n := 0
	for _, err := range d.RowsFrom(0) {
		if err != nil {
			return 0, err
		}
		n++
	}
	d.total, d.counted = n, true
	return n, nil
}

func (d *Delimited) open() (*os.File, *csv.Reader, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, nil, fmt.Errorf("open source: %w", err)
	}
	r := csv.NewReader(newUTF8Sanitizer(newBOMSkipper(f)))
	r.Comma = d.comma
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	return f, r, nil
}

func (d *Delimited) firstLine() (string, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	line, err := bufio.NewReader(newBOMSkipper(f)).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%s: read header: %w", d.path, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
