package source

import (
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/xuri/excelize/v2"
)

// Spreadsheet reads one worksheet of an Excel workbook. The first non-empty
// row is the header; fully empty rows are skipped.
type Spreadsheet struct {
	path  string
	sheet string

	mu      sync.Mutex
	total   int
	counted bool
}

// NewSpreadsheet validates the workbook and resolves the sheet name. An empty
// sheet selects the first one.
func NewSpreadsheet(path, sheet string) (*Spreadsheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: no sheets found", path)
	}
	if sheet == "" {
		sheet = sheets[0]
	} else if !slices.Contains(sheets, sheet) {
		return nil, fmt.Errorf("%s: sheet %q not found", path, sheet)
	}
	return &Spreadsheet{path: path, sheet: sheet}, nil
}

func (s *Spreadsheet) Path() string  { return s.path }
func (s *Spreadsheet) Sheet() string { return s.sheet }

// Header returns the first non-empty row.
func (s *Spreadsheet) Header() ([]string, error) {
	for row, err := range s.rows() {
		if err != nil {
			return nil, err
		}
		return row, nil
	}
	return nil, fmt.Errorf("%s: %w", s.path, ErrNoHeader)
}

// RowsFrom yields data rows starting at the zero-based data-row offset.
func (s *Spreadsheet) RowsFrom(offset int) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		i := -1 // header
		for row, err := range s.rows() {
			if err != nil {
				yield(nil, err)
				return
			}
			i++
			if i == 0 || i-1 < offset {
				continue
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// TotalRowCount counts data rows on first use and caches the result.
func (s *Spreadsheet) TotalRowCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counted {
		return s.total, nil
	}

	n := 0
	for _, err := range s.RowsFrom(0) {
		if err != nil {
			return 0, err
		}
		n++
	}
	s.total, s.counted = n, true
	return n, nil
}

// rows streams every non-empty row of the sheet, header included.
func (s *Spreadsheet) rows() iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		f, err := excelize.OpenFile(s.path)
		if err != nil {
			yield(nil, fmt.Errorf("open workbook: %w", err))
			return
		}
		defer f.Close()

		rows, err := f.Rows(s.sheet)
		if err != nil {
			yield(nil, fmt.Errorf("%s: sheet %q: %w", s.path, s.sheet, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			cols, err := rows.Columns()
			if err != nil {
				yield(nil, fmt.Errorf("%s: sheet %q: %w", s.path, s.sheet, err))
				return
			}
			if len(cols) == 0 {
				continue
			}
			if !yield(cols, nil) {
				return
			}
		}
		if err := rows.Error(); err != nil {
			yield(nil, fmt.Errorf("%s: sheet %q: %w", s.path, s.sheet, err))
		}
	}
}
