package core

import (
	"time"

	"github.com/JonMunkholm/tabload/internal/schema"
)

// DefaultPreviewSamples is the number of data rows returned with a preview.
const DefaultPreviewSamples = 10

// maxPreviewSamples bounds the sample size a caller can ask for.
const maxPreviewSamples = 100

// PreviewResponse describes the table a source would produce, without
// creating it.
type PreviewResponse struct {
	SourcePath       string          `json:"source_path"`
	Header           []string        `json:"header"`
	Columns          []schema.Column `json:"columns"`
	TotalRows        int             `json:"total_rows"`
	Samples          [][]string      `json:"samples"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
}

// Preview infers the schema of src and collects up to samples leading rows.
// A non-positive samples selects DefaultPreviewSamples.
func Preview(src RowSource, nullMarker string, samples int) (*PreviewResponse, error) {
	start := time.Now()
	if samples <= 0 {
		samples = DefaultPreviewSamples
	}
	samples = min(samples, maxPreviewSamples)
	if nullMarker == "" {
		nullMarker = schema.DefaultSentinel
	}

	header, err := src.Header()
	if err != nil {
		return nil, sourceError(err)
	}
	_, cols, err := BuildSchema(src, nullMarker)
	if err != nil {
		return nil, err
	}
	total, err := src.TotalRowCount()
	if err != nil {
		return nil, sourceError(err)
	}

	rows := make([][]string, 0, min(samples, total))
	for row, err := range src.RowsFrom(0) {
		if err != nil {
			return nil, sourceError(err)
		}
		rows = append(rows, row)
		if len(rows) == samples {
			break
		}
	}

	return &PreviewResponse{
		SourcePath:       src.Path(),
		Header:           header,
		Columns:          cols,
		TotalRows:        total,
		Samples:          rows,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// Preview opens sourcePath under the source directory and previews it.
func (m *Manager) Preview(sourcePath string, samples int) (*PreviewResponse, error) {
	src, err := m.open(sourcePath)
	if err != nil {
		return nil, err
	}
	return Preview(src, m.cfg.NullMarker, samples)
}
