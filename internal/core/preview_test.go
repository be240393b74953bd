package core

import (
	"errors"
	"strconv"
	"testing"

	"github.com/JonMunkholm/tabload/internal/schema"
)

func TestPreview(t *testing.T) {
	rows := make([][]string, 25)
	for i := range rows {
		rows[i] = []string{strconv.Itoa(i + 1), "NA"}
	}
	rows[3][1] = "2.5"
	src := newMemSource([]string{"Order Id", "Amount"}, rows...)

	p, err := Preview(src, "", 0)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if p.TotalRows != 25 || len(p.Samples) != DefaultPreviewSamples {
		t.Errorf("total=%d samples=%d", p.TotalRows, len(p.Samples))
	}
	want := []schema.Column{{Name: "order_id", Type: schema.Smallint}, {Name: "amount", Type: schema.Decimal}}
	if len(p.Columns) != 2 || p.Columns[0] != want[0] || p.Columns[1] != want[1] {
		t.Errorf("Columns = %+v, want %+v", p.Columns, want)
	}
	if p.Header[0] != "Order Id" {
		t.Errorf("Header = %v, want the raw header", p.Header)
	}
}

func TestPreview_SampleBounds(t *testing.T) {
	src := newMemSource([]string{"x"}, []string{"1"}, []string{"2"})

	p, err := Preview(src, "NA", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Samples) != 2 {
		t.Errorf("samples = %d, want all 2 rows", len(p.Samples))
	}

	p, err = Preview(src, "NA", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Samples) != 1 || p.Samples[0][0] != "1" {
		t.Errorf("samples = %v", p.Samples)
	}
}

func TestPreview_UnreadableSource(t *testing.T) {
	src := newMemSource([]string{"x"}, []string{"1"}, []string{"2"})
	src.failAt = 1
	src.failErr = errBoom

	if _, err := Preview(src, "NA", 0); !errors.Is(err, ErrSourceUnreadable) {
		t.Errorf("Preview() error = %v, want ErrSourceUnreadable", err)
	}
}
