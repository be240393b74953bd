package schema

import (
	"errors"
	"iter"
	"slices"
	"testing"

	"github.com/JonMunkholm/tabload/internal/database"
	"github.com/jackc/pgx/v5/pgtype"
)

func rowsOf(rows ...[]string) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		for _, r := range rows {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"id", "id"},
		{"Customer Name", "customer_name"},
		{"  Padded  ", "padded"},
		{"Two  Spaces", "two__spaces"},
		{"Tab\tSeparated", "tab_separated"},
		{"\ufeffBOM Header", "bom_header"},
		{"MixedCASE", "mixedcase"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeHeader(tt.input); got != tt.want {
				t.Errorf("NormalizeHeader(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeHeaders_BlankAndDuplicates(t *testing.T) {
	got := NormalizeHeaders([]string{"Name", "", "name", "NAME", "name_2"})
	want := []string{"name", "column_2", "name_2", "name_3", "name_2_2"}
	if !slices.Equal(got, want) {
		t.Errorf("NormalizeHeaders() = %v, want %v", got, want)
	}
}

func TestBuild_Scenario(t *testing.T) {
	cols, err := Build(
		[]string{"id", "amount", "name"},
		rowsOf([]string{"1", "10", "A"}, []string{"2", "32768", "B"}),
		DefaultSentinel,
	)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := []Column{
		{Name: "id", Type: Smallint},
		{Name: "amount", Type: Int},
		{Name: "name", Type: Varchar},
	}
	if !slices.Equal(cols, want) {
		t.Fatalf("Build() = %v, want %v", cols, want)
	}

	stmt := CreateTable(database.PostgresDialect, "uploads", cols)
	wantSQL := `CREATE TABLE "uploads" ("id" smallint, "amount" int, "name" varchar(256))`
	if stmt.SQL != wantSQL {
		t.Errorf("CreateTable() =\n  %s\nwant\n  %s", stmt.SQL, wantSQL)
	}
	if len(stmt.Args) != 0 {
		t.Errorf("CreateTable() args = %v, want none", stmt.Args)
	}
}

func TestBuild_RaggedRowsAndSentinel(t *testing.T) {
	cols, err := Build(
		[]string{"a", "b", "c"},
		rowsOf(
			[]string{"1"},
			[]string{"NA", "2.5", "NA", "extra"},
			[]string{"3", "NA"},
		),
		DefaultSentinel,
	)
	if err != nil {
		t.Fatal(err)
	}

	want := []Column{
		{Name: "a", Type: Smallint},
		{Name: "b", Type: Decimal},
		{Name: "c", Type: Varchar},
	}
	if !slices.Equal(cols, want) {
		t.Errorf("Build() = %v, want %v", cols, want)
	}
}

func TestBuild_PropagatesReadError(t *testing.T) {
	boom := errors.New("disk gone")
	rows := func(yield func([]string, error) bool) {
		if !yield([]string{"1"}, nil) {
			return
		}
		yield(nil, boom)
	}

	if _, err := Build([]string{"a"}, rows, DefaultSentinel); !errors.Is(err, boom) {
		t.Errorf("Build() error = %v, want %v", err, boom)
	}
}

func TestInsert(t *testing.T) {
	cols := []Column{
		{Name: "id", Type: Smallint},
		{Name: "price", Type: Decimal},
		{Name: "label", Type: Varchar},
	}

	t.Run("postgres placeholders", func(t *testing.T) {
		stmt := Insert(database.PostgresDialect, "items", cols, []string{"1", "2.50", "it's"}, DefaultSentinel)
		wantSQL := `INSERT INTO "items" ("id", "price", "label") VALUES ($1, $2, $3)`
		if stmt.SQL != wantSQL {
			t.Errorf("SQL = %s, want %s", stmt.SQL, wantSQL)
		}
		if stmt.Args[0] != int64(1) {
			t.Errorf("id arg = %#v, want int64(1)", stmt.Args[0])
		}
		if _, ok := stmt.Args[1].(pgtype.Numeric); !ok {
			t.Errorf("price arg = %#v, want pgtype.Numeric", stmt.Args[1])
		}
		if stmt.Args[2] != "it's" {
			t.Errorf("label arg = %#v, want the raw text", stmt.Args[2])
		}
	})

	t.Run("sqlite placeholders and padding", func(t *testing.T) {
		stmt := Insert(database.SQLiteDialect, "items", cols, []string{"NA"}, DefaultSentinel)
		wantSQL := `INSERT INTO "items" ("id", "price", "label") VALUES (?, ?, ?)`
		if stmt.SQL != wantSQL {
			t.Errorf("SQL = %s, want %s", stmt.SQL, wantSQL)
		}
		for i, a := range stmt.Args {
			if a != nil {
				t.Errorf("arg[%d] = %#v, want nil", i, a)
			}
		}
	})

	t.Run("long rows truncated", func(t *testing.T) {
		stmt := Insert(database.SQLiteDialect, "items", cols, []string{"1", "2", "x", "y", "z"}, DefaultSentinel)
		if len(stmt.Args) != len(cols) {
			t.Errorf("len(Args) = %d, want %d", len(stmt.Args), len(cols))
		}
	})
}

func TestBind_MismatchPassesThrough(t *testing.T) {
	if got := Bind(Int, "oops", DefaultSentinel); got != "oops" {
		t.Errorf("Bind(Int, oops) = %#v, want raw text", got)
	}
	if got := Bind(Varchar, "NA", DefaultSentinel); got != nil {
		t.Errorf("Bind(Varchar, NA) = %#v, want nil", got)
	}
}

func TestDropAndCount(t *testing.T) {
	if got := DropTable(database.PostgresDialect, "t").SQL; got != `DROP TABLE IF EXISTS "t"` {
		t.Errorf("DropTable() = %s", got)
	}
	if got := CountRows(database.SQLiteDialect, "t").SQL; got != `SELECT COUNT(*) FROM "t"` {
		t.Errorf("CountRows() = %s", got)
	}
}
