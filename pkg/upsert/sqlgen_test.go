package upsert

import (
	"testing"
	"time"

	"github.com/ruslano69/dbcon/pkg/adapters/mssql"
	"github.com/ruslano69/dbcon/pkg/adapters/sqlite"
	"github.com/ruslano69/dbcon/pkg/record"
)

func TestLiteral(t *testing.T) {
	tests := []struct {
		name  string
		value any
		class record.Tag
		want  string
	}{
		{"nil", nil, record.TagText, "NULL"},
		{"empty string", "", record.TagText, "NULL"},
		{"bool true", true, record.TagBoolean, "1"},
		{"bool false", false, record.TagBoolean, "0"},
		{"integer", int64(10), record.TagInteger, "10"},
		{"integer from text", "42", record.TagInteger, "42"},
		{"decimal", 1.5, record.TagDecimal, "1.5"},
		{"text", "abc", record.TagText, "N'abc'"},
		{"apostrophe", "It's", record.TagText, "N'It’s'"},
		{"number into text", int64(7), record.TagText, "N'7'"},
		{"datetime", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), record.TagDatetime, "N'2024-03-01 10:30:00'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Literal(tt.value, tt.class); got != tt.want {
				t.Errorf("Literal(%v) = %s, want %s", tt.value, got, tt.want)
			}
		})
	}
}

func TestInsertSQL(t *testing.T) {
	got := insertSQL(sqlite.New(), "orders", []string{"id", "b.2.val"}, 2)
	want := `INSERT INTO "orders" ("id", "b.2.val") VALUES (?, ?), (?, ?)`
	if got != want {
		t.Errorf("got %s\nwant %s", got, want)
	}

	got = insertSQL(mssql.New(), "sales.orders", []string{"id"}, 1)
	want = `INSERT INTO [sales].[orders] ([id]) VALUES (?)`
	if got != want {
		t.Errorf("got %s\nwant %s", got, want)
	}
}

func TestUpdateSQL(t *testing.T) {
	got := updateSQL(sqlite.New(), "orders", []string{"id", "v"}, "id")
	want := `UPDATE "orders" SET "id" = ?, "v" = ? WHERE "id" = ?`
	if got != want {
		t.Errorf("got %s\nwant %s", got, want)
	}
}

func TestCreateTableSQL(t *testing.T) {
	typed := TypedRecord{
		{Column: "id", Type: "INTEGER"},
		{Column: "name", Type: "TEXT"},
	}
	got := createTableSQL(sqlite.New(), "orders", typed)
	want := `CREATE TABLE "orders" ("id" INTEGER, "name" TEXT)`
	if got != want {
		t.Errorf("got %s\nwant %s", got, want)
	}
}

func TestRowsPerStatement(t *testing.T) {
	tests := []struct {
		columns, maxParams, want int
	}{
		{3, 999, 333},
		{10, 2100, 210},
		{5000, 2100, 1},
		{0, 100, 1},
	}
	for _, tt := range tests {
		if got := rowsPerStatement(tt.columns, tt.maxParams); got != tt.want {
			t.Errorf("rowsPerStatement(%d, %d) = %d, want %d", tt.columns, tt.maxParams, got, tt.want)
		}
	}
}

func TestInline(t *testing.T) {
	got := inline(`UPDATE "t" SET "a" = ? WHERE "id" = ?`, []string{"N'x'", "1"})
	want := `UPDATE "t" SET "a" = N'x' WHERE "id" = 1`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestBindValue(t *testing.T) {
	if v := bindValue("true", record.TagBoolean); v != true {
		t.Errorf("boolean from text = %v", v)
	}
	if v := bindValue(2.0, record.TagInteger); v != int64(2) {
		t.Errorf("integer from whole float = %v", v)
	}
	if v := bindValue("2024-03-01T10:30:00Z", record.TagDatetime); v != "2024-03-01 10:30:00" {
		t.Errorf("datetime = %v", v)
	}
	if v := bindValue(true, record.TagText); v != "true" {
		t.Errorf("text from bool = %v", v)
	}
}

func TestCompositeKeyJoin(t *testing.T) {
	key := &CompositeKey{Column: "pk", Fields: []string{"a", "b"}, Separator: "|"}
	values := map[string]any{"a": int64(1), "b": "x"}

	got, err := key.Join(func(f string) (any, bool) {
		v, ok := values[f]
		return v, ok
	})
	if err != nil || got != "1|x" {
		t.Errorf("Join = %q, %v", got, err)
	}

	delete(values, "b")
	if _, err := key.Join(func(f string) (any, bool) {
		v, ok := values[f]
		return v, ok
	}); err == nil {
		t.Error("expected MissingKeyError")
	}
}
