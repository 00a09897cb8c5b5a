package store

import (
	"errors"
	"testing"
)

func TestDefaultQuery(t *testing.T) {
	got := DefaultQuery("drivers/o'foo.c")
	want := "SELECT * FROM variables WHERE path = 'drivers/o''foo.c'"
	if got != want {
		t.Errorf("DefaultQuery() = %q, want %q", got, want)
	}
}

func TestExecSelectQuery_VariablesView(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)
	seedTrials(t, s)

	var rows []QueryRow
	s.ExecSelectQuery(ctx, DefaultQuery("drivers/foo.c")+" ORDER BY time", func(r QueryRow) {
		rows = append(rows, r)
	})

	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3: %+v", len(rows), rows)
	}
	for _, r := range rows {
		if r.Err != nil {
			t.Fatalf("unexpected error row: %v", r.Err)
		}
	}
	want := []string{"time", "var_name", "var_value", "line", "path"}
	if len(rows[0].Columns) != len(want) {
		t.Fatalf("columns = %v, want %v", rows[0].Columns, want)
	}
	for i, c := range want {
		if rows[0].Columns[i] != c {
			t.Errorf("column %d = %q, want %q", i, rows[0].Columns[i], c)
		}
	}
	if tm, ok := rows[0].Values[0].(float64); !ok || tm != 12.0 {
		t.Errorf("time = %#v, want 12.0 seconds", rows[0].Values[0])
	}
	if path, ok := rows[0].Values[4].(string); !ok || path != "drivers/foo.c" {
		t.Errorf("path = %#v, want drivers/foo.c", rows[0].Values[4])
	}
}

func TestExecSelectQuery_RejectsWrites(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)

	for _, q := range []string{
		"DELETE FROM trial",
		"DROP TABLE inspect",
		"SELECT 1; DELETE FROM trial",
		"   ",
	} {
		var rows []QueryRow
		s.ExecSelectQuery(ctx, q, func(r QueryRow) { rows = append(rows, r) })
		if len(rows) != 1 || !errors.Is(rows[0].Err, ErrNotReadOnly) {
			t.Errorf("ExecSelectQuery(%q) = %+v, want one ErrNotReadOnly row", q, rows)
		}
	}
}

func TestExecSelectQuery_WriteInsideWithIsBlocked(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)
	createTestSession(t, s, "tok")

	var rows []QueryRow
	s.ExecSelectQuery(ctx, "WITH x AS (SELECT 1) DELETE FROM session", func(r QueryRow) {
		rows = append(rows, r)
	})
	if len(rows) != 1 || rows[0].Err == nil {
		t.Errorf("rows = %+v, want one error row", rows)
	}

	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if counts["session"] != 1 {
		t.Errorf("session rows = %d, want 1", counts["session"])
	}

	// The connection must be writable again afterwards.
	createTestSession(t, s, "tok-2")
}

func TestExecSelectQuery_SyntaxErrorIsRow(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)

	var rows []QueryRow
	s.ExecSelectQuery(ctx, "SELECT * FROM nowhere", func(r QueryRow) { rows = append(rows, r) })
	if len(rows) != 1 || rows[0].Err == nil {
		t.Errorf("rows = %+v, want one error row", rows)
	}
}
