package store

import (
	"errors"
	"testing"
	"time"

	"github.com/roach88/kinspect/internal/ir"
)

func TestUpsertFile_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)

	id1, err := s.UpsertFile(ctx, "drivers/foo.c")
	if err != nil {
		t.Fatalf("UpsertFile() failed: %v", err)
	}
	id2, err := s.UpsertFile(ctx, "drivers/foo.c")
	if err != nil {
		t.Fatalf("second UpsertFile() failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("UpsertFile() ids differ: %d vs %d", id1, id2)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM file").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("file rows = %d, want 1", count)
	}
}

func TestUpsertFunction_KeepsFirstRange(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)

	fn1, err := s.UpsertFunction(ctx, "drivers/foo.c", "bar", 10, 20)
	if err != nil {
		t.Fatalf("UpsertFunction() failed: %v", err)
	}
	fn2, err := s.UpsertFunction(ctx, "drivers/foo.c", "bar", 30, 40)
	if err != nil {
		t.Fatalf("second UpsertFunction() failed: %v", err)
	}

	if fn1.ID != fn2.ID {
		t.Errorf("function ids differ: %d vs %d", fn1.ID, fn2.ID)
	}
	if fn2.LineStart != 10 || fn2.LineEnd != 20 {
		t.Errorf("range = %d-%d, want first-seen 10-20", fn2.LineStart, fn2.LineEnd)
	}
}

func TestStartTrial_ExactStartTime(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)
	sess := createTestSession(t, s, "tok")

	st := testTrialStart(sess, 3)
	st.Time = 12*time.Second + 345678901*time.Nanosecond
	row := createTestTrial(t, s, st)

	got, err := s.GetTrial(ctx, row)
	if err != nil {
		t.Fatalf("GetTrial() failed: %v", err)
	}
	if got.Time != st.Time {
		t.Errorf("Time = %v, want %v", got.Time, st.Time)
	}
	if got.TrialID != 3 {
		t.Errorf("TrialID = %d, want 3", got.TrialID)
	}
	if got.Returned() {
		t.Error("new trial should not be returned")
	}
}

func TestStartTrial_CreatesFunctionWithExactRange(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)
	sess := createTestSession(t, s, "tok")

	_, fn, err := s.StartTrial(ctx, testTrialStart(sess, 1))
	if err != nil {
		t.Fatalf("StartTrial() failed: %v", err)
	}
	if fn.Name != "bar" || fn.LineStart != 10 || fn.LineEnd != 20 {
		t.Errorf("function = %+v, want bar 10-20", fn)
	}
}

func TestAddLineInspect_ResolvesInnermostFunction(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)
	sess := createTestSession(t, s, "tok")

	outer, err := s.UpsertFunction(ctx, "drivers/foo.c", "outer", 1, 100)
	if err != nil {
		t.Fatalf("UpsertFunction() failed: %v", err)
	}
	row := createTestTrial(t, s, testTrialStart(sess, 1))

	if _, err := s.AddLineInspect(ctx, LineInspect{
		TrialRow: row, File: "drivers/foo.c", Line: 15, Key: "x", VarValue: strPtr("5"),
	}); err != nil {
		t.Fatalf("AddLineInspect() failed: %v", err)
	}
	if _, err := s.AddLineInspect(ctx, LineInspect{
		TrialRow: row, File: "drivers/foo.c", Line: 50, Key: "outside bar",
	}); err != nil {
		t.Fatalf("AddLineInspect() failed: %v", err)
	}

	var funcs []int64
	rows, err := s.db.Query("SELECT function_id FROM inspect ORDER BY id")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		funcs = append(funcs, id)
	}

	tr, err := s.GetTrial(ctx, row)
	if err != nil {
		t.Fatalf("GetTrial() failed: %v", err)
	}
	if len(funcs) != 2 || funcs[0] != tr.FunctionID || funcs[1] != outer.ID {
		t.Errorf("inspect functions = %v, want [%d %d]", funcs, tr.FunctionID, outer.ID)
	}
}

func TestAddLineInspect_NoFunction(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)
	sess := createTestSession(t, s, "tok")
	row := createTestTrial(t, s, testTrialStart(sess, 1))

	_, err := s.AddLineInspect(ctx, LineInspect{TrialRow: row, File: "drivers/foo.c", Line: 99, Key: "x"})
	if !errors.Is(err, ErrNoFunction) {
		t.Errorf("AddLineInspect() error = %v, want ErrNoFunction", err)
	}
}

func TestAddStacktrace_Dedup(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)
	sess := createTestSession(t, s, "tok")
	row1 := createTestTrial(t, s, testTrialStart(sess, 1))
	row2 := createTestTrial(t, s, testTrialStart(sess, 2))

	fp1, err := s.AddStacktrace(ctx, row1, "foo+0x10,bar+0x20")
	if err != nil {
		t.Fatalf("AddStacktrace() failed: %v", err)
	}
	fp2, err := s.AddStacktrace(ctx, row2, " foo+0x10 , bar+0x20")
	if err != nil {
		t.Fatalf("second AddStacktrace() failed: %v", err)
	}

	if fp1 != fp2 {
		t.Errorf("fingerprints differ: %d vs %d", fp1, fp2)
	}
	if fp1 != ir.Fingerprint("foo+0x10,bar+0x20") {
		t.Errorf("fingerprint = %d, want ir.Fingerprint of the text", fp1)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM stacktrace").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("stacktrace rows = %d, want 1", count)
	}

	for _, row := range []int64{row1, row2} {
		tr, err := s.GetTrial(ctx, row)
		if err != nil {
			t.Fatalf("GetTrial() failed: %v", err)
		}
		if !tr.HasStack || tr.Fingerprint != fp1 {
			t.Errorf("trial %d fingerprint = %d (has=%v), want %d", row, tr.Fingerprint, tr.HasStack, fp1)
		}
	}
}

func TestAddStacktrace_UnknownTrial(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)

	_, err := s.AddStacktrace(ctx, 42, "foo+0x10")
	if !errors.Is(err, ErrUnknownTrial) {
		t.Errorf("AddStacktrace() error = %v, want ErrUnknownTrial", err)
	}
}

func TestFunctionReturn_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)
	sess := createTestSession(t, s, "tok")
	row := createTestTrial(t, s, testTrialStart(sess, 3))

	for i := 0; i < 2; i++ {
		if err := s.FunctionReturn(ctx, row, 13*time.Second, 15, nil); err != nil {
			t.Fatalf("FunctionReturn() #%d failed: %v", i, err)
		}
	}

	tr, err := s.GetTrial(ctx, row)
	if err != nil {
		t.Fatalf("GetTrial() failed: %v", err)
	}
	if tr.ReturnTime != 13*time.Second || tr.ReturnLine != 15 {
		t.Errorf("return = %v line %d, want 13s line 15", tr.ReturnTime, tr.ReturnLine)
	}
	if tr.Elapsed() != time.Second {
		t.Errorf("Elapsed() = %v, want 1s", tr.Elapsed())
	}
}

func TestFunctionReturn_ZeroLineKeepsReturnLine(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)
	sess := createTestSession(t, s, "tok")
	row := createTestTrial(t, s, testTrialStart(sess, 3))

	if err := s.FunctionReturn(ctx, row, 13*time.Second, 15, nil); err != nil {
		t.Fatalf("FunctionReturn() failed: %v", err)
	}
	if err := s.FunctionReturn(ctx, row, 14*time.Second, 0, nil); err != nil {
		t.Fatalf("FunctionReturn() failed: %v", err)
	}

	tr, err := s.GetTrial(ctx, row)
	if err != nil {
		t.Fatalf("GetTrial() failed: %v", err)
	}
	if tr.ReturnTime != 14*time.Second || tr.ReturnLine != 15 {
		t.Errorf("return = %v line %d, want 14s line 15", tr.ReturnTime, tr.ReturnLine)
	}
}

func TestFunctionReturn_WithValue(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)
	sess := createTestSession(t, s, "tok")
	row := createTestTrial(t, s, testTrialStart(sess, 3))

	value := "7"
	ret := &LineInspect{File: "drivers/foo.c", Line: 15, Key: "return", VarValue: &value}
	if err := s.FunctionReturn(ctx, row, 13*time.Second, 0, ret); err != nil {
		t.Fatalf("FunctionReturn() failed: %v", err)
	}

	tr, err := s.GetTrial(ctx, row)
	if err != nil {
		t.Fatalf("GetTrial() failed: %v", err)
	}
	if tr.ReturnTime != 13*time.Second || tr.ReturnLine != 0 {
		t.Errorf("return = %v line %d, want 13s line 0", tr.ReturnTime, tr.ReturnLine)
	}

	var inspects []Inspect
	if err := s.GetInspects(ctx, funcID(t, s, "bar"), row, Collect(&inspects)); err != nil {
		t.Fatalf("GetInspects() failed: %v", err)
	}
	if len(inspects) != 1 {
		t.Fatalf("inspects = %+v, want 1", inspects)
	}
	if inspects[0].VarName != "return" || inspects[0].VarValue == nil || *inspects[0].VarValue != "7" || inspects[0].Line != 15 {
		t.Errorf("inspect = %+v, want return = 7 at line 15", inspects[0])
	}
}

func TestFunctionReturn_ValueOutsideFunction(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)
	sess := createTestSession(t, s, "tok")
	row := createTestTrial(t, s, testTrialStart(sess, 3))

	value := "7"
	ret := &LineInspect{File: "drivers/foo.c", Line: 99, Key: "return", VarValue: &value}
	err := s.FunctionReturn(ctx, row, 13*time.Second, 0, ret)
	if !errors.Is(err, ErrNoFunction) {
		t.Errorf("FunctionReturn() error = %v, want ErrNoFunction", err)
	}
}

func TestSetTrialProcess(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)
	sess := createTestSession(t, s, "tok")
	row := createTestTrial(t, s, testTrialStart(sess, 3))

	if err := s.SetTrialProcess(ctx, row, 1234, "cat"); err != nil {
		t.Fatalf("SetTrialProcess() failed: %v", err)
	}
	tr, err := s.GetTrial(ctx, row)
	if err != nil {
		t.Fatalf("GetTrial() failed: %v", err)
	}
	if tr.PID != 1234 || tr.ProcName != "cat" {
		t.Errorf("process = %d %q, want 1234 cat", tr.PID, tr.ProcName)
	}

	if err := s.SetTrialProcess(ctx, 999, 1, "x"); !errors.Is(err, ErrUnknownTrial) {
		t.Errorf("SetTrialProcess() on missing trial error = %v, want ErrUnknownTrial", err)
	}
}

func TestBatch_CommitsAndSurvivesStatementErrors(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)
	sess := createTestSession(t, s, "tok")

	err := s.Batch(ctx, func(tx *Tx) error {
		tr, _, err := tx.StartTrial(ctx, testTrialStart(sess, 1))
		if err != nil {
			return err
		}
		// A failing statement must not poison the batch.
		if _, err := tx.AddLineInspect(ctx, LineInspect{TrialRow: tr.ID, File: "nope.c", Line: 1, Key: "x"}); err == nil {
			t.Error("expected ErrNoFunction inside batch")
		}
		if _, err := tx.AddLineInspect(ctx, LineInspect{TrialRow: 999, File: "drivers/foo.c", Line: 12, Key: "x"}); err == nil {
			t.Error("expected foreign key violation inside batch")
		}
		_, err = tx.AddLineInspect(ctx, LineInspect{TrialRow: tr.ID, File: "drivers/foo.c", Line: 12, Key: "x"})
		return err
	})
	if err != nil {
		t.Fatalf("Batch() failed: %v", err)
	}

	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if counts["trial"] != 1 || counts["inspect"] != 1 {
		t.Errorf("counts = %v, want 1 trial and 1 inspect", counts)
	}
}

func TestBatch_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := testContext(t)
	sess := createTestSession(t, s, "tok")

	sentinel := errors.New("abort")
	err := s.Batch(ctx, func(tx *Tx) error {
		if _, _, err := tx.StartTrial(ctx, testTrialStart(sess, 1)); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Batch() error = %v, want sentinel", err)
	}

	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if counts["trial"] != 0 {
		t.Errorf("trial rows = %d after rollback, want 0", counts["trial"])
	}
}
