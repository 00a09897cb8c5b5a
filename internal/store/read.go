package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/kinspect/internal/ir"
)

const trialColumns = `
	trial.id, trial.session_id, trial.trial_id, trial.time, trial.return_time,
	trial.return_line, trial.function_id, trial.called_from, trial.fingerprint,
	trial.pid, trial.proc_name`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTrial(sc scanner) (Trial, error) {
	var (
		t          Trial
		start, ret int64
		fp         sql.NullInt64
	)
	err := sc.Scan(&t.ID, &t.SessionID, &t.TrialID, &start, &ret,
		&t.ReturnLine, &t.FunctionID, &t.CalledFrom, &fp, &t.PID, &t.ProcName)
	if err != nil {
		return Trial{}, err
	}
	t.Time = time.Duration(start)
	t.ReturnTime = time.Duration(ret)
	t.Fingerprint, t.HasStack = fp.Int64, fp.Valid
	return t, nil
}

func scanFunction(sc scanner) (Function, error) {
	var fn Function
	err := sc.Scan(&fn.ID, &fn.FileID, &fn.Path, &fn.Name, &fn.LineStart, &fn.LineEnd)
	return fn, err
}

func scanInspect(sc scanner) (Inspect, error) {
	var (
		in               Inspect
		name, value, msg sql.NullString
	)
	if err := sc.Scan(&in.ID, &in.TrialRow, &in.FunctionID, &in.Line, &name, &value, &msg); err != nil {
		return Inspect{}, err
	}
	in.VarName, in.Msg = name.String, msg.String
	if value.Valid {
		v := value.String
		in.VarValue = &v
	}
	return in, nil
}

// collect runs query, scans every row with scan, and returns the rows
// before any visitor runs so the single connection is free again.
func collect[T any](ctx context.Context, q querier, what string, scan func(scanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", what, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return out, nil
}

// visit collects rows and feeds them to v. Done fires exactly once.
func visit[T any](ctx context.Context, q querier, v Visitor[T], what string, scan func(scanner) (T, error), query string, args ...any) error {
	defer v.done()
	rows, err := collect(ctx, q, what, scan, query, args...)
	if err != nil {
		return err
	}
	for _, r := range rows {
		v.row(r)
	}
	return nil
}

// GetFiles visits every source file ordered by path.
func (s *Store) GetFiles(ctx context.Context, v Visitor[File]) error {
	return visit(ctx, s.db, v, "files", func(sc scanner) (File, error) {
		var f File
		err := sc.Scan(&f.ID, &f.Path, &f.Source, &f.CommitHash)
		return f, err
	}, `
		SELECT id, path, source, commit_hash FROM file ORDER BY path ASC, id ASC
	`)
}

// GetFuncs visits the functions of a file ordered by line.
func (s *Store) GetFuncs(ctx context.Context, path string, v Visitor[Function]) error {
	return visit(ctx, s.db, v, "functions", scanFunction, `
		SELECT fn.id, fn.file_id, f.path, fn.name, fn.line_start, fn.line_end
		FROM function fn
		INNER JOIN file f ON f.id = fn.file_id
		WHERE f.path = ?
		ORDER BY fn.line_start ASC, fn.id ASC
	`, path)
}

// GetFunction returns one function by id.
func (s *Store) GetFunction(ctx context.Context, funcID int64) (Function, error) {
	fn, err := scanFunction(s.db.QueryRowContext(ctx, `
		SELECT fn.id, fn.file_id, f.path, fn.name, fn.line_start, fn.line_end
		FROM function fn
		INNER JOIN file f ON f.id = fn.file_id
		WHERE fn.id = ?
	`, funcID))
	if errors.Is(err, sql.ErrNoRows) {
		return Function{}, fmt.Errorf("get function %d: %w", funcID, sql.ErrNoRows)
	}
	if err != nil {
		return Function{}, fmt.Errorf("get function: %w", err)
	}
	return fn, nil
}

// GetTrials visits the trials of a function in start order.
func (s *Store) GetTrials(ctx context.Context, funcID int64, v Visitor[Trial]) error {
	return visit(ctx, s.db, v, "trials", scanTrial, `
		SELECT `+trialColumns+`
		FROM trial
		WHERE trial.function_id = ?
		ORDER BY trial.time ASC, trial.id ASC
	`, funcID)
}

// GetTrialsForReturnLine visits the trials of a function that returned at line.
func (s *Store) GetTrialsForReturnLine(ctx context.Context, funcID int64, line int, v Visitor[Trial]) error {
	return visit(ctx, s.db, v, "trials", scanTrial, `
		SELECT `+trialColumns+`
		FROM trial
		WHERE trial.function_id = ? AND trial.return_line = ?
		ORDER BY trial.time ASC, trial.id ASC
	`, funcID, line)
}

// GetStacktracesForFun visits the distinct stacktraces recorded for a function.
func (s *Store) GetStacktracesForFun(ctx context.Context, funcID int64, v Visitor[Stacktrace]) error {
	return visit(ctx, s.db, v, "stacktraces", func(sc scanner) (Stacktrace, error) {
		var st Stacktrace
		err := sc.Scan(&st.Fingerprint, &st.Text, &st.Trials)
		return st, err
	}, `
		SELECT st.fingerprint, st.stacktrace, COUNT(trial.id)
		FROM trial
		INNER JOIN stacktrace st ON st.fingerprint = trial.fingerprint
		WHERE trial.function_id = ?
		GROUP BY st.fingerprint
		ORDER BY MIN(trial.time) ASC, st.fingerprint ASC
	`, funcID)
}

// GetTrialsWithStacktrace visits the trials of a function that recorded fp.
func (s *Store) GetTrialsWithStacktrace(ctx context.Context, funcID, fp int64, v Visitor[Trial]) error {
	return visit(ctx, s.db, v, "trials", scanTrial, `
		SELECT `+trialColumns+`
		FROM trial
		WHERE trial.function_id = ? AND trial.fingerprint = ?
		ORDER BY trial.time ASC, trial.id ASC
	`, funcID, fp)
}

// GetInspects visits the observations a trial recorded inside a function,
// in arrival order.
func (s *Store) GetInspects(ctx context.Context, funcID, trialRow int64, v Visitor[Inspect]) error {
	return visit(ctx, s.db, v, "inspects", scanInspect, `
		SELECT id, trial_id, function_id, line, var_name, var_value, msg
		FROM inspect
		WHERE function_id = ? AND trial_id = ?
		ORDER BY id ASC
	`, funcID, trialRow)
}

// GetReturnsForFun visits the distinct return lines of a function.
func (s *Store) GetReturnsForFun(ctx context.Context, funcID int64, v Visitor[ReturnLine]) error {
	return visit(ctx, s.db, v, "returns", func(sc scanner) (ReturnLine, error) {
		var r ReturnLine
		err := sc.Scan(&r.FunctionID, &r.Line, &r.Trials)
		return r, err
	}, `
		SELECT function_id, return_line, COUNT(id)
		FROM trial
		WHERE function_id = ? AND return_line != 0
		GROUP BY return_line
		ORDER BY return_line ASC
	`, funcID)
}

// GetFuncsWithReturns visits the functions of a file that have at least one
// trial with a recorded return line.
func (s *Store) GetFuncsWithReturns(ctx context.Context, path string, v Visitor[Function]) error {
	return visit(ctx, s.db, v, "functions", scanFunction, `
		SELECT fn.id, fn.file_id, f.path, fn.name, fn.line_start, fn.line_end
		FROM function fn
		INNER JOIN file f ON f.id = fn.file_id
		WHERE f.path = ?
		  AND EXISTS (SELECT 1 FROM trial WHERE trial.function_id = fn.id AND trial.return_line != 0)
		ORDER BY fn.line_start ASC, fn.id ASC
	`, path)
}

// GetTrial returns one trial by row id.
func (s *Store) GetTrial(ctx context.Context, trialRow int64) (Trial, error) {
	t, err := scanTrial(s.db.QueryRowContext(ctx, `
		SELECT `+trialColumns+` FROM trial WHERE trial.id = ?
	`, trialRow))
	if errors.Is(err, sql.ErrNoRows) {
		return Trial{}, fmt.Errorf("get trial %d: %w", trialRow, ErrUnknownTrial)
	}
	if err != nil {
		return Trial{}, fmt.Errorf("get trial: %w", err)
	}
	return t, nil
}

// ResolveTrial returns the trial a reference names within a session.
// Structural references pick the most recently started matching trial.
func (s *Store) ResolveTrial(ctx context.Context, sessionID int64, ref ir.TrialRef) (Trial, error) {
	var row *sql.Row
	switch ref.Kind {
	case ir.RefByID:
		row = s.db.QueryRowContext(ctx, `
			SELECT `+trialColumns+` FROM trial
			WHERE trial.session_id = ? AND trial.trial_id = ?
		`, sessionID, ref.ID)
	case ir.RefByFunction:
		row = s.db.QueryRowContext(ctx, `
			SELECT `+trialColumns+` FROM trial
			INNER JOIN function fn ON fn.id = trial.function_id
			INNER JOIN file f ON f.id = fn.file_id
			WHERE trial.session_id = ? AND f.path = ? AND fn.name = ?
			ORDER BY trial.time DESC, trial.id DESC
			LIMIT 1
		`, sessionID, ref.File, ref.Func)
	case ir.RefByLine:
		row = s.db.QueryRowContext(ctx, `
			SELECT `+trialColumns+` FROM trial
			INNER JOIN function fn ON fn.id = trial.function_id
			INNER JOIN file f ON f.id = fn.file_id
			WHERE trial.session_id = ? AND f.path = ?
			  AND fn.line_start <= ? AND fn.line_end >= ?
			ORDER BY (fn.line_end - fn.line_start) ASC, trial.time DESC, trial.id DESC
			LIMIT 1
		`, sessionID, ref.File, ref.Line, ref.Line)
	case ir.RefLatest:
		row = s.db.QueryRowContext(ctx, `
			SELECT `+trialColumns+` FROM trial
			WHERE trial.session_id = ?
			ORDER BY trial.time DESC, trial.id DESC
			LIMIT 1
		`, sessionID)
	default:
		return Trial{}, fmt.Errorf("resolve %s: %w", ref, ErrUnknownTrial)
	}

	t, err := scanTrial(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Trial{}, fmt.Errorf("resolve %s: %w", ref, ErrUnknownTrial)
	}
	if err != nil {
		return Trial{}, fmt.Errorf("resolve %s: %w", ref, err)
	}
	return t, nil
}

// Counts returns the number of rows in each telemetry table.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, 6)
	for _, table := range []string{"session", "file", "function", "trial", "stacktrace", "inspect"} {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
