package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/kinspect/internal/ir"
)

// writes implements the write operations over either a *sql.DB or a *sql.Tx.
// Store and Tx embed it so both expose the same methods.
type writes struct {
	q querier
}

// UpsertFile returns the id of the file row for path, creating it with an
// empty source and commit hash if absent.
func (w writes) UpsertFile(ctx context.Context, path string) (int64, error) {
	_, err := w.q.ExecContext(ctx, `
		INSERT INTO file (path, source, commit_hash)
		VALUES (?, '', '')
		ON CONFLICT DO NOTHING
	`, path)
	if err != nil {
		return 0, fmt.Errorf("upsert file: %w", err)
	}

	var id int64
	err = w.q.QueryRowContext(ctx, `
		SELECT id FROM file WHERE path = ? AND source = '' AND commit_hash = ''
	`, path).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert file: %w", err)
	}
	return id, nil
}

// UpsertFunction returns the function row for (path, name), creating it
// with the given range if absent. An existing row keeps its first-seen range.
func (w writes) UpsertFunction(ctx context.Context, path, name string, lineStart, lineEnd int) (Function, error) {
	fileID, err := w.UpsertFile(ctx, path)
	if err != nil {
		return Function{}, err
	}

	_, err = w.q.ExecContext(ctx, `
		INSERT INTO function (file_id, name, line_start, line_end)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(file_id, name) DO NOTHING
	`, fileID, name, lineStart, lineEnd)
	if err != nil {
		return Function{}, fmt.Errorf("upsert function: %w", err)
	}

	fn := Function{FileID: fileID, Path: path, Name: name}
	err = w.q.QueryRowContext(ctx, `
		SELECT id, line_start, line_end FROM function WHERE file_id = ? AND name = ?
	`, fileID, name).Scan(&fn.ID, &fn.LineStart, &fn.LineEnd)
	if err != nil {
		return Function{}, fmt.Errorf("upsert function: %w", err)
	}
	return fn, nil
}

// BeginSession records a new transport connection and returns its row id.
func (w writes) BeginSession(ctx context.Context, token, source string, startedAt time.Time) (int64, error) {
	res, err := w.q.ExecContext(ctx, `
		INSERT INTO session (token, source, started_at)
		VALUES (?, ?, ?)
	`, token, source, startedAt.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("begin session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("begin session: %w", err)
	}
	return id, nil
}

// StartTrial inserts a trial and returns it with its resolved function.
// The function is created with the start's exact range if it does not exist.
func (w writes) StartTrial(ctx context.Context, st TrialStart) (Trial, Function, error) {
	fn, err := w.UpsertFunction(ctx, st.File, st.Func, st.LineStart, st.LineEnd)
	if err != nil {
		return Trial{}, Function{}, fmt.Errorf("start trial: %w", err)
	}

	res, err := w.q.ExecContext(ctx, `
		INSERT INTO trial (session_id, trial_id, time, function_id, called_from)
		VALUES (?, ?, ?, ?, ?)
	`, st.SessionID, st.TrialID, int64(st.Time), fn.ID, st.CalledFrom)
	if err != nil {
		return Trial{}, Function{}, fmt.Errorf("start trial: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Trial{}, Function{}, fmt.Errorf("start trial: %w", err)
	}

	return Trial{
		ID:         id,
		SessionID:  st.SessionID,
		TrialID:    st.TrialID,
		Time:       st.Time,
		FunctionID: fn.ID,
		CalledFrom: st.CalledFrom,
	}, fn, nil
}

// AddLineInspect appends an observation to a trial. The inspect row is
// attached to the innermost function of the file whose range contains the
// line; ErrNoFunction is returned when there is none.
func (w writes) AddLineInspect(ctx context.Context, in LineInspect) (int64, error) {
	var funcID int64
	err := w.q.QueryRowContext(ctx, `
		SELECT fn.id
		FROM function fn
		INNER JOIN file f ON f.id = fn.file_id
		WHERE f.path = ? AND fn.line_start <= ? AND fn.line_end >= ?
		ORDER BY (fn.line_end - fn.line_start) ASC, fn.id DESC
		LIMIT 1
	`, in.File, in.Line, in.Line).Scan(&funcID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("add inspect %s:%d: %w", in.File, in.Line, ErrNoFunction)
	}
	if err != nil {
		return 0, fmt.Errorf("add inspect: %w", err)
	}

	var varName, varValue, msg sql.NullString
	if in.VarValue != nil {
		varName = sql.NullString{String: in.Key, Valid: true}
		varValue = sql.NullString{String: *in.VarValue, Valid: true}
	} else {
		msg = sql.NullString{String: in.Key, Valid: true}
	}

	res, err := w.q.ExecContext(ctx, `
		INSERT INTO inspect (trial_id, function_id, line, var_name, var_value, msg)
		VALUES (?, ?, ?, ?, ?, ?)
	`, in.TrialRow, funcID, in.Line, varName, varValue, msg)
	if err != nil {
		return 0, fmt.Errorf("add inspect: %w", err)
	}
	return res.LastInsertId()
}

// AddStacktrace stores a stacktrace once per fingerprint and links the trial
// to it. It returns the fingerprint.
func (w writes) AddStacktrace(ctx context.Context, trialRow int64, stack string) (int64, error) {
	text := ir.NormalizeStack(stack)
	fp := ir.Fingerprint(text)

	_, err := w.q.ExecContext(ctx, `
		INSERT INTO stacktrace (fingerprint, stacktrace)
		VALUES (?, ?)
		ON CONFLICT(fingerprint) DO NOTHING
	`, fp, text)
	if err != nil {
		return 0, fmt.Errorf("add stacktrace: %w", err)
	}

	if err := w.updateTrial(ctx, "add stacktrace", `
		UPDATE trial SET fingerprint = ? WHERE id = ?
	`, fp, trialRow); err != nil {
		return 0, err
	}
	return fp, nil
}

// FunctionReturn records when and where a trial returned. Calling it again
// overwrites the previous values. A zero line keeps the stored return line.
// A non-nil inspect is stored with the return, such as a returned value.
func (w writes) FunctionReturn(ctx context.Context, trialRow int64, at time.Duration, line int, inspect *LineInspect) error {
	if err := w.updateTrial(ctx, "function return", `
		UPDATE trial
		SET return_time = ?,
		    return_line = CASE WHEN ? = 0 THEN return_line ELSE ? END
		WHERE id = ?
	`, int64(at), line, line, trialRow); err != nil {
		return err
	}
	if inspect == nil {
		return nil
	}
	in := *inspect
	in.TrialRow = trialRow
	if _, err := w.AddLineInspect(ctx, in); err != nil {
		return fmt.Errorf("function return: %w", err)
	}
	return nil
}

// SetTrialProcess records the process that ran a trial.
func (w writes) SetTrialProcess(ctx context.Context, trialRow int64, pid int, proc string) error {
	return w.updateTrial(ctx, "set trial process", `
		UPDATE trial SET pid = ?, proc_name = ? WHERE id = ?
	`, pid, proc, trialRow)
}

func (w writes) updateTrial(ctx context.Context, op, query string, args ...any) error {
	res, err := w.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrUnknownTrial)
	}
	return nil
}
