package store

import (
	"context"
	"fmt"
	"time"
)

// SessionState summarizes one connection for the sessions listing.
type SessionState struct {
	Session
	Trials   int           `json:"trials"`
	Open     int           `json:"open"`
	Inspects int           `json:"inspects"`
	LastTime time.Duration `json:"last_time"`
}

// GetSessions returns every session in connection order.
func (s *Store) GetSessions(ctx context.Context) ([]Session, error) {
	return collect(ctx, s.db, "sessions", scanSession, `
		SELECT id, token, source, started_at FROM session ORDER BY id ASC
	`)
}

// GetSessionState returns a session with its trial counts. A trial is open
// until a return or end event has been recorded for it.
func (s *Store) GetSessionState(ctx context.Context, sessionID int64) (SessionState, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, token, source, started_at FROM session WHERE id = ?
	`, sessionID))
	if err != nil {
		return SessionState{}, fmt.Errorf("get session state: %w", err)
	}

	state := SessionState{Session: sess}
	var last int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN return_time = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(MAX(MAX(time, return_time)), 0)
		FROM trial
		WHERE session_id = ?
	`, sessionID).Scan(&state.Trials, &state.Open, &last)
	if err != nil {
		return SessionState{}, fmt.Errorf("get session state: %w", err)
	}
	state.LastTime = time.Duration(last)

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM inspect
		INNER JOIN trial ON trial.id = inspect.trial_id
		WHERE trial.session_id = ?
	`, sessionID).Scan(&state.Inspects)
	if err != nil {
		return SessionState{}, fmt.Errorf("get session state: %w", err)
	}
	return state, nil
}

// ListSessionStates returns the state of every session in connection order.
func (s *Store) ListSessionStates(ctx context.Context) ([]SessionState, error) {
	sessions, err := s.GetSessions(ctx)
	if err != nil {
		return nil, err
	}
	states := make([]SessionState, 0, len(sessions))
	for _, sess := range sessions {
		st, err := s.GetSessionState(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}

// GetOpenTrials returns the trials of a session that never returned,
// in start order.
func (s *Store) GetOpenTrials(ctx context.Context, sessionID int64) ([]Trial, error) {
	return collect(ctx, s.db, "open trials", scanTrial, `
		SELECT `+trialColumns+`
		FROM trial
		WHERE trial.session_id = ? AND trial.return_time = 0
		ORDER BY trial.time ASC, trial.id ASC
	`, sessionID)
}

func scanSession(sc scanner) (Session, error) {
	var (
		ss      Session
		started int64
	)
	if err := sc.Scan(&ss.ID, &ss.Token, &ss.Source, &started); err != nil {
		return Session{}, err
	}
	ss.StartedAt = time.Unix(0, started).UTC()
	return ss, nil
}
