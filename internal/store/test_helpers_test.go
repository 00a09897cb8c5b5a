package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// createTestSession records a session and returns its row id.
func createTestSession(t *testing.T, s *Store, token string) int64 {
	t.Helper()
	id, err := s.BeginSession(context.Background(), token, "test", time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("BeginSession() failed: %v", err)
	}
	return id
}

// testTrialStart describes trial id of bar in drivers/foo.c (lines 10-20)
// starting at 12s.
func testTrialStart(sessionID, trialID int64) TrialStart {
	return TrialStart{
		SessionID:  sessionID,
		TrialID:    trialID,
		Time:       12 * time.Second,
		File:       "drivers/foo.c",
		Func:       "bar",
		LineStart:  10,
		LineEnd:    20,
		CalledFrom: "caller",
	}
}

// createTestTrial starts a trial and returns its row id.
func createTestTrial(t *testing.T, s *Store, st TrialStart) int64 {
	t.Helper()
	tr, _, err := s.StartTrial(context.Background(), st)
	if err != nil {
		t.Fatalf("StartTrial() failed: %v", err)
	}
	return tr.ID
}

func strPtr(s string) *string {
	return &s
}
