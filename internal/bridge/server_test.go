package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kinspect/internal/correlator"
	"github.com/roach88/kinspect/internal/decoder"
	"github.com/roach88/kinspect/internal/engine"
	"github.com/roach88/kinspect/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var seedLines = []string{
	"[12][3] DEKU Inspect: Function: drivers/foo.c:bar:10:20:caller+0x10/0x40",
	"[12][3] DEKU Inspect: x = 5",
	"[12.5][3] DEKU Inspect: drivers/foo.c:12: ret = -22",
	"[12.6][3] DEKU Inspect: Stacktrace: drivers/foo.c:bar:deku_stack+0x8/0x10,bar+0x1c/0x40,vfs_read+0x90/0x1a0",
	"[12.7][3] DEKU Inspect: PID: drivers/foo.c:bar:1234:cat",
	"[13][3] DEKU Inspect: Function return: drivers/foo.c:15:bar",
	"[14][4] DEKU Inspect: Function: drivers/foo.c:bar:10:20:caller+0x10/0x40",
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seededStore records one closed and one open trial of bar.
func seededStore(t *testing.T) (*store.Store, int64) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	sess, err := s.BeginSession(ctx, "tok", "test", time.Unix(1700000000, 0))
	require.NoError(t, err)
	dec, err := decoder.New(decoder.DefaultLayout())
	require.NoError(t, err)
	eng := engine.New(s, dec, correlator.New(sess, correlator.WithLogger(quietLogger())), engine.WithLogger(quietLogger()))
	eng.Process(ctx, seedLines)
	require.Equal(t, int64(0), eng.Stats().StoreErrors)
	return s, sess
}

func barID(t *testing.T, s *store.Store) int64 {
	t.Helper()
	var funcs []store.Function
	require.NoError(t, s.GetFuncs(context.Background(), "drivers/foo.c", store.Collect(&funcs)))
	require.Len(t, funcs, 1)
	return funcs[0].ID
}

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestServer_FilesAndFuncs(t *testing.T) {
	s, _ := seededStore(t)
	h := NewServer(s, nil, quietLogger()).Handler()

	var files []store.File
	require.Equal(t, http.StatusOK, get(t, h, "/api/files", &files))
	require.Len(t, files, 1)
	assert.Equal(t, "drivers/foo.c", files[0].Path)

	var funcs []store.Function
	require.Equal(t, http.StatusOK, get(t, h, "/api/funcs?path=drivers/foo.c", &funcs))
	require.Len(t, funcs, 1)
	assert.Equal(t, "bar", funcs[0].Name)
	assert.Equal(t, 10, funcs[0].LineStart)
	assert.Equal(t, 20, funcs[0].LineEnd)

	var withReturns []store.Function
	require.Equal(t, http.StatusOK, get(t, h, "/api/funcs?path=drivers/foo.c&returns=1", &withReturns))
	assert.Len(t, withReturns, 1)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/funcs", nil))
}

func TestServer_TrialsWithLabels(t *testing.T) {
	s, _ := seededStore(t)
	h := NewServer(s, nil, quietLogger()).Handler()
	id := barID(t, s)

	var trials []TrialView
	require.Equal(t, http.StatusOK, get(t, h, fmt.Sprintf("/api/funcs/%d/trials", id), &trials))
	require.Len(t, trials, 2)

	byID := map[int64]TrialView{}
	for _, tv := range trials {
		byID[tv.TrialID] = tv
	}
	assert.Equal(t, "[cat] 12.000000", byID[3].Label)
	assert.Equal(t, "1000.000ms", byID[3].Description)
	assert.Equal(t, "[] 14.000000", byID[4].Label)
	assert.Equal(t, "open", byID[4].Description)

	var atLine []TrialView
	require.Equal(t, http.StatusOK, get(t, h, fmt.Sprintf("/api/funcs/%d/trials?return_line=15", id), &atLine))
	require.Len(t, atLine, 1)
	assert.Equal(t, int64(3), atLine[0].TrialID)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/funcs/abc/trials", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, h, fmt.Sprintf("/api/funcs/%d/trials?return_line=x", id), nil))
}

func TestServer_StacktracesAndInspects(t *testing.T) {
	s, _ := seededStore(t)
	h := NewServer(s, nil, quietLogger()).Handler()
	id := barID(t, s)

	var stacks []StacktraceView
	require.Equal(t, http.StatusOK, get(t, h, fmt.Sprintf("/api/funcs/%d/stacktraces", id), &stacks))
	require.Len(t, stacks, 1)
	assert.Equal(t, "#1", stacks[0].Label)
	assert.Equal(t, "bar, vfs_read, ...", stacks[0].Summary)
	assert.Equal(t, []string{"bar+0x1c/0x40", "vfs_read+0x90/0x1a0"}, stacks[0].Frames)
	assert.Equal(t, 1, stacks[0].Trials)

	var withStack []TrialView
	path := fmt.Sprintf("/api/funcs/%d/trials?fingerprint=%s", id, stacks[0].Fingerprint)
	require.Equal(t, http.StatusOK, get(t, h, path, &withStack))
	require.Len(t, withStack, 1)
	assert.Equal(t, int64(3), withStack[0].TrialID)

	var returns []store.ReturnLine
	require.Equal(t, http.StatusOK, get(t, h, fmt.Sprintf("/api/funcs/%d/returns", id), &returns))
	require.Len(t, returns, 1)
	assert.Equal(t, 15, returns[0].Line)

	var inspects []store.Inspect
	path = fmt.Sprintf("/api/funcs/%d/trials/%d/inspects", id, withStack[0].ID)
	require.Equal(t, http.StatusOK, get(t, h, path, &inspects))
	require.Len(t, inspects, 2)
	assert.Equal(t, "x = 5", inspects[0].Msg)
	assert.Equal(t, 10, inspects[0].Line, "unlocated messages sit on the first line")
	assert.Equal(t, "ret", inspects[1].VarName)
	require.NotNil(t, inspects[1].VarValue)
	assert.Equal(t, "-22", *inspects[1].VarValue)
}

func TestServer_SessionsAndResolve(t *testing.T) {
	s, sess := seededStore(t)
	h := NewServer(s, nil, quietLogger()).Handler()

	var states []store.SessionState
	require.Equal(t, http.StatusOK, get(t, h, "/api/sessions", &states))
	require.Len(t, states, 1)
	assert.Equal(t, 2, states[0].Trials)
	assert.Equal(t, 1, states[0].Open)

	var tv TrialView
	require.Equal(t, http.StatusOK, get(t, h, fmt.Sprintf("/api/sessions/%d/resolve?trial=3", sess), &tv))
	assert.Equal(t, int64(3), tv.TrialID)

	require.Equal(t, http.StatusOK, get(t, h, fmt.Sprintf("/api/sessions/%d/resolve", sess), &tv))
	assert.Equal(t, int64(4), tv.TrialID, "no reference resolves the latest trial")

	require.Equal(t, http.StatusOK, get(t, h, fmt.Sprintf("/api/sessions/%d/resolve?file=drivers/foo.c&line=12", sess), &tv))
	assert.Equal(t, int64(4), tv.TrialID)

	assert.Equal(t, http.StatusNotFound, get(t, h, fmt.Sprintf("/api/sessions/%d/resolve?trial=99", sess), nil))
	assert.Equal(t, http.StatusBadRequest, get(t, h, fmt.Sprintf("/api/sessions/%d/resolve?file=drivers/foo.c", sess), nil))
}

func postQuery(t *testing.T, h http.Handler, path string, req QueryRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body)))
	return rec
}

func TestServer_Query(t *testing.T) {
	s, _ := seededStore(t)
	h := NewServer(s, nil, quietLogger()).Handler()

	rec := postQuery(t, h, "/api/query", QueryRequest{Path: "drivers/foo.c"})
	require.Equal(t, http.StatusOK, rec.Code)
	var res QueryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Empty(t, res.Error)
	assert.Equal(t, []string{"time", "var_name", "var_value", "line", "path"}, res.Columns)
	assert.Len(t, res.Rows, 2)

	rec = postQuery(t, h, "/api/query", QueryRequest{SQL: "DELETE FROM trial"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.Error, "write statements are rejected")

	counts, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts["trial"])

	rec = postQuery(t, h, "/api/query?format=table", QueryRequest{SQL: "SELECT var_name, var_value FROM variables ORDER BY line"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "var_name")
	assert.Contains(t, rec.Body.String(), "ret")
	assert.Contains(t, rec.Body.String(), "NULL")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_DefaultQuery(t *testing.T) {
	s, _ := seededStore(t)
	h := NewServer(s, nil, quietLogger()).Handler()

	var body map[string]string
	require.Equal(t, http.StatusOK, get(t, h, "/api/query/default?path=drivers/foo.c", &body))
	assert.Equal(t, "SELECT * FROM variables WHERE path = 'drivers/foo.c'", body["sql"])
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	s, _ := seededStore(t)
	srv := NewServer(s, NewHub(quietLogger()), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, "127.0.0.1:0")
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
