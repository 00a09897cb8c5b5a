package bridge

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/roach88/kinspect/internal/ir"
	"github.com/roach88/kinspect/internal/store"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// QueryRequest is the body of POST /api/query. An empty SQL with a Path
// runs the default query for that file.
type QueryRequest struct {
	SQL  string `json:"sql"`
	Path string `json:"path"`
}

func (s *Server) fail(c *gin.Context, status int, code string, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("bridge request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// int64Param parses a path parameter, replying 400 on failure.
func (s *Server) int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "BAD_PARAMETER", errors.New(name+" must be an integer"))
		return 0, false
	}
	return v, true
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleFiles(c *gin.Context) {
	files := []store.File{}
	if err := s.store.GetFiles(c.Request.Context(), store.Collect(&files)); err != nil {
		s.fail(c, http.StatusInternalServerError, "STORE_ERROR", err)
		return
	}
	c.JSON(http.StatusOK, files)
}

// handleFuncs lists the functions of ?path=, or with ?returns=1 only those
// that have recorded a return line.
func (s *Server) handleFuncs(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		s.fail(c, http.StatusBadRequest, "MISSING_PARAMETER", errors.New("path parameter is required"))
		return
	}
	funcs := []store.Function{}
	var err error
	if c.Query("returns") != "" {
		err = s.store.GetFuncsWithReturns(c.Request.Context(), path, store.Collect(&funcs))
	} else {
		err = s.store.GetFuncs(c.Request.Context(), path, store.Collect(&funcs))
	}
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "STORE_ERROR", err)
		return
	}
	c.JSON(http.StatusOK, funcs)
}

func (s *Server) handleFunction(c *gin.Context) {
	id, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	fn, err := s.store.GetFunction(c.Request.Context(), id)
	if err != nil {
		s.fail(c, http.StatusNotFound, "NOT_FOUND", err)
		return
	}
	c.JSON(http.StatusOK, fn)
}

// handleTrials lists a function's trials, narrowed by ?return_line= or
// ?fingerprint= when given.
func (s *Server) handleTrials(c *gin.Context) {
	id, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	trials := []store.Trial{}
	visitor := store.Collect(&trials)

	var err error
	switch {
	case c.Query("return_line") != "":
		line, perr := strconv.Atoi(c.Query("return_line"))
		if perr != nil {
			s.fail(c, http.StatusBadRequest, "BAD_PARAMETER", errors.New("return_line must be an integer"))
			return
		}
		err = s.store.GetTrialsForReturnLine(ctx, id, line, visitor)
	case c.Query("fingerprint") != "":
		fp, perr := strconv.ParseInt(c.Query("fingerprint"), 10, 64)
		if perr != nil {
			s.fail(c, http.StatusBadRequest, "BAD_PARAMETER", errors.New("fingerprint must be an integer"))
			return
		}
		err = s.store.GetTrialsWithStacktrace(ctx, id, fp, visitor)
	default:
		err = s.store.GetTrials(ctx, id, visitor)
	}
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "STORE_ERROR", err)
		return
	}

	views := make([]TrialView, len(trials))
	for i, t := range trials {
		views[i] = trialView(t)
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) handleReturns(c *gin.Context) {
	id, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	returns := []store.ReturnLine{}
	if err := s.store.GetReturnsForFun(c.Request.Context(), id, store.Collect(&returns)); err != nil {
		s.fail(c, http.StatusInternalServerError, "STORE_ERROR", err)
		return
	}
	c.JSON(http.StatusOK, returns)
}

func (s *Server) handleStacktraces(c *gin.Context) {
	id, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	views := []StacktraceView{}
	err := s.store.GetStacktracesForFun(c.Request.Context(), id, store.Visitor[store.Stacktrace]{
		Row: func(st store.Stacktrace) {
			views = append(views, stacktraceView(len(views)+1, st))
		},
	})
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "STORE_ERROR", err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) handleInspects(c *gin.Context) {
	id, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	trial, ok := s.int64Param(c, "trial")
	if !ok {
		return
	}
	inspects := []store.Inspect{}
	if err := s.store.GetInspects(c.Request.Context(), id, trial, store.Collect(&inspects)); err != nil {
		s.fail(c, http.StatusInternalServerError, "STORE_ERROR", err)
		return
	}
	c.JSON(http.StatusOK, inspects)
}

func (s *Server) handleTrial(c *gin.Context) {
	row, ok := s.int64Param(c, "trial")
	if !ok {
		return
	}
	t, err := s.store.GetTrial(c.Request.Context(), row)
	if err != nil {
		s.fail(c, http.StatusNotFound, "NOT_FOUND", err)
		return
	}
	c.JSON(http.StatusOK, trialView(t))
}

func (s *Server) handleSessions(c *gin.Context) {
	states, err := s.store.ListSessionStates(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "STORE_ERROR", err)
		return
	}
	if states == nil {
		states = []store.SessionState{}
	}
	c.JSON(http.StatusOK, states)
}

// handleResolve finds a trial of a session by ?trial=, ?file=&func=,
// ?file=&line=, or the latest trial when no reference is given.
func (s *Server) handleResolve(c *gin.Context) {
	session, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	ref, err := refFromQuery(c)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "BAD_PARAMETER", err)
		return
	}
	t, err := s.store.ResolveTrial(c.Request.Context(), session, ref)
	if errors.Is(err, store.ErrUnknownTrial) {
		s.fail(c, http.StatusNotFound, "UNKNOWN_TRIAL", err)
		return
	}
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "STORE_ERROR", err)
		return
	}
	c.JSON(http.StatusOK, trialView(t))
}

func refFromQuery(c *gin.Context) (ir.TrialRef, error) {
	if v := c.Query("trial"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return ir.TrialRef{}, errors.New("trial must be an integer")
		}
		return ir.ByID(id), nil
	}
	file := c.Query("file")
	if fn := c.Query("func"); file != "" && fn != "" {
		return ir.ByFunction(file, fn), nil
	}
	if v := c.Query("line"); file != "" && v != "" {
		line, err := strconv.Atoi(v)
		if err != nil {
			return ir.TrialRef{}, errors.New("line must be an integer")
		}
		return ir.ByLine(file, line), nil
	}
	if file != "" {
		return ir.TrialRef{}, errors.New("file needs func or line")
	}
	return ir.Latest(), nil
}

func (s *Server) handleDefaultQuery(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sql": store.DefaultQuery(c.Query("path"))})
}

// handleQuery runs an ad-hoc read statement. Statement errors are part of
// the result, not an HTTP failure. ?format=table renders text.
func (s *Server) handleQuery(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	query := req.SQL
	if query == "" && req.Path != "" {
		query = store.DefaultQuery(req.Path)
	}
	res := RunQuery(c.Request.Context(), s.store, query)

	if c.Query("format") == "table" {
		if res.Error != "" {
			c.String(http.StatusOK, "error: %s\n", res.Error)
			return
		}
		c.String(http.StatusOK, "%s\n", RenderTable(res.Columns, res.Rows))
		return
	}
	c.JSON(http.StatusOK, res)
}
