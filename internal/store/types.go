package store

import "time"

// Visitor receives the rows of a read call. Row is called once per row in
// order, then Done is called exactly once, also when the read fails.
// Either field may be nil.
type Visitor[T any] struct {
	Row  func(T)
	Done func()
}

func (v Visitor[T]) row(t T) {
	if v.Row != nil {
		v.Row(t)
	}
}

func (v Visitor[T]) done() {
	if v.Done != nil {
		v.Done()
	}
}

// Collect returns a Visitor that appends rows to *out.
func Collect[T any](out *[]T) Visitor[T] {
	return Visitor[T]{Row: func(t T) { *out = append(*out, t) }}
}

// File is a source file row.
type File struct {
	ID         int64  `json:"id"`
	Path       string `json:"path"`
	Source     string `json:"source"`
	CommitHash string `json:"commit_hash"`
}

// Function is a function row with its file path.
type Function struct {
	ID        int64  `json:"id"`
	FileID    int64  `json:"file_id"`
	Path      string `json:"path"`
	Name      string `json:"name"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
}

// Contains reports whether line falls inside the function's range.
func (f Function) Contains(line int) bool {
	return f.LineStart <= line && line <= f.LineEnd
}

// Session is one transport connection.
type Session struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	Source    string    `json:"source"`
	StartedAt time.Time `json:"started_at"`
}

// Trial is one recorded function invocation.
type Trial struct {
	ID          int64         `json:"id"`
	SessionID   int64         `json:"session_id"`
	TrialID     int64         `json:"trial_id"`
	Time        time.Duration `json:"time"`
	ReturnTime  time.Duration `json:"return_time"`
	ReturnLine  int           `json:"return_line"`
	FunctionID  int64         `json:"function_id"`
	CalledFrom  string        `json:"called_from"`
	Fingerprint int64         `json:"fingerprint,omitempty"`
	HasStack    bool          `json:"has_stack"`
	PID         int           `json:"pid"`
	ProcName    string        `json:"proc_name"`
}

// Returned reports whether a return or end event has been recorded.
func (t Trial) Returned() bool {
	return t.ReturnTime != 0
}

// Elapsed is the time between start and return, zero until returned.
func (t Trial) Elapsed() time.Duration {
	if !t.Returned() {
		return 0
	}
	return t.ReturnTime - t.Time
}

// Inspect is one observation attached to a trial. Messages have an empty
// VarName and a nil VarValue.
type Inspect struct {
	ID         int64   `json:"id"`
	TrialRow   int64   `json:"trial_row"`
	FunctionID int64   `json:"function_id"`
	Line       int     `json:"line"`
	VarName    string  `json:"var_name,omitempty"`
	VarValue   *string `json:"var_value,omitempty"`
	Msg        string  `json:"msg,omitempty"`
}

// Stacktrace is a distinct stacktrace observed for a function, with the
// number of trials that recorded it.
type Stacktrace struct {
	Fingerprint int64  `json:"fingerprint"`
	Text        string `json:"stacktrace"`
	Trials      int    `json:"trials"`
}

// ReturnLine is a distinct return line of a function with its trial count.
type ReturnLine struct {
	FunctionID int64 `json:"function_id"`
	Line       int   `json:"line"`
	Trials     int   `json:"trials"`
}

// TrialStart describes a new trial.
type TrialStart struct {
	SessionID  int64
	TrialID    int64
	Time       time.Duration
	File       string
	Func       string
	LineStart  int
	LineEnd    int
	CalledFrom string
}

// LineInspect describes an observation at a source line. A nil VarValue
// stores Key as a free-form message.
type LineInspect struct {
	TrialRow int64
	File     string
	Line     int
	Key      string
	VarValue *string
}
