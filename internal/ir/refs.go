package ir

import "fmt"

// RefKind selects how a TrialRef identifies its trial.
type RefKind int

const (
	// RefNone is the zero TrialRef; it resolves to nothing.
	RefNone RefKind = iota
	// RefByID names the trial by its emitted identifier.
	RefByID
	// RefByFunction names the latest trial of (File, Func).
	RefByFunction
	// RefByLine names the latest trial of the innermost function in File
	// whose range contains Line.
	RefByLine
	// RefLatest names the most recently started trial of the session.
	RefLatest
)

// TrialRef identifies the trial an event belongs to.
//
// Protocol revisions that emit a trial id produce RefByID. The legacy
// single-identifier revision can only refer to trials structurally.
type TrialRef struct {
	Kind RefKind
	ID   int64
	File string
	Func string
	Line int
}

// ByID returns a reference to the trial with the emitted id.
func ByID(id int64) TrialRef {
	return TrialRef{Kind: RefByID, ID: id}
}

// ByFunction returns a structural reference to the latest trial of fn.
func ByFunction(file, fn string) TrialRef {
	return TrialRef{Kind: RefByFunction, File: file, Func: fn}
}

// ByLine returns a structural reference to the latest trial containing line.
func ByLine(file string, line int) TrialRef {
	return TrialRef{Kind: RefByLine, File: file, Line: line}
}

// Latest returns a reference to the most recently started trial.
func Latest() TrialRef {
	return TrialRef{Kind: RefLatest}
}

// IsZero reports whether r refers to nothing.
func (r TrialRef) IsZero() bool {
	return r.Kind == RefNone
}

func (r TrialRef) String() string {
	switch r.Kind {
	case RefByID:
		return fmt.Sprintf("trial#%d", r.ID)
	case RefByFunction:
		return fmt.Sprintf("%s:%s", r.File, r.Func)
	case RefByLine:
		return fmt.Sprintf("%s:%d", r.File, r.Line)
	case RefLatest:
		return "trial(latest)"
	default:
		return "trial(none)"
	}
}
