package ir

import (
	"fmt"
	"time"
)

// EventKind identifies the protocol line family an Event was decoded from.
type EventKind int

const (
	// KindVariableInspect is a value (or free-form message) observed at a line.
	KindVariableInspect EventKind = iota + 1
	// KindFunctionStart opens a trial.
	KindFunctionStart
	// KindPointerInspect is a pointer observed at a line.
	KindPointerInspect
	// KindFunctionReturnValue closes a trial and carries the returned value.
	KindFunctionReturnValue
	// KindFunctionEnd closes a trial, optionally at a return line.
	KindFunctionEnd
	// KindFunctionStacktrace attaches the call stack to a trial.
	KindFunctionStacktrace
	// KindPidAnnouncement attaches the owning process to a trial.
	KindPidAnnouncement
)

// String returns the stable name used in logs, metrics and golden traces.
func (k EventKind) String() string {
	switch k {
	case KindVariableInspect:
		return "variable"
	case KindFunctionStart:
		return "start"
	case KindPointerInspect:
		return "pointer"
	case KindFunctionReturnValue:
		return "return_value"
	case KindFunctionEnd:
		return "end"
	case KindFunctionStacktrace:
		return "stacktrace"
	case KindPidAnnouncement:
		return "pid"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// EndKind distinguishes "Function return" from "Function end" lines.
type EndKind string

const (
	// EndReturn records the line the function returned from.
	EndReturn EndKind = "return"
	// EndEnd marks the end of the function body without a return line.
	EndEnd EndKind = "end"
)

// NullPointer is the literal stored in place of an all-zero pointer value.
const NullPointer = "NULL"

// Event is one decoded protocol line.
//
// Only the fields relevant to Kind are populated. For KindVariableInspect an
// empty VarName means Value holds a free-form message instead of a value.
// Line is zero when the line carried no location.
type Event struct {
	Kind EventKind
	Ref  TrialRef

	// Time is the normalized timestamp from the line prefix.
	Time time.Duration
	// Iteration is the outer iteration identifier, when the layout has one.
	Iteration int64

	File string
	Func string
	Line int

	// FunctionStart
	LineStart  int
	LineEnd    int
	CalledFrom string

	// VariableInspect / PointerInspect / FunctionReturnValue
	VarName string
	Value   string
	TypeTag string

	// FunctionEnd
	End EndKind

	// FunctionStacktrace: comma-joined frames with the injection frame removed.
	Stack string

	// PidAnnouncement
	PID      int
	ProcName string
}

// InspectKey returns the (key, value) pair the event contributes to an
// Inspect row. A nil value means key is a free-form message.
//
// Pointer inspects render as "name: value". Boolean return values render as
// the message "return <value>"; other return values as "return" = value.
func (e Event) InspectKey() (string, *string) {
	switch e.Kind {
	case KindVariableInspect:
		if e.VarName == "" {
			return e.Value, nil
		}
		v := e.Value
		return e.VarName, &v
	case KindPointerInspect:
		return e.VarName + ": " + e.Value, nil
	case KindFunctionReturnValue:
		if e.TypeTag == "bool" || e.TypeTag == "_Bool" {
			return "return " + e.Value, nil
		}
		v := e.Value
		return "return", &v
	default:
		return "", nil
	}
}
