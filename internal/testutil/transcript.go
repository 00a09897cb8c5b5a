package testutil

import (
	"fmt"
	"strings"

	"github.com/roach88/kinspect/internal/ir"
)

const marker = "DEKU Inspect: "

// Transcript builds device lines in the two-identifier [time][trial] layout.
// Every line takes the next time from the clock and the current trial id.
type Transcript struct {
	clock *DeviceClock
	trial int64
	lines []string
}

// NewTranscript returns an empty transcript drawing times from clock.
func NewTranscript(clock *DeviceClock) *Transcript {
	return &Transcript{clock: clock}
}

// Trial sets the trial id of the following lines.
func (t *Transcript) Trial(id int64) *Transcript {
	t.trial = id
	return t
}

func (t *Transcript) add(format string, args ...any) *Transcript {
	prefix := fmt.Sprintf("[%s][%d] ", ir.FormatTimestamp(t.clock.Next()), t.trial)
	t.lines = append(t.lines, prefix+marker+fmt.Sprintf(format, args...))
	return t
}

// Start opens trial id in function fn spanning lines start..end.
func (t *Transcript) Start(id int64, file, fn string, start, end int) *Transcript {
	t.trial = id
	return t.add("Function: %s:%s:%d:%d:caller+0x10/0x40", file, fn, start, end)
}

// Inspect records name = value at file:line.
func (t *Transcript) Inspect(file string, line int, name, value string) *Transcript {
	return t.add("%s:%d: %s = %s", file, line, name, value)
}

// Message records an unlocated free-form message.
func (t *Transcript) Message(msg string) *Transcript {
	return t.add("%s", msg)
}

// Pointer records a pointer inspect.
func (t *Transcript) Pointer(file string, line int, name, value string) *Transcript {
	return t.add("Pointer: %s:%d:%s:%s", file, line, name, value)
}

// ReturnValue records the value fn returned at line.
func (t *Transcript) ReturnValue(file string, line int, fn, typ, value string) *Transcript {
	return t.add("Function return value: %s:%d:%s:%s:%s", file, line, fn, typ, value)
}

// Return closes the current trial at a return line.
func (t *Transcript) Return(file string, line int, fn string) *Transcript {
	return t.add("Function return: %s:%d:%s", file, line, fn)
}

// End closes the current trial without a return line.
func (t *Transcript) End(file, fn string) *Transcript {
	return t.add("Function end: %s:%s", file, fn)
}

// Stacktrace records the call stack, with the injection frame first as
// the device emits it.
func (t *Transcript) Stacktrace(file, fn string, frames ...string) *Transcript {
	all := append([]string{"deku_stack+0x8/0x10"}, frames...)
	return t.add("Stacktrace: %s:%s:%s", file, fn, strings.Join(all, ","))
}

// PID records the process the current trial ran in.
func (t *Transcript) PID(file, fn string, pid int, proc string) *Transcript {
	return t.add("PID: %s:%s:%d:%s", file, fn, pid, proc)
}

// Raw appends a line verbatim, without consuming a timestamp.
func (t *Transcript) Raw(line string) *Transcript {
	t.lines = append(t.lines, line)
	return t
}

// Lines returns a copy of the lines built so far.
func (t *Transcript) Lines() []string {
	return append([]string(nil), t.lines...)
}

// String joins the lines as a device stream would carry them.
func (t *Transcript) String() string {
	if len(t.lines) == 0 {
		return ""
	}
	return strings.Join(t.lines, "\n") + "\n"
}
