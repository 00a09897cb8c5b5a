package decoder

import (
	"fmt"
	"strings"

	"github.com/roach88/kinspect/internal/ir"
)

// Format renders a result as one stable line of text. It is the format of
// `kinspect decode` and of the golden decode traces.
func Format(r Result) string {
	switch {
	case r.Foreign:
		return "foreign"
	case r.Unparsed:
		return fmt.Sprintf("unparsed shape=%q reason=%q", r.Shape, r.Reason)
	}
	ev := r.Event
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s t=%s", ev.Kind, ev.Ref, ir.FormatTimestamp(ev.Time))
	if ev.Iteration != 0 {
		fmt.Fprintf(&b, " iter=%d", ev.Iteration)
	}
	switch ev.Kind {
	case ir.KindFunctionStart:
		fmt.Fprintf(&b, " %s:%s lines=%d-%d from=%q", ev.File, ev.Func, ev.LineStart, ev.LineEnd, ev.CalledFrom)
	case ir.KindVariableInspect, ir.KindPointerInspect:
		if ev.File != "" {
			fmt.Fprintf(&b, " %s:%d", ev.File, ev.Line)
		}
		key, val := ev.InspectKey()
		if val != nil {
			fmt.Fprintf(&b, " %s=%q", key, *val)
		} else {
			fmt.Fprintf(&b, " msg=%q", key)
		}
	case ir.KindFunctionReturnValue:
		key, val := ev.InspectKey()
		fmt.Fprintf(&b, " %s:%s:%d type=%s", ev.File, ev.Func, ev.Line, ev.TypeTag)
		if val != nil {
			fmt.Fprintf(&b, " %s=%q", key, *val)
		} else {
			fmt.Fprintf(&b, " msg=%q", key)
		}
	case ir.KindFunctionEnd:
		fmt.Fprintf(&b, " %s:%s %s", ev.File, ev.Func, ev.End)
		if ev.Line != 0 {
			fmt.Fprintf(&b, " line=%d", ev.Line)
		}
	case ir.KindFunctionStacktrace:
		fmt.Fprintf(&b, " %s:%s stack=%q", ev.File, ev.Func, ev.Stack)
	case ir.KindPidAnnouncement:
		fmt.Fprintf(&b, " %s:%s pid=%d proc=%q", ev.File, ev.Func, ev.PID, ev.ProcName)
	}
	return b.String()
}
