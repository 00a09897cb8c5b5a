package decoder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/kinspect/internal/ir"
)

// rule is one entry of the ordered body table. A rule with a keyword owns
// every body starting with it: if the pattern then fails the line is
// unparsed rather than falling through to the free-form message rule.
type rule struct {
	kind    ir.EventKind
	keyword string
	re      *regexp.Regexp
	build   func(ev *ir.Event, m []string) error
}

var (
	// nullPointer matches an all-zero pointer literal.
	nullPointer = regexp.MustCompile(`^(0x)?0{8,16}$`)
	// assignment splits "<name> = <value>" inside a located inspect.
	assignment = regexp.MustCompile(`^([A-Za-z_][\w.\[\]>-]*) = (.*)$`)
)

var bodyRules = []rule{
	{
		kind: ir.KindVariableInspect,
		re:   regexp.MustCompile(`^([^\s:]+):(\d+): (.*)$`),
		build: func(ev *ir.Event, m []string) error {
			line, err := atoi("line", m[2])
			if err != nil {
				return err
			}
			ev.File, ev.Line = m[1], line
			if a := assignment.FindStringSubmatch(m[3]); a != nil {
				ev.VarName, ev.Value = a[1], pointerValue(a[2])
			} else {
				ev.Value = m[3]
			}
			return nil
		},
	},
	{
		kind:    ir.KindFunctionStart,
		keyword: "Function: ",
		re:      regexp.MustCompile(`^Function: ([^:]+):([^:]+):(\d+):(\d+):(.*)$`),
		build: func(ev *ir.Event, m []string) error {
			start, err := atoi("line start", m[3])
			if err != nil {
				return err
			}
			end, err := atoi("line end", m[4])
			if err != nil {
				return err
			}
			if end < start {
				return fmt.Errorf("line end %d before line start %d", end, start)
			}
			ev.File, ev.Func = m[1], m[2]
			ev.LineStart, ev.LineEnd = start, end
			ev.CalledFrom = m[5]
			return nil
		},
	},
	{
		kind:    ir.KindPointerInspect,
		keyword: "Pointer: ",
		re:      regexp.MustCompile(`^Pointer: ([^:]+):(\d+):([^:]+):(.*)$`),
		build: func(ev *ir.Event, m []string) error {
			line, err := atoi("line", m[2])
			if err != nil {
				return err
			}
			ev.File, ev.Line, ev.VarName = m[1], line, m[3]
			ev.Value = pointerValue(m[4])
			return nil
		},
	},
	{
		kind:    ir.KindFunctionReturnValue,
		keyword: "Function return value: ",
		re:      regexp.MustCompile(`^Function return value: ([^:]+):(\d+):([^:]+):([^:]+):(.*)$`),
		build: func(ev *ir.Event, m []string) error {
			line, err := atoi("line", m[2])
			if err != nil {
				return err
			}
			ev.File, ev.Line, ev.Func = m[1], line, m[3]
			ev.TypeTag = m[4]
			ev.Value = m[5]
			if ev.TypeTag == "pointer" || ev.TypeTag == "ptr" {
				ev.Value = pointerValue(ev.Value)
			}
			return nil
		},
	},
	{
		kind:    ir.KindFunctionEnd,
		keyword: "Function return: ",
		re:      regexp.MustCompile(`^Function return: ([^:]+):(\d+):([^:]+)$`),
		build: func(ev *ir.Event, m []string) error {
			line, err := atoi("line", m[2])
			if err != nil {
				return err
			}
			ev.File, ev.Line, ev.Func = m[1], line, m[3]
			ev.End = ir.EndReturn
			return nil
		},
	},
	{
		kind:    ir.KindFunctionEnd,
		keyword: "Function end: ",
		re:      regexp.MustCompile(`^Function end: ([^:]+):(?:(\d+):)?([^:]+)$`),
		build: func(ev *ir.Event, m []string) error {
			if m[2] != "" {
				line, err := atoi("line", m[2])
				if err != nil {
					return err
				}
				ev.Line = line
			}
			ev.File, ev.Func = m[1], m[3]
			ev.End = ir.EndEnd
			return nil
		},
	},
	{
		kind:    ir.KindFunctionStacktrace,
		keyword: "Stacktrace: ",
		re:      regexp.MustCompile(`^Stacktrace: ([^:]+):([^:]+):(.*)$`),
		build: func(ev *ir.Event, m []string) error {
			ev.File, ev.Func = m[1], m[2]
			frames := ir.StackFrames(m[3])
			if len(frames) > 0 && ir.FrameSymbol(frames[0]) != ev.Func {
				frames = frames[1:]
			}
			if len(frames) == 0 {
				return fmt.Errorf("stacktrace has no frames")
			}
			ev.Stack = strings.Join(frames, ",")
			return nil
		},
	},
	{
		kind:    ir.KindPidAnnouncement,
		keyword: "PID: ",
		re:      regexp.MustCompile(`^PID: ([^:]+):([^:]+):(\d+):(.*)$`),
		build: func(ev *ir.Event, m []string) error {
			pid, err := atoi("pid", m[3])
			if err != nil {
				return err
			}
			ev.File, ev.Func, ev.PID = m[1], m[2], pid
			ev.ProcName = m[4]
			return nil
		},
	},
}

func atoi(field, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q", field, s)
	}
	return n, nil
}

func pointerValue(v string) string {
	if nullPointer.MatchString(v) {
		return ir.NullPointer
	}
	return v
}
