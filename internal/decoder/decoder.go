package decoder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/kinspect/internal/ir"
)

// Result is the outcome of decoding one line.
//
// Exactly one of the following holds: Event is set, Unparsed is true (the
// marker was present but no rule accepted the line), or Foreign is true (the
// line is not protocol output). Shape is set for unparsed lines.
type Result struct {
	Event    ir.Event
	Unparsed bool
	Foreign  bool
	Shape    string
	// Reason explains why an unparsed line was rejected.
	Reason string
}

// OK reports whether the result carries an event.
func (r Result) OK() bool {
	return !r.Unparsed && !r.Foreign
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithClock sets how the time identifier is scaled.
func WithClock(mode ClockMode) Option {
	return func(d *Decoder) {
		d.clock = mode
	}
}

// Decoder decodes protocol lines for one Layout. It is stateless after
// construction and safe for concurrent use.
type Decoder struct {
	layout Layout
	clock  ClockMode
	line   *regexp.Regexp
	rules  []rule
}

// New returns a Decoder for layout.
func New(layout Layout, opts ...Option) (*Decoder, error) {
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	if layout.Marker == "" {
		layout.Marker = DefaultMarker
	}
	re, err := layout.pattern()
	if err != nil {
		return nil, fmt.Errorf("compile layout %s: %w", layout, err)
	}
	d := &Decoder{
		layout: layout,
		clock:  ClockAuto,
		line:   re,
		rules:  bodyRules,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Layout returns the layout the decoder was built for.
func (d *Decoder) Layout() Layout {
	return d.layout
}

// Decode decodes a single framed line.
func (d *Decoder) Decode(line string) Result {
	if !strings.Contains(line, d.layout.Marker) {
		return Result{Foreign: true}
	}
	m := d.line.FindStringSubmatch(line)
	if m == nil {
		return unparsed(line, "prefix does not match layout "+d.layout.String())
	}

	var ev ir.Event
	hasTrial := false
	for i, role := range d.layout.Roles {
		v := m[i+1]
		switch role {
		case RoleTime:
			t, err := ParseTime(v, d.clock)
			if err != nil {
				return unparsed(line, err.Error())
			}
			ev.Time = t
		case RoleIteration:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return unparsed(line, fmt.Sprintf("bad iteration %q", v))
			}
			ev.Iteration = n
		case RoleTrial:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return unparsed(line, fmt.Sprintf("bad trial id %q", v))
			}
			ev.Ref = ir.ByID(n)
			hasTrial = true
		}
	}

	body := strings.TrimSpace(m[len(m)-1])
	if body == "" {
		return unparsed(line, "empty body")
	}
	for _, r := range d.rules {
		if r.keyword != "" && !strings.HasPrefix(body, r.keyword) {
			continue
		}
		sub := r.re.FindStringSubmatch(body)
		if sub == nil {
			if r.keyword != "" {
				return unparsed(line, "malformed "+r.kind.String()+" body")
			}
			continue
		}
		if err := r.build(&ev, sub); err != nil {
			return unparsed(line, err.Error())
		}
		ev.Kind = r.kind
		if !hasTrial {
			ev.Ref = structuralRef(ev)
		}
		return Result{Event: ev}
	}

	// Free-form message with no location.
	ev.Kind = ir.KindVariableInspect
	ev.Value = body
	if !hasTrial {
		ev.Ref = ir.Latest()
	}
	return Result{Event: ev}
}

// structuralRef derives the trial reference for layouts without a trial id.
func structuralRef(ev ir.Event) ir.TrialRef {
	switch ev.Kind {
	case ir.KindVariableInspect, ir.KindPointerInspect:
		return ir.ByLine(ev.File, ev.Line)
	default:
		return ir.ByFunction(ev.File, ev.Func)
	}
}

func unparsed(line, reason string) Result {
	return Result{Unparsed: true, Shape: Shape(line), Reason: reason}
}

var digitRun = regexp.MustCompile(`0x[0-9a-fA-F]+|[0-9]+`)

// maxShape bounds the length of a shape key.
const maxShape = 96

// Shape collapses numbers in a line so that lines differing only in values
// share one key for throttled logging.
func Shape(line string) string {
	s := digitRun.ReplaceAllString(line, "#")
	if len(s) > maxShape {
		s = s[:maxShape]
	}
	return s
}
