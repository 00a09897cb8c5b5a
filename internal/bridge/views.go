package bridge

import (
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/kinspect/internal/ir"
	"github.com/roach88/kinspect/internal/store"
)

// TrialView is a trial with its display label.
type TrialView struct {
	store.Trial
	Label       string `json:"label"`
	Description string `json:"description"`
}

// StacktraceView is a distinct stacktrace of a function.
type StacktraceView struct {
	// Fingerprint is decimal text; the value does not fit a JSON number
	// without losing precision in JavaScript.
	Fingerprint string   `json:"fingerprint"`
	Label       string   `json:"label"`
	Summary     string   `json:"summary"`
	Frames      []string `json:"frames"`
	Trials      int      `json:"trials"`
}

// TrialLabel renders "[proc] seconds" with microsecond precision.
func TrialLabel(t store.Trial) string {
	return "[" + t.ProcName + "] " + ir.FormatTimestamp(t.Time)
}

// TrialDescription renders the elapsed time in milliseconds, or "open".
func TrialDescription(t store.Trial) string {
	if !t.Returned() {
		return "open"
	}
	return fmt.Sprintf("%.3fms", float64(t.Elapsed())/float64(time.Millisecond))
}

func trialView(t store.Trial) TrialView {
	return TrialView{Trial: t, Label: TrialLabel(t), Description: TrialDescription(t)}
}

// stacktraceView numbers stacktraces from 1 in listing order.
func stacktraceView(index int, st store.Stacktrace) StacktraceView {
	return StacktraceView{
		Fingerprint: strconv.FormatInt(st.Fingerprint, 10),
		Label:       "#" + strconv.Itoa(index),
		Summary:     ir.StackSummary(st.Text) + ", ...",
		Frames:      ir.StackFrames(st.Text),
		Trials:      st.Trials,
	}
}
