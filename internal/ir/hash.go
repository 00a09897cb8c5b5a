package ir

import (
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

// summaryFrames is how many symbols StackSummary keeps.
const summaryFrames = 4

// NormalizeStack returns the canonical text of a comma-separated stacktrace.
// The text is NFC-normalized, each frame is trimmed, and empty frames are
// dropped. Two stacktraces are the same iff their normalized texts are equal.
func NormalizeStack(text string) string {
	return strings.Join(StackFrames(text), ",")
}

// StackFrames splits a stacktrace into its trimmed, non-empty frames.
func StackFrames(text string) []string {
	text = norm.NFC.String(text)
	parts := strings.Split(text, ",")
	frames := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		frames = append(frames, p)
	}
	return frames
}

// Fingerprint returns the deduplication key for a stacktrace.
//
// It is the xxhash64 of NormalizeStack(text), reinterpreted as int64 so it
// fits an SQLite INTEGER column. The value is unsalted and stable across
// processes and platforms.
func Fingerprint(text string) int64 {
	return int64(xxhash.Sum64String(NormalizeStack(text)))
}

// FrameSymbol returns the symbol part of a "symbol+0x1c/0x40" frame.
func FrameSymbol(frame string) string {
	frame = strings.TrimSpace(frame)
	if i := strings.IndexAny(frame, "+/ "); i >= 0 {
		return frame[:i]
	}
	return frame
}

// StackSummary returns the first few frame symbols joined by ", ",
// used as the short description of a stacktrace.
func StackSummary(text string) string {
	frames := StackFrames(text)
	if len(frames) > summaryFrames {
		frames = frames[:summaryFrames]
	}
	syms := make([]string, len(frames))
	for i, f := range frames {
		syms[i] = FrameSymbol(f)
	}
	return strings.Join(syms, ", ")
}
