package framer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(max int) (*Framer, *[]string) {
	var lines []string
	f := New(max, func(line string) {
		lines = append(lines, line)
	})
	return f, &lines
}

func TestFramerSplitsLines(t *testing.T) {
	f, lines := collect(0)

	n, err := f.Write([]byte("one\ntwo\n  three  \n"))
	require.NoError(t, err)
	assert.Equal(t, 18, n)
	assert.Equal(t, []string{"one", "two", "three"}, *lines)
}

func TestFramerJoinsPartialWrites(t *testing.T) {
	f, lines := collect(0)

	_, _ = f.Write([]byte("[12][3] DEKU "))
	_, _ = f.Write([]byte("Inspect: x = 5"))
	assert.Empty(t, *lines)

	_, _ = f.Write([]byte("\n"))
	assert.Equal(t, []string{"[12][3] DEKU Inspect: x = 5"}, *lines)
}

func TestFramerSkipsEmptyLines(t *testing.T) {
	f, lines := collect(0)

	_, _ = f.Write([]byte("\n\n  \r\na\n\n"))
	assert.Equal(t, []string{"a"}, *lines)
}

func TestFramerTruncatesAndResyncs(t *testing.T) {
	f, lines := collect(8)

	_, _ = f.Write([]byte("short\n"))
	_, _ = f.Write([]byte(strings.Repeat("x", 6)))
	_, _ = f.Write([]byte(strings.Repeat("y", 6)))
	assert.Equal(t, 1, f.Truncated())

	// The rest of the oversized frame is skipped up to its newline.
	_, _ = f.Write([]byte("zzz\nnext\n"))
	assert.Equal(t, []string{"short", "next"}, *lines)
	assert.Equal(t, 1, f.Truncated())
}

func TestFramerTruncatesWithinOneWrite(t *testing.T) {
	f, lines := collect(4)

	_, _ = f.Write([]byte("toolongline\nok\n"))
	assert.Equal(t, []string{"ok"}, *lines)
	assert.Equal(t, 1, f.Truncated())
}

func TestFramerExactCapacity(t *testing.T) {
	f, lines := collect(4)

	_, _ = f.Write([]byte("abcd\n"))
	assert.Equal(t, []string{"abcd"}, *lines)
	assert.Zero(t, f.Truncated())
}

func TestFramerFlush(t *testing.T) {
	f, lines := collect(0)

	_, _ = f.Write([]byte("tail without newline"))
	f.Flush()
	assert.Equal(t, []string{"tail without newline"}, *lines)

	f.Flush()
	assert.Len(t, *lines, 1)
}
