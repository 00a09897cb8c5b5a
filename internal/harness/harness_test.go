package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func count(n int) *int { return &n }

func TestRun_CountsAndTrace(t *testing.T) {
	scenario := &Scenario{
		Name:        "run_counts",
		Description: "counts",
		Lines: []string{
			"[12][3] DEKU Inspect: Function: drivers/foo.c:bar:10:20:caller+0x10/0x40",
			"[12.5][3] DEKU Inspect: drivers/foo.c:12: ret = -22",
			"[12.6][4] DEKU Inspect: drivers/foo.c:12: ret = 0",
			"random kernel chatter",
			"[13][3] DEKU Inspect: Function return: drivers/foo.c:15:bar",
		},
		Assertions: []Assertion{
			{Type: AssertTrialCount, Count: count(1)},
			{Type: AssertInspectCount, Count: count(1)},
			{Type: AssertDroppedCount, Count: count(1)},
			{Type: AssertUnparsedCount, Count: count(0)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Len(t, result.Trace, 5)
	assert.Equal(t, "foreign", result.Trace[3])
	assert.Equal(t, int64(5), result.Stats.Lines)
	assert.Equal(t, int64(1), result.Stats.Foreign)
	assert.Equal(t, 1, result.Counts["session"])
}

func TestRun_FailingAssertionsAreReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "run_fail",
		Description: "wrong expectations",
		Lines: []string{
			"[1][1] DEKU Inspect: Function: a.c:f:1:9:x",
		},
		Assertions: []Assertion{
			{Type: AssertTrialCount, Count: count(2)},
			{Type: AssertFinalState, Table: "trial", Where: map[string]any{"trial_id": 1}, Expect: map[string]any{"return_line": 4}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Assertion failed: trial_count")
	assert.Contains(t, result.Errors[0], "Expected: 2")
	assert.Contains(t, result.Errors[0], "start trial#1")
	assert.Contains(t, result.Errors[1], `field "return_line" = 4`)
}

func TestRun_IsolatedStores(t *testing.T) {
	scenario := &Scenario{
		Name:        "isolated",
		Description: "each run starts empty",
		Lines:       []string{"[1][1] DEKU Inspect: Function: a.c:f:1:9:x"},
		Assertions:  []Assertion{{Type: AssertTrialCount, Count: count(1)}},
	}
	for i := 0; i < 2; i++ {
		result, err := Run(scenario)
		require.NoError(t, err)
		assert.True(t, result.Pass, "run %d: %v", i, result.Errors)
	}
}
