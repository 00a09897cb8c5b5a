// Package harness runs protocol scenarios through the real ingestion
// pipeline and checks what ends up in the store.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: single_trial
//	description: "One trial with one located inspect"
//	layout: 2            # identifier count: 1, 2 or 3 (default 2)
//	clock: auto          # optional: auto, seconds or nanoseconds
//	lines:
//	  - "[12][3] DEKU Inspect: Function: drivers/foo.c:bar:10:20:caller+0x10/0x40"
//	  - "[12.5][3] DEKU Inspect: drivers/foo.c:12: ret = -22"
//	  - "[13][3] DEKU Inspect: Function return: drivers/foo.c:15:bar"
//	assertions:
//	  - type: trial_count
//	    count: 1
//	  - type: final_state
//	    table: trial
//	    where: { trial_id: 3 }
//	    expect: { return_line: 15 }
//
// # Assertion Types
//
//   - trial_count, inspect_count, stacktrace_count: rows in the store table
//   - unparsed_count, dropped_count: engine counters for the run
//   - final_state: exactly one row of a table matches where, and its
//     columns match expect (subset match)
//
// # Deterministic Runs
//
// Every scenario runs against a fresh in-memory store with a fixed session
// token and start time, and all lines are processed as one burst. The
// decoded event trace is therefore stable and is compared against
// testdata/golden/<name>.golden by RunWithGolden.
package harness
