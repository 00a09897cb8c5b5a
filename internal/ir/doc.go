// Package ir provides the typed event model shared by the kinspect pipeline.
//
// The decoder produces ir.Event values, the correlator consumes them, and the
// store persists what they describe. ir imports nothing internal so every
// other package can depend on it without cycles.
//
// Key design constraints:
//   - Timestamps are time.Duration since device boot, normalized to
//     nanoseconds before any arithmetic
//   - Trial identity is the emitted trial id (TrialRef by id); structural
//     references exist only for the legacy single-identifier protocol
//   - Stacktrace fingerprints are pure functions of the normalized text
package ir
