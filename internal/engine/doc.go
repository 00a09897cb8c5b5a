// Package engine runs the kinspect ingestion pipeline.
//
// ARCHITECTURE:
//
// Single-Writer Burst Loop:
// A reader goroutine pulls bytes from a transport, frames them into lines
// and enqueues one burst per read. Engine.Run drains the FIFO in a single
// goroutine and processes each burst inside one store transaction:
//  1. decode every line (unparsed lines are logged once per shape)
//  2. correlate each event into its trial (one write per event)
//  3. commit, then notify subscribers with the merged refresh flags
//
// Nothing in the loop panics or stops the process: decode, correlation and
// store errors are counted and logged, and the burst continues.
//
// Sessions:
// A Supervisor opens the transport, records a session with a fresh token,
// and runs an Engine with a fresh Correlator until the stream ends. It then
// logs a disconnect notice and reconnects at a rate-limited pace.
package engine
