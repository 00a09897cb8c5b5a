// Package correlator groups decoded events into trials for one session.
//
// A Correlator owns every piece of per-connection state: the emitted trial
// id index, the latest trial of each function and the previous start time
// used for "since last call" deltas. A new Correlator is built for every
// session so ids from a previous connection can never resolve.
//
// Apply performs exactly one write per event against a Writer, which is
// implemented by both *store.Store and *store.Tx.
package correlator
