// Package transport opens the byte streams kinspect reads protocol lines
// from: a command run over SSH on the device, a log file (optionally
// followed as it grows), or any io.Reader such as stdin.
//
// Every source satisfies engine.Source. Closing the returned stream ends
// the session; a source may be opened again to reconnect.
package transport
