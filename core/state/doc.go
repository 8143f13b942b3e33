// Package state holds per-user conversation sessions.
//
// A session carries the current State and a typed scratch area for values
// collected across steps. Sessions idle longer than the configured TTL are
// evicted lazily on access and by Sweep.
package state
