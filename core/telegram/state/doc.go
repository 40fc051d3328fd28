// Package state keeps per-user conversation sessions for the lifetime of the
// process. Sessions are created on first lookup and never fail to load.
package state
