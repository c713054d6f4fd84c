// Package session provides session persistence and the rotating-hash
// refresh protocol.
//
// # Rotation
//
// Every session carries the SHA-256 digest of an opaque secret (the
// "hash") that is embedded in the refresh token. A refresh presents the
// hash; [Manager.CompareAndRotate] swaps it for a fresh one through the
// store's atomic [Store.SwapHash]. A stale hash can therefore succeed at
// most once, and two concurrent refreshes with the same hash cannot both
// win.
//
// # Binary encoding
//
// The Redis store keeps sessions in a compact binary record with a fixed
// digest offset so the compare-and-swap runs as a single Lua script.
//
// # What this package must NOT do
//
//   - Import authcore, jwt, or any upward package.
//   - Store plaintext session hashes.
//   - Interpret token claims or make authorization decisions.
package session
