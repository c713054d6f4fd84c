// Package rate provides the Redis-backed fixed-window counter that throttles
// password login attempts per identifier.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. The window
// opens on the first failure and lasts the cooldown; a success clears it.
// Key prefix: al:: failed logins per identifier.
//
// # What this package must NOT do
//
//   - Decide which operations are throttled (the flows do).
//   - Be imported outside the authcore module.
package rate
