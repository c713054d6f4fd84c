// Package cache provides the TTL-backed key/value stores consumed by the OTP
// engine: a Redis implementation for production and an in-memory one for
// tests and single-process development.
//
// Both implementations also offer a per-key [Locker] so read-modify-write
// sequences on one key can be serialized without cross-key transactions.
package cache
