// Package otp issues and verifies short-lived numeric codes bound to a phone
// number and a purpose.
//
// # Record lifecycle
//
// One record lives per key "otp:{purpose}:{phone}" in a TTL-backed
// [KeyValueCache]. SendCode refuses to overwrite a record younger than the
// resend interval. VerifyCode counts failed attempts against the record and
// deletes it once the limit is reached or the right code is presented, so
// every code is single-use.
//
// # Concurrency
//
// When the cache also implements [Locker], SendCode and VerifyCode hold a
// per-key lock around their read-modify-write. Without it the store's
// per-key atomicity is the only guarantee.
package otp
