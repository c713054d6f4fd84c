// Package internal contains helper utilities that are intentionally private to authcore:
// rotating session secret generation and numeric OTP generation.
//
// # Sub-packages
//
//   - flows: provider login, refresh, logout and password flow runners
//   - rate: Redis fixed-window login attempt throttle
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
