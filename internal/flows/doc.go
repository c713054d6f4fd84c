// Package flows contains the pure-function orchestrators behind the Engine's
// login, refresh, logout and password operations.
//
// Each flow function (RunPasswordLogin, RunRefresh, RunChangePassword, ...)
// accepts a typed dependency struct and returns a result carrying a failure
// kind. The root package maps failure kinds to its field-coded errors, logs
// infrastructure failures and records metrics.
//
// # Architecture boundaries
//
// Flows coordinate the user directory, password hasher, session manager,
// token issuer and login throttle. They do NOT own any of these resources.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency funcs.
package flows
