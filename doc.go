// Package authcore is a multi-channel authentication core: email and phone
// password logins, phone one-time codes, WeChat OAuth, registration, email
// confirmation, and password change and reset.
//
// An [Engine] is built once through [Builder.Build] and is safe for
// concurrent use. User persistence, mail, SMS and OAuth are collaborators
// passed in as interfaces; sessions and one-time codes live in Redis by
// default.
//
// # Sessions
//
// Every login opens a session holding a random hash. The refresh token
// carries {sessionId, hash}; [Engine.Refresh] accepts it only while the
// hash is current and atomically replaces it, so a refresh token works
// exactly once. Password changes revoke every other session of the user.
//
// # Errors
//
// Every Engine operation fails with an [*Error] carrying a [Kind], the
// input Field it concerns and a stable Code such as "emailNotExists" or
// "needLoginViaProvider:phone". Store and collaborator failures are logged
// and surface as the generic internal error.
//
// # Performance contract
//
// ValidateAccess is the hot path: a signature check only, unless
// Session.StrictAccess adds one Redis round-trip. Refresh is one Lua call
// plus the user lookup.
package authcore
