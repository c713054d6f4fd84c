// Package password hashes and verifies user passwords.
//
// New hashes are Argon2id PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Stored bcrypt hashes ($2a$, $2b$, $2y$) are still accepted by [Hasher.Verify] so
// directories migrated from older systems keep working; [Hasher.NeedsUpgrade]
// reports true for them so callers can rehash after the next successful login.
//
// The package never stores passwords and never logs plaintext or parameters.
package password
