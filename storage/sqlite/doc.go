// Package sqlite persists authcore users and sessions in a single SQLite
// file through modernc.org/sqlite.
//
// [Store.Users] is an authcore.UserDirectory and [Store.Sessions] a
// session.Store over the same database. Revoked sessions are soft-deleted:
// the row keeps its deleted_at marker and is invisible to every lookup.
// Hash rotation is a conditional UPDATE, so at most one of several
// concurrent refreshes of a session wins.
package sqlite
