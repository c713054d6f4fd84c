// Package jwt signs and verifies the three token families used by authcore:
// short-lived access tokens, long-lived refresh tokens bound to a session hash,
// and the purpose-specific action tokens built by package actiontoken.
//
// A [Manager] owns one key and one TTL. Access and refresh tokens are issued by
// separate managers so a refresh token can never verify as an access token.
// Business rules such as session hash matching live in the caller, not here.
package jwt
