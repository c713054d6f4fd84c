// Package middleware adapts authcore to net/http.
//
// [RequireAccess] reads the bearer token, calls Engine.ValidateAccess and
// stores the verified principal with authcore.WithPrincipal. [RequireRole]
// narrows a route to one role. [WriteError] renders an *authcore.Error as
// a JSON body with the matching status code.
//
// This package makes no authentication decisions of its own.
package middleware
