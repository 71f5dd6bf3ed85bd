// Package auth checks bearer tokens and enforces scopes on the HTTP API.
//
// A token is either a shared static secret, which carries every scope, or
// a JWT signed with HS256 or RS256 whose "scopes" claim lists what the
// caller may do. The health endpoint is always open.
package auth
