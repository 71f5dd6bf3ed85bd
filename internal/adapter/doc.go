// Package adapter defines the device-facing contract of rigd.
//
// An Invocation is a token sequence addressed to one Endpoint. A Gateway
// turns it into an Outcome, which is either a success carrying the first
// line of output or a failure carrying a Cause and the original diagnostic.
// Failures are normalized into the error codes declared in errors.go so
// that callers can use errors.Is without knowing which layer failed.
package adapter
