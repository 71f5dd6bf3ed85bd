// Package telemetry streams device events to SSE clients.
//
// Every event gets a monotonic id. The last events are kept so a client
// reconnecting with Last-Event-ID receives what it missed. Heartbeats run
// while at least one client is connected.
package telemetry
