// Package command is the synchronous core the API and CLI call into.
//
// Every operation is translated, queued on the device serializer, run,
// parsed, applied to the state cache, published as telemetry and audited.
// Failures come back as *adapter.Error values; nothing is retried.
package command
