// Package audit records every domain operation as an append-only JSON line
// with the acting user, parameters, outcome code and latency.
package audit
