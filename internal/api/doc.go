// Package api serves the HTTP/JSON control surface under /api/v1 and the
// telemetry SSE stream.
//
// Every JSON response uses one envelope:
//
//	{"result":"ok"|"error","data":...,"code":...,"message":...,"details":...,"correlationId":...}
//
// The correlation id is taken from the X-Correlation-ID request header when
// present and generated otherwise.
package api
