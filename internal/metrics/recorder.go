// Package metrics writes one InfluxDB point per device invocation.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/radio-control/rigd/internal/adapter"
	"github.com/radio-control/rigd/internal/config"
)

// Measurement is the point name for invocations.
const Measurement = "rig_invocation"

const (
	defaultConnectTimeout = 10 * time.Second
	defaultBatchSize      = 100
	defaultFlushMs        = 1000
)

var (
	ErrDisabled         = errors.New("metrics: disabled in configuration")
	ErrConnectionFailed = errors.New("metrics: connection failed")
)

// Logger receives asynchronous write failures.
type Logger interface {
	Warn(msg string, args ...any)
}

type pointWriter interface {
	WritePoint(p *write.Point)
	Flush()
}

// Recorder observes serializer invocations and writes them as points.
// Writes are batched and never block the caller.
type Recorder struct {
	client influxdb2.Client
	writer pointWriter
	model  string
}

// Connect pings the server in cfg and returns a recorder for its bucket.
func Connect(cfg config.MetricsConfig, model int, logger Logger) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushMs
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batch)).
			SetFlushInterval(uint(flush)))

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			if logger != nil {
				logger.Warn("metrics write failed", "error", err)
			}
		}
	}()

	r := newRecorder(writeAPI, model)
	r.client = client
	return r, nil
}

func newRecorder(w pointWriter, model int) *Recorder {
	return &Recorder{writer: w, model: fmt.Sprint(model)}
}

// ObserveInvocation writes a rig_invocation point.
func (r *Recorder) ObserveInvocation(inv adapter.Invocation, out adapter.Outcome, wait, elapsed time.Duration) {
	op := "none"
	if len(inv.Tokens) > 0 {
		op = inv.Tokens[0]
	}
	p := write.NewPoint(Measurement,
		map[string]string{
			"op":      op,
			"outcome": out.Label(),
			"model":   r.model,
		},
		map[string]interface{}{
			"latency_ms": float64(elapsed) / float64(time.Millisecond),
			"wait_ms":    float64(wait) / float64(time.Millisecond),
		},
		time.Now())
	r.writer.WritePoint(p)
}

// Close flushes pending points and closes the client.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.writer.Flush()
	if r.client != nil {
		r.client.Close()
	}
	return nil
}
