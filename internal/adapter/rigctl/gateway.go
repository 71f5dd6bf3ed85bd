// Package rigctl runs hamlib's rigctl as one short-lived process per
// invocation.
package rigctl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/radio-control/rigd/internal/adapter"
)

const (
	// DefaultBinary is resolved through PATH.
	DefaultBinary = "rigctl"

	// DefaultProcessTimeout bounds one rigctl run end to end.
	DefaultProcessTimeout = 5 * time.Second

	// waitDelay bounds how long Wait keeps draining output after the
	// process group has been killed.
	waitDelay = 500 * time.Millisecond
)

// Config holds gateway settings.
type Config struct {
	Binary         string
	ProcessTimeout time.Duration
}

// Logger is the logging surface the gateway needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Gateway implements adapter.Gateway on top of os/exec. Arguments are
// passed as an argv vector; no shell is involved.
type Gateway struct {
	binary  string
	timeout time.Duration
	logger  Logger
}

var _ adapter.Gateway = (*Gateway)(nil)

// New creates a gateway. Zero fields in cfg fall back to the defaults.
func New(cfg Config, logger Logger) *Gateway {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = DefaultProcessTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Gateway{binary: cfg.Binary, timeout: cfg.ProcessTimeout, logger: logger}
}

// Args returns the argument vector for inv, without the binary.
func Args(inv adapter.Invocation) []string {
	ep := inv.Endpoint
	args := []string{
		"-m", strconv.Itoa(ep.Model),
		"-r", ep.Device,
		"-s", strconv.Itoa(ep.Baud),
		"-t", strconv.FormatInt(ep.ResponseTimeout.Milliseconds(), 10),
	}
	return append(args, inv.Tokens...)
}

// Execute runs exactly one rigctl process for inv. The process group is
// killed and the child reaped before Execute returns, whatever the outcome.
func (g *Gateway) Execute(ctx context.Context, inv adapter.Invocation) adapter.Outcome {
	if len(inv.Tokens) == 0 {
		return adapter.Failure(adapter.CauseLaunch, "no command tokens")
	}

	runCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, g.binary, Args(inv)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	isolate(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		g.logger.Warn("rigctl launch failed", "binary", g.binary, "command", inv.Command(), "error", err)
		return adapter.Failure(adapter.CauseLaunch, err.Error())
	}

	err := cmd.Wait()
	reap(cmd, err)
	elapsed := time.Since(start)

	if err == nil || (errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success()) {
		text := adapter.FirstLine(stdout.String())
		g.logger.Debug("rigctl ok", "command", inv.Command(), "output", text, "elapsed", elapsed)
		return adapter.Success(text)
	}

	if runCtx.Err() != nil {
		detail := fmt.Sprintf("no response within %v", g.timeout)
		if ctx.Err() != nil {
			detail = fmt.Sprintf("invocation abandoned: %v", ctx.Err())
		}
		g.logger.Warn("rigctl timed out", "command", inv.Command(), "elapsed", elapsed)
		return adapter.Failure(adapter.CauseTimeout, detail)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = exitErr.Error()
		}
		out := adapter.Failure(adapter.CauseNonZeroExit, detail)
		out.ExitCode = exitErr.ExitCode()
		g.logger.Warn("rigctl failed", "command", inv.Command(), "exit", out.ExitCode, "stderr", detail)
		return out
	}

	g.logger.Warn("rigctl wait failed", "command", inv.Command(), "error", err)
	return adapter.Failure(adapter.CauseLaunch, err.Error())
}
