// Package adaptertest provides a conformance suite that every
// adapter.Gateway implementation must pass.
package adaptertest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/radio-control/rigd/internal/adapter"
	"github.com/radio-control/rigd/internal/protocol"
)

// Expectations describes rig-specific answers the suite checks against.
type Expectations struct {
	// UnsupportedCommand is a raw command the rig rejects with a non-zero exit.
	UnsupportedCommand string
	// UnsupportedDetail is the diagnostic the rig prints for it.
	UnsupportedDetail string
	// InvalidVFO is a VFO name the rig answers with error text on stdout.
	InvalidVFO string
	// CallTimeout bounds each call made by the suite.
	CallTimeout time.Duration
}

// ConformanceResult is the result of one check.
type ConformanceResult struct {
	TestName string
	Passed   bool
	Error    string
	Duration time.Duration
}

// ConformanceReport collects all check results for one gateway.
type ConformanceReport struct {
	GatewayName string
	Results     []ConformanceResult
	PassedTests int
	FailedTests int
	Duration    time.Duration
}

func (r *ConformanceReport) add(res ConformanceResult) {
	r.Results = append(r.Results, res)
	if res.Passed {
		r.PassedTests++
	} else {
		r.FailedTests++
	}
}

type check struct {
	name string
	run  func(ctx context.Context, s *session) error
}

type session struct {
	gw  adapter.Gateway
	ep  adapter.Endpoint
	exp Expectations
}

func (s *session) do(ctx context.Context, op protocol.Operation) (protocol.Result, error) {
	inv, err := protocol.ToInvocation(op, s.ep)
	if err != nil {
		return protocol.Result{}, err
	}
	return protocol.Parse(op, s.gw.Execute(ctx, inv))
}

var checks = []check{
	{"Frequency_RoundTrip", func(ctx context.Context, s *session) error {
		if _, err := s.do(ctx, protocol.SetFrequency(14195000)); err != nil {
			return fmt.Errorf("set: %w", err)
		}
		res, err := s.do(ctx, protocol.GetFrequency())
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		if res.Frequency != 14195000 {
			return fmt.Errorf("frequency = %d, want 14195000", res.Frequency)
		}
		return nil
	}},
	{"Mode_RoundTrip", func(ctx context.Context, s *session) error {
		if _, err := s.do(ctx, protocol.SetMode("LSB")); err != nil {
			return fmt.Errorf("set: %w", err)
		}
		res, err := s.do(ctx, protocol.GetMode())
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		if res.Mode != "LSB" {
			return fmt.Errorf("mode = %q, want LSB", res.Mode)
		}
		return nil
	}},
	{"Power_RoundTrip", func(ctx context.Context, s *session) error {
		if _, err := s.do(ctx, protocol.SetPower(25)); err != nil {
			return fmt.Errorf("set: %w", err)
		}
		res, err := s.do(ctx, protocol.GetPower())
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		if res.Power != 25 {
			return fmt.Errorf("power = %v, want 25", res.Power)
		}
		return nil
	}},
	{"VFO_RoundTrip", func(ctx context.Context, s *session) error {
		if _, err := s.do(ctx, protocol.SetVFO("VFOB")); err != nil {
			return fmt.Errorf("set: %w", err)
		}
		res, err := s.do(ctx, protocol.GetVFO())
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		if res.VFO != "VFOB" {
			return fmt.Errorf("vfo = %q, want VFOB", res.VFO)
		}
		return nil
	}},
	{"VFO_ErrorTextIsDeviceError", func(ctx context.Context, s *session) error {
		_, err := s.do(ctx, protocol.SetVFO(s.exp.InvalidVFO))
		if !errors.Is(err, adapter.ErrDevice) {
			return fmt.Errorf("error = %v, want DEVICE_ERROR", err)
		}
		return nil
	}},
	{"PTT_KeyUnkey", func(ctx context.Context, s *session) error {
		if _, err := s.do(ctx, protocol.Key()); err != nil {
			return fmt.Errorf("key: %w", err)
		}
		if _, err := s.do(ctx, protocol.Unkey()); err != nil {
			return fmt.Errorf("unkey: %w", err)
		}
		return nil
	}},
	{"Raw_ReadIsTyped", func(ctx context.Context, s *session) error {
		if _, err := s.do(ctx, protocol.SetFrequency(7074000)); err != nil {
			return fmt.Errorf("set: %w", err)
		}
		res, err := s.do(ctx, protocol.Raw("f"))
		if err != nil {
			return err
		}
		if res.Kind != protocol.ResultFrequency || res.Frequency != 7074000 {
			return fmt.Errorf("raw f = %+v, want frequency 7074000", res)
		}
		return nil
	}},
	{"Raw_UnsupportedKeepsDiagnostic", func(ctx context.Context, s *session) error {
		_, err := s.do(ctx, protocol.Raw(s.exp.UnsupportedCommand))
		if !errors.Is(err, adapter.ErrDevice) {
			return fmt.Errorf("error = %v, want DEVICE_ERROR", err)
		}
		if got := adapter.DetailOf(err); got != s.exp.UnsupportedDetail {
			return fmt.Errorf("detail = %q, want %q", got, s.exp.UnsupportedDetail)
		}
		return nil
	}},
}

// RunConformance runs every check against a fresh gateway from newGateway.
func RunConformance(t *testing.T, name string, newGateway func(t *testing.T) adapter.Gateway, ep adapter.Endpoint, exp Expectations) {
	t.Helper()
	if exp.CallTimeout <= 0 {
		exp.CallTimeout = 5 * time.Second
	}

	report := &ConformanceReport{GatewayName: name}
	started := time.Now()

	for _, c := range checks {
		s := &session{gw: newGateway(t), ep: ep, exp: exp}
		ctx, cancel := context.WithTimeout(context.Background(), exp.CallTimeout*4)
		start := time.Now()
		err := c.run(ctx, s)
		cancel()

		res := ConformanceResult{TestName: c.name, Passed: err == nil, Duration: time.Since(start)}
		if err != nil {
			res.Error = err.Error()
		}
		report.add(res)
	}
	report.Duration = time.Since(started)

	printReport(t, report)
	if report.FailedTests > 0 {
		t.Fatalf("gateway %s conformance failed: %d/%d checks passed",
			name, report.PassedTests, len(report.Results))
	}
}

func printReport(t *testing.T, r *ConformanceReport) {
	t.Helper()
	t.Logf("conformance report for %s (%v)", r.GatewayName, r.Duration)
	for _, res := range r.Results {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		if res.Error != "" {
			t.Logf("  %s %s (%v): %s", status, res.TestName, res.Duration, res.Error)
		} else {
			t.Logf("  %s %s (%v)", status, res.TestName, res.Duration)
		}
	}
}
