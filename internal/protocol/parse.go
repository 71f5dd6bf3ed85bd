package protocol

import (
	"math"
	"strconv"
	"strings"

	"github.com/radio-control/rigd/internal/adapter"
)

// ResultKind names the shape of a parsed result.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultFrequency
	ResultMode
	ResultPower
	ResultVFO
	ResultText
)

func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultFrequency:
		return "frequency"
	case ResultMode:
		return "mode"
	case ResultPower:
		return "power"
	case ResultVFO:
		return "vfo"
	case ResultText:
		return "text"
	}
	return "unknown"
}

// Result is a parsed, typed device response.
type Result struct {
	Kind      ResultKind `json:"kind"`
	Frequency int64      `json:"frequency,omitempty"`
	Mode      string     `json:"mode,omitempty"`
	Power     float64    `json:"power,omitempty"`
	VFO       string     `json:"vfo,omitempty"`
	Text      string     `json:"text,omitempty"`
}

// Value returns the typed payload of r as an interface value.
func (r Result) Value() interface{} {
	switch r.Kind {
	case ResultFrequency:
		return r.Frequency
	case ResultMode:
		return r.Mode
	case ResultPower:
		return r.Power
	case ResultVFO:
		return r.VFO
	case ResultText:
		return r.Text
	}
	return nil
}

// Parse classifies the outcome of op. Failed outcomes are returned as
// normalized errors carrying the original diagnostic.
func Parse(op Operation, out adapter.Outcome) (Result, error) {
	if !out.OK {
		return Result{}, out.Err()
	}

	line := adapter.FirstLine(out.Text)
	kind := op.Kind
	if kind == KindRaw {
		kind = classifyRaw(strings.Fields(op.Command))
	}

	switch kind {
	case KindGetFrequency:
		return parseFrequency(line)
	case KindGetMode:
		return parseMode(line)
	case KindGetPower:
		return parsePower(line)
	case KindGetVFO:
		if err := vfoError(line); err != nil {
			return Result{}, err
		}
		return parseVFO(line)
	case KindSetVFO:
		if err := vfoError(line); err != nil {
			return Result{}, err
		}
		return Result{Kind: ResultSuccess, Text: line}, nil
	case KindRaw:
		if line == "" {
			return Result{Kind: ResultSuccess}, nil
		}
		return Result{Kind: ResultText, Text: line}, nil
	}

	// Writes: the rig normally prints nothing; any echo is kept as text.
	return Result{Kind: ResultSuccess, Text: line}, nil
}

// rawReads maps raw read-command tokens onto the operation they mirror.
var rawReads = map[string]Kind{
	"f":          KindGetFrequency,
	`\get_freq`:  KindGetFrequency,
	"m":          KindGetMode,
	`\get_mode`:  KindGetMode,
	"v":          KindGetVFO,
	`\get_vfo`:   KindGetVFO,
	"V":          KindSetVFO,
	`\set_vfo`:   KindSetVFO,
	"l":          KindGetPower,
	`\get_level`: KindGetPower,
}

// classifyRaw decides how a raw command's response is interpreted. Known
// read tokens are parsed like the matching read operation; anything else
// is opaque text.
func classifyRaw(tokens []string) Kind {
	if len(tokens) == 0 {
		return KindRaw
	}
	kind, ok := rawReads[tokens[0]]
	if !ok {
		return KindRaw
	}
	if kind == KindGetPower {
		// only the RFPOWER level reads as a power percentage
		if len(tokens) != 2 || !strings.EqualFold(tokens[1], "RFPOWER") {
			return KindRaw
		}
	}
	if kind != KindSetVFO && kind != KindGetPower && len(tokens) != 1 {
		return KindRaw
	}
	return kind
}

func emptyRead(what string) error {
	return adapter.Errorf(adapter.ErrProtocol, "empty response for %s", what)
}

func parseFrequency(line string) (Result, error) {
	if line == "" {
		return Result{}, emptyRead("frequency")
	}
	if hz, err := strconv.ParseInt(line, 10, 64); err == nil {
		if hz < 0 {
			return Result{}, adapter.Errorf(adapter.ErrProtocol, "negative frequency %q", line)
		}
		return Result{Kind: ResultFrequency, Frequency: hz}, nil
	}
	// some backends print the frequency with a fractional part
	f, err := strconv.ParseFloat(line, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) {
		return Result{}, adapter.Errorf(adapter.ErrProtocol, "unparseable frequency %q", line)
	}
	return Result{Kind: ResultFrequency, Frequency: int64(f)}, nil
}

func parseMode(line string) (Result, error) {
	if line == "" {
		return Result{}, emptyRead("mode")
	}
	if !token.MatchString(line) {
		return Result{}, adapter.Errorf(adapter.ErrProtocol, "unparseable mode %q", line)
	}
	return Result{Kind: ResultMode, Mode: line}, nil
}

// parsePower reads the RFPOWER level. Hamlib reports it as a fraction of
// full scale; values above 1 are taken to be percent already.
func parsePower(line string) (Result, error) {
	if line == "" {
		return Result{}, emptyRead("power")
	}
	v, err := strconv.ParseFloat(line, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Result{}, adapter.Errorf(adapter.ErrProtocol, "unparseable power %q", line)
	}
	if v <= 1.0 {
		v *= 100
	}
	if v < MinPower || v > MaxPower {
		return Result{}, adapter.Errorf(adapter.ErrProtocol, "power %q out of range", line)
	}
	return Result{Kind: ResultPower, Power: math.Round(v*100) / 100}, nil
}

func parseVFO(line string) (Result, error) {
	if line == "" {
		return Result{}, emptyRead("vfo")
	}
	if !token.MatchString(line) {
		return Result{}, adapter.Errorf(adapter.ErrProtocol, "unparseable vfo %q", line)
	}
	return Result{Kind: ResultVFO, VFO: line}, nil
}

// vfoError applies the VFO text rule: the rig reports VFO problems on
// stdout with a zero exit status.
func vfoError(line string) error {
	if strings.Contains(strings.ToLower(line), "error") {
		return adapter.NewError(adapter.ErrDevice, line)
	}
	return nil
}

// RawOperation returns the typed write a raw command is equivalent to, so
// its effect can be tracked like the typed call. ok is false for reads,
// unknown commands and arguments the typed operation would reject.
func RawOperation(command string) (op Operation, ok bool) {
	fields := strings.Fields(command)
	if len(fields) < 2 {
		return Operation{}, false
	}
	args := fields[1:]
	switch {
	case (fields[0] == "F" || fields[0] == `\set_freq`) && len(args) == 1:
		hz, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return Operation{}, false
		}
		op = SetFrequency(hz)
	case (fields[0] == "M" || fields[0] == `\set_mode`) && len(args) <= 2:
		width := 0
		if len(args) == 2 {
			w, err := strconv.Atoi(args[1])
			if err != nil {
				return Operation{}, false
			}
			width = w
		}
		op = SetModeWidth(args[0], width)
	case (fields[0] == "V" || fields[0] == `\set_vfo`) && len(args) == 1:
		op = SetVFO(args[0])
	case (fields[0] == "T" || fields[0] == `\set_ptt`) && len(args) == 1 && (args[0] == "0" || args[0] == "1"):
		op = Unkey()
		if args[0] == "1" {
			op = Key()
		}
	case fields[0] == "P" && len(args) == 1:
		pct, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return Operation{}, false
		}
		op = SetPower(pct)
	default:
		return Operation{}, false
	}
	if _, err := Tokens(op); err != nil {
		return Operation{}, false
	}
	return op, true
}
