package protocol

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/radio-control/rigd/internal/adapter"
)

// Kind names a domain operation.
type Kind int

const (
	KindGetFrequency Kind = iota + 1
	KindSetFrequency
	KindGetMode
	KindSetMode
	KindGetPower
	KindSetPower
	KindGetVFO
	KindSetVFO
	KindKey
	KindUnkey
	KindRaw
)

var kindNames = map[Kind]string{
	KindGetFrequency: "getFrequency",
	KindSetFrequency: "setFrequency",
	KindGetMode:      "getMode",
	KindSetMode:      "setMode",
	KindGetPower:     "getPower",
	KindSetPower:     "setPower",
	KindGetVFO:       "getVfo",
	KindSetVFO:       "setVfo",
	KindKey:          "key",
	KindUnkey:        "unkey",
	KindRaw:          "raw",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsRead reports whether the operation expects a typed value back.
func (k Kind) IsRead() bool {
	switch k {
	case KindGetFrequency, KindGetMode, KindGetPower, KindGetVFO:
		return true
	}
	return false
}

// Operation is a domain request before translation.
type Operation struct {
	Kind      Kind
	Frequency int64   // Hz, SetFrequency
	Mode      string  // SetMode
	Width     int     // SetMode passband, 0 selects the rig default
	Power     float64 // percent, SetPower
	VFO       string  // SetVFO
	Command   string  // Raw
}

func GetFrequency() Operation { return Operation{Kind: KindGetFrequency} }

func SetFrequency(hz int64) Operation { return Operation{Kind: KindSetFrequency, Frequency: hz} }

func GetMode() Operation { return Operation{Kind: KindGetMode} }

// SetMode selects mode with the rig's default passband.
func SetMode(mode string) Operation { return Operation{Kind: KindSetMode, Mode: mode} }

// SetModeWidth selects mode with an explicit passband in Hz.
func SetModeWidth(mode string, width int) Operation {
	return Operation{Kind: KindSetMode, Mode: mode, Width: width}
}

func GetPower() Operation { return Operation{Kind: KindGetPower} }

func SetPower(percent float64) Operation { return Operation{Kind: KindSetPower, Power: percent} }

func GetVFO() Operation { return Operation{Kind: KindGetVFO} }

func SetVFO(vfo string) Operation { return Operation{Kind: KindSetVFO, VFO: vfo} }

func Key() Operation { return Operation{Kind: KindKey} }

func Unkey() Operation { return Operation{Kind: KindUnkey} }

func Raw(command string) Operation { return Operation{Kind: KindRaw, Command: command} }

// Params returns the operation arguments for audit records.
func (op Operation) Params() map[string]interface{} {
	switch op.Kind {
	case KindSetFrequency:
		return map[string]interface{}{"frequency": op.Frequency}
	case KindSetMode:
		return map[string]interface{}{"mode": op.Mode, "width": op.Width}
	case KindSetPower:
		return map[string]interface{}{"power": op.Power}
	case KindSetVFO:
		return map[string]interface{}{"vfo": op.VFO}
	case KindRaw:
		return map[string]interface{}{"command": op.Command}
	}
	return map[string]interface{}{}
}

// Modes is the enumerated hamlib mode set. Other single tokens are passed
// through to the rig unchanged.
var Modes = []string{
	"USB", "LSB", "CW", "CWR", "RTTY", "RTTYR", "AM", "FM", "WFM", "AMS",
	"PKTLSB", "PKTUSB", "PKTFM", "ECSSUSB", "ECSSLSB", "FAX", "SAM", "SAL",
	"SAH", "DSB",
}

var knownModes = func() map[string]bool {
	m := make(map[string]bool, len(Modes))
	for _, mode := range Modes {
		m[mode] = true
	}
	return m
}()

// token matches a single rigctl argument: no whitespace, no shell syntax.
var token = regexp.MustCompile(`^[A-Za-z0-9_.+-]+$`)

const (
	MinPower = 0.0
	MaxPower = 100.0
)

// ToInvocation translates op into the rigctl token sequence for ep.
// Invalid arguments are rejected here, before any process is started.
func ToInvocation(op Operation, ep adapter.Endpoint) (adapter.Invocation, error) {
	tokens, err := Tokens(op)
	if err != nil {
		return adapter.Invocation{}, err
	}
	return adapter.Invocation{Endpoint: ep, Tokens: tokens}, nil
}

// Tokens returns the rigctl command tokens for op.
func Tokens(op Operation) ([]string, error) {
	switch op.Kind {
	case KindGetFrequency:
		return []string{"f"}, nil

	case KindSetFrequency:
		if op.Frequency <= 0 {
			return nil, adapter.Errorf(adapter.ErrInvalidArgument, "frequency must be positive, got %d", op.Frequency)
		}
		return []string{"F", strconv.FormatInt(op.Frequency, 10)}, nil

	case KindGetMode:
		return []string{"m"}, nil

	case KindSetMode:
		mode, err := NormalizeMode(op.Mode)
		if err != nil {
			return nil, err
		}
		if op.Width < 0 {
			return nil, adapter.Errorf(adapter.ErrInvalidArgument, "passband width must be non-negative, got %d", op.Width)
		}
		return []string{"M", mode, strconv.Itoa(op.Width)}, nil

	case KindGetPower:
		return []string{"l", "RFPOWER"}, nil

	case KindSetPower:
		if math.IsNaN(op.Power) || op.Power < MinPower || op.Power > MaxPower {
			return nil, adapter.Errorf(adapter.ErrInvalidArgument, "power %v outside [%v, %v]", op.Power, MinPower, MaxPower)
		}
		return []string{"P", strconv.FormatFloat(op.Power, 'f', -1, 64)}, nil

	case KindGetVFO:
		return []string{"v"}, nil

	case KindSetVFO:
		vfo := strings.TrimSpace(op.VFO)
		if !token.MatchString(vfo) {
			return nil, adapter.Errorf(adapter.ErrInvalidArgument, "invalid vfo %q", op.VFO)
		}
		return []string{"V", vfo}, nil

	case KindKey:
		return []string{"T", "1"}, nil

	case KindUnkey:
		return []string{"T", "0"}, nil

	case KindRaw:
		fields := strings.Fields(op.Command)
		if len(fields) == 0 {
			return nil, adapter.NewError(adapter.ErrInvalidArgument, "command must not be empty")
		}
		return fields, nil
	}

	return nil, adapter.Errorf(adapter.ErrInvalidArgument, "unsupported operation %v", op.Kind)
}

// NormalizeMode upper-cases known hamlib modes and checks the rest are a
// single token.
func NormalizeMode(mode string) (string, error) {
	mode = strings.TrimSpace(mode)
	if mode == "" {
		return "", adapter.NewError(adapter.ErrInvalidArgument, "mode must not be empty")
	}
	if upper := strings.ToUpper(mode); knownModes[upper] {
		return upper, nil
	}
	if !token.MatchString(mode) {
		return "", adapter.Errorf(adapter.ErrInvalidArgument, "invalid mode %q", mode)
	}
	return mode, nil
}
