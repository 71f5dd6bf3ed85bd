package protocol

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/radio-control/rigd/internal/adapter"
)

var testEndpoint = adapter.Endpoint{
	Model:           1022,
	Device:          "/dev/ttyUSB0",
	Baud:            38400,
	ResponseTimeout: time.Second,
}

func TestTokens(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		want []string
	}{
		{"get frequency", GetFrequency(), []string{"f"}},
		{"set frequency", SetFrequency(14195000), []string{"F", "14195000"}},
		{"get mode", GetMode(), []string{"m"}},
		{"set mode default width", SetMode("usb"), []string{"M", "USB", "0"}},
		{"set mode explicit width", SetModeWidth("CW", 500), []string{"M", "CW", "500"}},
		{"set mode pass-through", SetMode("PKTAM"), []string{"M", "PKTAM", "0"}},
		{"get power", GetPower(), []string{"l", "RFPOWER"}},
		{"set power integer", SetPower(50), []string{"P", "50"}},
		{"set power fraction", SetPower(12.5), []string{"P", "12.5"}},
		{"set power lower bound", SetPower(0), []string{"P", "0"}},
		{"set power upper bound", SetPower(100), []string{"P", "100"}},
		{"get vfo", GetVFO(), []string{"v"}},
		{"set vfo", SetVFO("VFOB"), []string{"V", "VFOB"}},
		{"key", Key(), []string{"T", "1"}},
		{"unkey", Unkey(), []string{"T", "0"}},
		{"raw single", Raw("f"), []string{"f"}},
		{"raw whitespace split", Raw("  F   7074000 "), []string{"F", "7074000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tokens(tt.op)
			if err != nil {
				t.Fatalf("Tokens() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokens() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTokensRejectsInvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
	}{
		{"zero frequency", SetFrequency(0)},
		{"negative frequency", SetFrequency(-1)},
		{"empty mode", SetMode("")},
		{"mode with spaces", SetMode("U S B")},
		{"mode shell syntax", SetMode("USB;reboot")},
		{"negative width", SetModeWidth("USB", -5)},
		{"power below range", SetPower(-0.1)},
		{"power above range", SetPower(150)},
		{"power NaN", SetPower(math.NaN())},
		{"empty vfo", SetVFO("")},
		{"vfo with spaces", SetVFO("VFO A")},
		{"empty raw", Raw("")},
		{"blank raw", Raw("   ")},
		{"unknown kind", Operation{Kind: Kind(99)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToInvocation(tt.op, testEndpoint)
			if !errors.Is(err, adapter.ErrInvalidArgument) {
				t.Errorf("ToInvocation() error = %v, want INVALID_ARGUMENT", err)
			}
		})
	}
}

func TestToInvocationCarriesEndpoint(t *testing.T) {
	inv, err := ToInvocation(SetFrequency(7074000), testEndpoint)
	if err != nil {
		t.Fatalf("ToInvocation() error = %v", err)
	}
	if inv.Endpoint != testEndpoint {
		t.Errorf("Endpoint = %+v, want %+v", inv.Endpoint, testEndpoint)
	}
	if inv.Command() != "F 7074000" {
		t.Errorf("Command() = %q, want %q", inv.Command(), "F 7074000")
	}
}

func TestParseReads(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		text string
		want Result
	}{
		{"frequency", GetFrequency(), "14195000\n", Result{Kind: ResultFrequency, Frequency: 14195000}},
		{"frequency with fraction", GetFrequency(), "7074000.000000", Result{Kind: ResultFrequency, Frequency: 7074000}},
		{"mode keeps first line only", GetMode(), "USB\n2400\n", Result{Kind: ResultMode, Mode: "USB"}},
		{"power fraction scaled", GetPower(), "0.500000", Result{Kind: ResultPower, Power: 50}},
		{"power full scale", GetPower(), "1.000000", Result{Kind: ResultPower, Power: 100}},
		{"power already percent", GetPower(), "75", Result{Kind: ResultPower, Power: 75}},
		{"vfo", GetVFO(), "VFOA", Result{Kind: ResultVFO, VFO: "VFOA"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.op, adapter.Success(tt.text))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseProtocolErrors(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		text string
	}{
		{"empty frequency", GetFrequency(), ""},
		{"garbage frequency", GetFrequency(), "abc"},
		{"negative frequency", GetFrequency(), "-5"},
		{"fractional hz", GetFrequency(), "7074000.5"},
		{"empty mode", GetMode(), "\n"},
		{"mode with spaces", GetMode(), "not a mode"},
		{"empty power", GetPower(), ""},
		{"garbage power", GetPower(), "lots"},
		{"power out of range", GetPower(), "250"},
		{"empty vfo", GetVFO(), ""},
		{"raw read empty", Raw("f"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.op, adapter.Success(tt.text))
			if !errors.Is(err, adapter.ErrProtocol) {
				t.Errorf("Parse() error = %v, want PROTOCOL_ERROR", err)
			}
		})
	}
}

func TestParseEmptyWriteIsSuccess(t *testing.T) {
	writes := []Operation{
		SetFrequency(14195000),
		SetMode("USB"),
		SetPower(50),
		SetVFO("VFOA"),
		Key(),
		Unkey(),
	}
	for _, op := range writes {
		t.Run(op.Kind.String(), func(t *testing.T) {
			got, err := Parse(op, adapter.Success(""))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got.Kind != ResultSuccess {
				t.Errorf("Kind = %v, want success", got.Kind)
			}
		})
	}
}

func TestParseVFOErrorText(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		text string
	}{
		{"set vfo upper", SetVFO("VFOZ"), "ERROR: invalid vfo"},
		{"set vfo mixed case", SetVFO("VFOZ"), "Rig Error"},
		{"get vfo", GetVFO(), "error reading vfo"},
		{"raw set vfo", Raw("V VFOZ"), "ERROR: invalid vfo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.op, adapter.Success(tt.text))
			if !errors.Is(err, adapter.ErrDevice) {
				t.Fatalf("Parse() error = %v, want DEVICE_ERROR", err)
			}
			if got := adapter.DetailOf(err); got != tt.text {
				t.Errorf("detail = %q, want %q", got, tt.text)
			}
		})
	}
}

func TestParseFailuresKeepDiagnostic(t *testing.T) {
	tests := []struct {
		name    string
		outcome adapter.Outcome
		want    error
	}{
		{"non-zero exit", adapter.Failure(adapter.CauseNonZeroExit, "rig_set_conf: unsupported"), adapter.ErrDevice},
		{"launch", adapter.Failure(adapter.CauseLaunch, "fork/exec rigctl: no such file"), adapter.ErrLaunch},
		{"timeout", adapter.Failure(adapter.CauseTimeout, "no response within 1s"), adapter.ErrTimeout},
		{"busy", adapter.Failure(adapter.CauseBusy, "device access wait exceeded"), adapter.ErrBusy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(GetFrequency(), tt.outcome)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Parse() error = %v, want %v", err, tt.want)
			}
			if got := adapter.DetailOf(err); got != tt.outcome.Detail {
				t.Errorf("detail = %q, want %q", got, tt.outcome.Detail)
			}
		})
	}
}

func TestParseRaw(t *testing.T) {
	tests := []struct {
		name    string
		command string
		text    string
		want    Result
	}{
		{"frequency read", "f", "14195000", Result{Kind: ResultFrequency, Frequency: 14195000}},
		{"long frequency read", `\get_freq`, "7074000", Result{Kind: ResultFrequency, Frequency: 7074000}},
		{"mode read", "m", "LSB\n2400", Result{Kind: ResultMode, Mode: "LSB"}},
		{"power read", "l RFPOWER", "0.25", Result{Kind: ResultPower, Power: 25}},
		{"other level is text", "l STRENGTH", "-54", Result{Kind: ResultText, Text: "-54"}},
		{"vfo read", "v", "VFOB", Result{Kind: ResultVFO, VFO: "VFOB"}},
		{"opaque text", "_", "Hamlib dummy", Result{Kind: ResultText, Text: "Hamlib dummy"}},
		{"opaque empty", "F 7074000", "", Result{Kind: ResultSuccess}},
		{"read with extra args is text", "f extra", "14195000", Result{Kind: ResultText, Text: "14195000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(Raw(tt.command), adapter.Success(tt.text))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResultValue(t *testing.T) {
	if v := (Result{Kind: ResultFrequency, Frequency: 5}).Value(); v != int64(5) {
		t.Errorf("Value() = %v, want 5", v)
	}
	if v := (Result{Kind: ResultSuccess}).Value(); v != nil {
		t.Errorf("Value() = %v, want nil", v)
	}
}

func TestKindIsRead(t *testing.T) {
	for kind := KindGetFrequency; kind <= KindRaw; kind++ {
		want := kind == KindGetFrequency || kind == KindGetMode || kind == KindGetPower || kind == KindGetVFO
		if got := kind.IsRead(); got != want {
			t.Errorf("%v.IsRead() = %v, want %v", kind, got, want)
		}
	}
}

func TestRawOperation(t *testing.T) {
	tests := []struct {
		command string
		want    Operation
		wantOK  bool
	}{
		{"F 14074000", SetFrequency(14074000), true},
		{`\set_freq 7074000`, SetFrequency(7074000), true},
		{"M LSB 0", SetModeWidth("LSB", 0), true},
		{"M usb 2400", SetModeWidth("usb", 2400), true},
		{"M CW", SetModeWidth("CW", 0), true},
		{"P 25", SetPower(25), true},
		{"V VFOB", SetVFO("VFOB"), true},
		{"T 1", Key(), true},
		{"T 0", Unkey(), true},
		{"f", Operation{}, false},
		{"F", Operation{}, false},
		{"F -5", Operation{}, false},
		{"F abc", Operation{}, false},
		{"M LSB wide", Operation{}, false},
		{"P 150", Operation{}, false},
		{"T 2", Operation{}, false},
		{`\dump_caps`, Operation{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			got, ok := RawOperation(tt.command)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("RawOperation(%q) = %+v, %v, want %+v, %v", tt.command, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
