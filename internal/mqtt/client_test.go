package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/radio-control/rigd/internal/config"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.timeout {
		close(ch)
	}
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

// fakePaho records publishes instead of talking to a broker.
type fakePaho struct {
	mu           sync.Mutex
	connected    bool
	token        *fakeToken
	published    []published
	disconnected bool
}

func (f *fakePaho) IsConnected() bool      { f.mu.Lock(); defer f.mu.Unlock(); return f.connected }
func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }
func (f *fakePaho) Connect() pahomqtt.Token {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return &fakeToken{}
}
func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}
func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var body string
	switch p := payload.(type) {
	case string:
		body = p
	case []byte:
		body = string(p)
	}
	f.published = append(f.published, published{topic, qos, retained, body})
	if f.token != nil {
		return f.token
	}
	return &fakeToken{}
}
func (f *fakePaho) Subscribe(string, byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return &fakeToken{}
}
func (f *fakePaho) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return &fakeToken{}
}
func (f *fakePaho) Unsubscribe(...string) pahomqtt.Token        { return &fakeToken{} }
func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler)    {}
func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader { return pahomqtt.ClientOptionsReader{} }

func testConfig() config.MQTTConfig {
	cfg := config.Defaults().MQTT
	cfg.Enabled = true
	return cfg
}

func TestTopic(t *testing.T) {
	tests := []struct {
		prefix string
		levels []string
		want   string
	}{
		{"rigd", []string{"beacon"}, "rigd/beacon"},
		{"/site/rigd/", []string{"/telemetry/", "ptt"}, "site/rigd/telemetry/ptt"},
		{"", []string{"status"}, "status"},
		{"rigd", []string{""}, "rigd"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Topic(tt.prefix, tt.levels...); got != tt.want {
				t.Errorf("Topic(%q, %v) = %q, want %q", tt.prefix, tt.levels, got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Username = "op"
	cfg.Password = "secret"

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != cfg.Broker {
		t.Errorf("Servers = %v, want %s", opts.Servers, cfg.Broker)
	}
	if opts.ClientID != cfg.ClientID || opts.Username != "op" {
		t.Errorf("ClientID = %q Username = %q", opts.ClientID, opts.Username)
	}
	if !opts.WillEnabled || opts.WillTopic != "rigd/status" || !opts.WillRetained {
		t.Errorf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	if !strings.Contains(string(opts.WillPayload), "unexpected_disconnect") {
		t.Errorf("WillPayload = %s", opts.WillPayload)
	}
}

func TestPublish(t *testing.T) {
	paho := &fakePaho{connected: true}
	c := newWithClient(paho, testConfig())

	if err := c.Publish("beacon", []byte(`{"cycle":1}`), false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	got := paho.published[0]
	if got.topic != "rigd/beacon" || got.qos != 1 || got.retained || got.payload != `{"cycle":1}` {
		t.Errorf("published = %+v", got)
	}
}

func TestPublishErrors(t *testing.T) {
	tests := []struct {
		name     string
		paho     *fakePaho
		qos      int
		subtopic string
		payload  []byte
		want     error
	}{
		{"empty topic", &fakePaho{connected: true}, 1, "", []byte("x"), ErrInvalidTopic},
		{"bad qos", &fakePaho{connected: true}, 3, "beacon", []byte("x"), ErrInvalidQoS},
		{"too large", &fakePaho{connected: true}, 1, "beacon", make([]byte, maxPayloadSize+1), ErrPublishFailed},
		{"disconnected", &fakePaho{}, 1, "beacon", []byte("x"), ErrNotConnected},
		{"timeout", &fakePaho{connected: true, token: &fakeToken{timeout: true}}, 1, "beacon", []byte("x"), ErrPublishFailed},
		{"broker error", &fakePaho{connected: true, token: &fakeToken{err: errors.New("refused")}}, 1, "beacon", []byte("x"), ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.QoS = tt.qos
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			err := newWithClient(tt.paho, cfg).PublishContext(ctx, tt.subtopic, tt.payload, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishContextDeadline(t *testing.T) {
	c := newWithClient(&fakePaho{connected: true, token: &fakeToken{timeout: true}}, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.PublishContext(ctx, "beacon", []byte("x"), false)
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishContext() error = %v, want ErrPublishFailed wrapping the deadline", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("PublishContext() returned after %v, want it bound by ctx", elapsed)
	}
}

func TestPublishContextAlreadyDone(t *testing.T) {
	paho := &fakePaho{connected: true}
	c := newWithClient(paho, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.PublishContext(ctx, "beacon", []byte("x"), false); !errors.Is(err, context.Canceled) {
		t.Errorf("PublishContext() error = %v, want context.Canceled", err)
	}
	if len(paho.published) != 0 {
		t.Errorf("published = %d, want 0", len(paho.published))
	}
}

func TestClose(t *testing.T) {
	paho := &fakePaho{connected: true}
	c := newWithClient(paho, testConfig())

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !paho.disconnected {
		t.Error("Disconnect not called")
	}
	if len(paho.published) != 1 {
		t.Fatalf("published = %d, want offline status", len(paho.published))
	}
	status := paho.published[0]
	if status.topic != "rigd/status" || !status.retained || !strings.Contains(status.payload, "graceful_shutdown") {
		t.Errorf("status = %+v", status)
	}
}

func TestCloseNil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}
