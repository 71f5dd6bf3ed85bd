package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/radio-control/rigd/internal/config"
)

// Event types.
const (
	EventReady     = "ready"
	EventFrequency = "frequencyChanged"
	EventMode      = "modeChanged"
	EventPower     = "powerChanged"
	EventVFO       = "vfoChanged"
	EventPTT       = "ptt"
	EventStatus    = "statusChanged"
	EventBeacon    = "beacon"
	EventFault     = "fault"
	EventHeartbeat = "heartbeat"
)

// Event is one telemetry event.
type Event struct {
	ID   int64                  `json:"id,omitempty"`
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
	At   time.Time              `json:"-"`
}

// Client is one SSE subscriber.
type Client struct {
	ID     string
	Writer http.ResponseWriter
	LastID int64
	Events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex // guards Writer
}

// Hub fans telemetry out to SSE clients and keeps a replay buffer.
//
// Lock ordering: h.mu before EventBuffer.mu. Client.mu is only taken while
// writing to a single client.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	nextID  atomic.Int64
	buffer  *EventBuffer
	timing  config.TimingConfig
	ready   func() interface{}

	heartbeatTicker *time.Ticker
	stopHeartbeat   chan struct{}

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a Hub.
type Option func(*Hub)

// WithSnapshot sets the function whose result is sent in every ready event.
func WithSnapshot(fn func() interface{}) Option {
	return func(h *Hub) { h.ready = fn }
}

// NewHub creates a hub using the heartbeat and buffer settings in timing.
func NewHub(timing config.TimingConfig, opts ...Option) *Hub {
	h := &Hub{
		clients: make(map[string]*Client),
		buffer:  NewEventBuffer(timing.EventBufferSize, timing.EventBufferRetention),
		timing:  timing,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe serves one SSE client until ctx ends or the hub stops. A
// Last-Event-ID header replays buffered events newer than that id.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientCtx, cancel := context.WithCancel(ctx)

	lastEventID := int64(0)
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			lastEventID = id
		}
	}

	client := &Client{
		ID:     uuid.NewString(),
		Writer: w,
		LastID: lastEventID,
		Events: make(chan Event, 100),
		ctx:    clientCtx,
		cancel: cancel,
	}

	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		cancel()
		return fmt.Errorf("telemetry hub stopped")
	default:
	}
	h.clients[client.ID] = client
	if h.heartbeatTicker == nil {
		h.startHeartbeat()
	}
	h.mu.Unlock()
	defer h.unregisterClient(client.ID)

	if err := h.sendEventToClient(client, h.readyEvent()); err != nil {
		return fmt.Errorf("failed to send ready event: %w", err)
	}

	if lastEventID > 0 {
		for _, ev := range h.buffer.GetEventsAfter(lastEventID) {
			if err := h.sendEventToClient(client, ev); err != nil {
				return fmt.Errorf("failed to replay events: %w", err)
			}
		}
	}

	h.handleClient(client)
	return nil
}

// Publish assigns the next id, buffers the event and delivers it to every
// client. A client that cannot keep up loses the event.
func (h *Hub) Publish(event Event) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	if event.ID == 0 {
		event.ID = h.nextID.Add(1)
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	if event.Type != EventHeartbeat {
		h.buffer.AddEvent(event)
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case <-c.ctx.Done():
		case <-h.done:
			return nil
		case c.Events <- event:
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil
}

// PublishType is Publish for a type and payload.
func (h *Hub) PublishType(eventType string, data map[string]interface{}) error {
	return h.Publish(Event{Type: eventType, Data: data})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) readyEvent() Event {
	data := map[string]interface{}{}
	if h.ready != nil {
		data["snapshot"] = h.ready()
	}
	// ready is per-client and not replayable
	return Event{ID: h.nextID.Load(), Type: EventReady, Data: data}
}

func (h *Hub) sendEventToClient(client *Client, event Event) error {
	client.mu.Lock()
	defer client.mu.Unlock()

	if event.ID > 0 {
		if _, err := fmt.Fprintf(client.Writer, "id: %d\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}
	if _, err := fmt.Fprintf(client.Writer, "event: %s\n", event.Type); err != nil {
		return fmt.Errorf("failed to write event type: %w", err)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(client.Writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event data: %w", err)
	}

	if flusher, ok := client.Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

func (h *Hub) handleClient(client *Client) {
	for {
		select {
		case <-client.ctx.Done():
			return
		case <-h.done:
			return
		case event := <-client.Events:
			if err := h.sendEventToClient(client, event); err != nil {
				return
			}
		}
	}
}

func (h *Hub) unregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return
	}
	client.cancel()
	delete(h.clients, clientID)

	if len(h.clients) == 0 && h.heartbeatTicker != nil {
		h.heartbeatTicker.Stop()
		h.heartbeatTicker = nil
		close(h.stopHeartbeat)
		h.stopHeartbeat = nil
	}
}

// startHeartbeat starts the heartbeat goroutine. Caller holds h.mu.
func (h *Hub) startHeartbeat() {
	interval := h.timing.HeartbeatInterval + h.timing.HeartbeatJitter/2
	if interval <= 0 {
		interval = 15 * time.Second
	}

	h.heartbeatTicker = time.NewTicker(interval)
	h.stopHeartbeat = make(chan struct{})
	ticker := h.heartbeatTicker
	stop := h.stopHeartbeat

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-ticker.C:
				h.sendHeartbeat()
			case <-stop:
				return
			case <-h.done:
				return
			}
		}
	}()
}

func (h *Hub) sendHeartbeat() {
	_ = h.Publish(Event{
		Type: EventHeartbeat,
		Data: map[string]interface{}{"ts": time.Now().UTC().Format(time.RFC3339)},
	})
}

// Stop disconnects every client and stops the heartbeat.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		for _, c := range h.clients {
			c.cancel()
		}
		if h.heartbeatTicker != nil {
			h.heartbeatTicker.Stop()
			h.heartbeatTicker = nil
			close(h.stopHeartbeat)
			h.stopHeartbeat = nil
		}
		h.mu.Unlock()

		done := make(chan struct{})
		go func() {
			h.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	})
}

// EventBuffer is a bounded replay buffer. Events older than the retention
// are dropped on insert.
type EventBuffer struct {
	mu        sync.RWMutex
	events    []Event
	capacity  int
	retention time.Duration
}

// NewEventBuffer creates a buffer holding at most capacity events.
func NewEventBuffer(capacity int, retention time.Duration) *EventBuffer {
	if capacity <= 0 {
		capacity = 50
	}
	return &EventBuffer{
		events:    make([]Event, 0, capacity),
		capacity:  capacity,
		retention: retention,
	}
}

// AddEvent appends event, evicting the oldest when full.
func (b *EventBuffer) AddEvent(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)
	if len(b.events) > b.capacity {
		b.events = b.events[len(b.events)-b.capacity:]
	}
	if b.retention > 0 {
		cutoff := event.At.Add(-b.retention)
		i := 0
		for i < len(b.events) && b.events[i].At.Before(cutoff) {
			i++
		}
		b.events = b.events[i:]
	}
}

// GetEventsAfter returns buffered events with an id greater than lastID.
func (b *EventBuffer) GetEventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for _, e := range b.events {
		if e.ID > lastID {
			result = append(result, e)
		}
	}
	return result
}

// Size returns the number of buffered events.
func (b *EventBuffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
