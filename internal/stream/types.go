package stream

import (
	"encoding/json"
	"errors"
	"time"

	"resistance-stream/internal/model"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrClientClosed     = errors.New("client closed")
)

// State is the connection lifecycle state. Transitions are the only legal way
// to mutate it; every transition fires the state-change handler.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Inbound message kinds.
const (
	KindEvent        = "event"
	KindConnection   = "connection"
	KindSubscription = "subscription"
	KindPong         = "pong"
	KindStatus       = "status"
	KindSystem       = "system"
	KindError        = "error"
)

// command is an outbound frame. One JSON object per frame.
type command struct {
	Type       string `json:"type"` // "subscribe", "unsubscribe", "ping", "status"
	Instrument string `json:"instrument,omitempty"`
	Timeframe  string `json:"timeframe,omitempty"`
}

// Message is the inbound envelope, a tagged variant over Type. Fields not
// relevant to a given kind are zero. Raw always holds the original frame.
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp model.Timestamp `json:"timestamp,omitzero"`

	// event envelope
	Instrument string `json:"instrument,omitempty"`
	Timeframe  string `json:"timeframe,omitempty"`

	// subscription confirmations
	Action string `json:"action,omitempty"` // "subscribed" or "unsubscribed"

	// connection welcome
	Status   string `json:"status,omitempty"`
	ClientID string `json:"client_id,omitempty"`

	// status responses
	Processor   json.RawMessage `json:"processor,omitempty"`
	Connections json.RawMessage `json:"connections,omitempty"`

	// server errors
	ErrorText string `json:"message,omitempty"`

	Raw []byte `json:"-"`
}

// EventNotification pairs a resistance event with its originating topic.
type EventNotification struct {
	Event      model.ResistanceEvent
	Instrument string
	Timeframe  string
	Timestamp  time.Time
}

// Handlers is the closed set of typed observers. All fields are optional; nil
// handlers are skipped. Callbacks run sequentially on the client's goroutines
// and must not block for long.
type Handlers struct {
	// StateChange fires on every lifecycle transition.
	StateChange func(old, next State)

	// Connected fires after each successful open, once subscriptions are
	// replayed and the queue is flushed.
	Connected func()

	// ResistanceEvent receives the typed payload of "event" frames.
	ResistanceEvent func(EventNotification)

	// Message receives every successfully parsed frame, including "event".
	Message func(Message)

	// Kind-specific pass-throughs.
	Connection   func(Message)
	Subscription func(Message)
	Status       func(Message)
	System       func(Message)

	// Error receives malformed-frame and server-reported errors. Non-fatal.
	Error func(error)

	// Disconnected fires once the connection is terminally down: reconnection
	// disabled, attempts exhausted, or caller-initiated disconnect.
	Disconnected func(code int, reason string)
}

// Config configures a stream client. Zero fields are filled by DefaultConfig.
type Config struct {
	URL      string // WebSocket endpoint (e.g. wss://host/ws/events)
	ClientID string // Generated as client_<epoch-ms>_<random> when empty
	Token    string // Optional auth token, passed as a query parameter

	AutoReconnect        bool
	ReconnectInterval    time.Duration // Base backoff; delay = interval x min(attempt, 5)
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration

	DialTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int // Transport message channel buffer
}

// DefaultConfig returns the documented defaults for an endpoint.
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		AutoReconnect:        true,
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 10,
		HeartbeatInterval:    30 * time.Second,
		DialTimeout:          10 * time.Second,
		WriteTimeout:         5 * time.Second,
		BufferSize:           1000,
	}
}

// backoffCap bounds the linear backoff multiplier.
const backoffCap = 5
