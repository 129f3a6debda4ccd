package stream

import "time"

// timeNow is stubbed in tests.
var timeNow = time.Now

// MetricsSnapshot is a read-only view of client counters and derived state,
// returned by Client.Metrics.
type MetricsSnapshot struct {
	State State

	MessagesReceived int64
	EventsReceived   int64

	// ConnectedAt is the time of the last successful open; nil before the
	// first connect. LastEventAt is the receive time of the last "event"
	// frame; nil until one arrives.
	ConnectedAt *time.Time
	LastEventAt *time.Time

	Subscriptions     []string
	QueueDepth        int
	ReconnectAttempts int
}

// metrics holds the mutable counters. Mutated only by the dispatcher and the
// state machine, under the client mutex.
type metrics struct {
	messagesReceived int64
	eventsReceived   int64
	connectedAt      time.Time
	lastEventAt      time.Time
}

func (m *metrics) snapshotTimes() (connectedAt, lastEventAt *time.Time) {
	if !m.connectedAt.IsZero() {
		t := m.connectedAt
		connectedAt = &t
	}
	if !m.lastEventAt.IsZero() {
		t := m.lastEventAt
		lastEventAt = &t
	}
	return connectedAt, lastEventAt
}
