package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client owns the single logical connection to the event stream: lifecycle
// state machine, reconnection policy, subscription registry, outbound queue
// and heartbeat. Construct with NewClient; there is no ambient singleton.
//
// All exported methods are safe for concurrent use. Handler callbacks run
// sequentially and never overlap with internal mutation.
type Client struct {
	cfg      Config
	handlers Handlers
	logger   *slog.Logger
	dial     Dialer
	clientID string

	mu        sync.Mutex
	state     State
	transport Transport
	subs      *registry
	queue     *outboundQueue
	metrics   metrics
	attempts  int

	// epoch invalidates timers and in-flight callbacks across Disconnect and
	// transport replacement. A scheduled reconnect or queued frame delivery
	// from an older epoch is a no-op.
	epoch          int
	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}
	reconnectArmed bool
}

// NewClient creates a stream client. A nil logger falls back to slog.Default.
// Zero durations and counts in cfg are filled from DefaultConfig; the
// AutoReconnect flag is taken as given.
func NewClient(cfg Config, handlers Handlers, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultConfig(cfg.URL)
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = def.ReconnectInterval
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = def.BufferSize
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = generateClientID()
	}

	return &Client{
		cfg:      cfg,
		handlers: handlers,
		logger:   logger.With("client_id", clientID),
		dial:     NewDialer(cfg, logger),
		clientID: clientID,
		state:    StateDisconnected,
		subs:     newRegistry(),
		queue:    newOutboundQueue(),
	}
}

// SetDialer replaces the transport dialer. Tests use this to inject in-memory
// transports; must be called before Connect.
func (c *Client) SetDialer(dial Dialer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dial = dial
}

// ClientID returns the identifier sent in the connection query string.
func (c *Client) ClientID() string {
	return c.clientID
}

// Connect opens the transport and blocks until the connection is established
// or the dial fails. A dial failure transitions to StateError and is returned
// to the caller; no reconnection is attempted for a failed initial connect.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateDisconnected, StateError:
	default:
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.reconnectArmed = true
	epoch := c.epoch
	target := c.connectURL()
	notes := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	c.run(notes)

	t, err := c.dial(ctx, target)
	if err != nil {
		c.mu.Lock()
		var failNotes []func()
		if c.epoch == epoch {
			failNotes = c.setStateLocked(StateError)
		}
		c.mu.Unlock()
		c.run(failNotes)
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	if c.epoch != epoch || !c.reconnectArmed {
		// Disconnect raced the dial.
		c.mu.Unlock()
		t.Close()
		return ErrClientClosed
	}
	notes = c.attachTransportLocked(t)
	c.mu.Unlock()
	c.run(notes)

	return nil
}

// Disconnect permanently disables reconnection, cancels all pending timers,
// closes the transport with a normal-closure code and transitions to
// StateDisconnected. Connect may be called again afterwards.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.reconnectArmed = false
	c.epoch++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.stopHeartbeatLocked()
	t := c.transport
	c.transport = nil
	wasUp := c.state != StateDisconnected
	notes := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if t != nil {
		t.Close()
	}
	c.run(notes)
	if wasUp {
		if h := c.handlers.Disconnected; h != nil {
			h(websocket.CloseNormalClosure, "client disconnect")
		}
	}
}

// Subscribe adds an (instrument, timeframe) topic. Adding an existing topic is
// a no-op. When connected the subscribe frame is sent immediately; otherwise
// the topic stays latent and is replayed on the next successful open.
// Subscribe to ("*", "*") for all topics.
func (c *Client) Subscribe(instrument, timeframe string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	topic := Topic{Instrument: instrument, Timeframe: timeframe}
	if !c.subs.add(topic) {
		return
	}
	c.logger.Debug("subscription added", "topic", topic.Key())

	if c.openLocked() {
		c.sendOrQueueLocked(command{Type: "subscribe", Instrument: instrument, Timeframe: timeframe})
	}
}

// Unsubscribe removes a topic. Removing an absent topic is a no-op.
func (c *Client) Unsubscribe(instrument, timeframe string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	topic := Topic{Instrument: instrument, Timeframe: timeframe}
	if !c.subs.remove(topic) {
		return
	}
	c.logger.Debug("subscription removed", "topic", topic.Key())

	if c.openLocked() {
		c.sendOrQueueLocked(command{Type: "unsubscribe", Instrument: instrument, Timeframe: timeframe})
	}
}

// RequestStatus asks the server for a status frame. Queued while disconnected.
func (c *Client) RequestStatus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendOrQueueLocked(command{Type: "status"})
}

// Ping sends an application-level heartbeat frame. Queued while disconnected.
func (c *Client) Ping() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendOrQueueLocked(command{Type: "ping"})
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Metrics returns a read-only snapshot of counters and derived state.
func (c *Client) Metrics() MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	connectedAt, lastEventAt := c.metrics.snapshotTimes()
	return MetricsSnapshot{
		State:             c.state,
		MessagesReceived:  c.metrics.messagesReceived,
		EventsReceived:    c.metrics.eventsReceived,
		ConnectedAt:       connectedAt,
		LastEventAt:       lastEventAt,
		Subscriptions:     c.subs.keys(),
		QueueDepth:        c.queue.len(),
		ReconnectAttempts: c.attempts,
	}
}

// connectURL embeds the connection parameters as query parameters.
func (c *Client) connectURL() string {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		// Let the dialer surface the bad URL.
		return c.cfg.URL
	}
	q := u.Query()
	q.Set("client_id", c.clientID)
	if c.cfg.Token != "" {
		q.Set("token", c.cfg.Token)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// attachTransportLocked completes a successful open: resets the attempt
// counter, stamps connection time, replays the full registry, flushes the
// queue, and starts the heartbeat and monitor.
func (c *Client) attachTransportLocked(t Transport) []func() {
	c.transport = t
	c.attempts = 0
	c.metrics.connectedAt = timeNow()

	notes := c.setStateLocked(StateConnected)

	// Replay strictly before flushing caller-queued frames.
	c.replaySubscriptionsLocked()
	queued := c.queue.len()
	c.flushQueueLocked()

	c.startHeartbeatLocked()

	epoch := c.epoch
	go c.monitor(t, epoch)

	if h := c.handlers.Connected; h != nil {
		notes = append(notes, h)
	}
	c.logger.Info("connected",
		"subscriptions", c.subs.len(),
		"flushed", queued,
	)
	return notes
}

// replaySubscriptionsLocked sends one subscribe frame per registry entry. The
// server treats repeated subscribes idempotently.
func (c *Client) replaySubscriptionsLocked() {
	for _, topic := range c.subs.snapshot() {
		data, _ := json.Marshal(command{
			Type:       "subscribe",
			Instrument: topic.Instrument,
			Timeframe:  topic.Timeframe,
		})
		if err := c.transport.Send(data); err != nil {
			// Transport died during replay; the close path replays again.
			c.logger.Warn("subscription replay interrupted", "topic", topic.Key(), "error", err)
			return
		}
	}
}

// flushQueueLocked drains the outbound queue in FIFO order. A failed send
// re-queues the frame at the front and stops the flush.
func (c *Client) flushQueueLocked() {
	for {
		frame, ok := c.queue.pop()
		if !ok {
			return
		}
		if err := c.transport.Send(frame); err != nil {
			c.queue.pushFront(frame)
			c.logger.Warn("queue flush interrupted", "pending", c.queue.len(), "error", err)
			return
		}
	}
}

// sendOrQueueLocked is the single send-or-queue decision point for all
// outbound frames: send immediately when the transport is open, enqueue
// otherwise. A send failure re-queues rather than drops.
func (c *Client) sendOrQueueLocked(cmd command) {
	data, err := json.Marshal(cmd)
	if err != nil {
		c.logger.Error("marshal outbound frame", "type", cmd.Type, "error", err)
		return
	}

	if c.openLocked() {
		if err := c.transport.Send(data); err != nil {
			c.logger.Warn("send failed, frame queued", "type", cmd.Type, "error", err)
			c.queue.push(data)
		}
		return
	}
	c.queue.push(data)
}

func (c *Client) openLocked() bool {
	return c.state == StateConnected && c.transport != nil && c.transport.IsOpen()
}

// setStateLocked transitions the state machine. Setting the current state is
// an idempotent no-op with no duplicate notification. Returns the deferred
// handler invocations to run after the mutex is released.
func (c *Client) setStateLocked(next State) []func() {
	if c.state == next {
		return nil
	}
	old := c.state
	c.state = next
	c.logger.Debug("state change", "from", old, "to", next)

	if h := c.handlers.StateChange; h != nil {
		return []func(){func() { h(old, next) }}
	}
	return nil
}

// run invokes deferred handler calls outside the client mutex.
func (c *Client) run(notes []func()) {
	for _, note := range notes {
		note()
	}
}

// monitor consumes transport channels until the connection ends. One monitor
// per transport; epoch guards against acting on a superseded connection.
func (c *Client) monitor(t Transport, epoch int) {
	for {
		select {
		case data, ok := <-t.Messages():
			if !ok {
				// Read side ended; a remote close surfaces on Errors first.
				select {
				case err := <-t.Errors():
					c.transportDown(t, epoch, err)
				default:
					// Closed locally, teardown already handled.
				}
				return
			}
			c.dispatch(data, epoch)

		case err := <-t.Errors():
			c.transportDown(t, epoch, err)
			return
		}
	}
}

// transportDown handles an unrequested connection loss: schedule a reconnect
// when policy allows, otherwise go terminally disconnected.
func (c *Client) transportDown(t Transport, epoch int, err error) {
	code, reason := closeDetails(err)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.logger.Warn("connection lost", "code", code, "reason", reason)
	c.stopHeartbeatLocked()
	c.transport = nil
	c.epoch++
	notes := c.scheduleReconnectLocked(code, reason)
	c.mu.Unlock()

	t.Close()
	c.run(notes)
}

// scheduleReconnectLocked applies the reconnect decision after a close.
func (c *Client) scheduleReconnectLocked(code int, reason string) []func() {
	if c.cfg.AutoReconnect && c.reconnectArmed && c.attempts < c.cfg.MaxReconnectAttempts {
		c.attempts++
		delay := reconnectDelay(c.cfg.ReconnectInterval, c.attempts)
		notes := c.setStateLocked(StateReconnecting)

		epoch := c.epoch
		c.reconnectTimer = time.AfterFunc(delay, func() { c.reconnect(epoch) })

		c.logger.Info("reconnect scheduled", "attempt", c.attempts, "delay", delay)
		return notes
	}

	notes := c.setStateLocked(StateDisconnected)
	if h := c.handlers.Disconnected; h != nil {
		notes = append(notes, func() { h(code, reason) })
	}
	return notes
}

// reconnect redials after a scheduled backoff delay.
func (c *Client) reconnect(epoch int) {
	c.mu.Lock()
	if c.epoch != epoch || !c.reconnectArmed {
		c.mu.Unlock()
		return
	}
	target := c.connectURL()
	attempt := c.attempts
	c.mu.Unlock()

	c.logger.Info("reconnecting", "attempt", attempt)

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	defer cancel()

	t, err := c.dial(ctx, target)
	if err != nil {
		c.mu.Lock()
		if c.epoch != epoch || !c.reconnectArmed {
			c.mu.Unlock()
			return
		}
		c.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
		notes := c.scheduleReconnectLocked(websocket.CloseAbnormalClosure, "reconnect failed: "+err.Error())
		c.mu.Unlock()
		c.run(notes)
		return
	}

	c.mu.Lock()
	if c.epoch != epoch || !c.reconnectArmed {
		c.mu.Unlock()
		t.Close()
		return
	}
	notes := c.attachTransportLocked(t)
	c.mu.Unlock()
	c.run(notes)
}

// reconnectDelay computes the backoff for a 1-indexed attempt:
// base x min(attempt, 5). Linear, capped; consumers depend on this timing.
func reconnectDelay(base time.Duration, attempt int) time.Duration {
	if attempt > backoffCap {
		attempt = backoffCap
	}
	return base * time.Duration(attempt)
}

// startHeartbeatLocked begins the periodic ping timer. Restarted fresh on
// every connected transition.
func (c *Client) startHeartbeatLocked() {
	if c.cfg.HeartbeatInterval <= 0 {
		return
	}
	stop := make(chan struct{})
	c.heartbeatStop = stop

	go func() {
		ticker := time.NewTicker(c.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.sendHeartbeat()
			}
		}
	}()
}

// stopHeartbeatLocked cancels the heartbeat timer, if running.
func (c *Client) stopHeartbeatLocked() {
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
}

// sendHeartbeat sends a ping if and only if the connection is currently open.
// A missing pong never triggers a disconnect; liveness is advisory.
func (c *Client) sendHeartbeat() {
	c.mu.Lock()
	t := c.transport
	open := c.openLocked()
	c.mu.Unlock()

	if !open {
		return
	}

	data, _ := json.Marshal(command{Type: "ping"})
	if err := t.Send(data); err != nil {
		c.logger.Debug("heartbeat send failed", "error", err)
	}
}

// generateClientID builds a client_<epoch-ms>_<random> identifier.
func generateClientID() string {
	return fmt.Sprintf("client_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
