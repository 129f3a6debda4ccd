package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the full-duplex frame pipe the client runs over. The production
// implementation wraps a gorilla/websocket connection; tests supply fakes.
type Transport interface {
	// Send writes one frame.
	Send(data []byte) error

	// Close tears the connection down with a normal-closure code.
	Close() error

	// Messages returns the inbound frame channel. Closed when the read side ends.
	Messages() <-chan []byte

	// Errors returns a one-shot channel carrying the read error that ended the
	// connection. Nothing is delivered after Close.
	Errors() <-chan error

	// IsOpen reports whether frames can currently be sent.
	IsOpen() bool
}

// Dialer opens a Transport to the given URL. The client keeps one so tests can
// inject in-memory transports.
type Dialer func(ctx context.Context, url string) (Transport, error)

// wsTransport implements Transport over gorilla/websocket.
type wsTransport struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeTimeout time.Duration

	messages chan []byte
	errors   chan error
	done     chan struct{}

	writeMu sync.Mutex

	mu     sync.RWMutex
	open   bool
	closed bool
}

// NewDialer returns a Dialer that opens gorilla WebSocket connections.
func NewDialer(cfg Config, logger *slog.Logger) Dialer {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, url string) (Transport, error) {
		dialer := websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
		}

		header := http.Header{}
		header.Set("Accept", "application/json")

		conn, _, err := dialer.DialContext(ctx, url, header)
		if err != nil {
			return nil, err
		}

		t := &wsTransport{
			conn:         conn,
			logger:       logger,
			writeTimeout: cfg.WriteTimeout,
			messages:     make(chan []byte, cfg.BufferSize),
			errors:       make(chan error, 1),
			done:         make(chan struct{}),
			open:         true,
		}

		// Answer protocol-level pings so intermediaries keep the socket alive.
		conn.SetPingHandler(func(data string) error {
			return conn.WriteControl(
				websocket.PongMessage,
				[]byte(data),
				time.Now().Add(time.Second),
			)
		})

		go t.readLoop()

		logger.Debug("websocket connected", "url", url)
		return t, nil
	}
}

// Send writes one text frame.
func (t *wsTransport) Send(data []byte) error {
	t.mu.RLock()
	if !t.open {
		t.mu.RUnlock()
		return ErrNotConnected
	}
	t.mu.RUnlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal-closure frame and closes the connection. Idempotent.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.open = false
	t.mu.Unlock()

	close(t.done)

	t.writeMu.Lock()
	t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	t.writeMu.Unlock()

	return t.conn.Close()
}

// Messages returns the inbound frame channel.
func (t *wsTransport) Messages() <-chan []byte {
	return t.messages
}

// Errors returns the read-error channel.
func (t *wsTransport) Errors() <-chan error {
	return t.errors
}

// IsOpen reports whether the transport accepts sends.
func (t *wsTransport) IsOpen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.open
}

// readLoop pumps inbound frames into the messages channel until the
// connection ends.
func (t *wsTransport) readLoop() {
	defer func() {
		t.mu.Lock()
		t.open = false
		t.mu.Unlock()
		close(t.messages)
	}()

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			// Errors after Close are the expected teardown, not a failure.
			select {
			case <-t.done:
			default:
				select {
				case t.errors <- err:
				default:
				}
			}
			return
		}

		select {
		case t.messages <- data:
		case <-t.done:
			return
		default:
			t.logger.Warn("message buffer full, dropping frame")
		}
	}
}

// closeDetails extracts the close code and reason from a read error.
// Non-close errors map to 1006 (abnormal closure).
func closeDetails(err error) (code int, reason string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	if err != nil {
		return websocket.CloseAbnormalClosure, err.Error()
	}
	return websocket.CloseAbnormalClosure, ""
}
