package stream

import (
	"encoding/json"
	"fmt"

	"resistance-stream/internal/model"
)

// ServerError is a server-reported error frame surfaced through the Error
// handler. Non-fatal; the connection stays open.
type ServerError struct {
	Text string
}

func (e *ServerError) Error() string {
	return e.Text
}

// dispatch parses one inbound frame and routes it by kind. Malformed frames
// produce an error notification and leave all counters and connection state
// untouched. Runs on the monitor goroutine, in arrival order.
func (c *Client) dispatch(data []byte, epoch int) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("malformed frame", "error", err)
		c.emitError(fmt.Errorf("malformed frame: %w", err))
		return
	}
	msg.Raw = data

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.metrics.messagesReceived++
	c.mu.Unlock()

	switch msg.Type {
	case KindEvent:
		c.dispatchEvent(msg, epoch)

	case KindConnection:
		c.emit(c.handlers.Connection, msg)

	case KindSubscription:
		c.emit(c.handlers.Subscription, msg)

	case KindStatus:
		c.emit(c.handlers.Status, msg)

	case KindSystem:
		c.emit(c.handlers.System, msg)

	case KindPong:
		// Heartbeat acknowledgment, consumed silently.
		c.logger.Debug("pong received")

	case KindError:
		text := msg.ErrorText
		if text == "" {
			text = "server reported an unspecified error"
		}
		c.emitError(&ServerError{Text: text})
		if h := c.handlers.Message; h != nil {
			h(msg)
		}

	default:
		c.logger.Warn("unknown message type, dropping", "type", msg.Type)
	}
}

// dispatchEvent decodes the resistance-event payload, updates counters and
// fires both the typed and the generic notification.
func (c *Client) dispatchEvent(msg Message, epoch int) {
	var evt model.ResistanceEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		c.logger.Warn("bad event payload", "error", err)
		c.emitError(fmt.Errorf("bad event payload: %w", err))
		return
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.metrics.eventsReceived++
	c.metrics.lastEventAt = timeNow()
	c.mu.Unlock()

	if h := c.handlers.ResistanceEvent; h != nil {
		h(EventNotification{
			Event:      evt,
			Instrument: msg.Instrument,
			Timeframe:  msg.Timeframe,
			Timestamp:  msg.Timestamp.Time,
		})
	}
	if h := c.handlers.Message; h != nil {
		h(msg)
	}
}

// emit fires a kind-specific observer plus the generic one.
func (c *Client) emit(h func(Message), msg Message) {
	if h != nil {
		h(msg)
	}
	if g := c.handlers.Message; g != nil {
		g(msg)
	}
}

// emitError fires the error observer. Never panics out of a callback path.
func (c *Client) emitError(err error) {
	if h := c.handlers.Error; h != nil {
		h(err)
	}
}
