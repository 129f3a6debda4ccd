// Package stream implements the resistance-event stream client.
//
// The client:
//   - Owns a single WebSocket connection and its lifecycle state machine
//   - Reconnects with linear-capped backoff (interval x min(attempt, 5))
//   - Keeps subscriptions across reconnects and replays them on every open
//   - Queues outbound frames while disconnected, flushed FIFO on open
//   - Dispatches inbound frames to a closed set of typed handlers
//   - Sends application-level heartbeat pings while connected
package stream
