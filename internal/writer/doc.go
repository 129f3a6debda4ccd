// Package writer implements the batched Postgres sink for received
// resistance events.
//
// The writer is append-only: events are inserted with ON CONFLICT DO NOTHING
// keyed on the backend-assigned event id, so replays after a reconnect never
// duplicate rows.
package writer
