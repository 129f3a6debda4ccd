// Package model defines the resistance-event domain types shared across the client.
//
// All types mirror the JSON shapes produced by the detection backend.
//
// Conventions:
//   - Prices: float64 (instrument quote precision, e.g. 5 digits for EUR_USD)
//   - Timestamps: time.Time, tolerant of ISO-8601 payloads without a zone suffix
//   - IDs: uuid.UUID assigned by the backend at detection time
package model
