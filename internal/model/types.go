package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of market-structure event.
type EventType string

const (
	EventNewResistance EventType = "new_resistance"
	EventNewSupport    EventType = "new_support"
)

// Timeframe identifies the candle aggregation period of a subscription or event.
type Timeframe string

const (
	TimeframeM1  Timeframe = "M1"
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeM30 Timeframe = "M30"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
	TimeframeD   Timeframe = "D"
	TimeframeW   Timeframe = "W"
)

// Candle holds one OHLCV snapshot.
type Candle struct {
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume *float64 `json:"volume,omitempty"`
}

// ResistanceEvent is the domain payload carried by "event" frames: a price-level
// rejection detected when a green candle is followed by a red candle. Immutable
// once received.
type ResistanceEvent struct {
	ID         uuid.UUID `json:"id"`
	EventType  EventType `json:"event_type"`
	Instrument string    `json:"instrument"`
	Timeframe  Timeframe `json:"timeframe"`

	EventTimestamp Timestamp `json:"event_timestamp"`

	// GreenCandle is the candle that set the level, RedCandle the one that
	// rejected it.
	GreenCandle Candle `json:"green_candle"`
	RedCandle   Candle `json:"red_candle"`

	ResistanceLevel   float64 `json:"resistance_level"`
	ReboundAmplitude  float64 `json:"rebound_amplitude"`
	ReboundPercentage float64 `json:"rebound_percentage"`

	// ATR context at detection time (absent for instruments without enough history).
	ATRValue     *float64 `json:"atr_value,omitempty"`
	ReboundInATR *float64 `json:"rebound_in_atr,omitempty"`

	DayOfWeek int `json:"day_of_week"` // 0=Monday .. 6=Sunday
	HourOfDay int `json:"hour_of_day"` // 0-23

	DetectedAt          Timestamp `json:"detected_at"`
	ProcessingLatencyMS *float64  `json:"processing_latency_ms,omitempty"`
}

// Timestamp wraps time.Time with tolerant ISO-8601 decoding. The backend emits
// Python isoformat() strings which may omit the zone suffix; those are treated
// as UTC.
type Timestamp struct {
	time.Time
}

// timestampLayouts are tried in order when the payload is not RFC 3339.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp decodes an ISO-8601 string, defaulting to UTC when no zone is given.
func ParseTimestamp(s string) (Timestamp, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Timestamp{t}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Timestamp{t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		ts.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + ts.UTC().Format(time.RFC3339Nano) + `"`), nil
}
