package model

import (
	"encoding/json"
	"testing"
	"time"
)

// serverEventJSON is a captured event payload in the backend's wire shape.
const serverEventJSON = `{
	"id": "8f14e45f-ceea-467f-a34f-b6a137f652c1",
	"event_type": "new_resistance",
	"instrument": "EUR_USD",
	"timeframe": "H1",
	"event_timestamp": "2025-06-12T14:00:00+00:00",
	"green_candle": {"open": 1.0841, "high": 1.0862, "low": 1.0838, "close": 1.0859, "volume": 4182},
	"red_candle": {"open": 1.0859, "high": 1.0861, "low": 1.0827, "close": 1.0833, "volume": 3907},
	"resistance_level": 1.0862,
	"rebound_amplitude": 0.0035,
	"rebound_percentage": 0.3221,
	"atr_value": 0.0041,
	"rebound_in_atr": 0.8537,
	"day_of_week": 3,
	"hour_of_day": 14,
	"detected_at": "2025-06-12T14:00:01.532000",
	"processing_latency_ms": 12.4
}`

func TestResistanceEvent_Unmarshal(t *testing.T) {
	var ev ResistanceEvent
	if err := json.Unmarshal([]byte(serverEventJSON), &ev); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if ev.ID.String() != "8f14e45f-ceea-467f-a34f-b6a137f652c1" {
		t.Errorf("id = %s", ev.ID)
	}
	if ev.EventType != EventNewResistance {
		t.Errorf("event_type = %q", ev.EventType)
	}
	if ev.Instrument != "EUR_USD" || ev.Timeframe != TimeframeH1 {
		t.Errorf("topic = %s/%s", ev.Instrument, ev.Timeframe)
	}
	if ev.GreenCandle.High != 1.0862 {
		t.Errorf("green high = %v", ev.GreenCandle.High)
	}
	if ev.GreenCandle.Volume == nil || *ev.GreenCandle.Volume != 4182 {
		t.Errorf("green volume = %v", ev.GreenCandle.Volume)
	}
	if ev.RedCandle.Close != 1.0833 {
		t.Errorf("red close = %v", ev.RedCandle.Close)
	}
	if ev.ResistanceLevel != 1.0862 {
		t.Errorf("resistance_level = %v", ev.ResistanceLevel)
	}
	if ev.ATRValue == nil || *ev.ATRValue != 0.0041 {
		t.Errorf("atr_value = %v", ev.ATRValue)
	}
	if ev.DayOfWeek != 3 || ev.HourOfDay != 14 {
		t.Errorf("day/hour = %d/%d", ev.DayOfWeek, ev.HourOfDay)
	}
	if ev.ProcessingLatencyMS == nil || *ev.ProcessingLatencyMS != 12.4 {
		t.Errorf("processing_latency_ms = %v", ev.ProcessingLatencyMS)
	}

	wantTS := time.Date(2025, 6, 12, 14, 0, 0, 0, time.UTC)
	if !ev.EventTimestamp.Equal(wantTS) {
		t.Errorf("event_timestamp = %v, want %v", ev.EventTimestamp.Time, wantTS)
	}
	wantDetected := time.Date(2025, 6, 12, 14, 0, 1, 532000000, time.UTC)
	if !ev.DetectedAt.Equal(wantDetected) {
		t.Errorf("detected_at = %v, want %v", ev.DetectedAt.Time, wantDetected)
	}
}

func TestResistanceEvent_OptionalFieldsAbsent(t *testing.T) {
	payload := `{
		"id": "8f14e45f-ceea-467f-a34f-b6a137f652c1",
		"event_type": "new_resistance",
		"instrument": "XAU_USD",
		"timeframe": "M15",
		"event_timestamp": "2025-06-12T14:00:00+00:00",
		"green_candle": {"open": 1, "high": 2, "low": 0.5, "close": 1.8},
		"red_candle": {"open": 1.8, "high": 1.9, "low": 1.2, "close": 1.3},
		"resistance_level": 2,
		"rebound_amplitude": 0.7,
		"rebound_percentage": 35,
		"day_of_week": 0,
		"hour_of_day": 9,
		"detected_at": "2025-06-12T14:00:01"
	}`

	var ev ResistanceEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if ev.ATRValue != nil {
		t.Errorf("atr_value should be nil, got %v", *ev.ATRValue)
	}
	if ev.ReboundInATR != nil {
		t.Errorf("rebound_in_atr should be nil, got %v", *ev.ReboundInATR)
	}
	if ev.GreenCandle.Volume != nil {
		t.Errorf("volume should be nil, got %v", *ev.GreenCandle.Volume)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			name:  "rfc3339 with offset",
			input: "2025-06-12T14:00:00+00:00",
			want:  time.Date(2025, 6, 12, 14, 0, 0, 0, time.UTC),
		},
		{
			name:  "rfc3339 zulu",
			input: "2025-06-12T14:00:00Z",
			want:  time.Date(2025, 6, 12, 14, 0, 0, 0, time.UTC),
		},
		{
			name:  "isoformat without zone",
			input: "2025-06-12T14:00:01.532000",
			want:  time.Date(2025, 6, 12, 14, 0, 1, 532000000, time.UTC),
		},
		{
			name:  "isoformat without fraction",
			input: "2025-06-12T14:00:01",
			want:  time.Date(2025, 6, 12, 14, 0, 1, 0, time.UTC),
		},
		{
			name:  "space separator",
			input: "2025-06-12 14:00:01.5",
			want:  time.Date(2025, 6, 12, 14, 0, 1, 500000000, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) failed: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got.Time, tt.want)
			}
		})
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	if _, err := ParseTimestamp("not a timestamp"); err == nil {
		t.Fatal("expected error")
	}
}

func TestTimestamp_MarshalNull(t *testing.T) {
	data, err := json.Marshal(Timestamp{})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != "null" {
		t.Errorf("zero timestamp = %s, want null", data)
	}
}

func TestTimestamp_UnmarshalNull(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte("null"), &ts); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !ts.IsZero() {
		t.Errorf("null should decode to zero time, got %v", ts.Time)
	}
}

func TestTimestamp_RoundTrip(t *testing.T) {
	in := Timestamp{time.Date(2025, 6, 12, 14, 0, 1, 532000000, time.UTC)}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var out Timestamp
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !out.Equal(in.Time) {
		t.Errorf("round trip = %v, want %v", out.Time, in.Time)
	}
}
