package writer

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"resistance-stream/internal/model"
)

func sampleEvent() model.ResistanceEvent {
	volume := 4182.0
	atr := 0.0041
	return model.ResistanceEvent{
		ID:             uuid.MustParse("8f14e45f-ceea-467f-a34f-b6a137f652c1"),
		EventType:      model.EventNewResistance,
		Instrument:     "EUR_USD",
		Timeframe:      model.TimeframeH1,
		EventTimestamp: model.Timestamp{Time: time.Date(2025, 6, 12, 14, 0, 0, 0, time.UTC)},
		GreenCandle: model.Candle{
			Open: 1.0841, High: 1.0862, Low: 1.0838, Close: 1.0859, Volume: &volume,
		},
		RedCandle: model.Candle{
			Open: 1.0859, High: 1.0861, Low: 1.0827, Close: 1.0833,
		},
		ResistanceLevel:   1.0862,
		ReboundAmplitude:  0.0035,
		ReboundPercentage: 0.3221,
		ATRValue:          &atr,
		DayOfWeek:         3,
		HourOfDay:         14,
		DetectedAt:        model.Timestamp{Time: time.Date(2025, 6, 12, 14, 0, 1, 0, time.UTC)},
	}
}

func TestTransform(t *testing.T) {
	evt := sampleEvent()
	row := transform(evt)

	if row.ID != "8f14e45f-ceea-467f-a34f-b6a137f652c1" {
		t.Errorf("id = %q", row.ID)
	}
	if row.EventType != "new_resistance" {
		t.Errorf("event_type = %q", row.EventType)
	}
	if row.Instrument != "EUR_USD" || row.Timeframe != "H1" {
		t.Errorf("topic = %s/%s", row.Instrument, row.Timeframe)
	}
	if row.GreenHigh != 1.0862 || row.RedClose != 1.0833 {
		t.Errorf("candles = green_high %v, red_close %v", row.GreenHigh, row.RedClose)
	}
	if row.GreenVolume == nil || *row.GreenVolume != 4182 {
		t.Errorf("green_volume = %v", row.GreenVolume)
	}
	if row.RedVolume != nil {
		t.Errorf("red_volume should be nil, got %v", *row.RedVolume)
	}
	if row.ATRValue == nil || *row.ATRValue != 0.0041 {
		t.Errorf("atr_value = %v", row.ATRValue)
	}
	if row.ReboundInATR != nil {
		t.Errorf("rebound_in_atr should be nil, got %v", *row.ReboundInATR)
	}
	if !row.EventTimestamp.Equal(evt.EventTimestamp.Time) {
		t.Errorf("event_timestamp = %v", row.EventTimestamp)
	}
	if row.DayOfWeek != 3 || row.HourOfDay != 14 {
		t.Errorf("day/hour = %d/%d", row.DayOfWeek, row.HourOfDay)
	}
}

func TestWrite_DropsWhenBufferFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferSize = 1

	// No Start call, so nothing consumes the input channel.
	w := NewEventWriter(cfg, nil, nil)

	w.Write(sampleEvent())
	w.Write(sampleEvent())
	w.Write(sampleEvent())

	stats := w.Stats()
	if stats.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", stats.Dropped)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d", cfg.BatchSize)
	}
	if cfg.FlushInterval != time.Second {
		t.Errorf("FlushInterval = %v", cfg.FlushInterval)
	}
	if cfg.BufferSize != 1000 {
		t.Errorf("BufferSize = %d", cfg.BufferSize)
	}
}
