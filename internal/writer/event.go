package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"resistance-stream/internal/model"
)

// EventWriter consumes resistance events and writes them to the
// resistance_events table in batches.
type EventWriter struct {
	cfg    Config
	logger *slog.Logger

	input chan model.ResistanceEvent

	db *pgxpool.Pool

	batch       []eventRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// eventRow is the flattened table representation of a ResistanceEvent.
type eventRow struct {
	ID                string
	EventType         string
	Instrument        string
	Timeframe         string
	EventTimestamp    time.Time
	GreenOpen         float64
	GreenHigh         float64
	GreenLow          float64
	GreenClose        float64
	GreenVolume       *float64
	RedOpen           float64
	RedHigh           float64
	RedLow            float64
	RedClose          float64
	RedVolume         *float64
	ResistanceLevel   float64
	ReboundAmplitude  float64
	ReboundPercentage float64
	ATRValue          *float64
	ReboundInATR      *float64
	DayOfWeek         int
	HourOfDay         int
	DetectedAt        time.Time
}

// NewEventWriter creates a new EventWriter.
func NewEventWriter(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *EventWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventWriter{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  make(chan model.ResistanceEvent, cfg.BufferSize),
		batch:  make([]eventRow, 0, cfg.BatchSize),
	}
}

// Write hands an event to the writer. Non-blocking: events are dropped with a
// warning when the buffer is full, so a slow database never stalls dispatch.
func (w *EventWriter) Write(evt model.ResistanceEvent) {
	select {
	case w.input <- evt:
	default:
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
		w.logger.Warn("writer buffer full, dropping event", "event_id", evt.ID)
	}
}

// Start begins consuming events and writing to the database.
func (w *EventWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("event writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer, flushing any pending batch.
func (w *EventWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping event writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("event writer stopped")
	case <-ctx.Done():
		w.logger.Warn("event writer stop timed out")
	}

	// Final flush uses a fresh context; w.ctx is already cancelled.
	w.flushWith(context.Background())

	return nil
}

// Stats returns current metrics.
func (w *EventWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads events and accumulates batches.
func (w *EventWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case evt := <-w.input:
			w.handleEvent(evt)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *EventWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flushWith(w.ctx)
		}
	}
}

// handleEvent transforms and adds an event to the batch.
func (w *EventWriter) handleEvent(evt model.ResistanceEvent) {
	row := transform(evt)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flushWith(w.ctx)
	}
}

// transform converts a ResistanceEvent to an eventRow.
func transform(evt model.ResistanceEvent) eventRow {
	return eventRow{
		ID:                evt.ID.String(),
		EventType:         string(evt.EventType),
		Instrument:        evt.Instrument,
		Timeframe:         string(evt.Timeframe),
		EventTimestamp:    evt.EventTimestamp.Time,
		GreenOpen:         evt.GreenCandle.Open,
		GreenHigh:         evt.GreenCandle.High,
		GreenLow:          evt.GreenCandle.Low,
		GreenClose:        evt.GreenCandle.Close,
		GreenVolume:       evt.GreenCandle.Volume,
		RedOpen:           evt.RedCandle.Open,
		RedHigh:           evt.RedCandle.High,
		RedLow:            evt.RedCandle.Low,
		RedClose:          evt.RedCandle.Close,
		RedVolume:         evt.RedCandle.Volume,
		ResistanceLevel:   evt.ResistanceLevel,
		ReboundAmplitude:  evt.ReboundAmplitude,
		ReboundPercentage: evt.ReboundPercentage,
		ATRValue:          evt.ATRValue,
		ReboundInATR:      evt.ReboundInATR,
		DayOfWeek:         evt.DayOfWeek,
		HourOfDay:         evt.HourOfDay,
		DetectedAt:        evt.DetectedAt.Time,
	}
}

// flushWith writes the current batch to the database.
func (w *EventWriter) flushWith(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]eventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *EventWriter) batchInsert(ctx context.Context, rows []eventRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO resistance_events (
				id, event_type, instrument, timeframe, event_timestamp,
				green_open, green_high, green_low, green_close, green_volume,
				red_open, red_high, red_low, red_close, red_volume,
				resistance_level, rebound_amplitude, rebound_percentage,
				atr_value, rebound_in_atr, day_of_week, hour_of_day, detected_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.EventType, r.Instrument, r.Timeframe, r.EventTimestamp,
			r.GreenOpen, r.GreenHigh, r.GreenLow, r.GreenClose, r.GreenVolume,
			r.RedOpen, r.RedHigh, r.RedLow, r.RedClose, r.RedVolume,
			r.ResistanceLevel, r.ReboundAmplitude, r.ReboundPercentage,
			r.ATRValue, r.ReboundInATR, r.DayOfWeek, r.HourOfDay, r.DetectedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
