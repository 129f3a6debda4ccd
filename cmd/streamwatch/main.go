// streamwatch connects to the resistance-event stream and logs events to the
// console, optionally persisting them to Postgres.
//
// Usage: go run ./cmd/streamwatch --config configs/streamwatch.yaml
//
// A .env file in the working directory is loaded before the config so that
// ${VAR} references in the YAML resolve.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"resistance-stream/internal/config"
	"resistance-stream/internal/database"
	"resistance-stream/internal/stream"
	"resistance-stream/internal/version"
	"resistance-stream/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/streamwatch.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "debug logging and full frame dumps")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	logger.Info("starting streamwatch", "version", version.String())

	// Optional .env bootstrap; absence is fine.
	if err := godotenv.Load(); err == nil {
		logger.Debug("loaded .env")
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	// Optional Postgres sink.
	var eventWriter *writer.EventWriter
	if cfg.Database.Enabled {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		eventWriter = writer.NewEventWriter(writer.Config{
			BatchSize:     cfg.Writer.BatchSize,
			FlushInterval: cfg.Writer.FlushInterval,
			BufferSize:    cfg.Writer.BufferSize,
		}, pool, logger)

		if err := eventWriter.Start(ctx); err != nil {
			logger.Error("failed to start event writer", "error", err)
			os.Exit(1)
		}
	}

	streamCfg := stream.Config{
		URL:                  cfg.Stream.URL,
		ClientID:             cfg.Stream.ClientID,
		Token:                cfg.Stream.Token,
		AutoReconnect:        cfg.Stream.Reconnect(),
		ReconnectInterval:    cfg.Stream.ReconnectInterval,
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
		HeartbeatInterval:    cfg.Stream.HeartbeatInterval,
	}

	handlers := stream.Handlers{
		StateChange: func(old, next stream.State) {
			logger.Info("connection state", "from", old.String(), "to", next.String())
		},
		ResistanceEvent: func(n stream.EventNotification) {
			logger.Info("resistance event",
				"instrument", n.Instrument,
				"timeframe", n.Timeframe,
				"type", string(n.Event.EventType),
				"level", n.Event.ResistanceLevel,
				"rebound_pct", n.Event.ReboundPercentage,
			)
			if eventWriter != nil {
				eventWriter.Write(n.Event)
			}
		},
		Error: func(err error) {
			logger.Warn("stream error", "error", err)
		},
		Disconnected: func(code int, reason string) {
			logger.Warn("stream disconnected", "code", code, "reason", reason)
		},
	}
	if *verbose {
		handlers.Message = func(msg stream.Message) {
			pretty, _ := json.Marshal(json.RawMessage(msg.Raw))
			logger.Debug("frame", "type", msg.Type, "raw", string(pretty))
		}
	}

	client := stream.NewClient(streamCfg, handlers, logger)

	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	if len(cfg.Subscriptions) == 0 {
		// No explicit topics configured: watch everything.
		client.Subscribe(stream.Wildcard, stream.Wildcard)
	}
	for _, sub := range cfg.Subscriptions {
		client.Subscribe(sub.Instrument, sub.Timeframe)
	}

	logger.Info("streamwatch running",
		"url", cfg.Stream.URL,
		"client_id", client.ClientID(),
		"subscriptions", len(cfg.Subscriptions),
	)

	<-ctx.Done()

	client.Disconnect()

	if eventWriter != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		eventWriter.Stop(stopCtx)
		stats := eventWriter.Stats()
		logger.Info("writer stats",
			"inserts", stats.Inserts,
			"conflicts", stats.Conflicts,
			"errors", stats.Errors,
			"dropped", stats.Dropped,
		)
	}

	m := client.Metrics()
	logger.Info("session summary",
		"messages", m.MessagesReceived,
		"events", m.EventsReceived,
		"reconnect_attempts", m.ReconnectAttempts,
	)
}
