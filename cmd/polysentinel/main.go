package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rewired-gh/polysentinel/internal/config"
	"github.com/rewired-gh/polysentinel/internal/detector"
	"github.com/rewired-gh/polysentinel/internal/feed"
	"github.com/rewired-gh/polysentinel/internal/logger"
	"github.com/rewired-gh/polysentinel/internal/metrics"
	"github.com/rewired-gh/polysentinel/internal/pipeline"
	"github.com/rewired-gh/polysentinel/internal/sink"
	"github.com/rewired-gh/polysentinel/internal/telegram"
)

var configPath = flag.String("config", "", "Path to configuration file (defaults and environment only when empty)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if *configPath != "" {
		logger.Info("Configuration loaded from %s", *configPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Address); err != nil {
				logger.Error("%v", err)
			}
		}()
	}

	sinks := []sink.Sink{sink.Log{}}
	var telegramClient *telegram.Client
	var telegramSink *sink.Telegram
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		telegramSink = sink.NewTelegram(telegramClient, cfg.Telegram.BufferSize)
		sinks = append(sinks, telegramSink)
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	store := detector.NewStore(detector.Config{
		Alpha:          cfg.Detector.Alpha,
		WarmupLimit:    cfg.Detector.WarmupLimit,
		PriceThreshold: cfg.Detector.PriceThreshold,
		SizeRatio:      cfg.Detector.SizeRatio,
		MinSize:        cfg.Detector.MinSize,
	})

	pipe := pipeline.New(pipeline.Config{
		DecodeWorkers:     cfg.Pipeline.DecodeWorkers,
		AnalysisWorkers:   cfg.Pipeline.AnalysisWorkers,
		MinParallelism:    cfg.Pipeline.MinParallelism,
		HeartbeatInterval: cfg.Pipeline.HeartbeatInterval,
		EmitSummary:       cfg.Pipeline.EmitSummary,
	}, store, sink.Multi(sinks...), m)

	if err := pipe.Start(ctx); err != nil {
		logger.Fatal("Failed to start pipeline: %v", err)
	}

	if telegramClient != nil {
		telegramClient.SetStatusFunc(pipe.Status)
		telegramClient.SetMarketFunc(pipe.MarketStatus)
		telegramClient.ListenForCommands(ctx)
	}

	// signals only cancel; teardown happens in pipe.Shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	feedErr := make(chan error, 1)
	switch cfg.Input.Source {
	case "websocket":
		poly := feed.NewPolymarket(feed.PolymarketConfig{
			URL:               cfg.Input.WebsocketURL,
			PingInterval:      cfg.Input.PingInterval,
			ReconnectInterval: cfg.Input.ReconnectInterval,
			MaxRetries:        cfg.Input.MaxRetries,
		})
		go func() { feedErr <- poly.Run(ctx, pipe) }()
	default:
		logger.Info("Waiting for input on %s", cfg.Input.PipePath)
		in, err := feed.OpenPipe(cfg.Input.PipePath)
		if err != nil {
			pipe.Shutdown()
			logger.Fatal("%v", err)
		}
		go func() { feedErr <- readInput(ctx, in, pipe) }()
	}

	select {
	case <-ctx.Done():
	case err := <-feedErr:
		if err != nil {
			logger.Error("Input stream failed: %v", err)
			if telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			logger.Info("Input stream closed")
		}
	}

	pipe.Shutdown()
	<-pipe.Done()
	if telegramSink != nil {
		telegramSink.Close()
	}
	cancel()
	logger.Info("Exited successfully")
}

// readInput forwards lines from in and closes it when ctx ends so a blocked
// read returns.
func readInput(ctx context.Context, in io.ReadCloser, pipe *pipeline.Pipeline) error {
	stop := context.AfterFunc(ctx, func() { _ = in.Close() })
	defer stop()
	defer in.Close()

	if err := feed.ReadLines(ctx, in, pipe); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
