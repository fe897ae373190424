package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seisscan/seisscan/internal/config"
	"github.com/seisscan/seisscan/internal/detect"
	"github.com/seisscan/seisscan/internal/logger"
	"github.com/seisscan/seisscan/internal/runner"
	"github.com/seisscan/seisscan/internal/source"
	"github.com/seisscan/seisscan/internal/storage"
	"github.com/seisscan/seisscan/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

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
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	events, err := source.LoadCatalog(cfg.Data.CatalogPath)
	if err != nil {
		logger.Fatal("Failed to load catalog: %v", err)
	}
	days, err := source.LoadDays(cfg.Data.DayListPath)
	if err != nil {
		logger.Fatal("Failed to load day list: %v", err)
	}
	logger.Info("Loaded %d catalog templates and %d days", len(events), len(days))

	src := &source.Source{
		ContinuousDir:   cfg.Data.ContinuousDir,
		TemplateDir:     cfg.Data.TemplateDir,
		TravelTimeDir:   cfg.Data.TravelTimeDir,
		Networks:        cfg.Data.Networks,
		Stations:        cfg.Data.Stations,
		Channels:        cfg.Data.Channels,
		MinChannelCount: cfg.Detection.MinChannelCount,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var notifier runner.Notifier
	if cfg.Telegram.Enabled {
		telegramClient, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, 3, time.Second)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		telegramClient.ListenForCommands(ctx)
		notifier = telegramClient
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, finishing current unit...")
		cancel()
	}()

	params := detect.Params{
		SampleTolerance:   cfg.Detection.SampleTolerance,
		CCThreshold:       cfg.Detection.CCThreshold,
		MinChannelCount:   cfg.Detection.MinChannelCount,
		TemplateLength:    cfg.Detection.TemplateLength,
		TimePrecision:     cfg.Detection.TimePrecision,
		ThresholdFactor:   cfg.Detection.ThresholdFactor,
		StdUp:             cfg.Detection.StdUp,
		StdDown:           cfg.Detection.StdDown,
		OffExtension:      cfg.Detection.OffExtension,
		MinCoincidenceSum: cfg.Detection.MinCoincidenceSum,
	}

	logger.Info("Starting scan (%d templates x %d days, threshold_factor: %.1f, min_channels: %d)",
		len(events), len(days), cfg.Detection.ThresholdFactor, cfg.Detection.MinChannelCount)

	startTime := time.Now()
	r := runner.New(src, store, notifier, params, cfg.Detection.DigestTopK)
	summary, err := r.Run(ctx, days, events)
	if err != nil {
		logger.Fatal("Scan aborted: %v", err)
	}

	logger.Info("Scan finished in %v: %d detections across %d units",
		time.Since(startTime), summary.TotalDetections, summary.UnitsRun)
}
