package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/thyrook/boardsight/internal/config"
	"github.com/thyrook/boardsight/internal/engine"
	"github.com/thyrook/boardsight/internal/storage"
	"github.com/thyrook/boardsight/internal/vision"
	"github.com/thyrook/boardsight/internal/worker"
)

func main() {
	configPath := flag.String("config", "boardsight.json", "Path to configuration file")
	autostart := flag.Bool("start", false, "Begin analyzing immediately")
	flag.Parse()

	fmt.Println("=== Boardsight Live Analysis ===")
	fmt.Println()

	// Load configuration, falling back to defaults when missing
	var cfg *config.Config
	if _, statErr := os.Stat(*configPath); os.IsNotExist(statErr) {
		log.Printf("Config file not found, using defaults: %s", *configPath)
		cfg = config.DefaultConfig()
	} else {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Printf("Error loading config, using defaults: %v", err)
			cfg = config.DefaultConfig()
		}
	}
	fmt.Println(cfg.String())

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Detection model
	detector, err := vision.NewONNXDetector(cfg.Vision.ModelPath)
	if err != nil {
		log.Fatalf("Failed to load detection model: %v", err)
	}
	defer detector.Close()
	fmt.Println("Detection model loaded")

	// Engine session
	session := engine.NewSession(cfg.Engine.Path, logger)
	if err := session.Start(); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}
	defer session.Close()

	engineOpts := engine.Options{
		Threads: cfg.Engine.Threads,
		HashMB:  cfg.Engine.HashMB,
		MultiPV: cfg.Analysis.Lines,
	}
	if err := session.ApplyOptions(engineOpts); err != nil {
		log.Fatalf("Failed to configure engine: %v", err)
	}
	fmt.Printf("Engine ready: %s\n", cfg.Engine.Path)

	// Analysis history
	var history *storage.History
	if cfg.Storage.HistoryPath != "" && cfg.Storage.HistorySize > 0 {
		history, err = storage.OpenHistory(cfg.Storage.HistoryPath, cfg.Storage.HistorySize)
		if err != nil {
			logger.Warn("History disabled", zap.Error(err))
		} else {
			defer history.Close()
		}
	}

	settings := config.NewSettings(cfg)
	settings.SetRunning(*autostart)

	w := worker.New(
		settings,
		vision.NewScreenGrabber(),
		detector,
		session,
		engineOpts,
		history,
		logger,
	)
	if err := w.Start(); err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}
	defer w.Stop()

	if *autostart {
		fmt.Println("\nWatching for positions (Ctrl+C to stop)...")
	} else {
		fmt.Println("\nWorker idle; enable the running flag to analyze")
	}
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case result := <-w.Results():
			// The overlay renderer consumes these segments; here they are
			// reported on the console.
			fmt.Printf("\n[%s] %s to move\n",
				result.Timestamp.Format("15:04:05"), sideName(result.WhiteToMove))
			fmt.Printf("  Position: %s (%s)\n", result.Placement, result.Orientation)
			for i, move := range result.Moves {
				fmt.Printf("  %d. %s\n", i+1, move)
			}
			for _, seg := range result.Segments {
				fmt.Printf("     arrow (%.0f,%.0f) -> (%.0f,%.0f) alpha=%d\n",
					seg.From.X, seg.From.Y, seg.To.X, seg.To.Y, seg.Color.A)
			}

		case <-sigChan:
			fmt.Println("\nStopping analysis...")
			stats := w.GetStats()
			fmt.Printf("\nSession Statistics:\n")
			fmt.Printf("  Cycles: %d\n", stats.Cycles)
			fmt.Printf("  Published: %d\n", stats.Published)
			fmt.Printf("  Validation skips: %d\n", stats.ValidationSkip)
			fmt.Printf("  Engine restarts: %d\n", stats.EngineRestarts)
			if stats.Errors > 0 {
				fmt.Printf("  Errors: %d\n", stats.Errors)
			}
			return
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func sideName(white bool) string {
	if white {
		return "white"
	}
	return "black"
}
