// Package worker runs the capture → decode → reconstruct → analyze → geometry
// pipeline on a single dedicated goroutine. All blocking I/O (screen capture,
// engine reads) happens here, never on a presentation thread; results are
// handed off through a single-slot channel that always carries the latest
// successful cycle.
package worker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thyrook/boardsight/internal/config"
	"github.com/thyrook/boardsight/internal/engine"
	"github.com/thyrook/boardsight/internal/geometry"
	"github.com/thyrook/boardsight/internal/storage"
	"github.com/thyrook/boardsight/internal/vision"
)

// Analyzer is the engine session surface the worker depends on
type Analyzer interface {
	Analyze(fen string, depth, lines int) ([]string, error)
	ApplyOptions(opt engine.Options) error
	Restart() error
}

// Result is the product of one successful pipeline cycle
type Result struct {
	Moves       []string
	Segments    []geometry.Segment
	Placement   string
	Orientation vision.Orientation
	Rect        vision.BoardRect
	WhiteToMove bool
	Timestamp   time.Time
}

// Stats tracks worker performance counters
type Stats struct {
	Cycles         int64
	Published      int64
	ValidationSkip int64
	EngineRestarts int64
	Errors         int64
	LastCycleTime  time.Duration
}

// Worker owns the pipeline loop
type Worker struct {
	settings   *config.Settings
	grabber    vision.Grabber
	inferencer vision.Inferencer
	analyzer   Analyzer
	engineOpts engine.Options
	history    *storage.History
	logger     *zap.Logger

	results chan Result
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
	stats   Stats
}

// New creates a worker. history may be nil to disable persistence.
func New(
	settings *config.Settings,
	grabber vision.Grabber,
	inferencer vision.Inferencer,
	analyzer Analyzer,
	engineOpts engine.Options,
	history *storage.History,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		settings:   settings,
		grabber:    grabber,
		inferencer: inferencer,
		analyzer:   analyzer,
		engineOpts: engineOpts,
		history:    history,
		logger:     logger,
		results:    make(chan Result, 1),
		stopCh:     make(chan struct{}),
	}
}

// Results returns the handoff channel. It holds at most one element: the most
// recently produced result. Consumers never block the worker.
func (w *Worker) Results() <-chan Result {
	return w.results
}

// Start launches the pipeline loop
func (w *Worker) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.runLoop()
	return nil
}

// Stop stops the pipeline loop and waits for the current cycle to finish
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()
}

// GetStats returns current worker statistics
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Worker) runLoop() {
	defer w.wg.Done()

	for {
		// The cadence follows the live setting, so the interval is derived
		// fresh each iteration instead of from a fixed ticker.
		snap := w.settings.Snapshot()
		fps := snap.FPS
		if fps < 1 {
			fps = 1
		}

		select {
		case <-w.stopCh:
			return
		case <-time.After(time.Second / time.Duration(fps)):
		}

		if !snap.Running || snap.Region.Empty() {
			continue
		}

		start := time.Now()
		err := w.runCycle(snap)

		w.mu.Lock()
		w.stats.Cycles++
		w.stats.LastCycleTime = time.Since(start)
		if err != nil {
			w.stats.Errors++
		}
		w.mu.Unlock()

		// Per-cycle failures degrade to "skip this cycle, keep prior overlay
		// state"; nothing here may terminate the loop.
		if err != nil {
			w.logger.Warn("Cycle failed", zap.Error(err))
		}
	}
}

// runCycle executes one full pipeline pass with the given settings snapshot.
// The snapshot was taken before any blocking work, so no lock is held across
// capture or engine I/O.
func (w *Worker) runCycle(snap config.Snapshot) error {
	frame, err := w.grabber.Capture(snap.Region.ToRectangle())
	if err != nil {
		return err
	}

	raw, err := w.inferencer.Infer(frame)
	if err != nil {
		return err
	}

	detections, err := vision.DecodeOutput(raw, snap.ConfidenceThreshold, snap.IoUThreshold)
	if err != nil {
		return err
	}

	pass, err := vision.Reconstruct(detections)
	if errors.Is(err, vision.ErrValidation) {
		// Expected while pieces are moving or the board is partly occluded.
		// The previous overlay stays in place; clearing it would flicker.
		w.mu.Lock()
		w.stats.ValidationSkip++
		w.mu.Unlock()
		w.logger.Debug("Validation skip", zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}

	fen, err := vision.PositionFEN(pass.Placement, snap.WhiteToMove)
	if err != nil {
		w.logger.Debug("Position rejected", zap.Error(err))
		return nil
	}

	moves, err := w.analyzer.Analyze(fen, snap.Depth, snap.Lines)
	if err != nil {
		return w.recoverEngine(err)
	}
	if len(moves) == 0 {
		// Timed-out search with nothing collected; keep the prior overlay.
		return nil
	}

	result := Result{
		Moves:       moves,
		Segments:    geometry.MoveSegments(moves, pass.Rect, pass.Orientation),
		Placement:   pass.Placement,
		Orientation: pass.Orientation,
		Rect:        pass.Rect,
		WhiteToMove: snap.WhiteToMove,
		Timestamp:   time.Now(),
	}
	w.publish(result)

	if w.history != nil {
		rec := storage.Record{
			Placement:   pass.Placement,
			Orientation: pass.Orientation.String(),
			WhiteToMove: snap.WhiteToMove,
			Moves:       moves,
			Timestamp:   result.Timestamp.Unix(),
		}
		if err := w.history.Append(rec); err != nil {
			w.logger.Warn("History write failed", zap.Error(err))
		}
	}

	w.logger.Info("Cycle complete",
		zap.String("placement", pass.Placement),
		zap.String("orientation", pass.Orientation.String()),
		zap.Strings("moves", moves),
	)
	return nil
}

// recoverEngine restarts the engine session after a stream failure and
// re-applies the configured options. The current cycle is skipped either way;
// a failed restart is retried on a later cycle.
func (w *Worker) recoverEngine(cause error) error {
	w.mu.Lock()
	w.stats.EngineRestarts++
	w.mu.Unlock()

	w.logger.Error("Engine failure, attempting restart", zap.Error(cause))

	if err := w.analyzer.Restart(); err != nil {
		return err
	}
	if err := w.analyzer.ApplyOptions(w.engineOpts); err != nil {
		return err
	}

	w.logger.Info("Engine restarted")
	return nil
}

// publish delivers a result to the single-slot channel, discarding a stale
// undelivered result if one is pending.
func (w *Worker) publish(result Result) {
	for {
		select {
		case w.results <- result:
			w.mu.Lock()
			w.stats.Published++
			w.mu.Unlock()
			return
		default:
		}

		select {
		case <-w.results:
		default:
		}
	}
}
