package config

import "sync"

// Snapshot is a point-in-time copy of the runtime settings. The worker reads
// one snapshot per cycle so that no lock is held across blocking capture or
// engine I/O.
type Snapshot struct {
	Region              Region
	Depth               int
	Lines               int
	FPS                 int
	ConfidenceThreshold float32
	IoUThreshold        float32
	WhiteToMove         bool
	Running             bool
}

// Settings holds the mutable runtime state shared between the worker loop and
// the presentation layer. All fields are guarded by a single mutex.
type Settings struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewSettings creates runtime settings seeded from a configuration
func NewSettings(cfg *Config) *Settings {
	return &Settings{
		snap: Snapshot{
			Region:              cfg.Vision.BoardRegion,
			Depth:               cfg.Analysis.Depth,
			Lines:               cfg.Analysis.Lines,
			FPS:                 cfg.Analysis.FPS,
			ConfidenceThreshold: cfg.Vision.ConfidenceThreshold,
			IoUThreshold:        cfg.Vision.IoUThreshold,
			WhiteToMove:         cfg.Analysis.WhiteToMove,
		},
	}
}

// Snapshot returns a copy of the current settings
func (s *Settings) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// SetRunning toggles the analysis loop on or off. Takes effect on the next
// cycle; a cycle already in flight is not cancelled.
func (s *Settings) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Running = running
}

// SetRegion updates the board capture region
func (s *Settings) SetRegion(r Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Region = r
}

// SetDepth updates the engine search depth
func (s *Settings) SetDepth(depth int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Depth = depth
}

// SetLines updates the requested number of principal variations
func (s *Settings) SetLines(lines int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Lines = lines
}

// SetConfidenceThreshold updates the detection confidence gate
func (s *Settings) SetConfidenceThreshold(threshold float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.ConfidenceThreshold = threshold
}

// ToggleSide flips which side the analysis is run for and returns the new
// value (true = white to move)
func (s *Settings) ToggleSide() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.WhiteToMove = !s.snap.WhiteToMove
	return s.snap.WhiteToMove
}
