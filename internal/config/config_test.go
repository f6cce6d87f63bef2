package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "Valid default",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "Confidence above one",
			mutate:  func(c *Config) { c.Vision.ConfidenceThreshold = 1.5 },
			wantErr: true,
		},
		{
			name:    "Negative confidence",
			mutate:  func(c *Config) { c.Vision.ConfidenceThreshold = -0.1 },
			wantErr: true,
		},
		{
			name:    "Zero IoU threshold",
			mutate:  func(c *Config) { c.Vision.IoUThreshold = 0 },
			wantErr: true,
		},
		{
			name:    "Zero depth",
			mutate:  func(c *Config) { c.Analysis.Depth = 0 },
			wantErr: true,
		},
		{
			name:    "Excessive depth",
			mutate:  func(c *Config) { c.Analysis.Depth = 50 },
			wantErr: true,
		},
		{
			name:    "Zero lines",
			mutate:  func(c *Config) { c.Analysis.Lines = 0 },
			wantErr: true,
		},
		{
			name:    "Too many lines",
			mutate:  func(c *Config) { c.Analysis.Lines = 11 },
			wantErr: true,
		},
		{
			name:    "Zero FPS",
			mutate:  func(c *Config) { c.Analysis.FPS = 0 },
			wantErr: true,
		},
		{
			name:    "Zero engine threads",
			mutate:  func(c *Config) { c.Engine.Threads = 0 },
			wantErr: true,
		},
		{
			name:    "Zero engine hash",
			mutate:  func(c *Config) { c.Engine.HashMB = 0 },
			wantErr: true,
		},
		{
			name:    "Negative history size",
			mutate:  func(c *Config) { c.Storage.HistorySize = -1 },
			wantErr: true,
		},
		{
			name:    "Zero history size disables storage",
			mutate:  func(c *Config) { c.Storage.HistorySize = 0 },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected valid config, got error: %v", err)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.Vision.BoardRegion = Region{X: 100, Y: 200, Width: 640, Height: 640}
	cfg.Analysis.Depth = 20
	cfg.Analysis.WhiteToMove = false

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Vision.BoardRegion != cfg.Vision.BoardRegion {
		t.Errorf("Region not preserved: %+v", loaded.Vision.BoardRegion)
	}
	if loaded.Analysis.Depth != 20 {
		t.Errorf("Expected depth 20, got %d", loaded.Analysis.Depth)
	}
	if loaded.Analysis.WhiteToMove {
		t.Error("Expected black to move")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.Analysis.Depth = 99
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected invalid config to be rejected on load")
	}
}

func TestRegion(t *testing.T) {
	r := Region{X: 10, Y: 20, Width: 100, Height: 200}

	rect := r.ToRectangle()
	if rect.Min.X != 10 || rect.Min.Y != 20 || rect.Max.X != 110 || rect.Max.Y != 220 {
		t.Errorf("Unexpected rectangle: %v", rect)
	}

	if r.Empty() {
		t.Error("Expected non-empty region")
	}
	if !(Region{}).Empty() {
		t.Error("Expected zero region to be empty")
	}
	if !(Region{Width: 100}).Empty() {
		t.Error("Expected zero-height region to be empty")
	}
}

func TestSettingsSnapshot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Vision.BoardRegion = Region{X: 1, Y: 2, Width: 3, Height: 4}
	s := NewSettings(cfg)

	snap := s.Snapshot()
	if snap.Region != cfg.Vision.BoardRegion {
		t.Errorf("Region not seeded: %+v", snap.Region)
	}
	if snap.Depth != cfg.Analysis.Depth || snap.Lines != cfg.Analysis.Lines {
		t.Error("Analysis settings not seeded")
	}
	if snap.Running {
		t.Error("Expected Running to start false")
	}

	// Mutations after the snapshot was taken must not leak into it
	s.SetDepth(25)
	s.SetRegion(Region{X: 9, Y: 9, Width: 9, Height: 9})
	if snap.Depth != cfg.Analysis.Depth {
		t.Error("Snapshot must be immune to later mutations")
	}

	snap = s.Snapshot()
	if snap.Depth != 25 {
		t.Errorf("Expected updated depth 25, got %d", snap.Depth)
	}
	if snap.Region.X != 9 {
		t.Errorf("Expected updated region, got %+v", snap.Region)
	}
}

func TestSettingsToggleSide(t *testing.T) {
	s := NewSettings(DefaultConfig())

	if !s.Snapshot().WhiteToMove {
		t.Fatal("Expected white to move initially")
	}

	if got := s.ToggleSide(); got {
		t.Error("Expected toggle to return false")
	}
	if s.Snapshot().WhiteToMove {
		t.Error("Expected black to move after toggle")
	}

	if got := s.ToggleSide(); !got {
		t.Error("Expected toggle back to white")
	}
}

func TestSettingsSetRunning(t *testing.T) {
	s := NewSettings(DefaultConfig())

	s.SetRunning(true)
	if !s.Snapshot().Running {
		t.Error("Expected running true")
	}

	s.SetRunning(false)
	if s.Snapshot().Running {
		t.Error("Expected running false")
	}
}
