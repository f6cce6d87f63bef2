package config

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
)

// Config represents the application configuration
type Config struct {
	Vision   VisionConfig   `json:"vision"`
	Engine   EngineConfig   `json:"engine"`
	Analysis AnalysisConfig `json:"analysis"`
	Storage  StorageConfig  `json:"storage"`
	LogLevel string         `json:"log_level"`
}

// VisionConfig contains capture and detection settings
type VisionConfig struct {
	BoardRegion         Region  `json:"board_region"`
	ModelPath           string  `json:"model_path"`
	ConfidenceThreshold float32 `json:"confidence_threshold"`
	IoUThreshold        float32 `json:"iou_threshold"`
}

// Region defines a screen capture area
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ToRectangle converts Region to image.Rectangle
func (r Region) ToRectangle() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Empty reports whether the region has no area
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// EngineConfig contains UCI engine process settings
type EngineConfig struct {
	Path    string `json:"path"`
	Threads int    `json:"threads"`
	HashMB  int    `json:"hash_mb"`
}

// AnalysisConfig contains search and scheduling settings
type AnalysisConfig struct {
	Depth       int  `json:"depth"`
	Lines       int  `json:"lines"`
	FPS         int  `json:"fps"`
	WhiteToMove bool `json:"white_to_move"`
}

// StorageConfig contains analysis history settings
type StorageConfig struct {
	HistoryPath string `json:"history_path"`
	HistorySize int    `json:"history_size"`
}

// DefaultConfig returns default application configuration
func DefaultConfig() *Config {
	return &Config{
		Vision: VisionConfig{
			ModelPath:           "data/board_detector.onnx",
			ConfidenceThreshold: 0.5,
			IoUThreshold:        0.45,
		},
		Engine: EngineConfig{
			Path:    "stockfish",
			Threads: 4,
			HashMB:  256,
		},
		Analysis: AnalysisConfig{
			Depth:       15,
			Lines:       3,
			FPS:         2, // 2 analysis cycles per second
			WhiteToMove: true,
		},
		Storage: StorageConfig{
			HistoryPath: "data/analysis_history.db",
			HistorySize: 1000,
		},
		LogLevel: "info",
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Vision.ConfidenceThreshold < 0 || c.Vision.ConfidenceThreshold > 1 {
		return fmt.Errorf("invalid confidence threshold: %f (must be 0-1)", c.Vision.ConfidenceThreshold)
	}

	if c.Vision.IoUThreshold <= 0 || c.Vision.IoUThreshold > 1 {
		return fmt.Errorf("invalid IoU threshold: %f (must be 0-1)", c.Vision.IoUThreshold)
	}

	if c.Analysis.Depth < 1 || c.Analysis.Depth > 40 {
		return fmt.Errorf("invalid search depth: %d (must be 1-40)", c.Analysis.Depth)
	}

	if c.Analysis.Lines < 1 || c.Analysis.Lines > 10 {
		return fmt.Errorf("invalid line count: %d (must be 1-10)", c.Analysis.Lines)
	}

	if c.Analysis.FPS < 1 || c.Analysis.FPS > 30 {
		return fmt.Errorf("invalid FPS: %d (must be 1-30)", c.Analysis.FPS)
	}

	if c.Engine.Threads < 1 {
		return fmt.Errorf("invalid engine thread count: %d", c.Engine.Threads)
	}

	if c.Engine.HashMB < 1 {
		return fmt.Errorf("invalid engine hash size: %d", c.Engine.HashMB)
	}

	if c.Storage.HistorySize < 0 {
		return fmt.Errorf("invalid history size: %d", c.Storage.HistorySize)
	}

	return nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Boardsight Config:\n"+
			"  Board Region: (%d,%d) %dx%d\n"+
			"  Model: %s\n"+
			"  Confidence: %.2f  IoU: %.2f\n"+
			"  Engine: %s (threads=%d hash=%dMB)\n"+
			"  Depth: %d  Lines: %d  FPS: %d\n"+
			"  Side: %s\n",
		c.Vision.BoardRegion.X, c.Vision.BoardRegion.Y,
		c.Vision.BoardRegion.Width, c.Vision.BoardRegion.Height,
		c.Vision.ModelPath,
		c.Vision.ConfidenceThreshold, c.Vision.IoUThreshold,
		c.Engine.Path, c.Engine.Threads, c.Engine.HashMB,
		c.Analysis.Depth, c.Analysis.Lines, c.Analysis.FPS,
		sideName(c.Analysis.WhiteToMove),
	)
}

func sideName(white bool) string {
	if white {
		return "white"
	}
	return "black"
}
