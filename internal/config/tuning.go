package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kestrel-robotics/gatekeeper/internal/fsutil"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/gate/params endpoint so the same JSON can be
// used for both startup configuration and runtime updates.
type TuningConfig struct {
	// Marker detection params
	TargetPayload  *string  `json:"target_payload,omitempty"`
	DetectionScale *float64 `json:"detection_scale,omitempty"`

	// Bounding box smoothing params
	SmoothingAlpha    *float64 `json:"smoothing_alpha,omitempty"`
	PersistenceFrames *int     `json:"persistence_frames,omitempty"`

	// Classifier params
	ClassifierStride      *int     `json:"classifier_stride,omitempty"`
	ClassifierPersistence *int     `json:"classifier_persistence,omitempty"`
	ClassifierConfidence  *float64 `json:"classifier_confidence,omitempty"`
	TargetClass           *string  `json:"target_class,omitempty"`

	// Safety gate params
	DistanceThresholdCM *int `json:"distance_threshold_cm,omitempty"`

	// Capture params
	CaptureFailureBudget *int     `json:"capture_failure_budget,omitempty"`
	CameraOpenAttempts   *int     `json:"camera_open_attempts,omitempty"`
	CameraOpenDelay      *string  `json:"camera_open_delay,omitempty"` // duration string like "1s"
	FixtureFPS           *float64 `json:"fixture_fps,omitempty"`

	// Recorder params
	FlushInterval *string `json:"flush_interval,omitempty"` // duration string like "5s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file on the OS
// filesystem.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	return LoadTuningConfigFS(fsutil.OSFileSystem{}, path)
}

// LoadTuningConfigFS loads a TuningConfig from a JSON file on the given
// filesystem. The file is validated to ensure it has a .json extension and is
// under the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadTuningConfigFS(fsys fsutil.FileSystem, path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath. It searches for the file in the current directory and
// common parent directories. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.SmoothingAlpha != nil {
		if *c.SmoothingAlpha < 0 || *c.SmoothingAlpha > 1 {
			return fmt.Errorf("smoothing_alpha must be between 0 and 1, got %f", *c.SmoothingAlpha)
		}
	}

	if c.DetectionScale != nil {
		if *c.DetectionScale <= 0 || *c.DetectionScale > 1 {
			return fmt.Errorf("detection_scale must be in (0, 1], got %f", *c.DetectionScale)
		}
	}

	if c.PersistenceFrames != nil {
		if *c.PersistenceFrames < 1 {
			return fmt.Errorf("persistence_frames must be at least 1, got %d", *c.PersistenceFrames)
		}
	}

	if c.ClassifierStride != nil {
		if *c.ClassifierStride < 1 {
			return fmt.Errorf("classifier_stride must be at least 1, got %d", *c.ClassifierStride)
		}
	}

	if c.ClassifierPersistence != nil {
		if *c.ClassifierPersistence < 1 {
			return fmt.Errorf("classifier_persistence must be at least 1, got %d", *c.ClassifierPersistence)
		}
	}

	if c.ClassifierConfidence != nil {
		if *c.ClassifierConfidence < 0 || *c.ClassifierConfidence > 1 {
			return fmt.Errorf("classifier_confidence must be between 0 and 1, got %f", *c.ClassifierConfidence)
		}
	}

	if c.DistanceThresholdCM != nil {
		if *c.DistanceThresholdCM < 0 {
			return fmt.Errorf("distance_threshold_cm must be non-negative, got %d", *c.DistanceThresholdCM)
		}
	}

	if c.CaptureFailureBudget != nil {
		if *c.CaptureFailureBudget < 1 {
			return fmt.Errorf("capture_failure_budget must be at least 1, got %d", *c.CaptureFailureBudget)
		}
	}

	if c.CameraOpenDelay != nil && *c.CameraOpenDelay != "" {
		if _, err := time.ParseDuration(*c.CameraOpenDelay); err != nil {
			return fmt.Errorf("invalid camera_open_delay '%s': %w", *c.CameraOpenDelay, err)
		}
	}

	if c.FlushInterval != nil && *c.FlushInterval != "" {
		if _, err := time.ParseDuration(*c.FlushInterval); err != nil {
			return fmt.Errorf("invalid flush_interval '%s': %w", *c.FlushInterval, err)
		}
	}

	return nil
}

// GetTargetPayload returns the target_payload value or the default.
func (c *TuningConfig) GetTargetPayload() string {
	if c.TargetPayload == nil || *c.TargetPayload == "" {
		return "ROBOT_R1"
	}
	return *c.TargetPayload
}

// GetDetectionScale returns the detection_scale value or the default.
func (c *TuningConfig) GetDetectionScale() float64 {
	if c.DetectionScale == nil {
		return 0.5
	}
	return *c.DetectionScale
}

// GetSmoothingAlpha returns the smoothing_alpha value or the default.
func (c *TuningConfig) GetSmoothingAlpha() float64 {
	if c.SmoothingAlpha == nil {
		return 0.6
	}
	return *c.SmoothingAlpha
}

// GetPersistenceFrames returns the persistence_frames value or the default.
func (c *TuningConfig) GetPersistenceFrames() int {
	if c.PersistenceFrames == nil {
		return 5
	}
	return *c.PersistenceFrames
}

// GetClassifierStride returns the classifier_stride value or the default.
func (c *TuningConfig) GetClassifierStride() int {
	if c.ClassifierStride == nil {
		return 3
	}
	return *c.ClassifierStride
}

// GetClassifierPersistence returns the classifier_persistence value or the default.
func (c *TuningConfig) GetClassifierPersistence() int {
	if c.ClassifierPersistence == nil {
		return 3
	}
	return *c.ClassifierPersistence
}

// GetClassifierConfidence returns the classifier_confidence value or the default.
func (c *TuningConfig) GetClassifierConfidence() float64 {
	if c.ClassifierConfidence == nil {
		return 0.5
	}
	return *c.ClassifierConfidence
}

// GetTargetClass returns the target_class value or the default.
func (c *TuningConfig) GetTargetClass() string {
	if c.TargetClass == nil || *c.TargetClass == "" {
		return "robot"
	}
	return *c.TargetClass
}

// GetDistanceThresholdCM returns the distance_threshold_cm value or the default.
func (c *TuningConfig) GetDistanceThresholdCM() int {
	if c.DistanceThresholdCM == nil {
		return 100
	}
	return *c.DistanceThresholdCM
}

// GetCaptureFailureBudget returns the capture_failure_budget value or the default.
func (c *TuningConfig) GetCaptureFailureBudget() int {
	if c.CaptureFailureBudget == nil {
		return 30
	}
	return *c.CaptureFailureBudget
}

// GetCameraOpenAttempts returns the camera_open_attempts value or the default.
func (c *TuningConfig) GetCameraOpenAttempts() int {
	if c.CameraOpenAttempts == nil || *c.CameraOpenAttempts < 1 {
		return 5
	}
	return *c.CameraOpenAttempts
}

// GetCameraOpenDelay parses and returns the CameraOpenDelay as a time.Duration.
func (c *TuningConfig) GetCameraOpenDelay() time.Duration {
	if c.CameraOpenDelay == nil || *c.CameraOpenDelay == "" {
		return time.Second
	}
	d, err := time.ParseDuration(*c.CameraOpenDelay)
	if err != nil {
		return time.Second // default on parse error
	}
	return d
}

// GetFixtureFPS returns the fixture_fps value or the default.
func (c *TuningConfig) GetFixtureFPS() float64 {
	if c.FixtureFPS == nil || *c.FixtureFPS <= 0 {
		return 15
	}
	return *c.FixtureFPS
}

// GetFlushInterval parses and returns the FlushInterval as a time.Duration.
func (c *TuningConfig) GetFlushInterval() time.Duration {
	if c.FlushInterval == nil || *c.FlushInterval == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(*c.FlushInterval)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return d
}
