// Package config loads viewer settings from JSON. All fields are pointers so
// a partial config file only overrides what it names; the Get* accessors
// supply defaults for the rest.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ViewerConfig represents the root configuration for the viewer. The schema
// matches the flags on the lidarview binary so the same names appear in both
// places.
type ViewerConfig struct {
	// Stream params
	SensorID        *string  `json:"sensor_id,omitempty"`
	ServerAddress   *string  `json:"server_address,omitempty"`
	PointDecimation *int     `json:"point_decimation,omitempty"` // decimation mode enum
	DecimationRatio *float64 `json:"decimation_ratio,omitempty"` // fraction of points kept

	// Replay params
	ReplayRate *float64 `json:"replay_rate,omitempty"`

	// Monitor params
	MonitorAddress    *string `json:"monitor_address,omitempty"`
	TelemetryInterval *string `json:"telemetry_interval,omitempty"` // duration string like "1s"
	TelemetryWindow   *int    `json:"telemetry_window,omitempty"`   // samples retained

	// History params
	HistoryPath          *string `json:"history_path,omitempty"`
	HistoryStatsInterval *string `json:"history_stats_interval,omitempty"` // duration string like "10s"
}

// EmptyViewerConfig returns a ViewerConfig with all fields set to nil.
func EmptyViewerConfig() *ViewerConfig {
	return &ViewerConfig{}
}

// LoadViewerConfig loads a ViewerConfig from a JSON file. The file must have
// a .json extension and be under 1MB. Fields omitted from the JSON retain
// their defaults, so partial configs are safe.
func LoadViewerConfig(path string) (*ViewerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyViewerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ViewerConfig) Validate() error {
	if c.ReplayRate != nil && *c.ReplayRate <= 0 {
		return fmt.Errorf("replay_rate must be positive, got %f", *c.ReplayRate)
	}
	if c.PointDecimation != nil && *c.PointDecimation < 0 {
		return fmt.Errorf("point_decimation must be >= 0, got %d", *c.PointDecimation)
	}
	if c.DecimationRatio != nil && (*c.DecimationRatio <= 0 || *c.DecimationRatio > 1) {
		return fmt.Errorf("decimation_ratio must be in (0, 1], got %f", *c.DecimationRatio)
	}
	if c.TelemetryWindow != nil && *c.TelemetryWindow < 1 {
		return fmt.Errorf("telemetry_window must be >= 1, got %d", *c.TelemetryWindow)
	}
	if c.TelemetryInterval != nil && *c.TelemetryInterval != "" {
		if _, err := time.ParseDuration(*c.TelemetryInterval); err != nil {
			return fmt.Errorf("invalid telemetry_interval: %w", err)
		}
	}
	if c.HistoryStatsInterval != nil && *c.HistoryStatsInterval != "" {
		if _, err := time.ParseDuration(*c.HistoryStatsInterval); err != nil {
			return fmt.Errorf("invalid history_stats_interval: %w", err)
		}
	}
	return nil
}

// GetSensorID returns the sensor_id value or the default.
func (c *ViewerConfig) GetSensorID() string {
	if c.SensorID == nil || *c.SensorID == "" {
		return "lidar-01"
	}
	return *c.SensorID
}

// GetServerAddress returns the server_address value or the default.
func (c *ViewerConfig) GetServerAddress() string {
	if c.ServerAddress == nil || *c.ServerAddress == "" {
		return "localhost:50051"
	}
	return *c.ServerAddress
}

// GetPointDecimation returns the decimation mode or the default (none).
func (c *ViewerConfig) GetPointDecimation() int {
	if c.PointDecimation == nil {
		return 0
	}
	return *c.PointDecimation
}

// GetDecimationRatio returns the decimation_ratio value or the default.
func (c *ViewerConfig) GetDecimationRatio() float64 {
	if c.DecimationRatio == nil {
		return 1.0
	}
	return *c.DecimationRatio
}

// GetReplayRate returns the replay_rate value or the default.
func (c *ViewerConfig) GetReplayRate() float64 {
	if c.ReplayRate == nil {
		return 1.0
	}
	return *c.ReplayRate
}

// GetMonitorAddress returns the monitor_address value or the default.
func (c *ViewerConfig) GetMonitorAddress() string {
	if c.MonitorAddress == nil || *c.MonitorAddress == "" {
		return "localhost:8081"
	}
	return *c.MonitorAddress
}

// GetTelemetryInterval parses and returns the telemetry_interval.
func (c *ViewerConfig) GetTelemetryInterval() time.Duration {
	if c.TelemetryInterval == nil || *c.TelemetryInterval == "" {
		return time.Second
	}
	d, err := time.ParseDuration(*c.TelemetryInterval)
	if err != nil {
		return time.Second
	}
	return d
}

// GetTelemetryWindow returns the telemetry_window value or the default.
func (c *ViewerConfig) GetTelemetryWindow() int {
	if c.TelemetryWindow == nil {
		return 300
	}
	return *c.TelemetryWindow
}

// GetHistoryPath returns the history_path value; empty disables the history
// store.
func (c *ViewerConfig) GetHistoryPath() string {
	if c.HistoryPath == nil {
		return ""
	}
	return *c.HistoryPath
}

// GetHistoryStatsInterval parses and returns the history_stats_interval.
func (c *ViewerConfig) GetHistoryStatsInterval() time.Duration {
	if c.HistoryStatsInterval == nil || *c.HistoryStatsInterval == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(*c.HistoryStatsInterval)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
