package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "viewer.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestEmptyViewerConfig_Defaults(t *testing.T) {
	cfg := EmptyViewerConfig()

	if got := cfg.GetSensorID(); got != "lidar-01" {
		t.Errorf("expected default sensor lidar-01, got %q", got)
	}
	if got := cfg.GetServerAddress(); got != "localhost:50051" {
		t.Errorf("expected default server localhost:50051, got %q", got)
	}
	if got := cfg.GetMonitorAddress(); got != "localhost:8081" {
		t.Errorf("expected default monitor localhost:8081, got %q", got)
	}
	if got := cfg.GetReplayRate(); got != 1.0 {
		t.Errorf("expected default rate 1.0, got %f", got)
	}
	if got := cfg.GetTelemetryInterval(); got != time.Second {
		t.Errorf("expected default interval 1s, got %v", got)
	}
	if got := cfg.GetTelemetryWindow(); got != 300 {
		t.Errorf("expected default window 300, got %d", got)
	}
	if got := cfg.GetPointDecimation(); got != 0 {
		t.Errorf("expected default decimation mode 0, got %d", got)
	}
	if got := cfg.GetDecimationRatio(); got != 1.0 {
		t.Errorf("expected default decimation ratio 1.0, got %f", got)
	}
	if got := cfg.GetHistoryPath(); got != "" {
		t.Errorf("expected history disabled by default, got %q", got)
	}
	if got := cfg.GetHistoryStatsInterval(); got != 10*time.Second {
		t.Errorf("expected default stats interval 10s, got %v", got)
	}
}

func TestLoadViewerConfig_PartialOverride(t *testing.T) {
	path := writeConfig(t, `{
		"sensor_id": "hesai-02",
		"replay_rate": 2.0,
		"telemetry_interval": "500ms"
	}`)

	cfg, err := LoadViewerConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if got := cfg.GetSensorID(); got != "hesai-02" {
		t.Errorf("expected sensor hesai-02, got %q", got)
	}
	if got := cfg.GetReplayRate(); got != 2.0 {
		t.Errorf("expected rate 2.0, got %f", got)
	}
	if got := cfg.GetTelemetryInterval(); got != 500*time.Millisecond {
		t.Errorf("expected interval 500ms, got %v", got)
	}
	// Unspecified fields keep their defaults.
	if got := cfg.GetServerAddress(); got != "localhost:50051" {
		t.Errorf("expected default server, got %q", got)
	}
}

func TestLoadViewerConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative rate", `{"replay_rate": -1.0}`},
		{"zero rate", `{"replay_rate": 0}`},
		{"bad decimation ratio", `{"decimation_ratio": 1.5}`},
		{"negative decimation mode", `{"point_decimation": -1}`},
		{"zero telemetry window", `{"telemetry_window": 0}`},
		{"bad interval", `{"telemetry_interval": "soon"}`},
		{"bad stats interval", `{"history_stats_interval": "whenever"}`},
		{"invalid json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := LoadViewerConfig(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadViewerConfig_RequiresJSONExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewer.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadViewerConfig(path); err == nil {
		t.Error("expected error for non-json extension")
	}
}

func TestLoadViewerConfig_MissingFile(t *testing.T) {
	if _, err := LoadViewerConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
