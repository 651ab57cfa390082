package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/lidarview/internal/version"
	"github.com/banshee-data/lidarview/internal/view"
)

// WebServer handles the HTTP interface for viewer telemetry.
type WebServer struct {
	address   string
	comp      *view.Compositor
	telemetry *Telemetry
	registry  *prometheus.Registry
	server    *http.Server
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address    string
	Compositor *view.Compositor
	Telemetry  *Telemetry
}

// NewWebServer creates a web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:   config.Address,
		comp:      config.Compositor,
		telemetry: config.Telemetry,
		registry:  prometheus.NewRegistry(),
	}

	ws.registry.MustRegister(
		NewCompositorCollector(ws.comp),
		collectors.NewGoCollector(),
	)

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

func (ws *WebServer) setupRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", ws.handleHealth)
	mux.HandleFunc("/api/stats", ws.handleStats)
	mux.HandleFunc("/api/telemetry", ws.handleTelemetry)
	mux.HandleFunc("/charts/utilisation", ws.handleUtilisationChart)
	mux.Handle("/metrics", promhttp.HandlerFor(ws.registry, promhttp.HandlerOpts{}))
	return mux
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Start begins serving in a goroutine and blocks until ctx is cancelled,
// then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("[Monitor] HTTP server listening on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Monitor] HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("[Monitor] Shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Monitor] HTTP server shutdown error: %v", err)
		return ws.server.Close()
	}
	return nil
}

// handleHealth reports liveness.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "lidarview",
		"version": version.Version,
	})
}

// handleStats returns the current composite, buffer and cache state as JSON.
func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := ws.comp.Stats()
	buf := ws.comp.BufferStats()
	counters := ws.comp.Counters()

	resp := map[string]interface{}{
		"composite": map[string]int{
			"background": stats.Background,
			"foreground": stats.Foreground,
			"total":      stats.Total,
		},
		"buffers": map[string]int{
			"bg_capacity": buf.BgCapacity,
			"bg_used":     buf.BgUsed,
			"fg_capacity": buf.FgCapacity,
			"fg_used":     buf.FgUsed,
		},
		"cache_state":  ws.comp.CacheState().String(),
		"cache_status": ws.comp.CacheStatus(),
		"cache_stale":  ws.comp.IsCacheStale(),
		"counters": map[string]uint64{
			"frames_processed":   counters.FramesProcessed,
			"background_ingests": counters.BackgroundIngests,
			"invalidations":      counters.Invalidations,
			"malformed_frames":   counters.MalformedFrames,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleTelemetry returns the sample window and its aggregates as JSON.
func (ws *WebServer) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if ws.telemetry == nil {
		ws.writeJSONError(w, http.StatusNotFound, "telemetry not enabled")
		return
	}

	resp := map[string]interface{}{
		"aggregates": ws.telemetry.Aggregates(),
		"samples":    ws.telemetry.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleUtilisationChart renders a line chart (HTML) of buffer used vs
// capacity over the telemetry window. Debugging-only endpoint, no auth.
func (ws *WebServer) handleUtilisationChart(w http.ResponseWriter, r *http.Request) {
	if ws.telemetry == nil {
		ws.writeJSONError(w, http.StatusNotFound, "telemetry not enabled")
		return
	}

	samples := ws.telemetry.Snapshot()
	if len(samples) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no samples yet")
		return
	}

	xAxis := make([]string, len(samples))
	fgUsed := make([]opts.LineData, len(samples))
	fgCap := make([]opts.LineData, len(samples))
	bgUsed := make([]opts.LineData, len(samples))
	bgCap := make([]opts.LineData, len(samples))
	for i, s := range samples {
		xAxis[i] = s.Timestamp.Format("15:04:05")
		fgUsed[i] = opts.LineData{Value: s.FgUsed}
		fgCap[i] = opts.LineData{Value: s.FgCapacity}
		bgUsed[i] = opts.LineData{Value: s.BgUsed}
		bgCap[i] = opts.LineData{Value: s.BgCapacity}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "LidarView Buffer Utilisation", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Point Buffer Utilisation", Subtitle: fmt.Sprintf("samples=%d cache=%s", len(samples), ws.comp.CacheStatus())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "points"}),
	)

	line.SetXAxis(xAxis).
		AddSeries("fg used", fgUsed).
		AddSeries("fg capacity", fgCap).
		AddSeries("bg used", bgUsed).
		AddSeries("bg capacity", bgCap)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
