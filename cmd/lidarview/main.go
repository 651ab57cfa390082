package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/lidarview/internal/config"
	"github.com/banshee-data/lidarview/internal/version"
	"github.com/banshee-data/lidarview/internal/view"
	"github.com/banshee-data/lidarview/internal/view/history"
	"github.com/banshee-data/lidarview/internal/view/monitor"
	"github.com/banshee-data/lidarview/internal/view/stream"
	"github.com/banshee-data/lidarview/internal/view/vrlog"
	"github.com/banshee-data/lidarview/internal/view/wire"
)

var (
	configPath  = flag.String("config", "", "Path to viewer config JSON (flags override)")
	serverAddr  = flag.String("server", "", "gRPC address of the frame publisher")
	sensorID    = flag.String("sensor", "", "Sensor ID to stream")
	replayPath  = flag.String("replay", "", "Replay a recorded .vrlog directory instead of streaming")
	synthetic   = flag.Bool("synthetic", false, "Generate synthetic frames instead of streaming")
	recordPath  = flag.String("record", "", "Record incoming frames to a .vrlog directory")
	replayRate  = flag.Float64("rate", 0, "Replay rate multiplier (replay mode)")
	monitorAddr = flag.String("monitor", "", "HTTP listen address for stats, charts and metrics")
	historyPath = flag.String("history", "", "Path to the session history SQLite database")
	decimation  = flag.Int("decimation-mode", 0, "Foreground decimation mode requested from the publisher (0=none)")
	decimRatio  = flag.Float64("decimation-ratio", 0, "Fraction of foreground points to keep when decimating")
)

func main() {
	flag.Parse()

	log.Printf("lidarview %s (%s)", version.Version, version.GitSHA)

	cfg := config.EmptyViewerConfig()
	if *configPath != "" {
		loaded, err := config.LoadViewerConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	applyFlagOverrides(cfg)

	if *replayPath != "" && *synthetic {
		log.Fatal("-replay and -synthetic are mutually exclusive")
	}

	comp := view.NewCompositor()
	telemetry := monitor.NewTelemetry(cfg.GetTelemetryWindow())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session history store (optional).
	var store *history.Store
	var sessionID string
	if path := cfg.GetHistoryPath(); path != "" {
		var err error
		store, err = history.Open(path)
		if err != nil {
			log.Fatalf("Failed to open history database: %v", err)
		}
		defer store.Close()

		sessionID, err = store.BeginSession(cfg.GetSensorID(), sourceName())
		if err != nil {
			log.Fatalf("Failed to begin session: %v", err)
		}
		log.Printf("Recording session %s to %s", sessionID, path)

		comp.SetEventSink(func(ev view.CacheEvent) {
			if err := store.RecordEvent(sessionID, ev); err != nil {
				log.Printf("Failed to record cache event: %v", err)
			}
		})
		defer func() {
			if err := store.EndSession(sessionID); err != nil {
				log.Printf("Failed to end session: %v", err)
			}
		}()
	}

	src, cleanup, realtime, err := openSource(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open frame source: %v", err)
	}
	defer cleanup()

	opts := stream.FeedOptions{
		Realtime: realtime,
		Rate:     float32(cfg.GetReplayRate()),
	}
	if *recordPath != "" {
		recorder, err := vrlog.NewRecorder(*recordPath, cfg.GetSensorID())
		if err != nil {
			log.Fatalf("Failed to create recorder: %v", err)
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				log.Printf("Failed to finalise recording: %v", err)
			} else {
				log.Printf("Recorded %d frames to %s", recorder.FrameCount(), recorder.Path())
			}
		}()
		opts.Sink = recorder
	}

	var wg sync.WaitGroup

	// Frame feed routine. The compositor has a single writer; this is it.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := stream.Feed(ctx, src, comp, opts); err != nil && err != context.Canceled {
			log.Printf("Feed error: %v", err)
		}
		log.Print("Frame feed routine terminated")
		stop()
	}()

	// Telemetry sampling routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		telemetry.Run(ctx, comp, cfg.GetTelemetryInterval())
	}()

	// Periodic stats snapshots into the history store
	if store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(cfg.GetHistoryStatsInterval())
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := store.RecordStats(sessionID, comp.Stats(), comp.BufferStats(), comp.CacheState()); err != nil {
						log.Printf("Failed to record stats sample: %v", err)
					}
				}
			}
		}()
	}

	// Monitor HTTP server routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address:    cfg.GetMonitorAddress(),
			Compositor: comp,
			Telemetry:  telemetry,
		})
		if err := ws.Start(ctx); err != nil {
			log.Printf("Monitor server error: %v", err)
		}
	}()

	wg.Wait()

	stats := comp.Stats()
	counters := comp.Counters()
	log.Printf("Shutdown: %d frames processed, %d background ingests, %d invalidations, composite %d points",
		counters.FramesProcessed, counters.BackgroundIngests, counters.Invalidations, stats.Total)
}

// applyFlagOverrides copies explicitly-set flags over the loaded config.
func applyFlagOverrides(cfg *config.ViewerConfig) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server":
			cfg.ServerAddress = serverAddr
		case "sensor":
			cfg.SensorID = sensorID
		case "rate":
			cfg.ReplayRate = replayRate
		case "monitor":
			cfg.MonitorAddress = monitorAddr
		case "history":
			cfg.HistoryPath = historyPath
		case "decimation-mode":
			cfg.PointDecimation = decimation
		case "decimation-ratio":
			cfg.DecimationRatio = decimRatio
		}
	})
}

func sourceName() string {
	switch {
	case *replayPath != "":
		return "replay:" + *replayPath
	case *synthetic:
		return "synthetic"
	default:
		return "stream"
	}
}

// openSource builds the frame source selected by the flags. The returned
// cleanup must be called after the feed stops. realtime reports whether the
// feed should pace frames by their timestamps.
func openSource(ctx context.Context, cfg *config.ViewerConfig) (stream.FrameSource, func(), bool, error) {
	switch {
	case *replayPath != "":
		replayer, err := vrlog.NewReplayer(*replayPath)
		if err != nil {
			return nil, nil, false, err
		}
		log.Printf("Replaying %d frames from %s", replayer.TotalFrames(), *replayPath)
		return replayer, func() { replayer.Close() }, true, nil

	case *synthetic:
		log.Printf("Generating synthetic frames for sensor %s", cfg.GetSensorID())
		gen := view.NewSyntheticSource(cfg.GetSensorID())
		gen.ReseqEvery = 3 // exercise the invalidation path now and then
		return gen, func() {}, true, nil

	default:
		client, err := stream.Dial(cfg.GetServerAddress())
		if err != nil {
			return nil, nil, false, err
		}
		req := &wire.StreamRequest{
			SensorID:        cfg.GetSensorID(),
			IncludePoints:   true,
			PointDecimation: int32(cfg.GetPointDecimation()),
			DecimationRatio: float32(cfg.GetDecimationRatio()),
		}
		frames, err := client.StreamFrames(ctx, req)
		if err != nil {
			client.Close()
			return nil, nil, false, err
		}
		log.Printf("Streaming frames for sensor %s from %s", cfg.GetSensorID(), cfg.GetServerAddress())
		return frames, func() { client.Close() }, false, nil
	}
}
