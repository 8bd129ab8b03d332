package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/e7canasta/camcap"
	"github.com/e7canasta/camcap/backend/sim"
	"github.com/e7canasta/camcap/backend/v4l2"
	"github.com/e7canasta/camcap/internal/metrics"
)

const version = "v0.1.0"

func main() {
	backendName := flag.String("backend", "sim", "Capture backend: sim, v4l2")
	device := flag.String("device", "", "Device ID (default: first enumerated)")
	width := flag.Int("width", 640, "Requested width")
	height := flag.Int("height", 480, "Requested height")
	fps := flag.Float64("fps", 30, "Requested frame rate")
	format := flag.String("format", "RGBA32", "Output format: native, I420, NV12, YUYV, UYVY, RGB24, BGR24, RGBA32, BGRA32, Gray8")
	policy := flag.String("policy", "drop-oldest", "Backpressure policy: drop-oldest, block")
	outputDir := flag.String("output", "", "Directory to save captured frames as PNG (optional)")
	maxFrames := flag.Int("max-frames", 0, "Maximum frames to capture (0 = unlimited)")
	statsInterval := flag.Int("stats-interval", 5, "Seconds between stats reports")
	metricsAddr := flag.String("metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9090)")
	listDevices := flag.Bool("list", false, "Enumerate devices and exit")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("camcap-probe %s\n", version)
		os.Exit(0)
	}

	// Set up logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	backend, err := newBackend(*backendName)
	if err != nil {
		log.Fatalf("Failed to create backend: %v", err)
	}

	if *listDevices {
		devices, err := backend.Enumerate()
		if err != nil {
			log.Fatalf("Enumeration failed: %v", err)
		}
		for _, d := range devices {
			fmt.Printf("%s  (%s)\n", d.ID, d.Name)
			for _, c := range d.Capabilities {
				fmt.Printf("    %s\n", c)
			}
		}
		os.Exit(0)
	}

	outFormat, err := parseFormat(*format)
	if err != nil {
		log.Fatalf("%v", err)
	}

	backpressure := camcap.DropOldest
	switch *policy {
	case "drop-oldest":
	case "block":
		backpressure = camcap.Block
	default:
		log.Fatalf("Invalid policy: %s (must be drop-oldest or block)", *policy)
	}

	if *outputDir != "" {
		if err := os.MkdirAll(*outputDir, 0755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
		if outFormat != camcap.FormatRGBA32 {
			log.Fatalf("PNG saving requires -format RGBA32")
		}
	}

	var m *metrics.Metrics
	if *metricsAddr != "" {
		m = metrics.New()
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				slog.Error("metrics listener failed", "error", err)
			}
		}()
		slog.Info("metrics exposed", "addr", *metricsAddr)
	}

	session, err := camcap.NewSession(camcap.SessionConfig{
		Backend:      backend,
		OutputFormat: outFormat,
		Backpressure: backpressure,
		Metrics:      m,
	})
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}

	deviceID := *device
	if deviceID == "" {
		devices, err := backend.Enumerate()
		if err != nil || len(devices) == 0 {
			log.Fatalf("No devices found (enumerate: %v)", err)
		}
		deviceID = devices[0].ID
	}

	if err := session.Open(deviceID); err != nil {
		log.Fatalf("Open failed: %v", err)
	}
	defer session.Close()

	negotiated, err := session.Configure(camcap.DeviceCapability{
		Width:  *width,
		Height: *height,
		FPS:    *fps,
	})
	if err != nil {
		log.Fatalf("Configure failed: %v", err)
	}

	fmt.Printf("camcap-probe %s\n", version)
	fmt.Printf("  Device:       %s\n", deviceID)
	fmt.Printf("  Negotiated:   %s\n", negotiated)
	fmt.Printf("  Output:       %v\n", outFormat)
	fmt.Printf("  Policy:       %v\n", backpressure)
	fmt.Printf("  Kernels:      %v\n", camcap.HostCapability())
	fmt.Printf("Press Ctrl+C to stop gracefully\n\n")

	session.OnError(func(err error) {
		slog.Error("session faulted", "error", err)
	})

	// Pull mode: frames retrieved via Grab on our own schedule.
	if err := session.Start(nil); err != nil {
		log.Fatalf("Start failed: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	statsTicker := time.NewTicker(time.Duration(*statsInterval) * time.Second)
	defer statsTicker.Stop()

	startTime := time.Now()
	frameCount := 0
	framesSaved := 0

loop:
	for {
		select {
		case <-sigChan:
			fmt.Printf("\nReceived interrupt signal, shutting down...\n")
			break loop

		case <-statsTicker.C:
			printStats(session.Stats(), time.Since(startTime))

		default:
			frame, err := session.Grab(200 * time.Millisecond)
			if err != nil {
				if errors.Is(err, camcap.ErrSessionFaulted) {
					slog.Error("capture faulted, exiting", "error", err)
					break loop
				}
				log.Fatalf("Grab failed: %v", err)
			}
			if frame == nil {
				continue // no frame within timeout
			}

			frameCount++
			if *outputDir != "" {
				if err := savePNG(*outputDir, frame); err != nil {
					slog.Error("failed to save frame", "error", err, "seq", frame.Seq)
				} else {
					framesSaved++
				}
			}
			frame.Release()

			if *maxFrames > 0 && frameCount >= *maxFrames {
				fmt.Printf("\nReached maximum frames (%d), stopping...\n", *maxFrames)
				break loop
			}
		}
	}

	if err := session.Stop(); err != nil {
		slog.Error("stop failed", "error", err)
	}
	printStats(session.Stats(), time.Since(startTime))
	if *outputDir != "" {
		fmt.Printf("  Frames saved:  %d\n", framesSaved)
	}
}

func newBackend(name string) (camcap.Backend, error) {
	switch name {
	case "sim":
		return sim.New(sim.Config{}), nil
	case "v4l2":
		return v4l2.New()
	default:
		return nil, fmt.Errorf("unknown backend %q (must be sim or v4l2)", name)
	}
}

func parseFormat(name string) (camcap.PixelFormat, error) {
	formats := map[string]camcap.PixelFormat{
		"native": camcap.FormatUnknown,
		"I420":   camcap.FormatI420,
		"NV12":   camcap.FormatNV12,
		"YUYV":   camcap.FormatYUYV,
		"UYVY":   camcap.FormatUYVY,
		"RGB24":  camcap.FormatRGB24,
		"BGR24":  camcap.FormatBGR24,
		"RGBA32": camcap.FormatRGBA32,
		"BGRA32": camcap.FormatBGRA32,
		"Gray8":  camcap.FormatGray8,
	}
	f, ok := formats[name]
	if !ok {
		return camcap.FormatUnknown, fmt.Errorf("invalid format %q", name)
	}
	return f, nil
}

func printStats(stats camcap.SessionStats, uptime time.Duration) {
	fmt.Printf("[%s] state=%s delivered=%d dropped=%d conv_errors=%d fps=%.2f latency=%dms pool=%d/%d\n",
		uptime.Round(time.Second),
		stats.State,
		stats.FramesDelivered,
		stats.FramesDropped,
		stats.ConversionErrors,
		stats.FPSReal,
		stats.LatencyMS,
		stats.PoolHits,
		stats.PoolHits+stats.PoolMisses,
	)
}

// savePNG writes an RGBA32 frame to disk.
func savePNG(outputDir string, frame *camcap.Frame) error {
	name := fmt.Sprintf("frame_%06d_%s.png", frame.Seq, frame.Timestamp.Format("20060102_150405.000"))
	path := filepath.Join(outputDir, name)

	d := frame.Descriptor
	img := &image.RGBA{
		Pix:    frame.Planes[0],
		Stride: d.PlaneStride(0),
		Rect:   image.Rect(0, 0, d.Width, d.Height),
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return nil
}
