// Command scanhead-client is the host process: it loads a fleet
// configuration, registers and connects to every configured scan head,
// applies their window/alignment, and exposes the scan system through
// internal/hostapi for a front-end (CLI, service, or FFI caller) to drive.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scanhead/internal/config"
	"scanhead/internal/hostapi"
	"scanhead/internal/logging"
	"scanhead/internal/session"
	"scanhead/internal/store"
	"scanhead/internal/tempclient"
	"scanhead/internal/transport"
	"scanhead/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to the fleet JSON configuration file")
	rateHz := flag.Float64("rate", 0, "scan rate in Hz; 0 uses the configured default")
	flag.Parse()

	logger := logging.Default()
	logger.Printf("scanhead-client %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	cfg := config.EmptyHostConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			logger.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	opts := []session.Option{session.WithLogger(logger)}
	if db, err := store.Open(cfg.GetStorePath()); err != nil {
		logger.Printf("open registry store: %v (continuing without persistence)", err)
	} else {
		defer db.Close()
		opts = append(opts, session.WithStore(db))
	}

	temp := tempclient.New(nil, logger)

	writer, err := transport.NewRealUDPWriter()
	if err != nil {
		logger.Fatalf("open command socket: %v", err)
	}

	handle := hostapi.CreateScanSystem(writer, opts...)
	defer hostapi.DestroyScanSystem(handle)

	for _, h := range cfg.Heads {
		if code := hostapi.CreateScanHead(handle, h.Serial, h.UserID); code != hostapi.OK {
			logger.Fatalf("register head serial=%d: host API error %d", h.Serial, code)
		}
	}

	for _, h := range cfg.Heads {
		if h.HasWindow() {
			if code := hostapi.SetWindow(handle, h.Serial, *h.WindowTopIn, *h.WindowBottomIn, *h.WindowLeftIn, *h.WindowRightIn); code != hostapi.OK {
				logger.Printf("set window serial=%d: host API error %d", h.Serial, code)
			}
		}
		if h.AlignmentRollDeg != nil {
			roll, shiftX, shiftY := *h.AlignmentRollDeg, derefOr(h.AlignmentShiftXIn, 0), derefOr(h.AlignmentShiftYIn, 0)
			cableDownstream := h.AlignmentCableDownstm != nil && *h.AlignmentCableDownstm
			if code := hostapi.SetAlignment(handle, h.Serial, 0, roll, shiftX, shiftY, cableDownstream); code != hostapi.OK {
				logger.Printf("set alignment serial=%d: host API error %d", h.Serial, code)
			}
		}
	}

	timeout := time.Duration(cfg.GetConnectTimeoutSeconds()) * time.Second
	if code := hostapi.Connect(handle, timeout.Seconds()); code != hostapi.OK {
		logger.Fatalf("connect: host API error %d", code)
	}
	logger.Printf("connected to %d scan head(s)", len(cfg.Heads))

	rate := *rateHz
	if rate <= 0 {
		rate = cfg.GetDefaultScanRateHz()
	}
	if code := hostapi.StartScanning(handle, rate, session.FormatXYFull); code != hostapi.OK {
		logger.Fatalf("start scanning: host API error %d", code)
	}
	logger.Printf("scanning at %.1fHz; ctrl-c to stop", rate)

	stopTemp := make(chan struct{})
	go pollCameraTemperatures(handle, cfg, temp, logger, stopTemp)
	defer close(stopTemp)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Printf("shutting down")
	hostapi.StopScanning(handle)
	hostapi.Disconnect(handle)
}

func derefOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// pollCameraTemperatures periodically reads each head's onboard HTTP
// temperature sensor and logs a reading, supplementing the coarser
// CameraTemp field already present on every status message.
func pollCameraTemperatures(h hostapi.Handle, cfg *config.HostConfig, temp *tempclient.Client, logger *log.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, head := range cfg.Heads {
				ip, code := hostapi.HeadIP(h, head.Serial)
				if code != hostapi.OK {
					continue
				}
				reading := temp.Get(ip)
				logger.Printf("serial=%d mainboard=%.1fC humidity=%.1f%%", head.Serial, reading.Mainboard, reading.MainboardHumidity)
			}
		}
	}
}
