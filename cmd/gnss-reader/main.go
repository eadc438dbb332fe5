package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shaunagostinho/gnss-reader/internal/gps"
	"github.com/shaunagostinho/gnss-reader/internal/log"
	"github.com/shaunagostinho/gnss-reader/internal/logger"
	"github.com/shaunagostinho/gnss-reader/internal/nmea"
	"github.com/shaunagostinho/gnss-reader/internal/publish"
	"github.com/shaunagostinho/gnss-reader/internal/server"
	"github.com/shaunagostinho/gnss-reader/web"
)

func main() {
	configPath := flag.String("config", "/etc/gnss-reader/config.yaml", "Path to config file (.yaml or .toml)")
	demo := flag.Bool("demo", false, "Run against the built-in receiver simulator")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	debug := flag.Bool("debug", false, "Verbose development logging")
	writeConfig := flag.Bool("write-config", false, "Write the effective config to -config and exit")
	retries := flag.Int("retries", 0, "Extra attempts to open the serial port before giving up")
	flag.Parse()

	// Load config
	cfg := server.LoadConfig(*configPath)
	if *debug {
		cfg.Debug = true
	}
	log.Init(cfg.Debug)
	defer log.Sync()

	if *demo {
		cfg.GPS.Type = "demo"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	if *writeConfig {
		if err := cfg.Save(); err != nil {
			log.Fatal("write config failed", zap.String("path", cfg.Path()), zap.Error(err))
		}
		fmt.Println("wrote", cfg.Path())
		return
	}

	log.Info("gnss-reader starting", zap.String("config", cfg.Path()), zap.String("source", cfg.GPS.Type))

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("shutting down", zap.Stringer("signal", sig))
		cancel()
	}()

	if err := run(ctx, cfg, *retries); err != nil {
		log.Fatal("gnss-reader stopped", zap.Error(err))
	}
	log.Info("gnss-reader stopped")
}

// run opens the receiver, configures it and streams fixes to the sinks
// until ctx is cancelled or the transport fails.
func run(ctx context.Context, cfg *server.Config, retries int) error {
	gpsCfg, logCfg, srvCfg, mqttCfg := cfg.Snapshot()

	rc := cfg.ReceiverConfig()
	var sim *gps.Simulator
	if gpsCfg.Type == "demo" {
		rc.PortPath = "simulator"
		rc.InitDelay = 0
		sim = gps.NewSimulator()
	}
	rx := gps.NewReceiver(rc)

	// Transport first: nothing else starts if the port cannot be opened.
	if sim != nil {
		rx.Attach(sim)
	} else if err := connectWithRetry(ctx, rx, retries); err != nil {
		return err
	}
	defer rx.Close()

	// A signal during startup is a clean exit, not a failure.
	if err := rx.WaitReady(ctx); err != nil {
		return nil
	}
	if err := rx.Configure(ctx, cfg.Setup().Commands()); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	log.Info("receiver configured", zap.String("port", rc.PortPath), zap.Int("interval_ms", gpsCfg.IntervalMs))

	// Sinks
	recorder := logger.New(logCfg)
	sinks := gps.Fanout{gps.NewConsoleSink(os.Stdout), recorder}

	var wg sync.WaitGroup
	srvCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	if srvCfg.Enabled {
		srv := server.New(cfg, rx.Stats, web.FS)
		srv.OnConfigChange = func(c *server.Config) {
			_, l, _, _ := c.Snapshot()
			recorder.SetEnabled(l.Enabled)
		}
		sinks = append(sinks, srv)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(srvCtx); err != nil {
				log.Error("server exited", zap.Error(err))
			}
		}()
	}
	if mqttCfg.Enabled {
		pub, err := publish.Connect(mqttCfg)
		if err != nil {
			// The fix stream is still useful without the broker.
			log.Error("mqtt disabled", zap.Error(err))
		} else {
			sinks = append(sinks, pub)
		}
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Warn("closing sinks", zap.Error(err))
		}
	}()

	// Read loop. The handler is the only owner of the interval state.
	done := make(chan error, 1)
	go func() {
		var iv gps.Interval
		done <- rx.Run(ctx, func(s nmea.Sentence) {
			now := time.Now()
			var d time.Duration
			iv, d = iv.Next(now)
			if f, ok := gps.NewFix(s, d, now); ok {
				sinks.Publish(f)
			}
		})
	}()

	// Join point: the loop has returned before the port and sinks close.
	err := <-done
	stopServer()
	wg.Wait()

	st := rx.Stats()
	log.Info("read loop stopped",
		zap.Uint64("lines", st.Lines),
		zap.Uint64("fixes", st.Fixes),
		zap.Uint64("parse_errors", st.ParseErrors),
		zap.Uint64("checksum_mismatches", st.ChecksumMismatches))
	return err
}

// connectWithRetry opens the serial port, retrying with exponential backoff.
// Starts at 1s, doubles each attempt up to 60s, and gives up after
// extra failed attempts so the caller can abort.
func connectWithRetry(ctx context.Context, rx *gps.Receiver, extra int) error {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		err := rx.Connect()
		if err == nil {
			log.Info("connected", zap.String("receiver", rx.Name()), zap.Int("attempt", attempt+1))
			return nil
		}
		attempt++
		if attempt > extra {
			return err
		}
		log.Warn("connect failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", extra+1),
			zap.Duration("retry_in", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
