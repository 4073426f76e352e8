package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"magnetswipe"
)

var version = "dev"

var (
	flagConfig         string
	flagLogLevel       string
	flagIPCSocket      string
	flagHTTPAddr       string
	flagJournal        string
	flagAutostart      bool
	flagStartTimeoutMS int
	flagSim            bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "magnetswiped",
		Short: "Magnet swipe gesture detection daemon",
		Long: `magnetswiped reads a 3-axis magnetometer (Linux input device, serial
port or built-in simulator) and reports a trigger event whenever a magnet is
swiped past the sensor.

Control the detector with swipe-ctl (Unix socket) or POST /commands/{start,stop};
watch events with swipe-listen or any WebSocket client on /ws.

Send SIGHUP to reset a running detector.`,
		Version:      version,
		SilenceUsage: true,
		RunE:         run,
	}

	f := rootCmd.Flags()
	f.StringVar(&flagConfig, "config", "", "Path to YAML config file")
	f.StringVar(&flagLogLevel, "log-level", "info", "Log level: error, warn, info, debug")
	f.StringVar(&flagIPCSocket, "ipc-socket", magnetswipe.DefaultIPCSocket, "Unix domain socket path for IPC")
	f.StringVar(&flagHTTPAddr, "http-addr", ":3002", "HTTP listen address (empty disables HTTP)")
	f.StringVar(&flagJournal, "journal", "", "SQLite journal path (enables the journal)")
	f.BoolVar(&flagAutostart, "autostart", true, "Start the detector on launch")
	f.IntVar(&flagStartTimeoutMS, "start-timeout-ms", 2000, "Time allowed for the first sensor reading in ms")
	f.BoolVar(&flagSim, "sim", false, "Use the simulated magnetometer instead of configured sensors")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// overridesFromFlags returns overrides for the flags the user actually set.
func overridesFromFlags(cmd *cobra.Command) FlagOverrides {
	var o FlagOverrides
	f := cmd.Flags()
	if f.Changed("log-level") {
		o.LogLevel = &flagLogLevel
	}
	if f.Changed("ipc-socket") {
		o.IPCSocketPath = &flagIPCSocket
	}
	if f.Changed("http-addr") {
		o.HTTPListenAddr = &flagHTTPAddr
	}
	if f.Changed("journal") {
		o.JournalPath = &flagJournal
	}
	if f.Changed("autostart") {
		o.Autostart = &flagAutostart
	}
	if f.Changed("start-timeout-ms") {
		o.StartTimeoutMS = &flagStartTimeoutMS
	}
	if f.Changed("sim") {
		o.SimOnly = &flagSim
	}
	return o
}

func loadConfig(cmd *cobra.Command) (Config, error) {
	cfg := DefaultConfig()
	if flagConfig != "" {
		var err error
		if cfg, err = LoadConfigFile(flagConfig); err != nil {
			return Config{}, err
		}
	}
	overridesFromFlags(cmd).Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	level, err := magnetswipe.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger := magnetswipe.NewLogger(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	d := newDaemon(daemonOptions{
		Sensors:   sensorSlotsFromConfig(cfg.Sensors, logger),
		Detector:  cfg.ToDetectorConfig(),
		Autostart: cfg.Detector.Autostart,
		Logger:    logger,
	})

	var journal *Journal
	if cfg.Journal.Enabled {
		journal, err = OpenJournal(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer journal.Close()
	}

	var ws *wsServer
	if cfg.HTTP.ListenAddr != "" {
		ws = newWSServer(logger.With("component", "ws"), d, HubConfig{})
	}

	// Subscribers must exist before the loop starts.
	var wsOut, journalOut <-chan outcome
	if ws != nil {
		wsOut = d.Subscribe(64)
	}
	if journal != nil {
		journalOut = d.Subscribe(256)
	}

	logger.Debug("configuration",
		"sensors", len(cfg.Sensors),
		"autostart", cfg.Detector.Autostart,
		"start_timeout_ms", cfg.Detector.StartTimeoutMS,
		"baseline_threshold", cfg.Detector.BaselineThreshold,
		"swipe_threshold", cfg.Detector.SwipeThreshold,
		"ipc_socket", cfg.IPC.SocketPath,
		"http_addr", cfg.HTTP.ListenAddr,
		"journal", cfg.Journal.Enabled)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.Run(gctx) })

	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, d, logger.With("component", "ipc"))
	})

	if ws != nil {
		g.Go(func() error {
			ws.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, ws.Hub(), wsOut, logger)
			return nil
		})
		g.Go(func() error {
			router := newRouter(d, journal, ws, logger.With("component", "http"))
			return runHTTPServer(gctx, cfg.HTTP.ListenAddr, router, logger)
		})
	}

	if journal != nil {
		g.Go(func() error {
			RunJournal(gctx, journal, journalOut, logger.With("component", "journal"))
			return nil
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				logger.Info("SIGHUP received")
				d.Reset()
			}
		}
	})

	logger.Info("magnetswiped running", "version", version, "ipc", cfg.IPC.SocketPath, "http", cfg.HTTP.ListenAddr)

	err = g.Wait()
	logger.Info("shut down")
	return err
}
