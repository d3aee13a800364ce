package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cortexuvula/roomsync/internal/config"
	"github.com/cortexuvula/roomsync/internal/health"
	"github.com/cortexuvula/roomsync/internal/httpapi"
	"github.com/cortexuvula/roomsync/internal/logging"
	"github.com/cortexuvula/roomsync/internal/logring"
	"github.com/cortexuvula/roomsync/internal/metrics"
	"github.com/cortexuvula/roomsync/internal/registry"
	"github.com/cortexuvula/roomsync/internal/security"
	"github.com/cortexuvula/roomsync/internal/session"
	"github.com/cortexuvula/roomsync/internal/store"
	"github.com/cortexuvula/roomsync/internal/ws"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "roomsync",
		Short: "Real-time estimation rooms over WebSocket",
	}

	var configPath string
	var verbose bool

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configPath, verbose)
		},
	}
	startCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	startCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version and build info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("roomsync %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate config without starting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config validation failed: %w", err)
			}
			fmt.Printf("Configuration is valid.\n")
			fmt.Printf("  Listen: %s\n", cfg.Server.ListenAddress)
			fmt.Printf("  Store: %s\n", cfg.Store.Path)
			fmt.Printf("  Room TTL: %s (sweep %s)\n", cfg.Store.RoomTTL, cfg.Store.SweepSchedule)
			fmt.Printf("  Health: %s\n", cfg.Health.ListenAddress)
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check health (exit 0 if healthy, 1 if not)",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			return checkHealth(url)
		},
	}
	healthCmd.Flags().String("url", "http://127.0.0.1:8081/health", "Health endpoint URL")

	systemdCmd := &cobra.Command{
		Use:   "systemd",
		Short: "Generate systemd service file",
		RunE: func(cmd *cobra.Command, args []string) error {
			printFlag, _ := cmd.Flags().GetBool("print")
			if printFlag {
				printSystemdUnit()
			}
			return nil
		},
	}
	systemdCmd.Flags().Bool("print", false, "Print systemd unit to stdout")

	rootCmd.AddCommand(startCmd, versionCmd, validateCmd, healthCmd, systemdCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(configPath string, verbose bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}

	var recent *logring.Buffer
	if cfg.Logging.RecentEntries > 0 {
		recent = logring.New(cfg.Logging.RecentEntries)
	}
	lj := logging.Setup(cfg.Logging, recent)
	if lj != nil {
		defer lj.Close()
	}

	slog.Info("starting roomsync",
		"version", Version,
		"listen", cfg.Server.ListenAddress,
		"store", cfg.Store.Path,
		"health", cfg.Health.ListenAddress,
	)

	// Optional Prometheus metrics
	var m *metrics.Metrics
	if cfg.Monitoring.MetricsEnabled {
		m = metrics.New()
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Monitoring.MetricsEndpoint)
	}

	// Room store: buntdb behind an LRU read cache.
	bunt, err := store.OpenBunt(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	rooms, err := store.NewCached(bunt, cfg.Store.CacheSize)
	if err != nil {
		bunt.Close()
		return fmt.Errorf("creating room cache: %w", err)
	}
	defer rooms.Close()

	reg := registry.New()
	engineOpts := []session.Option{}
	if m != nil {
		engineOpts = append(engineOpts, session.WithMetrics(m))
	}
	engine, err := session.New(rooms, reg, engineOpts...)
	if err != nil {
		return fmt.Errorf("creating session engine: %w", err)
	}

	var sweeper *store.Sweeper
	if cfg.Store.RoomTTL > 0 {
		sweeper = store.NewSweeper(rooms, cfg.Store.RoomTTL, cfg.Store.SweepSchedule)
		sweeper.Active = reg.Active
		if m != nil {
			sweeper.OnSwept = func(string) { m.RoomsDeleted.WithLabelValues("stale").Inc() }
		}
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("starting sweeper: %w", err)
		}
		defer sweeper.Stop()
	}

	var rl *security.RateLimiter
	if cfg.Security.RateLimit.Enabled {
		rl = security.NewRateLimiter(security.PerMinute(cfg.Security.RateLimit.ConnectionsPerMinute))
		defer rl.Stop()
		slog.Info("rate limiting enabled",
			"connections_per_minute", cfg.Security.RateLimit.ConnectionsPerMinute,
			"messages_per_second", cfg.Security.RateLimit.MessagesPerSecond,
		)
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	stats := ws.NewStats()
	wsHandler := ws.NewHandler(cfg, engine, stats, rl, shutdownCtx)
	wsHandler.Metrics = m

	api := httpapi.New(engine, wsHandler, cfg.Security.CookieSecure)

	publicServer := &http.Server{
		Addr:              cfg.Server.ListenAddress,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Health server (loopback only)
	var healthServer *http.Server
	if cfg.Health.Enabled {
		healthHandler := health.NewHandler(stats, rooms, reg, Version, cfg.Health.Detailed)
		if m != nil {
			healthHandler.SetMetrics(m)
		}
		healthMux := http.NewServeMux()
		healthMux.Handle(cfg.Health.Endpoint, healthHandler)
		if recent != nil {
			healthMux.Handle("/logs", recent)
		}

		// Metrics endpoint on health listener
		if cfg.Monitoring.MetricsEnabled {
			healthMux.Handle(cfg.Monitoring.MetricsEndpoint, promhttp.Handler())
		}

		healthServer = &http.Server{
			Addr:              cfg.Health.ListenAddress,
			Handler:           healthMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	if healthServer != nil {
		go func() {
			slog.Info("health endpoint listening", "address", cfg.Health.ListenAddress)
			if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("health server error", "error", err)
			}
		}()
	}

	go func() {
		slog.Info("room server listening", "address", cfg.Server.ListenAddress, "tls", cfg.Server.TLS.Enabled)
		var err error
		if cfg.Server.TLS.Enabled {
			err = publicServer.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = publicServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			slog.Error("room server error", "error", err)
		}
	}()

	// Notify systemd that we're ready
	daemon.SdNotify(false, daemon.SdNotifyReady)

	// Watchdog heartbeat at half of the unit's WatchdogSec.
	watchdogCtx, watchdogCancel := context.WithCancel(context.Background())
	defer watchdogCancel()
	go watchdog(watchdogCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	for sig := range sigChan {
		switch sig {
		case syscall.SIGHUP:
			slog.Info("received SIGHUP, reloading config")
			newCfg, err := config.Load(configPath)
			if err != nil {
				slog.Error("config reload failed", "error", err)
				continue
			}

			for _, w := range config.IsReloadSafe(cfg, newCfg) {
				slog.Warn("config reload warning", "warning", w)
			}

			cfg = cfg.ApplyReloadableFields(newCfg)
			wsHandler.UpdateConfig(cfg)

			if cfg.Security.RateLimit.Enabled && rl != nil {
				rl.UpdateRate(security.PerMinute(cfg.Security.RateLimit.ConnectionsPerMinute))
			}
			logging.SetLevel(cfg.Logging.Level)

			slog.Info("config reloaded successfully")

		case syscall.SIGTERM, syscall.SIGINT:
			slog.Info("received shutdown signal, draining connections",
				"signal", sig.String(),
				"drain_timeout", cfg.Server.DrainTimeout.String(),
			)

			watchdogCancel()
			daemon.SdNotify(false, daemon.SdNotifyStopping)

			// Close frames first, so clients reconnect to the next instance
			// while their seats are still stored.
			wsHandler.StartDrain()

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.DrainTimeout)
			defer cancel()

			var wg sync.WaitGroup
			if healthServer != nil {
				wg.Add(1)
				go func() {
					defer wg.Done()
					healthServer.Shutdown(ctx)
				}()
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				publicServer.Shutdown(ctx)
			}()
			wg.Wait()

			shutdownCancel()
			wsHandler.WaitLeaves()

			slog.Info("shutdown complete")
			return nil
		}
	}

	return nil
}

func watchdog(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sent, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			if err != nil {
				slog.Warn("failed to notify watchdog", "error", err)
			} else if sent {
				slog.Debug("watchdog keepalive sent")
			}
		case <-ctx.Done():
			return
		}
	}
}

func checkHealth(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		fmt.Println("healthy")
		return nil
	}
	fmt.Fprintf(os.Stderr, "unhealthy (status: %d)\n", resp.StatusCode)
	os.Exit(1)
	return nil
}

func printSystemdUnit() {
	fmt.Print(`[Unit]
Description=roomsync - real-time estimation rooms
After=network-online.target
Wants=network-online.target

[Service]
Type=notify
User=roomsync
Group=roomsync
ExecStartPre=/usr/local/bin/roomsync validate --config /etc/roomsync/config.yaml
ExecStart=/usr/local/bin/roomsync start --config /etc/roomsync/config.yaml
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure
RestartSec=5s
WatchdogSec=30s

ProtectSystem=strict
ProtectHome=true
NoNewPrivileges=true
PrivateTmp=true
ReadOnlyPaths=/etc/roomsync
StateDirectory=roomsync
WorkingDirectory=/var/lib/roomsync
LogsDirectory=roomsync
LimitNOFILE=65535
MemoryMax=256M

StandardOutput=journal
StandardError=journal
SyslogIdentifier=roomsync

[Install]
WantedBy=multi-user.target
`)
}
