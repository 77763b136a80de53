package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/gardend/gardend/internal/config"
	"github.com/gardend/gardend/internal/csvlog"
	"github.com/gardend/gardend/internal/garden"
	"github.com/gardend/gardend/internal/hardware"
	"github.com/gardend/gardend/internal/hardware/sim"
	"github.com/gardend/gardend/internal/logger"
	"github.com/gardend/gardend/internal/metrics"
	"github.com/gardend/gardend/internal/notify"
	"github.com/gardend/gardend/internal/notify/telegram"
	"github.com/gardend/gardend/internal/report"
	"github.com/gardend/gardend/internal/schedule"
	"github.com/gardend/gardend/internal/server"
	"github.com/gardend/gardend/internal/watcher"
)

var (
	serveConfigPath string
	serveLogLevel   string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the irrigation daemon (main command)",
	Long: `Start gardend with the specified configuration.
This will initialize all components (logger, scheduler, orchestrator,
HTTP API, file watcher, notifications) and handle graceful shutdown.`,
	Run: serveHandler,
}

func serveHandler(cmd *cobra.Command, args []string) {
	if err := config.LoadEnvOptional("./.env"); err != nil {
		fmt.Printf("❌ Failed to load .env file: %v\n", err)
		os.Exit(1)
	}

	configPath := serveConfigPath
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("❌ Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}

	if errors := cfg.Validate(); len(errors) > 0 {
		fmt.Printf("❌ Configuration validation failed:\n")
		for _, e := range errors {
			fmt.Printf("  - %v\n", e)
		}
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Printf("❌ Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("🚀 Starting gardend",
		logger.Field{Key: "version", Value: Version},
		logger.Field{Key: "git_commit", Value: GitCommit},
		logger.Field{Key: "config", Value: configPath},
		logger.Field{Key: "data_dir", Value: cfg.Daemon.DataDir},
		logger.Field{Key: "hardware", Value: cfg.Hardware.Mode})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	m := metrics.New("gardend", prometheus.DefaultRegisterer)

	runLog, err := csvlog.Open(cfg.CsvPath())
	if err != nil {
		log.Error("Failed to open run log", err)
		os.Exit(1)
	}

	// Hardware backend
	var sink hardware.Sink
	var flow hardware.FlowMeter
	switch cfg.Hardware.Mode {
	case "sim":
		device := sim.New(cfg.Hardware.FlowLitersPerMinute)
		sink, flow = device, device
		log.Info("✅ Simulated hardware attached",
			logger.Field{Key: "flow_l_min", Value: cfg.Hardware.FlowLitersPerMinute})
	case "none":
		log.Warn("No hardware attached, watering requests will stay queued")
	}

	sched := schedule.New(log)

	orch := garden.New(garden.Options{
		Logger:       log,
		Metrics:      m,
		Scheduler:    sched,
		Sink:         sink,
		Flow:         flow,
		RunLog:       runLog,
		DocumentPath: cfg.ProgramPath(),
		PollPeriod:   time.Duration(cfg.Daemon.PollPeriodSeconds) * time.Second,
	})
	if err := orch.EnsureDocument(); err != nil {
		log.Error("Failed to load program document", err)
		os.Exit(1)
	}

	// Notification delivery
	var sender notify.Sender
	if cfg.Telegram.Enabled {
		tg, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.ChatID, log)
		if err != nil {
			log.Error("Failed to initialize Telegram sender", err)
			os.Exit(1)
		}
		sender = tg
		log.Info("📱 Telegram notifications enabled",
			logger.Field{Key: "chat_id", Value: cfg.Telegram.ChatID})
	} else {
		sender = notify.NewLogSender(log)
		log.Warn("Telegram notifications are disabled, logging instead")
	}

	coalescer := notify.NewCoalescer(log, sender, orch, m, orch.DisplayZoneNames)
	orch.SetNotifier(coalescer)

	if err := sched.Start(ctx); err != nil {
		log.Error("Failed to start scheduler", err)
		os.Exit(1)
	}
	if err := orch.Start(ctx); err != nil {
		log.Error("Failed to start orchestrator", err)
		os.Exit(1)
	}

	// Reload the program document when it is edited out of band.
	w := watcher.New(log, cfg.ProgramPath(),
		time.Duration(cfg.Daemon.ReloadDebounceMillis)*time.Millisecond,
		orch.ReloadConfig)
	if err := w.Start(ctx); err != nil {
		log.Error("Failed to start file watcher", err)
		os.Exit(1)
	}

	var reporter *report.Reporter
	if cfg.Report.Enabled {
		reporter = report.New(log, runLog, sender, cfg.Report.Schedule)
		if err := reporter.Start(); err != nil {
			log.Error("Failed to start daily report", err)
			os.Exit(1)
		}
	}

	srv := server.New(server.Options{
		Logger:     log,
		Controller: orch,
		Gatherer:   prometheus.DefaultGatherer,
		Addr:       cfg.HTTP.Listen,
	})
	srvErr := srv.Start()

	log.Info("✅ gardend is running",
		logger.Field{Key: "listen", Value: cfg.HTTP.Listen})

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal",
			logger.Field{Key: "signal", Value: sig.String()})
	case err, ok := <-srvErr:
		if ok && err != nil {
			log.Error("HTTP server failed", err)
		}
	}

	log.Info("🛑 Shutting down")
	srv.Shutdown()
	if reporter != nil {
		reporter.Stop()
	}
	w.Stop()
	orch.Shutdown()
	sched.Stop()
	coalescer.Flush()
	log.Info("Shutdown complete")
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "config file path (default ./gardend.toml)")
	serveCmd.Flags().StringVarP(&serveLogLevel, "log-level", "l", "", "override log level (debug, info, warn, error)")
}
