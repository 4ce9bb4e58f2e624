// goaltrackd is the GoalTrack background worker daemon. It outlives any
// foreground page: it checks for app updates, renders push notifications and
// daily reminders, and serves the worker side of the app's message channel.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"goaltrack/common/config"
	"goaltrack/common/logger"
	"goaltrack/hostenv"
	"goaltrack/notify"
	"goaltrack/storage"
	"goaltrack/update"
	"goaltrack/worker"
)

var version = "1.0.5"

func main() {
	configPath := flag.String("config", "", "Configuration file path")
	generateConfig := flag.Bool("generate-config", false, "Generate default config file and exit")
	serviceCmd := flag.String("service", "", "Service control: install, uninstall, start, stop, run")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("goaltrackd %s\n", version)
		return
	}

	if *generateConfig {
		path := *configPath
		if path == "" {
			path = "goaltrack.toml"
		}
		cfg := config.DefaultWorkerConfig()
		if err := config.WriteDefaultTOML(path, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote default config to %s\n", path)
		return
	}

	if *serviceCmd != "" {
		if err := handleServiceCommand(*serviceCmd, *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	runWorker(ctx, *configPath, false)
}

// loadConfig resolves the worker configuration: explicit path, then the
// platform search paths, then built-in defaults, with env overrides last.
func loadConfig(configPath string) config.WorkerConfig {
	cfg := config.DefaultWorkerConfig()

	path := configPath
	if path == "" {
		if found, _, err := config.FindConfigFile("goaltrack.toml", "worker"); err == nil {
			path = found
		}
	}
	if path != "" {
		if err := config.LoadTOML(path, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", path, err)
		}
	}

	config.ApplyDatabaseEnvOverrides(&cfg.Database)
	config.ApplyLoggingEnvOverrides(&cfg.Logging)
	config.ApplyUpdateEnvOverrides(&cfg.Update)
	return cfg
}

// runWorker wires the pipeline and blocks until ctx is cancelled.
func runWorker(ctx context.Context, configPath string, isService bool) {
	cfg := loadConfig(configPath)

	logDir, err := config.GetLogDirectory("worker", isService)
	if err != nil {
		logDir = ""
	}
	log := logger.New(logger.LevelFromString(cfg.Logging.Level), logDir, 1000)
	defer log.Close()

	log.Info("GoalTrack worker starting", "version", version, "service", isService)

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dataDir, err := config.GetDataDirectory("worker", isService)
		if err != nil {
			log.Error("Failed to resolve data directory", "error", err)
			os.Exit(1)
		}
		dbPath = filepath.Join(dataDir, "goaltrack.db")
	}

	store, err := storage.NewStore(dbPath)
	if err != nil {
		log.Error("Failed to open state store", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	env := hostenv.Detect()
	log.Info("Host environment detected", "kind", env)

	manifestClient, err := update.NewHTTPManifestClient(cfg.Update.ManifestURL, nil)
	if err != nil {
		log.Error("Invalid manifest endpoint", "url", cfg.Update.ManifestURL, "error", err)
		os.Exit(1)
	}

	subs := worker.NewSubscriptionStore()

	defaults := notify.Defaults{
		AppName: cfg.App.Name,
		Body:    "You have a new notification",
		Icon:    cfg.App.Icon,
		Badge:   cfg.App.Badge,
	}

	// The daemon-side platform renders by pushing into connected pages; the
	// channel server is wired onto it once the server exists.
	platform := newChannelPlatform(log)

	dispatch, err := notify.NewService(notify.Options{
		Log:      log,
		Store:    store,
		Env:      env,
		Platform: platform,
		PushTap:  subs,
		AppName:  cfg.App.Name,
		Icon:     cfg.App.Icon,
		Badge:    cfg.App.Badge,
	})
	if err != nil {
		log.Error("Failed to create dispatch service", "error", err)
		os.Exit(1)
	}
	defer dispatch.Close()

	controller, err := update.NewController(update.Options{
		Log:       log,
		Store:     store,
		Client:    manifestClient,
		Announcer: dispatch,
		RestartFn: func() {
			// The service manager restarts the process on exit.
			log.Info("Restarting for update")
			os.Exit(0)
		},
	})
	if err != nil {
		log.Error("Failed to create update controller", "error", err)
		os.Exit(1)
	}

	agent, err := worker.NewAgent(worker.Options{
		Log:       log,
		Store:     store,
		Renderer:  platform,
		Updates:   controller,
		Reminders: dispatch,
		Origin:    cfg.App.Origin,
		Defaults:  defaults,
	})
	if err != nil {
		log.Error("Failed to create worker agent", "error", err)
		os.Exit(1)
	}
	dispatch.SetWorker(agent)

	server, err := worker.NewChannelServer(log, agent, cfg.Channel.ListenAddr)
	if err != nil {
		log.Error("Failed to create channel server", "error", err)
		os.Exit(1)
	}
	platform.setServer(server)
	agent.SetWindows(server)

	if err := server.Start(ctx); err != nil {
		log.Error("Failed to start channel server", "addr", cfg.Channel.ListenAddr, "error", err)
		os.Exit(1)
	}

	agent.Activate(ctx)
	controller.Start(ctx)

	if err := dispatch.RestoreReminders(); err != nil {
		log.Warn("Failed to restore reminder schedule", "error", err)
	}

	log.Info("GoalTrack worker running", "channel", server.Addr())

	<-ctx.Done()

	log.Info("GoalTrack worker shutting down")
	controller.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn("Channel server shutdown error", "error", err)
	}
}
