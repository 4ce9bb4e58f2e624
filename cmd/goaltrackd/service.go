package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kardianos/service"
)

// program implements service.Interface
type program struct {
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	svcLogger  service.Logger
	configPath string
}

func (p *program) Start(s service.Service) error {
	p.svcLogger, _ = s.Logger(nil)
	if p.svcLogger != nil {
		p.svcLogger.Info("GoalTrack worker service starting")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})

	go p.run()
	return nil
}

func (p *program) run() {
	defer close(p.done)

	runWorker(p.ctx, p.configPath, true)

	if p.svcLogger != nil {
		p.svcLogger.Info("GoalTrack worker service stopping")
	}
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}

	timeout := time.After(30 * time.Second)
	select {
	case <-p.done:
		if p.svcLogger != nil {
			p.svcLogger.Info("GoalTrack worker service stopped gracefully")
		}
	case <-timeout:
		if p.svcLogger != nil {
			p.svcLogger.Warning("GoalTrack worker service stopped with timeout")
		}
	}

	return nil
}

// getServiceConfig returns the service configuration for the current platform
func getServiceConfig() *service.Config {
	var workingDir string
	switch runtime.GOOS {
	case "windows":
		workingDir = filepath.Join(os.Getenv("ProgramData"), "GoalTrack")
	case "darwin":
		workingDir = "/Library/Application Support/GoalTrack"
	default:
		workingDir = "/var/lib/goaltrack"
	}

	return &service.Config{
		Name:             "GoalTrackWorker",
		DisplayName:      "GoalTrack Worker",
		Description:      "GoalTrack background worker. Checks for app updates, delivers push notifications and daily goal reminders, and serves the app's worker channel.",
		WorkingDirectory: workingDir,
		Arguments:        []string{"--service", "run"},
		Option: service.KeyValue{
			// Windows service options
			"StartType":              "automatic",
			"DelayedAutoStart":       true,
			"OnFailure":              "restart",
			"OnFailureDelayDuration": "5s",
			"OnFailureResetPeriod":   30,

			// Linux systemd options
			"Restart":           "on-failure",
			"RestartSec":        5,
			"SuccessExitStatus": "0 SIGTERM",
			"KillMode":          "mixed",
			"KillSignal":        "SIGTERM",
			"SendSIGKILL":       true,

			// macOS launchd options
			"RunAtLoad":     true,
			"KeepAlive":     true,
			"SessionCreate": false,
		},
	}
}

// setupServiceDirectories creates necessary directories for service operation
func setupServiceDirectories() error {
	var dirs []string

	switch runtime.GOOS {
	case "windows":
		baseDir := filepath.Join(os.Getenv("ProgramData"), "GoalTrack")
		dirs = []string{
			baseDir,
			filepath.Join(baseDir, "worker"),
			filepath.Join(baseDir, "worker", "logs"),
		}
	case "darwin":
		baseDir := "/Library/Application Support/GoalTrack"
		dirs = []string{
			baseDir,
			filepath.Join(baseDir, "logs"),
			"/var/log/goaltrack",
		}
	default: // Linux
		dirs = []string{
			"/var/lib/goaltrack",
			"/var/log/goaltrack",
			"/etc/goaltrack",
		}
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// handleServiceCommand executes a service control action.
func handleServiceCommand(cmd, configPath string) error {
	prg := &program{configPath: configPath}
	svc, err := service.New(prg, getServiceConfig())
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	switch cmd {
	case "install":
		if err := setupServiceDirectories(); err != nil {
			return err
		}
		if err := svc.Install(); err != nil {
			return fmt.Errorf("failed to install service: %w", err)
		}
		fmt.Println("Service installed")
	case "uninstall":
		if err := svc.Uninstall(); err != nil {
			return fmt.Errorf("failed to uninstall service: %w", err)
		}
		fmt.Println("Service uninstalled")
	case "start":
		if err := svc.Start(); err != nil {
			return fmt.Errorf("failed to start service: %w", err)
		}
		fmt.Println("Service started")
	case "stop":
		if err := svc.Stop(); err != nil {
			return fmt.Errorf("failed to stop service: %w", err)
		}
		fmt.Println("Service stopped")
	case "run":
		return svc.Run()
	default:
		return fmt.Errorf("unknown service command %q (want install, uninstall, start, stop, or run)", cmd)
	}

	return nil
}
