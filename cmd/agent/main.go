// Command agent is the Fathom host agent: a headless endpoint process that
// maintains a session with the Fathom console, streams the primary
// display, and applies mouse/keyboard input received from a technician.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kardianos/service"

	"github.com/fathomrs/agent/internal/config"
	"github.com/fathomrs/agent/internal/helper"
	"github.com/fathomrs/agent/internal/metrics"
	"github.com/fathomrs/agent/internal/supervisor"
)

const (
	serviceName        = "FathomAgent"
	serviceDisplayName = "Fathom Host Agent"
	serviceDescription = "Maintains the Fathom remote-support session and applies technician input."
)

// program implements kardianos/service.Interface for the Windows service
// lifecycle. Off Windows it is driven directly by main without a service
// manager in between.
type program struct {
	cfg    *config.Config
	cancel context.CancelFunc
}

func (p *program) Start(s service.Service) error {
	go p.run()
	return nil
}

func (p *program) Stop(s service.Service) error {
	slog.Info("service stop requested")
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

func (p *program) run() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	defer cancel()

	if err := runAgent(ctx, p.cfg); err != nil && ctx.Err() == nil {
		slog.Error("agent exited with error", "error", err)
		os.Exit(1)
	}
}

func main() {
	// Dispatched before flag parsing: the session-0 bridge spawns this same
	// executable with "--capture-helper <capturePipe> <inputPipe>", which is
	// not expressible as a standard flag.Parse() shape alongside
	// --config/--install/--run.
	if len(os.Args) >= 4 && os.Args[1] == "--capture-helper" {
		initLogger("info", "")
		if err := helper.Run(os.Args[2], os.Args[3]); err != nil {
			slog.Error("capture helper exited with error", "error", err)
			os.Exit(1)
		}
		return
	}

	var (
		configPath  = flag.String("config", "", "path to config file (default: per-machine data directory)")
		doInstall   = flag.Bool("install", false, "install as a system service")
		doUninstall = flag.Bool("uninstall", false, "uninstall the system service")
		doRun       = flag.Bool("run", false, "run in the foreground, bypassing the service manager")
	)
	flag.Parse()

	initLogger("info", "")

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	initLogger(cfg.LogLevel, cfg.LogPath)

	svcConfig := &service.Config{
		Name:        serviceName,
		DisplayName: serviceDisplayName,
		Description: serviceDescription,
	}

	prog := &program{cfg: cfg}
	svc, err := service.New(prog, svcConfig)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	switch {
	case *doInstall:
		if err := svc.Install(); err != nil {
			slog.Error("failed to install service", "error", err)
			os.Exit(1)
		}
		fmt.Println("service installed:", serviceName)

	case *doUninstall:
		if err := svc.Stop(); err != nil {
			slog.Warn("failed to stop service before uninstall", "error", err)
		}
		if err := svc.Uninstall(); err != nil {
			slog.Error("failed to uninstall service", "error", err)
			os.Exit(1)
		}
		fmt.Println("service uninstalled:", serviceName)

	case *doRun, service.Interactive():
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		if err := runAgent(ctx, cfg); err != nil && ctx.Err() == nil {
			slog.Error("agent exited with error", "error", err)
			os.Exit(1)
		}

	default:
		if err := svc.Run(); err != nil {
			slog.Error("service run failed", "error", err)
			os.Exit(1)
		}
	}
}

// runAgent wires the concrete capture/input backend for this process
// (direct or session-0 bridge), builds the supervisor, and blocks until
// ctx is cancelled.
func runAgent(ctx context.Context, cfg *config.Config) error {
	hostUptime, err := metrics.HostUptimeSeconds()
	if err != nil {
		slog.Warn("reading host uptime", "error", err)
	}
	slog.Info("starting fathom host agent",
		"console", cfg.ConsoleURL,
		"agentId", cfg.AgentID,
		"sessionZero", isSessionZero(),
		"hostUptimeSeconds", hostUptime,
	)

	holder := &connHolder{}
	captureCtrl, inputSink, closeBackend := buildBackends(holder)
	defer func() {
		if err := closeBackend(); err != nil {
			slog.Warn("closing capture backend", "error", err)
		}
	}()

	sampler := metrics.NewSampler()

	sup := supervisor.New(cfg, dialerFor(holder), captureCtrl, inputSink, sampler)
	return sup.Run(ctx)
}

// initLogger configures the global slog logger at the given level, tee'd
// to logPath when one is configured.
func initLogger(level, logPath string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	out := io.Writer(os.Stdout)
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			slog.Warn("opening log file, continuing with stdout only", "path", logPath, "error", err)
		} else {
			out = io.MultiWriter(os.Stdout, f)
		}
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
