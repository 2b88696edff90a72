// Command fastgtpd runs the FastGTP server: it exposes a pool of
// GTP-speaking engine subprocesses over a stateless HTTP/REST surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/basket/fastgtp/internal/audit"
	"github.com/basket/fastgtp/internal/config"
	"github.com/basket/fastgtp/internal/gateway"
	fastgtpotel "github.com/basket/fastgtp/internal/otel"
	"github.com/basket/fastgtp/internal/reaper"
	"github.com/basket/fastgtp/internal/session"
	"github.com/basket/fastgtp/internal/telemetry"
	"github.com/basket/fastgtp/internal/transport"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	homeDir := defaultHomeDir()

	cfg, err := config.Load(homeDir)
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	quiet := !isatty.IsTerminal(os.Stdout.Fd())
	logger, closer, err := telemetry.NewLogger(homeDir, cfg.LogLevel, quiet)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "bind_addr", cfg.BindAddr)

	otelProvider, err := fastgtpotel.Init(ctx, fastgtpotel.Config{
		Enabled:     cfg.OTelExporter != "none",
		Exporter:    cfg.OTelExporter,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: "fastgtpd",
	})
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(ctx)

	metrics, err := fastgtpotel.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "E_OTEL_METRICS_INIT", err)
	}

	auditStore, err := audit.Open(cfg.AuditDB, logger)
	if err != nil {
		fatalStartup(logger, "E_AUDIT_OPEN", err)
	}
	defer auditStore.Close()
	stopVacuum, err := auditStore.StartMaintenance("")
	if err != nil {
		logger.Warn("audit: failed to schedule maintenance vacuum", "error", err)
	} else {
		defer stopVacuum()
	}

	factory := func() (transport.Transport, error) {
		return transport.NewSubprocessTransport(cfg.DefaultEngine, cfg.TurnTimeout)
	}
	manager := session.New(factory, func(ev session.Event) {
		auditStore.RecordSessionEvent(ev.SessionID, string(ev.Kind), ev.Detail)
	})

	r := reaper.New(reaper.Config{
		Manager: manager,
		Logger:  logger,
		IdleTTL: cfg.ReaperIdle,
	})
	r.Start(ctx)
	defer r.Stop()

	watcher := config.NewWatcher(homeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher failed to start", "error", err)
	} else {
		go func() {
			for range watcher.Events() {
				if reloadErr := config.Reload(&cfg); reloadErr != nil {
					logger.Warn("config reload failed", "error", reloadErr)
					continue
				}
				logger.Info("config reloaded", "log_level", cfg.LogLevel, "reaper_idle", cfg.ReaperIdle)
			}
		}()
	}

	srv := gateway.NewServer(gateway.Deps{
		Manager: manager,
		Logger:  logger,
		Tracer:  otelProvider.Tracer,
		Metrics: metrics,
		Audit:   auditStore,
		CORS:    gateway.NewCORSMiddleware(cfg.CORS),
	})

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: srv,
	}

	lc := &net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
		},
	}
	ln, err := lc.Listen(ctx, "tcp", cfg.BindAddr)
	if err != nil {
		if isAddrInUse(err) {
			err = fmt.Errorf("%w (is another fastgtpd already running on %s?)", err, cfg.BindAddr)
		}
		fatalStartup(logger, "E_LISTENER_BIND", err)
	}
	logger.Info("startup phase", "phase", "listener_bound", "addr", cfg.BindAddr)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("fastgtpd listening", "addr", cfg.BindAddr)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown did not complete cleanly", "error", err)
	}

	if err := manager.CloseAll(); err != nil {
		logger.Warn("session drain did not complete cleanly", "error", err)
	}
	logger.Info("shutdown complete")
}

func defaultHomeDir() string {
	if v := os.Getenv("FASTGTP_HOME"); v != "" {
		return v
	}
	if u, err := user.Current(); err == nil && u.HomeDir != "" {
		return filepath.Join(u.HomeDir, ".fastgtp")
	}
	return ".fastgtp"
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"fastgtpd","trace_id":"-","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano), reasonCode, message)
	}
	os.Exit(1)
}

func isAddrInUse(err error) bool {
	return err != nil && strings.Contains(err.Error(), "address already in use")
}
