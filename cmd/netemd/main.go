// Command netemd is the network emulation control service: an HTTP control
// plane that applies, clears, and reports impairment on one interface.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/netforge/protoperf/internal/config"
	"github.com/netforge/protoperf/internal/control"
	"github.com/netforge/protoperf/internal/impair"
	"github.com/netforge/protoperf/internal/logging"
)

var version = "dev"

func main() {
	logging.Init(logging.ParseLevel(os.Getenv("LOG_LEVEL")))

	cfg := config.DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		logging.Error("failed to load config", logging.F("error", err))
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logging.Error("invalid configuration", logging.F("error", err))
		log.Fatalf("Invalid configuration: %v", err)
	}

	applier := impair.NewNetlinkApplier(cfg.Interface, cfg.NetNSPath)
	if err := applier.Preflight(); err != nil {
		logging.Error("interface preflight failed", logging.F("error", err))
		log.Fatalf("Interface preflight failed: %v", err)
	}

	service := control.NewService(applier)

	// Start from a known-clean interface.
	if err := service.Clear(); err != nil {
		logging.Error("failed to clear initial network state", logging.F("error", err))
		log.Fatalf("Failed to clear initial network state: %v", err)
	}

	events := control.NewEventServer(cfg.EventPingInterval)
	events.SetAllowedOrigins(cfg.AllowedOrigins)
	service.OnStateChange(events.Broadcast)

	router := control.NewRouter(control.NewHandler(service))
	router.SetAllowedOrigins(cfg.AllowedOrigins)
	router.SetEventServer(events)

	srv := &http.Server{
		Addr:              cfg.ListenAddress(),
		Handler:           router.SetupRoutes(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logging.Info("netemd starting",
			logging.F("version", version),
			logging.F("address", cfg.ListenAddress()),
			logging.F("interface", cfg.Interface))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("server failed", logging.F("error", err))
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sig := <-quit
	logging.Info("shutting down", logging.F("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("server shutdown error", logging.F("error", err))
	}
	events.Stop()

	// Never leave the interface impaired after the service exits.
	if err := service.Clear(); err != nil {
		logging.Error("failed to clear impairment on shutdown", logging.F("error", err))
		os.Exit(1)
	}
	logging.Info("netemd stopped")
}
