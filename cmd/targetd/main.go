// Command targetd is a measurement target: the same handler served over
// HTTP/1.1 and HTTP/2 (TLS over TCP) and over HTTP/3 (QUIC over UDP), so
// the protocols can be compared against identical server behavior.
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quic-go/quic-go/http3"

	"github.com/netforge/protoperf/internal/config"
	"github.com/netforge/protoperf/internal/logging"
	"github.com/netforge/protoperf/internal/tlsgen"
)

var version = "dev"

const maxEchoBytes = 1 << 20

func main() {
	logging.Init(logging.ParseLevel(os.Getenv("LOG_LEVEL")))

	cfg := config.DefaultTargetConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		logging.Error("failed to load config", logging.F("error", err))
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logging.Error("invalid configuration", logging.F("error", err))
		log.Fatalf("Invalid configuration: %v", err)
	}

	cert, err := tlsgen.Load(cfg.TLSCertFile, cfg.TLSKeyFile, cfg.PublicHost, cfg.TLSAutoGen)
	if err != nil {
		logging.Error("TLS setup failed", logging.F("error", err))
		log.Fatalf("TLS setup failed: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("POST /echo", handleEcho)

	h3srv := &http3.Server{
		Addr:    cfg.HTTP3Address(),
		Handler: mux,
		TLSConfig: http3.ConfigureTLSConfig(&tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS13,
		}),
	}

	// Advertise the HTTP/3 endpoint to h1/h2 clients.
	altSvcMux := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h3srv.SetQUICHeaders(w.Header()); err != nil {
			logging.Debug("set alt-svc headers", logging.F("error", err))
		}
		mux.ServeHTTP(w, r)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPSAddress(),
		Handler: altSvcMux,
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h2", "http/1.1"},
			MinVersion:   tls.VersionTLS12,
		},
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logging.Info("targetd HTTPS listening",
			logging.F("version", version),
			logging.F("address", cfg.HTTPSAddress()))
		if err := srv.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			logging.Error("HTTPS server failed", logging.F("error", err))
			log.Fatalf("HTTPS server failed: %v", err)
		}
	}()
	go func() {
		logging.Info("targetd HTTP/3 listening", logging.F("address", cfg.HTTP3Address()))
		if err := h3srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("HTTP/3 server failed", logging.F("error", err))
			log.Fatalf("HTTP/3 server failed: %v", err)
		}
	}()

	sig := <-quit
	logging.Info("shutting down", logging.F("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("HTTPS shutdown error", logging.F("error", err))
	}
	if err := h3srv.Shutdown(ctx); err != nil {
		logging.Error("HTTP/3 shutdown error", logging.F("error", err))
	}
	logging.Info("targetd stopped")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"proto":  r.Proto,
		"time":   time.Now().UnixNano(),
	}); err != nil {
		logging.Warn("health: write response", logging.F("error", err))
	}
}

// handleEcho mirrors the request body, useful for payload-bearing latency
// probes.
func handleEcho(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxEchoBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logging.Debug("echo: write response", logging.F("error", err))
	}
}
