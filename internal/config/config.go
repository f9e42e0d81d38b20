package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the netemd control service settings. Everything comes from
// the environment; the experiment plan lives in its own YAML file (see
// plan.go) because it describes a run, not the service.
type Config struct {
	Port        string
	BindAddress string

	// Interface is the network interface whose egress is impaired.
	Interface string
	// NetNSPath optionally points at a container network namespace
	// (e.g. /var/run/netns/router); when empty the current namespace is
	// used.
	NetNSPath string

	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration

	AllowedOrigins []string

	EventPingInterval time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Port:              "8080",
		BindAddress:       "0.0.0.0",
		Interface:         "eth0",
		NetNSPath:         "",
		ReadHeaderTimeout: 15 * time.Second, // protects against slowloris
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		AllowedOrigins:    []string{"*"},
		EventPingInterval: 30 * time.Second,
	}
}

func (c *Config) LoadFromEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("invalid PORT %q: must be a number", port)
		}
		c.Port = port
	}
	if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
		c.BindAddress = addr
	}
	if iface := os.Getenv("IMPAIR_INTERFACE"); iface != "" {
		c.Interface = iface
	}
	if path := os.Getenv("IMPAIR_NETNS"); path != "" {
		c.NetNSPath = path
	}
	if dur := os.Getenv("SHUTDOWN_TIMEOUT"); dur != "" {
		d, err := time.ParseDuration(dur)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid SHUTDOWN_TIMEOUT %q: must be a positive duration (e.g. 30s)", dur)
		}
		c.ShutdownTimeout = d
	}
	if interval := os.Getenv("EVENT_PING_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid EVENT_PING_INTERVAL %q: must be a positive duration (e.g. 30s)", interval)
		}
		c.EventPingInterval = d
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		entries := strings.Split(origins, ",")
		c.AllowedOrigins = make([]string, 0, len(entries))
		for _, entry := range entries {
			value := strings.TrimSpace(entry)
			if value != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, value)
			}
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid port %q: must be 1-65535", c.Port)
	}
	if c.Interface == "" {
		return fmt.Errorf("impair interface cannot be empty")
	}
	if c.NetNSPath != "" {
		if _, err := os.Stat(c.NetNSPath); err != nil {
			return fmt.Errorf("netns path %q: %w", c.NetNSPath, err)
		}
	}
	return nil
}

func (c *Config) ListenAddress() string {
	return c.BindAddress + ":" + c.Port
}

// TargetConfig holds the targetd measurement server settings.
type TargetConfig struct {
	BindAddress string
	// HTTPSPort serves HTTP/1.1 and HTTP/2 over TLS; HTTP3Port serves
	// HTTP/3 over QUIC on UDP.
	HTTPSPort int
	HTTP3Port int

	TLSCertFile string
	TLSKeyFile  string
	TLSAutoGen  bool
	PublicHost  string

	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

func DefaultTargetConfig() *TargetConfig {
	return &TargetConfig{
		BindAddress:       "0.0.0.0",
		HTTPSPort:         4443,
		HTTP3Port:         4443,
		TLSAutoGen:        true,
		PublicHost:        "",
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
	}
}

func (c *TargetConfig) LoadFromEnv() error {
	if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
		c.BindAddress = addr
	}
	if port := os.Getenv("HTTPS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid HTTPS_PORT %q: %w", port, err)
		}
		c.HTTPSPort = p
	}
	if port := os.Getenv("HTTP3_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid HTTP3_PORT %q: %w", port, err)
		}
		c.HTTP3Port = p
	}
	if cert := os.Getenv("TLS_CERT_FILE"); cert != "" {
		c.TLSCertFile = cert
	}
	if key := os.Getenv("TLS_KEY_FILE"); key != "" {
		c.TLSKeyFile = key
	}
	if autoGen := os.Getenv("TLS_AUTO_GEN"); autoGen == "false" || autoGen == "0" {
		c.TLSAutoGen = false
	}
	if host := os.Getenv("PUBLIC_HOST"); host != "" {
		c.PublicHost = host
	}
	return nil
}

func (c *TargetConfig) Validate() error {
	if c.HTTPSPort <= 0 || c.HTTPSPort > 65535 {
		return fmt.Errorf("invalid HTTPS port: %d", c.HTTPSPort)
	}
	if c.HTTP3Port <= 0 || c.HTTP3Port > 65535 {
		return fmt.Errorf("invalid HTTP/3 port: %d", c.HTTP3Port)
	}
	if c.TLSCertFile == "" && c.TLSKeyFile != "" || c.TLSCertFile != "" && c.TLSKeyFile == "" {
		return fmt.Errorf("TLS cert and key must be set together")
	}
	if c.TLSCertFile == "" && !c.TLSAutoGen {
		return fmt.Errorf("no TLS certificate configured and auto-generation disabled")
	}
	return nil
}

func (c *TargetConfig) HTTPSAddress() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.HTTPSPort)
}

func (c *TargetConfig) HTTP3Address() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.HTTP3Port)
}
