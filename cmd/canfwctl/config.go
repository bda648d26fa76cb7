package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	backend      string
	canIf        string
	serialDev    string
	baud         int
	serialReadTO time.Duration

	logFormat string
	logLevel  string

	metricsAddr string

	mdnsEnable bool
	mdnsName   string

	requestTimeout time.Duration
	enumerateFor   time.Duration
}

// parseFlags parses the global flags common to every subcommand, returning
// the remaining (subcommand) arguments.
func parseFlags(args []string) (*appConfig, []string, error) {
	fs := flag.NewFlagSet("canfwctl", flag.ContinueOnError)
	cfg := &appConfig{}

	backend := fs.String("backend", "socketcan", "CAN transport: socketcan|serial")
	canIf := fs.String("can-if", "can0", "SocketCAN interface (when --backend=socketcan)")
	serialDev := fs.String("serial", "/dev/ttyUSB0", "Serial device path (when --backend=serial)")
	baud := fs.Int("baud", 115200, "Serial baud rate")
	serialReadTO := fs.Duration("serial-read-timeout", 50*time.Millisecond, "Serial read timeout")
	logFormat := fs.String("log-format", "text", "Log format: text|json")
	logLevel := fs.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := fs.String("metrics-addr", "", "Metrics HTTP listen address (e.g. :9100); empty disables")
	mdnsEnable := fs.Bool("mdns", false, "Advertise this process via mDNS")
	mdnsName := fs.String("mdns-name", "", "mDNS instance name (default derived from hostname)")
	requestTimeout := fs.Duration("request-timeout", 2*time.Second, "Validated but not used: device reply waits use a fixed 2s timeout")
	enumerateFor := fs.Duration("enumerate-window", 2*time.Second, "How long show-serials listens for replies")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	set := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = struct{}{} })

	cfg.backend = *backend
	cfg.canIf = *canIf
	cfg.serialDev = *serialDev
	cfg.baud = *baud
	cfg.serialReadTO = *serialReadTO
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.requestTimeout = *requestTimeout
	cfg.enumerateFor = *enumerateFor

	if err := applyEnvOverrides(cfg, set); err != nil {
		return nil, nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}
	return cfg, fs.Args(), nil
}

func (c *appConfig) validate() error {
	switch c.backend {
	case "socketcan", "serial":
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	if c.requestTimeout <= 0 {
		return fmt.Errorf("request-timeout must be > 0")
	}
	if c.enumerateFor <= 0 {
		return fmt.Errorf("enumerate-window must be > 0")
	}
	return nil
}

// applyEnvOverrides maps CANFWCTL_* environment variables onto cfg, unless
// the corresponding flag was explicitly set (flag always wins).
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["backend"]; !ok {
		if v, ok := get("CANFWCTL_BACKEND"); ok && v != "" {
			c.backend = v
		}
	}
	if _, ok := set["can-if"]; !ok {
		if v, ok := get("CANFWCTL_CAN_IF"); ok && v != "" {
			c.canIf = v
		}
	}
	if _, ok := set["serial"]; !ok {
		if v, ok := get("CANFWCTL_SERIAL"); ok && v != "" {
			c.serialDev = v
		}
	}
	if _, ok := set["baud"]; !ok {
		if v, ok := get("CANFWCTL_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.baud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CANFWCTL_BAUD: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("CANFWCTL_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("CANFWCTL_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("CANFWCTL_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("CANFWCTL_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	return firstErr
}
