package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// appConfig holds every flag/env-resolved setting for one bridge process.
// Grounded on cmd/can-server/config.go's parseFlags+applyEnvOverrides+
// validate shape: flags first, environment fills in anything not
// explicitly set on the command line, validate checks ranges without
// touching any device or connection.
type appConfig struct {
	serialDev    string
	baud         int
	serialReadTO time.Duration

	redisAddr     string
	redisPassword string
	redisDB       int
	redisPrefix   string

	writeQueueSize int

	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration

	mdnsEnable bool
	mdnsName   string

	rosMasterURI string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	serialDev := flag.String("serial", "/dev/ttyUSB0", "Serial device path")
	baud := flag.Int("baud", 115200, "Serial baud rate")
	serialReadTO := flag.Duration("serial-read-timeout", 50*time.Millisecond, "Serial read timeout")

	redisAddr := flag.String("redis-addr", "127.0.0.1:6379", "Redis server address")
	redisPassword := flag.String("redis-password", "", "Redis password (empty for none)")
	redisDB := flag.Int("redis-db", 0, "Redis logical database index")
	redisPrefix := flag.String("redis-channel-prefix", "rosserial", "Prefix prepended to each topic name to form its Redis channel")

	writeQueueSize := flag.Int("write-queue-size", 1024, "Serial write queue capacity (frames)")

	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")

	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/Avahi advertisement")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default rosserial-bridge-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.serialDev = *serialDev
	cfg.baud = *baud
	cfg.serialReadTO = *serialReadTO
	cfg.redisAddr = *redisAddr
	cfg.redisPassword = *redisPassword
	cfg.redisDB = *redisDB
	cfg.redisPrefix = *redisPrefix
	cfg.writeQueueSize = *writeQueueSize
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName

	// ROS_MASTER_URI is the standard ROS environment variable, not a
	// ROSSERIAL_BRIDGE_*-prefixed one, and has no flag of its own: this
	// bridge never dials it, it only surfaces it as a log field for a
	// future master client to use.
	cfg.rosMasterURI = strings.TrimSpace(os.Getenv("ROS_MASTER_URI"))

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or connections, only checks values.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	if c.writeQueueSize <= 0 {
		return fmt.Errorf("write-queue-size must be > 0 (got %d)", c.writeQueueSize)
	}
	if c.redisAddr == "" {
		return fmt.Errorf("redis-addr must not be empty")
	}
	if c.redisDB < 0 {
		return fmt.Errorf("redis-db must be >= 0")
	}
	if c.redisPrefix == "" {
		return fmt.Errorf("redis-channel-prefix must not be empty")
	}
	return nil
}

// applyEnvOverrides maps ROSSERIAL_BRIDGE_* environment variables onto
// cfg, skipping any field whose flag was explicitly set (flags win).
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	reportErr := func(env string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("invalid %s: %w", env, err)
		}
	}

	if _, ok := set["serial"]; !ok {
		if v, ok := get("ROSSERIAL_BRIDGE_SERIAL"); ok && v != "" {
			c.serialDev = v
		}
	}
	if _, ok := set["baud"]; !ok {
		if v, ok := get("ROSSERIAL_BRIDGE_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.baud = n
			} else if err != nil {
				reportErr("ROSSERIAL_BRIDGE_BAUD", err)
			}
		}
	}
	if _, ok := set["serial-read-timeout"]; !ok {
		if v, ok := get("ROSSERIAL_BRIDGE_SERIAL_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.serialReadTO = d
			} else if err != nil {
				reportErr("ROSSERIAL_BRIDGE_SERIAL_READ_TIMEOUT", err)
			}
		}
	}
	if _, ok := set["redis-addr"]; !ok {
		if v, ok := get("ROSSERIAL_BRIDGE_REDIS_ADDR"); ok && v != "" {
			c.redisAddr = v
		}
	}
	if _, ok := set["redis-password"]; !ok {
		if v, ok := get("ROSSERIAL_BRIDGE_REDIS_PASSWORD"); ok {
			c.redisPassword = v
		}
	}
	if _, ok := set["redis-db"]; !ok {
		if v, ok := get("ROSSERIAL_BRIDGE_REDIS_DB"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				c.redisDB = n
			} else if err != nil {
				reportErr("ROSSERIAL_BRIDGE_REDIS_DB", err)
			}
		}
	}
	if _, ok := set["redis-channel-prefix"]; !ok {
		if v, ok := get("ROSSERIAL_BRIDGE_REDIS_CHANNEL_PREFIX"); ok && v != "" {
			c.redisPrefix = v
		}
	}
	if _, ok := set["write-queue-size"]; !ok {
		if v, ok := get("ROSSERIAL_BRIDGE_WRITE_QUEUE_SIZE"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.writeQueueSize = n
			} else if err != nil {
				reportErr("ROSSERIAL_BRIDGE_WRITE_QUEUE_SIZE", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("ROSSERIAL_BRIDGE_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("ROSSERIAL_BRIDGE_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("ROSSERIAL_BRIDGE_METRICS_ADDR"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("ROSSERIAL_BRIDGE_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil {
				reportErr("ROSSERIAL_BRIDGE_LOG_METRICS_INTERVAL", err)
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("ROSSERIAL_BRIDGE_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("ROSSERIAL_BRIDGE_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	return firstErr
}
