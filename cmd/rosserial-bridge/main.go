package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/ros-tools/rosserial-bridge/internal/engine"
	"github.com/ros-tools/rosserial-bridge/internal/metrics"
	"github.com/ros-tools/rosserial-bridge/internal/redisfabric"
	"github.com/ros-tools/rosserial-bridge/internal/serialport"
)

// Helper implementations moved to dedicated files: version.go, config.go,
// logger.go, mdns.go, metrics_logger.go - mirroring cmd/can-server's layout.

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("rosserial-bridge %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	if cfg.rosMasterURI != "" {
		l.Info("ros_master_uri", "value", cfg.rosMasterURI)
	}

	port, err := serialport.Open(cfg.serialDev, cfg.baud, cfg.serialReadTO)
	if err != nil {
		l.Error("serial_open_error", "device", cfg.serialDev, "error", err)
		os.Exit(1)
	}
	defer port.Close()

	adapter, err := redisfabric.New(cfg.redisAddr, cfg.redisPassword, cfg.redisDB, cfg.redisPrefix, cfg.rosMasterURI)
	if err != nil {
		l.Error("redis_connect_error", "addr", cfg.redisAddr, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	eng := engine.New(
		engine.WithPort(port),
		engine.WithAdapter(adapter),
		engine.WithLogger(l),
		engine.WithWriteQueueSize(cfg.writeQueueSize),
	)

	linkDone := make(chan error, 1)
	go func() { linkDone <- eng.Run(ctx) }()

	ready := false
	metrics.SetReadinessFunc(func() bool { return ready && ctx.Err() == nil })

	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}
	ready = true

	if cfg.mdnsEnable {
		mdnsPort := 0
		if _, p, err := net.SplitHostPort(cfg.metricsAddr); err == nil {
			if pn, perr := strconv.Atoi(strings.TrimPrefix(p, ":")); perr == nil {
				mdnsPort = pn
			}
		}
		cleanupMDNS, err := startMDNS(ctx, cfg, mdnsPort)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
		} else {
			l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", mdnsPort)
			defer cleanupMDNS()
		}
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	linkErr := error(nil)
	select {
	case s := <-sigCh:
		l.Info("shutdown_signal", "signal", s.String())
		cancel()
		linkErr = <-linkDone
	case err := <-linkDone:
		linkErr = err
		cancel()
	}

	if linkErr != nil {
		l.Error("link_terminated", "error", linkErr)
	} else {
		l.Info("link_terminated")
	}

	wg.Wait()

	if linkErr != nil {
		os.Exit(1)
	}
}
