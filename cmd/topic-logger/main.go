// Command topic-logger opens a rosserial serial link and prints every
// message the device publishes, without forwarding anything to a pub/sub
// fabric. A diagnostic counterpart to rosserial-bridge, grounded on
// original_source/src/bin/message_logger.rs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ros-tools/rosserial-bridge/internal/engine"
	"github.com/ros-tools/rosserial-bridge/internal/logging"
	"github.com/ros-tools/rosserial-bridge/internal/serialport"
)

func main() {
	serialDev := flag.String("serial", "/dev/ttyUSB0", "Serial device path")
	baud := flag.Int("baud", 115200, "Serial baud rate")
	readTO := flag.Duration("serial-read-timeout", 50*time.Millisecond, "Serial read timeout")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	flag.Parse()

	var lvl slog.Level
	switch *logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	l := logging.New("text", lvl, os.Stderr).With("app", "topic-logger")
	logging.Set(l)

	port, err := serialport.Open(*serialDev, *baud, *readTO)
	if err != nil {
		l.Error("serial_open_error", "device", *serialDev, "error", err)
		os.Exit(1)
	}
	defer port.Close()

	eng := engine.New(
		engine.WithPort(port),
		engine.WithAdapter(newLoggingAdapter(l)),
		engine.WithLogger(l),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := eng.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "topic-logger: link error: %v\n", err)
		os.Exit(1)
	}
}
