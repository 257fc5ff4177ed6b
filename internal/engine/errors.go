package engine

import (
	"errors"
	"log/slog"
)

// Sentinel errors, grounded on internal/server/errors.go's wrap-and-classify
// shape: Run wraps the underlying cause with one of these so callers can
// classify via errors.Is without parsing messages.
var (
	// ErrNoPort is returned by Run if no serial port was configured.
	ErrNoPort = errors.New("engine: no port configured")
	// ErrNoAdapter is returned by Run if no pub/sub adapter was configured.
	ErrNoAdapter = errors.New("engine: no adapter configured")
	// ErrIO wraps a fatal, non-EOF error from the serial port.
	ErrIO = errors.New("engine: io error")

	errWriteQueueOverflow = errors.New("engine: write queue overflow")
)

// logSeverity maps a rosserial_msgs/Log level byte to an slog level and
// its wire name. ok is false for any value outside the five defined
// levels, which the caller reports as an error without terminating the
// link.
func logSeverity(level byte) (lvl slog.Level, name string, ok bool) {
	switch level {
	case 0:
		return slog.LevelDebug, "ROSDEBUG", true
	case 1:
		return slog.LevelInfo, "INFO", true
	case 2:
		return slog.LevelWarn, "WARN", true
	case 3:
		return slog.LevelError, "ERROR", true
	case 4:
		// slog defines no FATAL level; FATAL is reported one step above
		// Error (LevelError+4, printed as "ERROR+4") with the original name
		// attached so downstream log processing can still distinguish it.
		return slog.LevelError + 4, "FATAL", true
	default:
		return 0, "", false
	}
}
