package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ros-tools/rosserial-bridge/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"frames_decoded", snap.FramesDecoded,
					"frames_encoded", snap.FramesEncoded,
					"data_forwarded", snap.DataForwarded,
					"outbound_forwarded", snap.OutboundForward,
					"resync_events", snap.ResyncEvents,
					"unknown_topic", snap.UnknownTopic,
					"parameter_replies", snap.ParameterReplies,
					"time_round_trips", snap.TimeRoundTrips,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
