package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ros-tools/rosserial-bridge/internal/pubsub"
)

// loggingAdapter is a pubsub.Adapter that never touches a real fabric: it
// prints every forwarded publisher payload and refuses subscriptions,
// since a diagnostic logger has nothing to deliver to the device.
// Grounded on original_source/src/bin/message_logger.rs, whose entire job
// is "print every message the device publishes"; the engine's capability
// interface lets that behavior plug in as just another Adapter rather
// than a second copy of the link state machine.
type loggingAdapter struct {
	logger *slog.Logger
}

func newLoggingAdapter(l *slog.Logger) *loggingAdapter { return &loggingAdapter{logger: l} }

func (a *loggingAdapter) Publish(_ context.Context, topicName, messageType, _ string, _ uint32) (pubsub.Publisher, error) {
	return &loggingPublisher{logger: a.logger, topicName: topicName, messageType: messageType}, nil
}

func (a *loggingAdapter) Subscribe(context.Context, string, string, string, uint32, func([]byte)) (pubsub.Subscriber, error) {
	return nil, fmt.Errorf("topic-logger: subscriptions are not supported, it only observes device publishers")
}

func (a *loggingAdapter) Shutdown() {}

type loggingPublisher struct {
	logger      *slog.Logger
	topicName   string
	messageType string
}

func (p *loggingPublisher) Send(payload []byte) error {
	fmt.Printf("received message on %s [%s]: %v\n", p.topicName, p.messageType, payload)
	return nil
}

func (p *loggingPublisher) Close() {}
