// Package engine implements the rosserial link state machine: it reads
// framed bytes off a serial port, dispatches control-topic negotiation
// (publisher/subscriber advertisement, logging, time, parameters) and
// routes data frames to and from an external pub/sub fabric through the
// registry and adapter abstractions.
//
// Grounded on internal/server.Server's accept/dispatch/shutdown shape,
// adapted from "accept a TCP client, hand it to the hub" to "read one
// serial link, hand control frames to the registry and data frames to
// the adapter." The functional-options constructor and the
// sentinel-error-plus-metrics-label pattern both carry over unchanged.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ros-tools/rosserial-bridge/internal/codec"
	"github.com/ros-tools/rosserial-bridge/internal/logging"
	"github.com/ros-tools/rosserial-bridge/internal/metrics"
	"github.com/ros-tools/rosserial-bridge/internal/pubsub"
	"github.com/ros-tools/rosserial-bridge/internal/registry"
	"github.com/ros-tools/rosserial-bridge/internal/serialport"
	"github.com/ros-tools/rosserial-bridge/internal/transport"
	"github.com/ros-tools/rosserial-bridge/internal/wire"
)

// Engine runs one rosserial link end to end: negotiation, control-topic
// dispatch, and data-frame forwarding in both directions.
type Engine struct {
	port     serialport.Port
	registry *registry.Registry
	adapter  pubsub.Adapter
	clock    pubsub.Clock
	logger   *slog.Logger

	writeQueueSize int
	readBufSize    int

	decoder    *codec.Decoder
	writeQueue *transport.AsyncTx[[]byte]
}

// Option configures an Engine built by New.
type Option func(*Engine)

func WithPort(p serialport.Port) Option { return func(e *Engine) { e.port = p } }
func WithRegistry(r *registry.Registry) Option {
	return func(e *Engine) { e.registry = r }
}
func WithAdapter(a pubsub.Adapter) Option { return func(e *Engine) { e.adapter = a } }
func WithClock(c pubsub.Clock) Option     { return func(e *Engine) { e.clock = c } }
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
func WithWriteQueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.writeQueueSize = n
		}
	}
}
func WithReadBufSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.readBufSize = n
		}
	}
}

// New builds an Engine. Run validates that a port and an adapter were
// supplied; every other dependency has a working default.
func New(opts ...Option) *Engine {
	e := &Engine{
		clock:          pubsub.SystemClock{},
		logger:         logging.Component("engine"),
		writeQueueSize: defaultWriteQueueSize,
		readBufSize:    defaultReadBufSize,
	}
	for _, o := range opts {
		o(e)
	}
	if e.registry == nil {
		e.registry = registry.New()
	}
	return e
}

// Run drives one link to completion: it emits the startup request-topics
// probe, then alternates reading serial bytes and dispatching decoded
// frames until the link ends. It returns nil on a clean end (serial EOF
// or ctx cancellation) and a wrapped ErrIO on a fatal I/O error.
//
// On return, every registered publisher/subscriber handle is closed, the
// registry is emptied, and the adapter's Shutdown has been called.
func (e *Engine) Run(ctx context.Context) error {
	if e.port == nil {
		return ErrNoPort
	}
	if e.adapter == nil {
		return ErrNoAdapter
	}

	e.decoder = codec.NewDecoder()
	e.writeQueue = transport.NewAsyncTx[[]byte](ctx, e.writeQueueSize, e.writeToPort, transport.Hooks{
		OnError: func(err error) {
			e.logger.Error("serial_write_error", "error", err)
			metrics.IncError(metrics.ErrSerialWrite)
		},
		OnDrop: func() error {
			e.logger.Warn("write_queue_overflow")
			metrics.IncError(metrics.ErrSerialWrite)
			return errWriteQueueOverflow
		},
	})
	defer e.shutdown()

	e.sendProbe()

	buf := make([]byte, e.readBufSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := e.port.Read(buf)
		if n > 0 {
			e.decoder.Feed(buf[:n])
			e.drainDecoded(ctx)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				e.logger.Info("link_closed", "reason", "eof")
				return nil
			}
			metrics.IncError(metrics.ErrSerialRead)
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
}

func (e *Engine) shutdown() {
	e.writeQueue.Close()
	e.registry.Reset()
	e.adapter.Shutdown()
}

func (e *Engine) drainDecoded(ctx context.Context) {
	for {
		fr, err := e.decoder.Decode()
		if err != nil {
			if errors.Is(err, codec.ErrIncomplete) {
				return
			}
			e.logger.Warn("frame_decode_error", "error", err)
			metrics.IncResync()
			metrics.IncError(metrics.ErrDecode)
			continue
		}
		metrics.IncFramesDecoded()
		e.dispatch(ctx, fr)
	}
}

func (e *Engine) dispatch(ctx context.Context, fr codec.Frame) {
	switch fr.TopicID {
	case idPublisher:
		go e.handlePublisherAdvertise(ctx, fr.Payload)
	case idSubscriber:
		go e.handleSubscriberAdvertise(ctx, fr.Payload)
	case idServiceServer, idServiceServerRole, idServiceClient, idServiceClientRole:
		e.logger.Warn("unsupported_control_id", "topic_id", fr.TopicID)
		metrics.IncUnsupportedControlID(int(fr.TopicID))
	case idParameterRequest:
		e.handleParameterRequest(fr.Payload)
	case idLog:
		e.handleLog(fr.Payload)
	case idTime:
		e.handleTime()
	case idTxStop:
		// Device is pausing transmission; nothing to negotiate or undo.
	default:
		e.handleDataFrame(fr)
	}
}

func (e *Engine) handleDataFrame(fr codec.Frame) {
	entry, ok := e.registry.LookupPublisher(fr.TopicID)
	if !ok {
		metrics.IncUnknownTopic()
		e.logger.Warn("unknown_topic_id", "topic_id", fr.TopicID)
		e.sendProbe()
		return
	}
	if err := entry.Handle.Send(fr.Payload); err != nil {
		e.logger.Error("adapter_send_error", "topic_id", fr.TopicID, "topic_name", entry.Info.TopicName, "error", err)
		metrics.IncError(metrics.ErrAdapterSend)
		return
	}
	metrics.IncDataForwarded()
}

func (e *Engine) handlePublisherAdvertise(ctx context.Context, payload []byte) {
	info, err := registry.ParseTopicInfo(payload)
	if err != nil {
		e.logger.Error("topic_info_parse_error", "role", "publisher", "error", err)
		metrics.IncError(metrics.ErrDecode)
		return
	}
	handle, err := e.adapter.Publish(ctx, info.TopicName, info.MessageType, info.MD5Sum, info.BufferSize)
	if err != nil {
		e.logger.Error("publisher_create_error", "topic_name", info.TopicName, "error", err)
		metrics.IncError(metrics.ErrAdapterCreate)
		return
	}
	e.registry.RegisterPublisher(info, handle)
	e.logger.Info("publisher_registered",
		"topic_id", info.TopicID, "topic_name", info.TopicName, "message_type", info.MessageType)
}

func (e *Engine) handleSubscriberAdvertise(ctx context.Context, payload []byte) {
	info, err := registry.ParseTopicInfo(payload)
	if err != nil {
		e.logger.Error("topic_info_parse_error", "role", "subscriber", "error", err)
		metrics.IncError(metrics.ErrDecode)
		return
	}

	topicName := info.TopicName
	topicID := info.TopicID
	queue := transport.NewAsyncTx[[]byte](ctx, subscriberQueueCapacity(info.BufferSize),
		func(payload []byte) error {
			e.sendFrame(codec.Frame{TopicID: topicID, Payload: payload})
			return nil
		},
		transport.Hooks{
			OnDrop: func() error {
				metrics.IncAdapterDrop(topicName)
				e.logger.Warn("subscriber_queue_drop", "topic_name", topicName)
				return nil
			},
		},
	)

	handle, err := e.adapter.Subscribe(ctx, info.TopicName, info.MessageType, info.MD5Sum, info.BufferSize,
		func(payload []byte) {
			metrics.IncOutboundForwarded()
			_ = queue.Send(payload)
			metrics.SetAdapterQueueDepth(topicName, queue.Depth())
		},
	)
	if err != nil {
		e.logger.Error("subscriber_create_error", "topic_name", info.TopicName, "error", err)
		metrics.IncError(metrics.ErrAdapterCreate)
		queue.Close()
		return
	}

	e.registry.RegisterSubscriber(info, &queuedSubscriber{handle: handle, queue: queue})
	e.logger.Info("subscriber_registered",
		"topic_id", info.TopicID, "topic_name", info.TopicName, "message_type", info.MessageType)
}

func (e *Engine) handleParameterRequest(payload []byte) {
	name, _ := wire.NewReader(payload).String()
	e.logger.Info("parameter_request", "name", name)
	metrics.IncParameterRequest()
	e.sendFrame(codec.Frame{TopicID: idParameterRequest, Payload: emptyParameterResponse})
}

func (e *Engine) handleLog(payload []byte) {
	r := wire.NewReader(payload)
	level, err := r.Uint8()
	if err != nil {
		e.logger.Error("log_frame_truncated", "error", err)
		metrics.IncError(metrics.ErrDecode)
		return
	}
	msg, err := r.String()
	if err != nil {
		e.logger.Error("log_frame_truncated", "error", err)
		metrics.IncError(metrics.ErrDecode)
		return
	}
	lvl, name, ok := logSeverity(level)
	if !ok {
		e.logger.Error("unknown_log_level", "level", level)
		return
	}
	e.logger.Log(context.Background(), lvl, msg, "rosserial_level", name)
	metrics.IncLogRecord(name)
}

func (e *Engine) handleTime() {
	sec, nsec := e.clock.WallTime()
	w := &wire.Writer{}
	w.Uint32(sec)
	w.Uint32(nsec)
	e.sendFrame(codec.Frame{TopicID: idTime, Payload: w.Bytes()})
	metrics.IncTimeRoundTrip()
}

func (e *Engine) sendProbe() {
	if err := e.writeQueue.Send(codec.EncodeRaw(requestTopicsProbe)); err != nil {
		e.logger.Warn("probe_queue_drop", "error", err)
		return
	}
	metrics.IncRequestTopicsProbe()
}

func (e *Engine) sendFrame(fr codec.Frame) {
	if err := e.writeQueue.Send(codec.Encode(fr)); err != nil {
		e.logger.Warn("frame_queue_drop", "topic_id", fr.TopicID, "error", err)
		return
	}
	metrics.IncFramesEncoded()
}

func (e *Engine) writeToPort(b []byte) error {
	_, err := e.port.Write(b)
	return err
}

// queuedSubscriber pairs a subscription's adapter handle with the bounded
// device-bound queue that decouples adapter delivery from serial writes;
// Close releases both.
type queuedSubscriber struct {
	handle pubsub.Subscriber
	queue  *transport.AsyncTx[[]byte]
}

func (q *queuedSubscriber) Close() {
	q.queue.Close()
	q.handle.Close()
}
