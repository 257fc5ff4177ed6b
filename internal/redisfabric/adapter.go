// Package redisfabric implements pubsub.Adapter on top of Redis pub/sub,
// standing in for the ROS-1 master/roscore fabric the bridge would
// otherwise need a full client library for. Grounded on
// librescoot-bluetooth-service's pkg/redis.Client: same
// NewClient+Ping-on-construct shape and the same Publish/Subscribe calls,
// adapted from string-valued state fields to raw rosserial payload bytes
// on one channel per topic.
package redisfabric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ros-tools/rosserial-bridge/internal/logging"
	"github.com/ros-tools/rosserial-bridge/internal/pubsub"
)

const (
	defaultChannelPrefix = "rosserial"
	connectTimeout       = 5 * time.Second
	publishTimeout       = 2 * time.Second
)

// Adapter bridges rosserial topics onto Redis channels named
// "<prefix><topic_name>", e.g. "rosserial/chatter". One channel carries
// both directions for a topic name: a device publisher's forwarded
// payloads and a device subscriber's inbound payloads never collide
// because the engine never both publishes and subscribes the same topic
// name for one device.
type Adapter struct {
	client *redis.Client
	prefix string
	logger *slog.Logger

	// rosMasterURI is never dialed; it is carried only as a log field and
	// surfaced on every publisher/subscriber open so a future ROS master
	// client could pick it up from the logs.
	rosMasterURI string

	wg sync.WaitGroup
}

// New connects to addr and verifies reachability with a Ping before
// returning, matching the teacher's connect-and-verify constructor shape.
// prefix defaults to "rosserial" when empty. rosMasterURI is the host
// process's ROS_MASTER_URI, if any; it is only logged, never dialed by
// this adapter and not used in channel names.
func New(addr, password string, db int, prefix, rosMasterURI string) (*Adapter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisfabric: connect to %s: %w", addr, err)
	}

	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	logger := logging.Component("redisfabric")
	if rosMasterURI != "" {
		logger.Info("ros_master_uri_hint", "ros_master_uri", rosMasterURI)
	}
	return &Adapter{
		client:       client,
		prefix:       prefix,
		logger:       logger,
		rosMasterURI: rosMasterURI,
	}, nil
}

func (a *Adapter) channelFor(topicName string) string { return a.prefix + topicName }

// Publish returns a handle that publishes forwarded device payloads to
// the topic's Redis channel. It never itself touches the network; the
// Ping at construction time is the adapter's only connectivity check.
func (a *Adapter) Publish(_ context.Context, topicName, messageType, md5sum string, bufferSize uint32) (pubsub.Publisher, error) {
	a.logger.Info("publisher_opened",
		"topic_name", topicName, "message_type", messageType, "md5sum", md5sum, "buffer_size", bufferSize,
		"ros_master_uri", a.rosMasterURI)
	return &publisher{
		client:    a.client,
		channel:   a.channelFor(topicName),
		topicName: topicName,
	}, nil
}

// Subscribe confirms a Redis subscription on the topic's channel and
// starts a goroutine delivering inbound messages to sink until Close.
func (a *Adapter) Subscribe(ctx context.Context, topicName, messageType, md5sum string, bufferSize uint32, sink func([]byte)) (pubsub.Subscriber, error) {
	channel := a.channelFor(topicName)
	rsub := a.client.Subscribe(ctx, channel)
	if _, err := rsub.Receive(ctx); err != nil {
		_ = rsub.Close()
		return nil, fmt.Errorf("redisfabric: subscribe %s: %w", topicName, err)
	}
	a.logger.Info("subscriber_opened",
		"topic_name", topicName, "message_type", messageType, "md5sum", md5sum, "buffer_size", bufferSize,
		"ros_master_uri", a.rosMasterURI)

	sctx, cancel := context.WithCancel(context.Background())
	s := &subscriber{redisSub: rsub, cancel: cancel}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ch := rsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				sink([]byte(msg.Payload))
			case <-sctx.Done():
				return
			}
		}
	}()
	return s, nil
}

// Shutdown waits for every subscriber goroutine to exit and closes the
// Redis connection. The registry closes every Subscriber/Publisher handle
// before the link engine calls Shutdown, so the wait is normally
// immediate.
func (a *Adapter) Shutdown() {
	a.wg.Wait()
	if err := a.client.Close(); err != nil {
		a.logger.Warn("redis_close_error", "error", err)
	}
}

var errPublisherClosed = errors.New("redisfabric: publisher closed")

type publisher struct {
	client    *redis.Client
	channel   string
	topicName string
	closed    atomic.Bool
}

// Send publishes payload to the topic's Redis channel. Bytes travel
// through Redis's binary-safe bulk string encoding unmodified; no base64
// or other re-encoding is applied.
func (p *publisher) Send(payload []byte) error {
	if p.closed.Load() {
		return errPublisherClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redisfabric: publish %s: %w", p.topicName, err)
	}
	return nil
}

func (p *publisher) Close() { p.closed.Store(true) }

type subscriber struct {
	redisSub  *redis.PubSub
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *subscriber) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.redisSub.Close()
	})
}
