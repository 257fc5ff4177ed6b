// Package pubsub declares the capability interface the link engine uses
// to bridge rosserial topics onto an external ROS-1 compatible pub/sub
// fabric. The engine depends only on these operations; any compliant
// fabric may implement Adapter. redisfabric ships one concrete
// implementation backed by Redis pub/sub.
package pubsub

import "context"

// Publisher is the device-publishes-to-network direction: a handle the
// registry holds for one device publisher, used to forward payload bytes
// decoded off the wire onto the network fabric.
type Publisher interface {
	// Send forwards one payload to the network side. It must not block
	// the caller indefinitely; implementations may buffer up to the
	// buffer size negotiated when the publisher was created.
	Send(payload []byte) error
	// Close releases any resources held by the publisher. Called by the
	// registry on reset or link termination; safe to call more than once.
	Close()
}

// Subscriber is the network-to-device direction: a handle the registry
// holds for one device subscriber. The adapter delivers inbound network
// messages to the sink passed to Subscribe; Subscriber itself only needs
// to support releasing that delivery.
type Subscriber interface {
	// Close stops delivery to the sink and releases adapter-side
	// resources. Safe to call more than once.
	Close()
}

// Adapter is the capability interface the link engine depends on. All
// operations may block on network I/O (e.g. a Redis round-trip) and must
// therefore be invoked from a worker goroutine distinct from the engine's
// read/dispatch loop, per the concurrency model in SPEC_FULL.md §5.
type Adapter interface {
	// Publish creates (or returns the existing) network publisher for a
	// device-advertised topic.
	Publish(ctx context.Context, topicName, messageType, md5sum string, bufferSize uint32) (Publisher, error)

	// Subscribe creates a network subscription for a device-advertised
	// topic. sink is invoked with the raw payload bytes of each inbound
	// network message; it must not block the adapter's delivery loop for
	// long since that would hold up other subscribers.
	Subscribe(ctx context.Context, topicName, messageType, md5sum string, bufferSize uint32, sink func([]byte)) (Subscriber, error)

	// Shutdown releases adapter-wide resources (connections, worker
	// pools). Individual Publisher/Subscriber handles should already have
	// been closed by the registry before Shutdown is called.
	Shutdown()
}
