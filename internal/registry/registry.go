// Package registry maps negotiated rosserial topic ids to their metadata
// and to the pub/sub handles created for them. Grounded on
// internal/hub.Hub's RWMutex-guarded map-with-snapshot shape, generalized
// from one broadcast set of TCP clients to two maps (publishers,
// subscribers) of per-topic entries.
package registry

import (
	"sync"

	"github.com/ros-tools/rosserial-bridge/internal/logging"
	"github.com/ros-tools/rosserial-bridge/internal/metrics"
	"github.com/ros-tools/rosserial-bridge/internal/pubsub"
)

// PublisherEntry is a registered device publisher: its advertised info
// plus the network-side handle used to forward decoded payloads.
type PublisherEntry struct {
	Info   TopicInfo
	Handle pubsub.Publisher
}

// SubscriberEntry is a registered device subscriber: its advertised info
// plus the network-side handle that delivers inbound messages back to
// the device.
type SubscriberEntry struct {
	Info   TopicInfo
	Handle pubsub.Subscriber
}

// Registry is the in-memory mapping from topic_id to entry, separately
// for publishers and subscribers. It is safe for concurrent use: the link
// engine registers entries from per-advertisement goroutines while its
// dispatch loop looks entries up, and Reset runs on the shutdown path.
type Registry struct {
	mu          sync.RWMutex
	publishers  map[uint16]*PublisherEntry
	subscribers map[uint16]*SubscriberEntry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		publishers:  make(map[uint16]*PublisherEntry),
		subscribers: make(map[uint16]*SubscriberEntry),
	}
}

// RegisterPublisher installs (or idempotently replaces) the publisher
// entry for info.TopicID. A replaced entry's old handle is closed after
// the new one is installed, so in-flight payloads for the old entry may
// be dropped but are never misrouted to a handle that no longer belongs
// to this topic id.
func (r *Registry) RegisterPublisher(info TopicInfo, handle pubsub.Publisher) {
	r.mu.Lock()
	prev := r.publishers[info.TopicID]
	r.publishers[info.TopicID] = &PublisherEntry{Info: info, Handle: handle}
	n := len(r.publishers)
	r.mu.Unlock()
	metrics.SetRegisteredPublishers(n)
	if prev != nil {
		logging.Component("registry").Info("publisher_replaced", "topic_id", info.TopicID, "topic_name", info.TopicName)
		prev.Handle.Close()
	}
}

// RegisterSubscriber installs (or idempotently replaces) the subscriber
// entry for info.TopicID, with the same replace-then-close-old semantics
// as RegisterPublisher.
func (r *Registry) RegisterSubscriber(info TopicInfo, handle pubsub.Subscriber) {
	r.mu.Lock()
	prev := r.subscribers[info.TopicID]
	r.subscribers[info.TopicID] = &SubscriberEntry{Info: info, Handle: handle}
	n := len(r.subscribers)
	r.mu.Unlock()
	metrics.SetRegisteredSubscribers(n)
	if prev != nil {
		logging.Component("registry").Info("subscriber_replaced", "topic_id", info.TopicID, "topic_name", info.TopicName)
		prev.Handle.Close()
	}
}

// LookupPublisher returns the publisher entry for topicID, if any.
func (r *Registry) LookupPublisher(topicID uint16) (*PublisherEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.publishers[topicID]
	return e, ok
}

// LookupSubscriber returns the subscriber entry for topicID, if any.
func (r *Registry) LookupSubscriber(topicID uint16) (*SubscriberEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.subscribers[topicID]
	return e, ok
}

// PublisherCount and SubscriberCount report current registry size, used
// by the metrics gauges and by tests.
func (r *Registry) PublisherCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.publishers)
}

func (r *Registry) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

// Reset releases every registered handle and empties both maps. Called
// on link termination; the registry is not reused afterward.
func (r *Registry) Reset() {
	r.mu.Lock()
	pubs := r.publishers
	subs := r.subscribers
	r.publishers = make(map[uint16]*PublisherEntry)
	r.subscribers = make(map[uint16]*SubscriberEntry)
	r.mu.Unlock()

	for _, e := range pubs {
		e.Handle.Close()
	}
	for _, e := range subs {
		e.Handle.Close()
	}
	metrics.SetRegisteredPublishers(0)
	metrics.SetRegisteredSubscribers(0)
}
