package pubsub

import (
	"context"
	"sync"
)

// NullAdapter is an in-memory Adapter used by tests and as a template for
// new fabric implementations: Publish/Subscribe never touch the network,
// Send records payloads for assertions, and Subscribe's sink is driven
// directly by test code via Deliver.
type NullAdapter struct {
	mu         sync.Mutex
	published  map[string]*nullPublisher
	subscribed map[string]*nullSubscriber
	shutdown   bool
}

// NewNullAdapter returns a ready-to-use NullAdapter.
func NewNullAdapter() *NullAdapter {
	return &NullAdapter{
		published:  make(map[string]*nullPublisher),
		subscribed: make(map[string]*nullSubscriber),
	}
}

type nullPublisher struct {
	topicName string
	mu        sync.Mutex
	sent      [][]byte
	closed    bool
}

func (p *nullPublisher) Send(payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, append([]byte(nil), payload...))
	return nil
}

func (p *nullPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// Sent returns a copy of the payloads sent to the publisher for topicName.
func (a *NullAdapter) Sent(topicName string) [][]byte {
	a.mu.Lock()
	p, ok := a.published[topicName]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.sent))
	copy(out, p.sent)
	return out
}

type nullSubscriber struct {
	topicName string
	sink      func([]byte)
	closed    bool
}

func (s *nullSubscriber) Close() { s.closed = true }

func (a *NullAdapter) Publish(_ context.Context, topicName, _, _ string, _ uint32) (Publisher, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := &nullPublisher{topicName: topicName}
	a.published[topicName] = p
	return p, nil
}

func (a *NullAdapter) Subscribe(_ context.Context, topicName, _, _ string, _ uint32, sink func([]byte)) (Subscriber, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := &nullSubscriber{topicName: topicName, sink: sink}
	a.subscribed[topicName] = s
	return s, nil
}

// Deliver simulates an inbound network message on topicName, invoking
// its sink if a subscription exists.
func (a *NullAdapter) Deliver(topicName string, payload []byte) {
	a.mu.Lock()
	s, ok := a.subscribed[topicName]
	a.mu.Unlock()
	if ok && !s.closed {
		s.sink(payload)
	}
}

func (a *NullAdapter) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shutdown = true
}
