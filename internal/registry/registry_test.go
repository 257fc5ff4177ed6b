package registry

import (
	"context"
	"testing"

	"github.com/ros-tools/rosserial-bridge/internal/pubsub"
)

// closeRecorder wraps a Publisher and records whether Close was called.
type closeRecorder struct {
	pubsub.Publisher
	closed bool
}

func (c *closeRecorder) Close() {
	c.closed = true
	c.Publisher.Close()
}

func TestTopicInfoRoundTrip(t *testing.T) {
	want := TopicInfo{
		TopicID:     101,
		TopicName:   "/chatter",
		MessageType: "std_msgs/String",
		MD5Sum:      "992ce8a1687cec8c8bd883ec73ca41d1",
		BufferSize:  512,
	}
	got, err := ParseTopicInfo(want.Marshal())
	if err != nil {
		t.Fatalf("ParseTopicInfo: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestParseTopicInfo_ShortPayload(t *testing.T) {
	if _, err := ParseTopicInfo([]byte{0x01}); err == nil {
		t.Fatalf("expected error on truncated payload")
	}
}

func TestRegisterPublisher_IdempotentRouting(t *testing.T) {
	adapter := pubsub.NewNullAdapter()
	r := New()

	info := TopicInfo{TopicID: 101, TopicName: "/chatter", MessageType: "std_msgs/String", MD5Sum: "abc", BufferSize: 512}
	h1, _ := adapter.Publish(context.Background(), info.TopicName, info.MessageType, info.MD5Sum, info.BufferSize)
	r.RegisterPublisher(info, h1)
	if r.PublisherCount() != 1 {
		t.Fatalf("expected 1 publisher, got %d", r.PublisherCount())
	}

	// Re-advertising the same topic id replaces, not duplicates.
	h2, _ := adapter.Publish(context.Background(), info.TopicName, info.MessageType, info.MD5Sum, info.BufferSize)
	r.RegisterPublisher(info, h2)
	if r.PublisherCount() != 1 {
		t.Fatalf("expected registration to replace in place, got %d publishers", r.PublisherCount())
	}

	entry, ok := r.LookupPublisher(101)
	if !ok {
		t.Fatalf("expected publisher entry to be found")
	}
	if err := entry.Handle.Send([]byte("payload")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(adapter.Sent("/chatter")) != 1 {
		t.Fatalf("expected exactly one payload observed on current handle")
	}
}

func TestLookupSubscriber_Missing(t *testing.T) {
	r := New()
	if _, ok := r.LookupSubscriber(999); ok {
		t.Fatalf("expected no entry for unregistered topic id")
	}
}

func TestReset_ReleasesHandles(t *testing.T) {
	adapter := pubsub.NewNullAdapter()
	r := New()
	info := TopicInfo{TopicID: 101, TopicName: "/chatter"}
	h, _ := adapter.Publish(context.Background(), info.TopicName, "", "", 0)
	rec := &closeRecorder{Publisher: h}
	r.RegisterPublisher(info, rec)

	r.Reset()
	if !rec.closed {
		t.Fatalf("expected publisher handle closed by reset")
	}
	if r.PublisherCount() != 0 {
		t.Fatalf("expected registry empty after reset, got %d", r.PublisherCount())
	}
	if _, ok := r.LookupPublisher(101); ok {
		t.Fatalf("expected publisher gone after reset")
	}
}
