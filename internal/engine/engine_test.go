package engine

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/ros-tools/rosserial-bridge/internal/codec"
	"github.com/ros-tools/rosserial-bridge/internal/pubsub"
	"github.com/ros-tools/rosserial-bridge/internal/registry"
)

// testLink wires an Engine to one end of an in-memory full-duplex pipe;
// the test drives the other end, playing the device.
type testLink struct {
	device  net.Conn
	adapter *pubsub.NullAdapter
	cancel  context.CancelFunc
	done    chan error
}

func newTestLink(t *testing.T, opts ...Option) *testLink {
	t.Helper()
	host, device := net.Pipe()
	adapter := pubsub.NewNullAdapter()

	ctx, cancel := context.WithCancel(context.Background())
	e := New(append([]Option{
		WithPort(host),
		WithAdapter(adapter),
		WithRegistry(registry.New()),
	}, opts...)...)

	link := &testLink{device: device, adapter: adapter, cancel: cancel, done: make(chan error, 1)}
	go func() { link.done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		device.Close()
	})
	return link
}

func readExactly(t *testing.T, r io.Reader, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("read %d bytes: %v", n, err)
	}
	return buf
}

func readFrame(t *testing.T, r io.Reader) codec.Frame {
	t.Helper()
	dec := codec.NewDecoder()
	buf := make([]byte, 256)
	for {
		fr, err := dec.Decode()
		if err == nil {
			return fr
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
		}
		if rerr != nil {
			t.Fatalf("read frame: %v", rerr)
		}
	}
}

func TestEngine_StartupProbe(t *testing.T) {
	link := newTestLink(t)
	got := readExactly(t, link.device, 8)
	want := []byte{0xFF, 0xFE, 0x00, 0x00, 0xFF, 0x00, 0x00, 0xFF}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("probe bytes = % X, want % X", got, want)
		}
	}
}

func TestEngine_TimeRoundTrip(t *testing.T) {
	link := newTestLink(t)
	readExactly(t, link.device, 8) // startup probe

	req := codec.Encode(codec.Frame{TopicID: idTime, Payload: nil})
	if _, err := link.device.Write(req); err != nil {
		t.Fatalf("write time request: %v", err)
	}

	reply := readFrame(t, link.device)
	if reply.TopicID != idTime {
		t.Fatalf("reply topic id = %d, want %d", reply.TopicID, idTime)
	}
	if len(reply.Payload) != 8 {
		t.Fatalf("reply payload len = %d, want 8", len(reply.Payload))
	}
}

func TestEngine_PublisherSetupThenData(t *testing.T) {
	link := newTestLink(t)
	readExactly(t, link.device, 8)

	info := registry.TopicInfo{TopicID: 101, TopicName: "/chatter", MessageType: "std_msgs/String", MD5Sum: "abc", BufferSize: 512}
	adv := codec.Encode(codec.Frame{TopicID: idPublisher, Payload: info.Marshal()})
	if _, err := link.device.Write(adv); err != nil {
		t.Fatalf("write publisher advertise: %v", err)
	}

	data := codec.Encode(codec.Frame{TopicID: info.TopicID, Payload: []byte("hello")})
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := link.device.Write(data); err != nil {
			t.Fatalf("write data frame: %v", err)
		}
		sent := link.adapter.Sent(info.TopicName)
		if len(sent) > 0 {
			if string(sent[len(sent)-1]) != "hello" {
				t.Fatalf("forwarded payload = %q, want %q", sent[len(sent)-1], "hello")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for publisher registration")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngine_UnknownTopicTriggersReProbe(t *testing.T) {
	link := newTestLink(t)
	readExactly(t, link.device, 8)

	data := codec.Encode(codec.Frame{TopicID: 55, Payload: []byte("x")})
	if _, err := link.device.Write(data); err != nil {
		t.Fatalf("write data frame: %v", err)
	}

	got := readExactly(t, link.device, 8)
	want := []byte{0xFF, 0xFE, 0x00, 0x00, 0xFF, 0x00, 0x00, 0xFF}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("re-probe bytes = % X, want % X", got, want)
		}
	}
}

func TestEngine_CorruptThenValidFrame(t *testing.T) {
	link := newTestLink(t)
	readExactly(t, link.device, 8)

	garbage := []byte{0x01, 0x02, 0x03, 0x04, 0x05} // line noise, no sync byte at all
	if _, err := link.device.Write(garbage); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	// Bad length checksum: 0x05 + 0x00 + 0xF9 sums to 0xFE, not 0xFF.
	corrupt := []byte{0xFF, 0xFE, 0x05, 0x00, 0xF9, 0x00, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0xF0}
	if _, err := link.device.Write(corrupt); err != nil {
		t.Fatalf("write corrupt frame: %v", err)
	}
	req := codec.Encode(codec.Frame{TopicID: idTime, Payload: nil})
	if _, err := link.device.Write(req); err != nil {
		t.Fatalf("write time request: %v", err)
	}

	reply := readFrame(t, link.device)
	if reply.TopicID != idTime {
		t.Fatalf("reply topic id = %d, want %d after resync", reply.TopicID, idTime)
	}
}

func TestEngine_LogForwarding(t *testing.T) {
	var captured []slog.Record
	handler := &recordingHandler{records: &captured}
	link := newTestLink(t, WithLogger(slog.New(handler)))
	readExactly(t, link.device, 8)

	w := logPayload(t, 1, "hello from device")
	frame := codec.Encode(codec.Frame{TopicID: idLog, Payload: w})
	if _, err := link.device.Write(frame); err != nil {
		t.Fatalf("write log frame: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		for _, r := range captured {
			if r.Message == "hello from device" {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("log message never forwarded")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngine_SubscriberDeliversToDevice(t *testing.T) {
	link := newTestLink(t)
	readExactly(t, link.device, 8)

	info := registry.TopicInfo{TopicID: 202, TopicName: "/cmd", MessageType: "std_msgs/String", MD5Sum: "abc", BufferSize: 128}
	adv := codec.Encode(codec.Frame{TopicID: idSubscriber, Payload: info.Marshal()})
	if _, err := link.device.Write(adv); err != nil {
		t.Fatalf("write subscriber advertise: %v", err)
	}

	frameCh := make(chan codec.Frame, 1)
	go func() { frameCh <- readFrame(t, link.device) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		link.adapter.Deliver(info.TopicName, []byte("go"))
		select {
		case fr := <-frameCh:
			if fr.TopicID != info.TopicID || string(fr.Payload) != "go" {
				t.Fatalf("got frame %+v, want topic %d payload \"go\"", fr, info.TopicID)
			}
			return
		case <-time.After(20 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatalf("subscriber frame never reached device")
		}
	}
}

// logPayload builds an ID_LOG payload: a level byte followed by a ROS
// string (uint32 length prefix, no terminator).
func logPayload(t *testing.T, level byte, msg string) []byte {
	t.Helper()
	out := []byte{level}
	n := uint32(len(msg))
	out = append(out, byte(n), byte(n>>8), byte(n>>16), byte(n>>24))
	out = append(out, msg...)
	return out
}

type recordingHandler struct {
	records *[]slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	*h.records = append(*h.records, r)
	return nil
}
func (h *recordingHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(_ string) slog.Handler      { return h }
