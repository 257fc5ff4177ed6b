package codec

import (
	"errors"
	"testing"
)

func mustFrame(t *testing.T, got Frame, err error, wantTopic uint16, wantPayload []byte) {
	t.Helper()
	if err != nil {
		t.Fatalf("Decode: unexpected error: %v", err)
	}
	if got.TopicID != wantTopic {
		t.Fatalf("TopicID = %d, want %d", got.TopicID, wantTopic)
	}
	if string(got.Payload) != string(wantPayload) {
		t.Fatalf("Payload = % X, want % X", got.Payload, wantPayload)
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []Frame{
		{TopicID: 101, Payload: []byte("hello")},
		{TopicID: 10, Payload: nil},      // L=0 boundary
		{TopicID: 0xFFFF, Payload: []byte{0x00, 0x01, 0x02}},
		{TopicID: 7, Payload: []byte{byte(3), 'h', 'i'}},
	}
	for _, fr := range cases {
		wire := Encode(fr)
		d := NewDecoder()
		d.Feed(wire)
		got, err := d.Decode()
		mustFrame(t, got, err, fr.TopicID, fr.Payload)
	}
}

func TestRoundTrip_ChunkedFeed(t *testing.T) {
	fr := Frame{TopicID: 202, Payload: []byte("the quick brown fox jumps")}
	wire := Encode(fr)

	d := NewDecoder()
	chunkSizes := []int{1, 2, 3, 5, 7}
	cs := 0
	var got Frame
	var err error
	decoded := false
	for pos := 0; pos < len(wire); {
		n := chunkSizes[cs%len(chunkSizes)]
		cs++
		if pos+n > len(wire) {
			n = len(wire) - pos
		}
		d.Feed(wire[pos : pos+n])
		pos += n
		got, err = d.Decode()
		if err == nil {
			decoded = true
			break
		}
		if !errors.Is(err, ErrIncomplete) {
			t.Fatalf("unexpected error mid-feed: %v", err)
		}
	}
	if !decoded {
		t.Fatalf("frame never decoded after feeding all bytes")
	}
	mustFrame(t, got, nil, fr.TopicID, fr.Payload)
}

func TestResync_GarbagePrefix(t *testing.T) {
	fr := Frame{TopicID: 55, Payload: []byte{1, 2, 3}}
	wire := Encode(fr)
	garbage := []byte{0x00, 0x11, 0x22, 0x33, 0xAB}

	d := NewDecoder()
	d.Feed(garbage)
	d.Feed(wire)

	got, err := d.Decode()
	mustFrame(t, got, err, fr.TopicID, fr.Payload)
	if d.Buffered() != 0 {
		t.Fatalf("expected buffer drained, got %d bytes left", d.Buffered())
	}
}

func TestZeroPaddingBeforeChecksum(t *testing.T) {
	fr := Frame{TopicID: 42, Payload: []byte{9, 9}}
	wire := Encode(fr)
	// wire ends with: ... payload[0] payload[1] msgCksum
	// Insert k zero bytes immediately before the checksum byte.
	msgCksum := wire[len(wire)-1]
	prefix := wire[:len(wire)-1]
	for k := 0; k <= 4; k++ {
		padded := append(append([]byte{}, prefix...), make([]byte, k)...)
		padded = append(padded, msgCksum)

		d := NewDecoder()
		d.Feed(padded)
		got, err := d.Decode()
		mustFrame(t, got, err, fr.TopicID, fr.Payload)
	}
}

func TestCorruptFrameThenValidFrame(t *testing.T) {
	// FF FE 05 00 F9 00 00 01 02 03 04 05 F0 -- incorrect length checksum
	corrupt := []byte{0xFF, 0xFE, 0x05, 0x00, 0xF9, 0x00, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0xF0}
	valid := Encode(Frame{TopicID: 101, Payload: []byte("ok")})

	d := NewDecoder()
	d.Feed(corrupt)
	d.Feed(valid)

	_, err := d.Decode()
	if !errors.Is(err, ErrInvalidLengthChecksum) {
		t.Fatalf("expected ErrInvalidLengthChecksum, got %v", err)
	}

	got, err := d.Decode()
	mustFrame(t, got, err, 101, []byte("ok"))
}

func TestWrongProtocolVersion(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte{0xFF, 0xFD, 0x00})
	_, err := d.Decode()
	if !errors.Is(err, ErrWrongProtocolVersion) {
		t.Fatalf("expected ErrWrongProtocolVersion, got %v", err)
	}
}

func TestInvalidMessageChecksum(t *testing.T) {
	fr := Frame{TopicID: 3, Payload: []byte{1, 2, 3}}
	wire := Encode(fr)
	wire[len(wire)-1] ^= 0xFF // corrupt checksum byte

	d := NewDecoder()
	d.Feed(wire)
	_, err := d.Decode()
	if !errors.Is(err, ErrInvalidMessageChecksum) {
		t.Fatalf("expected ErrInvalidMessageChecksum, got %v", err)
	}
}

func TestDecode_Incomplete(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte{0xFF, 0xFE, 0x05, 0x00})
	_, err := d.Decode()
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
	if d.Buffered() != 4 {
		t.Fatalf("expected buffered bytes retained, got %d", d.Buffered())
	}
}

func TestEncodeRaw_RequestTopicsProbe(t *testing.T) {
	probe := []byte{0x00, 0x00, 0xFF, 0x00, 0x00, 0xFF}
	want := []byte{0xFF, 0xFE, 0x00, 0x00, 0xFF, 0x00, 0x00, 0xFF}
	got := EncodeRaw(probe)
	if string(got) != string(want) {
		t.Fatalf("EncodeRaw = % X, want % X", got, want)
	}
}

func TestChecksumsEvaluateTo255(t *testing.T) {
	fr := Frame{TopicID: 9001, Payload: []byte("payload-for-checksum-check")}
	wire := Encode(fr)
	lenLo, lenHi, lenCksum := wire[2], wire[3], wire[4]
	if sumMod256([]byte{lenLo, lenHi, lenCksum}) != 255 {
		t.Fatalf("length checksum does not evaluate to 255")
	}
	topicLo, topicHi := wire[5], wire[6]
	payload := wire[7 : len(wire)-1]
	msgCksum := wire[len(wire)-1]
	if sumMod256([]byte{topicLo, topicHi}, payload, []byte{msgCksum}) != 255 {
		t.Fatalf("message checksum does not evaluate to 255")
	}
}
