package codec

import (
	"bytes"
	"fmt"
	"io"
)

// Decoder turns a byte stream into Frame values. It is stateful: Feed
// appends bytes read off the wire, and each Decode call extracts at most
// one buffered frame, resuming mid-frame across calls. A Decoder is
// not safe for concurrent use; the link engine owns one per serial link.
//
// Grounded on internal/serial.Codec's DecodeStream accumulator: resync via
// byte search, partial frames retained across reads, and periodic buffer
// compaction so a long-lived link doesn't retain an ever-growing backing
// array after passing through a burst of line noise.
type Decoder struct {
	buf bytes.Buffer
}

// NewDecoder returns a Decoder with an empty internal buffer.
func NewDecoder() *Decoder { return &Decoder{} }

// Feed appends bytes read from the wire to the internal buffer.
func (d *Decoder) Feed(b []byte) {
	d.buf.Write(b)
	compact(&d.buf)
}

// Buffered reports how many unparsed bytes are currently retained.
func (d *Decoder) Buffered() int { return d.buf.Len() }

// compact reclaims consumed prefix capacity once the buffer has grown
// large relative to what's left unread. Thresholds chosen to avoid
// compacting on every call while still bounding worst-case growth from
// a long run of non-sync garbage.
func compact(b *bytes.Buffer) {
	data := b.Bytes()
	if len(data) < 1024 {
		return
	}
	if cap(data) > 0 && len(data)*4 < cap(data) {
		clone := make([]byte, len(data))
		copy(clone, data)
		b.Reset()
		_, _ = b.Write(clone)
	}
}

// Decode attempts to extract one Frame from the buffered bytes.
//
// It returns (Frame{}, ErrIncomplete) when more bytes are needed. It
// returns a wrapped protocol error (ErrWrongProtocolVersion,
// ErrInvalidLengthChecksum, ErrInvalidMessageChecksum) when the buffered
// bytes are well-formed enough to judge but fail validation; in every
// such case the offending bytes have already been discarded and the next
// call resumes the resync search at whatever byte follows the failure.
func (d *Decoder) Decode() (Frame, error) {
	data := d.buf.Bytes()

	i := bytes.IndexByte(data, Sync)
	if i < 0 {
		// No sync byte anywhere in the buffer: none of it is salvageable.
		d.buf.Reset()
		return Frame{}, ErrIncomplete
	}
	if i > 0 {
		d.buf.Next(i)
		data = d.buf.Bytes()
	}

	if len(data) < 2 {
		return Frame{}, ErrIncomplete
	}
	version := data[1]
	if version != ProtocolVersion {
		d.buf.Next(2) // sync + bad version byte both consumed
		return Frame{}, fmt.Errorf("%w: 0x%02X", ErrWrongProtocolVersion, version)
	}

	if len(data) < 5 {
		return Frame{}, ErrIncomplete
	}
	lenLo, lenHi, lenCksum := data[2], data[3], data[4]
	if sumMod256([]byte{lenLo, lenHi, lenCksum}) != 255 {
		d.buf.Next(5)
		return Frame{}, fmt.Errorf("%w: 0x%02X", ErrInvalidLengthChecksum, lenCksum)
	}
	length := int(lenLo) | int(lenHi)<<8

	if len(data) < 7 {
		return Frame{}, ErrIncomplete
	}
	if len(data) < 7+length {
		return Frame{}, ErrIncomplete
	}

	// Trailing checksum byte, tolerating zero-padding that some device
	// firmware inserts before it.
	pos := 7 + length
	for pos < len(data) && data[pos] == 0 {
		pos++
	}
	if pos >= len(data) {
		return Frame{}, ErrIncomplete
	}
	msgCksum := data[pos]
	topicLo, topicHi := data[5], data[6]
	payload := data[7 : 7+length]
	if sumMod256([]byte{topicLo, topicHi}, payload, []byte{msgCksum}) != 255 {
		d.buf.Next(pos + 1)
		return Frame{}, fmt.Errorf("%w: 0x%02X", ErrInvalidMessageChecksum, msgCksum)
	}

	out := Frame{
		TopicID: uint16(topicLo) | uint16(topicHi)<<8,
		Payload: append([]byte(nil), payload...),
	}
	d.buf.Next(pos + 1)
	return out, nil
}

// EncodeTo writes the wire representation of a regular frame to w and
// returns the number of bytes written. f.Payload must not exceed
// MaxPayload.
func EncodeTo(w io.Writer, f Frame) (int, error) {
	if len(f.Payload) > MaxPayload {
		return 0, fmt.Errorf("codec: payload too large: %d bytes", len(f.Payload))
	}
	lenLo := byte(len(f.Payload))
	lenHi := byte(len(f.Payload) >> 8)
	lenCksum := 255 - sumMod256([]byte{lenLo, lenHi})

	topicLo := byte(f.TopicID)
	topicHi := byte(f.TopicID >> 8)
	msgCksum := 255 - sumMod256([]byte{topicLo, topicHi}, f.Payload)

	header := [7]byte{Sync, ProtocolVersion, lenLo, lenHi, lenCksum, topicLo, topicHi}
	n, err := w.Write(header[:])
	if err != nil {
		return n, fmt.Errorf("codec: write header: %w", err)
	}
	total := n
	if len(f.Payload) > 0 {
		n, err = w.Write(f.Payload)
		total += n
		if err != nil {
			return total, fmt.Errorf("codec: write payload: %w", err)
		}
	}
	n, err = w.Write([]byte{msgCksum})
	total += n
	if err != nil {
		return total, fmt.Errorf("codec: write checksum: %w", err)
	}
	return total, nil
}

// Encode returns the wire representation of a regular frame.
func Encode(f Frame) []byte {
	var buf bytes.Buffer
	buf.Grow(7 + len(f.Payload) + 1)
	_, _ = EncodeTo(&buf, f) // buf.Write never fails
	return buf.Bytes()
}

// EncodeRaw writes sync+version followed by payload verbatim: the raw
// frame escape used exclusively by the link engine to emit the
// request-topics probe. It has no topic id, length, or checksum and the
// decoder never produces it; callers outside the engine's startup path
// have no reason to use it.
func EncodeRaw(payload []byte) []byte {
	out := make([]byte, 0, 2+len(payload))
	out = append(out, Sync, ProtocolVersion)
	out = append(out, payload...)
	return out
}
