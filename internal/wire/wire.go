// Package wire implements the little-endian field encoding rosserial
// uses inside message payloads: fixed-width integers and length-prefixed
// strings with no null terminator. Shared by internal/registry (topic_info)
// and internal/engine (Log and Parameter control payloads) so the two
// packages don't each carry their own copy of the same parser.
package wire

import (
	"encoding/binary"
	"errors"
)

// ErrShortRead is returned whenever a Reader method needs more bytes
// than remain in the buffer.
var ErrShortRead = errors.New("wire: short read")

// Reader walks a little-endian-serialized payload.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential field reads.
func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Remaining reports how many unread bytes are left in the buffer.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) Uint8() (byte, error) {
	if r.Remaining() < 1 {
		return 0, ErrShortRead
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) Uint16() (uint16, error) {
	if r.Remaining() < 2 {
		return 0, ErrShortRead
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) Uint32() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, ErrShortRead
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// String reads a ROS-serialized string: a uint32 length prefix followed
// by that many raw bytes, with no terminator.
func (r *Reader) String() (string, error) {
	n, err := r.Uint32()
	if err != nil {
		return "", err
	}
	if r.Remaining() < int(n) {
		return "", ErrShortRead
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// Writer appends little-endian fields to an accumulating buffer.
type Writer struct{ buf []byte }

// Bytes returns the bytes written so far.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Uint8(v byte) { w.buf = append(w.buf, v) }

func (w *Writer) Uint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Uint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) String(s string) {
	w.Uint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}
