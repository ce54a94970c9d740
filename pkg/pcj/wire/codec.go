// Package wire implements the binary, big-endian framing and
// primitive codec: a writer that writes fields F1..Fn produces a byte
// stream from which a reader reading F1..Fn in the same order yields
// bit-identical values.
//
// Large opaque values (storage contents, reduce accumulators, user
// exception payloads) are carried as "objects": a length-prefixed
// blob encoded with msgpack, chosen because it is the same codec
// family raft-lineage transports use for their opaque command blobs.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/hashicorp/go-msgpack/codec"
)

// ErrMalformedMessage is returned for truncated streams, unknown type
// tags, or object payloads that fail to decode into the requested type.
var ErrMalformedMessage = errors.New("malformed message")

// DefaultChunkSize is the default size of a chunk in a chunked large
// object stream, overridable via pcj.network.chunk.size.
const DefaultChunkSize = 16384

var mh = &codec.MsgpackHandle{}

// Writer accumulates an encoded message body. The zero value is not
// usable; use NewWriter.
type Writer struct {
	buf *bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{buf: new(bytes.Buffer)}
}

// Bytes returns the accumulated encoded body.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Len reports how many bytes have been written so far.
func (w *Writer) Len() int { return w.buf.Len() }

func (w *Writer) WriteUint8(v uint8) { w.buf.WriteByte(v) }

func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

func (w *Writer) WriteFloat64(v float64) { w.WriteUint64(doubleBits(v)) }

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

// WriteString writes a UTF-8 length-prefixed string (uint32 byte length).
func (w *Writer) WriteString(s string) {
	w.WriteUint32(uint32(len(s)))
	w.buf.WriteString(s)
}

// WriteBytes writes a length-prefixed opaque byte slice.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.buf.Write(b)
}

// WriteObject encodes v with msgpack and writes it as a length-prefixed
// blob.
func (w *Writer) WriteObject(v interface{}) error {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, mh)
	if err := enc.Encode(v); err != nil {
		return err
	}
	w.WriteBytes(buf.Bytes())
	return nil
}

// WriteChunked streams r in chunkSize pieces, each framed as
// (uint32 chunkLength, chunkBytes), terminated by a zero-length chunk.
// Used for large byte arrays that should not be buffered whole.
func (w *Writer) WriteChunked(r io.Reader, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunk := make([]byte, chunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			w.WriteUint32(uint32(n))
			w.buf.Write(chunk[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
	}
	w.WriteUint32(0)
	return nil
}

// MarshalValue encodes an arbitrary storage/accumulator value with
// msgpack, independent of a Writer, for code that only needs to move
// an opaque value between Go and wire bytes (the collective engine's
// request tables hold decoded values, never Writer/Reader instances).
func MarshalValue(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, mh)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalValue decodes bytes written by MarshalValue/WriteObject into
// out, which must be a pointer (typically *interface{}).
func UnmarshalValue(b []byte, out interface{}) error {
	dec := codec.NewDecoder(bytes.NewReader(b), mh)
	if err := dec.Decode(out); err != nil {
		return ErrMalformedMessage
	}
	return nil
}

// Reader reads fields from an encoded message body in the order they
// were written.
type Reader struct {
	r *bytes.Reader
}

// NewReader wraps body for sequential field reads.
func NewReader(body []byte) *Reader {
	return &Reader{r: bytes.NewReader(body)}
}

// Remaining reports how many bytes are left unread.
func (r *Reader) Remaining() int { return r.r.Len() }

func (r *Reader) ReadUint8() (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, ErrMalformedMessage
	}
	return b[0], nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, ErrMalformedMessage
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, ErrMalformedMessage
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return doubleFromBits(v), nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return "", ErrMalformedMessage
	}
	return string(b), nil
}

func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, ErrMalformedMessage
	}
	return b, nil
}

// ReadObject decodes a length-prefixed msgpack blob into out, which
// must be a pointer.
func (r *Reader) ReadObject(out interface{}) error {
	b, err := r.ReadBytes()
	if err != nil {
		return err
	}
	dec := codec.NewDecoder(bytes.NewReader(b), mh)
	if err := dec.Decode(out); err != nil {
		return ErrMalformedMessage
	}
	return nil
}

// ReadChunked reads a chunked large byte array written by
// Writer.WriteChunked and returns the concatenated payload.
func (r *Reader) ReadChunked() ([]byte, error) {
	var out []byte
	for {
		n, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		chunk := make([]byte, n)
		if _, err := io.ReadFull(r.r, chunk); err != nil {
			return nil, ErrMalformedMessage
		}
		out = append(out, chunk...)
	}
	return out, nil
}
