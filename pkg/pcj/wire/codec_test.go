package wire

import (
	"bytes"
	"io"
	"testing"
)

func TestWriterReader_RoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteUint8(7)
	w.WriteUint32(424242)
	w.WriteUint64(1 << 40)
	w.WriteBool(true)
	w.WriteBool(false)
	w.WriteString("hello group")
	w.WriteFloat64(3.14159)
	if err := w.WriteObject(map[string]int{"a": 1, "b": 2}); err != nil {
		t.Fatalf("write object: %v", err)
	}

	r := NewReader(w.Bytes())
	if v, err := r.ReadUint8(); err != nil || v != 7 {
		t.Fatalf("uint8: %v %v", v, err)
	}
	if v, err := r.ReadUint32(); err != nil || v != 424242 {
		t.Fatalf("uint32: %v %v", v, err)
	}
	if v, err := r.ReadUint64(); err != nil || v != 1<<40 {
		t.Fatalf("uint64: %v %v", v, err)
	}
	if v, err := r.ReadBool(); err != nil || v != true {
		t.Fatalf("bool1: %v %v", v, err)
	}
	if v, err := r.ReadBool(); err != nil || v != false {
		t.Fatalf("bool2: %v %v", v, err)
	}
	if v, err := r.ReadString(); err != nil || v != "hello group" {
		t.Fatalf("string: %v %v", v, err)
	}
	if v, err := r.ReadFloat64(); err != nil || v != 3.14159 {
		t.Fatalf("float64: %v %v", v, err)
	}
	var m map[string]int
	if err := r.ReadObject(&m); err != nil {
		t.Fatalf("read object: %v", err)
	}
	if m["a"] != 1 || m["b"] != 2 {
		t.Fatalf("object mismatch: %#v", m)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected no remaining bytes, got %d", r.Remaining())
	}
}

func TestReader_TruncatedStreamIsMalformed(t *testing.T) {
	w := NewWriter()
	w.WriteUint32(123)
	truncated := w.Bytes()[:2]
	r := NewReader(truncated)
	if _, err := r.ReadUint32(); err != ErrMalformedMessage {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
}

func TestChunkedStream_RoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 5000)
	w := NewWriter()
	if err := w.WriteChunked(bytes.NewReader(payload), 64); err != nil {
		t.Fatalf("write chunked: %v", err)
	}
	r := NewReader(w.Bytes())
	got, err := r.ReadChunked()
	if err != nil {
		t.Fatalf("read chunked: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("chunked payload mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestFrame_RoundTrip(t *testing.T) {
	f := Frame{Kind: 5, Payload: []byte("payload-bytes")}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if got.Kind != f.Kind || !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("frame mismatch: %#v vs %#v", got, f)
	}
}

func TestReadFrame_EmptyStreamIsEOF(t *testing.T) {
	_, err := ReadFrame(&bytes.Buffer{})
	if err != io.EOF {
		t.Fatalf("expected io.EOF on empty stream, got %v", err)
	}
}
