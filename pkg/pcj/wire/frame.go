package wire

import (
	"encoding/binary"
	"io"
)

// Frame is a single wire message: [uint32 length][uint8 kind][payload].
// Length excludes itself and counts the kind byte plus payload.
type Frame struct {
	Kind    uint8
	Payload []byte
}

// Encode returns the full on-wire bytes for this frame, including the
// leading length prefix.
func (f Frame) Encode() []byte {
	out := make([]byte, 4+1+len(f.Payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(1+len(f.Payload)))
	out[4] = f.Kind
	copy(out[5:], f.Payload)
	return out
}

// ReadFrame reads one complete frame from r, blocking until the full
// frame has arrived. It returns ErrMalformedMessage on a truncated
// stream (distinct from io.EOF on a clean connection close, which is
// returned unwrapped so callers can distinguish "peer hung up" from
// "peer sent garbage").
func ReadFrame(r io.Reader) (Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Frame{}, ErrMalformedMessage
		}
		return Frame{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return Frame{}, ErrMalformedMessage
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, ErrMalformedMessage
	}
	return Frame{Kind: body[0], Payload: body[1:]}, nil
}

// WriteFrame writes a complete frame to w.
func WriteFrame(w io.Writer, f Frame) error {
	_, err := w.Write(f.Encode())
	return err
}
