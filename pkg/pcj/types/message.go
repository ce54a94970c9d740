package types

import "github.com/jabolina/pcj/pkg/pcj/wire"

// MessageKind is the one-byte wire tag identifying a message's shape,
// a stable numeric enum so wire layout never depends on string names.
type MessageKind uint8

const (
	KindHello MessageKind = iota
	KindHelloResponse
	KindHelloCompleted
	KindHelloGo
	KindBarrierGo
	KindBarrierWaitingBytes
	KindBroadcastRequest
	KindBroadcastBytes
	KindBroadcastInform
	KindCollectRequest
	KindCollectValueBytes
	KindReduceRequest
	KindReduceValueBytes
	KindGroupJoinRequest
	KindGroupJoinResponse
	KindGroupJoinInform
	KindGroupJoinConfirm
	KindGetRequest
	KindGetReply
	KindPutRequest
	KindPutReply
	KindAccumulateRequest
	KindAccumulateReply
	KindAsyncAtRequest
	KindAsyncAtReply
	KindBye
	KindByeCompleted
)

func (k MessageKind) String() string {
	names := [...]string{
		"Hello", "HelloResponse", "HelloCompleted", "HelloGo",
		"BarrierGo", "BarrierWaitingBytes",
		"BroadcastRequest", "BroadcastBytes", "BroadcastInform",
		"CollectRequest", "CollectValueBytes",
		"ReduceRequest", "ReduceValueBytes",
		"GroupJoinRequest", "GroupJoinResponse", "GroupJoinInform", "GroupJoinConfirm",
		"GetRequest", "GetReply", "PutRequest", "PutReply",
		"AccumulateRequest", "AccumulateReply",
		"AsyncAtRequest", "AsyncAtReply",
		"Bye", "ByeCompleted",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Message is any value that can be framed on the wire: it knows its
// own kind and how to encode/decode its kind-specific fields.
type Message interface {
	Kind() MessageKind
	Encode(w *wire.Writer) error
	Decode(r *wire.Reader) error
}

// Envelope pairs a decoded Message with the physical id of the sender,
// the unit the Networker hands to a worker.
type Envelope struct {
	From    PhysicalID
	Message Message
}

// NewEmpty returns a zero-valued Message for the given kind, ready to
// Decode into, or an error if the kind is not recognized.
func NewEmpty(kind MessageKind) (Message, error) {
	switch kind {
	case KindHello:
		return &Hello{}, nil
	case KindHelloResponse:
		return &HelloResponse{}, nil
	case KindHelloCompleted:
		return &HelloCompleted{}, nil
	case KindHelloGo:
		return &HelloGo{}, nil
	case KindBarrierGo:
		return &BarrierGo{}, nil
	case KindBarrierWaitingBytes:
		return &BarrierWaitingBytes{}, nil
	case KindBroadcastRequest:
		return &BroadcastRequest{}, nil
	case KindBroadcastBytes:
		return &BroadcastBytes{}, nil
	case KindBroadcastInform:
		return &BroadcastInform{}, nil
	case KindCollectRequest:
		return &CollectRequest{}, nil
	case KindCollectValueBytes:
		return &CollectValueBytes{}, nil
	case KindReduceRequest:
		return &ReduceRequest{}, nil
	case KindReduceValueBytes:
		return &ReduceValueBytes{}, nil
	case KindGroupJoinRequest:
		return &GroupJoinRequest{}, nil
	case KindGroupJoinResponse:
		return &GroupJoinResponse{}, nil
	case KindGroupJoinInform:
		return &GroupJoinInform{}, nil
	case KindGroupJoinConfirm:
		return &GroupJoinConfirm{}, nil
	case KindGetRequest:
		return &GetRequest{}, nil
	case KindGetReply:
		return &GetReply{}, nil
	case KindPutRequest:
		return &PutRequest{}, nil
	case KindPutReply:
		return &PutReply{}, nil
	case KindAccumulateRequest:
		return &AccumulateRequest{}, nil
	case KindAccumulateReply:
		return &AccumulateReply{}, nil
	case KindAsyncAtRequest:
		return &AsyncAtRequest{}, nil
	case KindAsyncAtReply:
		return &AsyncAtReply{}, nil
	case KindBye:
		return &Bye{}, nil
	case KindByeCompleted:
		return &ByeCompleted{}, nil
	default:
		return nil, ErrMalformed
	}
}

// EncodeFrame encodes m's body and returns the wire.Frame ready to
// send, or an error if encoding fails (never expected for well-formed
// Go values, but object fields can fail msgpack encoding).
func EncodeFrame(m Message) (wire.Frame, error) {
	w := wire.NewWriter()
	if err := m.Encode(w); err != nil {
		return wire.Frame{}, err
	}
	return wire.Frame{Kind: uint8(m.Kind()), Payload: w.Bytes()}, nil
}

// DecodeFrame constructs and decodes a Message from a received frame.
func DecodeFrame(f wire.Frame) (Message, error) {
	m, err := NewEmpty(MessageKind(f.Kind))
	if err != nil {
		return nil, err
	}
	r := wire.NewReader(f.Payload)
	if err := m.Decode(r); err != nil {
		return nil, err
	}
	return m, nil
}
