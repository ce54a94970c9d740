package types

import "github.com/jabolina/pcj/pkg/pcj/wire"

// NodeInfo is the wire rendering of a Node, used inside HelloGo's
// node table broadcast.
type NodeInfo struct {
	Physical     PhysicalID
	Hostname     string
	Port         int
	LocalThreads []GlobalThreadID
}

func (n *NodeInfo) encode(w *wire.Writer) {
	w.WriteUint32(uint32(n.Physical))
	w.WriteString(n.Hostname)
	w.WriteUint32(uint32(n.Port))
	w.WriteUint32(uint32(len(n.LocalThreads)))
	for _, t := range n.LocalThreads {
		w.WriteUint64(uint64(t))
	}
}

func (n *NodeInfo) decode(r *wire.Reader) error {
	p, err := r.ReadUint32()
	if err != nil {
		return err
	}
	n.Physical = PhysicalID(p)
	if n.Hostname, err = r.ReadString(); err != nil {
		return err
	}
	port, err := r.ReadUint32()
	if err != nil {
		return err
	}
	n.Port = int(port)
	count, err := r.ReadUint32()
	if err != nil {
		return err
	}
	n.LocalThreads = make([]GlobalThreadID, count)
	for i := range n.LocalThreads {
		v, err := r.ReadUint64()
		if err != nil {
			return err
		}
		n.LocalThreads[i] = GlobalThreadID(v)
	}
	return nil
}

// ---- Bootstrap ----

// Hello is sent by a non-zero node to node 0 to announce itself.
type Hello struct {
	Hostname string
	Port     int
	Threads  []GlobalThreadID
	// Protocol is this process's wire protocol version string (e.g.
	// "1.0.0"), checked by node 0 during the handshake so a mismatched
	// build fails fast instead of producing malformed-message errors
	// once traffic starts flowing. Empty on the second, mesh-ready
	// Hello{} a follower sends after the handshake has already
	// succeeded, since that one never goes through the version check.
	Protocol string
}

func (m *Hello) Kind() MessageKind { return KindHello }
func (m *Hello) Encode(w *wire.Writer) error {
	w.WriteString(m.Hostname)
	w.WriteUint32(uint32(m.Port))
	w.WriteUint32(uint32(len(m.Threads)))
	for _, t := range m.Threads {
		w.WriteUint64(uint64(t))
	}
	w.WriteString(m.Protocol)
	return nil
}
func (m *Hello) Decode(r *wire.Reader) error {
	var err error
	if m.Hostname, err = r.ReadString(); err != nil {
		return err
	}
	port, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.Port = int(port)
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.Threads = make([]GlobalThreadID, n)
	for i := range m.Threads {
		v, err := r.ReadUint64()
		if err != nil {
			return err
		}
		m.Threads[i] = GlobalThreadID(v)
	}
	if m.Protocol, err = r.ReadString(); err != nil {
		return err
	}
	return nil
}

// HelloResponse is node 0's direct reply to a Hello, carrying the
// sender's assigned physical id.
type HelloResponse struct {
	Assigned PhysicalID
}

func (m *HelloResponse) Kind() MessageKind { return KindHelloResponse }
func (m *HelloResponse) Encode(w *wire.Writer) error {
	w.WriteUint32(uint32(m.Assigned))
	return nil
}
func (m *HelloResponse) Decode(r *wire.Reader) error {
	v, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.Assigned = PhysicalID(v)
	return nil
}

// HelloGo is node 0's broadcast of the complete node table once every
// node has said Hello; receivers use it to open the full mesh.
type HelloGo struct {
	Nodes []NodeInfo
}

func (m *HelloGo) Kind() MessageKind { return KindHelloGo }
func (m *HelloGo) Encode(w *wire.Writer) error {
	w.WriteUint32(uint32(len(m.Nodes)))
	for i := range m.Nodes {
		m.Nodes[i].encode(w)
	}
	return nil
}
func (m *HelloGo) Decode(r *wire.Reader) error {
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.Nodes = make([]NodeInfo, n)
	for i := range m.Nodes {
		if err := m.Nodes[i].decode(r); err != nil {
			return err
		}
	}
	return nil
}

// HelloCompleted is sent by node 0 once the full mesh is connected;
// receivers instantiate local threads and invoke the user entry point.
type HelloCompleted struct{}

func (m *HelloCompleted) Kind() MessageKind      { return KindHelloCompleted }
func (m *HelloCompleted) Encode(*wire.Writer) error { return nil }
func (m *HelloCompleted) Decode(*wire.Reader) error { return nil }

// ---- Barrier ----

type BarrierGo struct {
	Group     GroupID
	Req       RequestNum
	Requester GlobalThreadID
}

func (m *BarrierGo) Kind() MessageKind { return KindBarrierGo }
func (m *BarrierGo) Encode(w *wire.Writer) error {
	w.WriteUint32(uint32(m.Group))
	w.WriteUint64(uint64(m.Req))
	w.WriteUint64(uint64(m.Requester))
	return nil
}
func (m *BarrierGo) Decode(r *wire.Reader) error {
	return decodeGroupReqRequester(r, &m.Group, &m.Req, &m.Requester)
}

type BarrierWaitingBytes struct {
	Group GroupID
	Req   RequestNum
}

func (m *BarrierWaitingBytes) Kind() MessageKind { return KindBarrierWaitingBytes }
func (m *BarrierWaitingBytes) Encode(w *wire.Writer) error {
	w.WriteUint32(uint32(m.Group))
	w.WriteUint64(uint64(m.Req))
	return nil
}
func (m *BarrierWaitingBytes) Decode(r *wire.Reader) error {
	return decodeGroupReq(r, &m.Group, &m.Req)
}

// ---- Broadcast ----

type BroadcastRequest struct {
	Group     GroupID
	Req       RequestNum
	Requester GlobalThreadID
	Storage   string
	Name      string
	Value     []byte
}

func (m *BroadcastRequest) Kind() MessageKind { return KindBroadcastRequest }
func (m *BroadcastRequest) Encode(w *wire.Writer) error {
	w.WriteUint32(uint32(m.Group))
	w.WriteUint64(uint64(m.Req))
	w.WriteUint64(uint64(m.Requester))
	w.WriteString(m.Storage)
	w.WriteString(m.Name)
	w.WriteBytes(m.Value)
	return nil
}
func (m *BroadcastRequest) Decode(r *wire.Reader) error {
	if err := decodeGroupReqRequester(r, &m.Group, &m.Req, &m.Requester); err != nil {
		return err
	}
	var err error
	if m.Storage, err = r.ReadString(); err != nil {
		return err
	}
	if m.Name, err = r.ReadString(); err != nil {
		return err
	}
	if m.Value, err = r.ReadBytes(); err != nil {
		return err
	}
	return nil
}

// BroadcastInform carries the same payload as BroadcastRequest but is
// addressed to a node's own loopback, telling it to apply the value to
// every local group thread's storage rather than forward it.
type BroadcastInform struct {
	BroadcastRequest
}

func (m *BroadcastInform) Kind() MessageKind { return KindBroadcastInform }

type BroadcastBytes struct {
	Group GroupID
	Req   RequestNum
}

func (m *BroadcastBytes) Kind() MessageKind { return KindBroadcastBytes }
func (m *BroadcastBytes) Encode(w *wire.Writer) error {
	w.WriteUint32(uint32(m.Group))
	w.WriteUint64(uint64(m.Req))
	return nil
}
func (m *BroadcastBytes) Decode(r *wire.Reader) error {
	return decodeGroupReq(r, &m.Group, &m.Req)
}

// ---- Collect ----

type CollectEntry struct {
	Thread GroupThreadID
	Value  []byte
}

type CollectRequest struct {
	Group     GroupID
	Req       RequestNum
	Requester GlobalThreadID
	Storage   string
	Name      string
	Entries   []CollectEntry
}

func (m *CollectRequest) Kind() MessageKind { return KindCollectRequest }
func (m *CollectRequest) Encode(w *wire.Writer) error {
	w.WriteUint32(uint32(m.Group))
	w.WriteUint64(uint64(m.Req))
	w.WriteUint64(uint64(m.Requester))
	w.WriteString(m.Storage)
	w.WriteString(m.Name)
	w.WriteUint32(uint32(len(m.Entries)))
	for _, e := range m.Entries {
		w.WriteUint32(uint32(e.Thread))
		w.WriteBytes(e.Value)
	}
	return nil
}
func (m *CollectRequest) Decode(r *wire.Reader) error {
	if err := decodeGroupReqRequester(r, &m.Group, &m.Req, &m.Requester); err != nil {
		return err
	}
	var err error
	if m.Storage, err = r.ReadString(); err != nil {
		return err
	}
	if m.Name, err = r.ReadString(); err != nil {
		return err
	}
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.Entries = make([]CollectEntry, n)
	for i := range m.Entries {
		t, err := r.ReadUint32()
		if err != nil {
			return err
		}
		v, err := r.ReadBytes()
		if err != nil {
			return err
		}
		m.Entries[i] = CollectEntry{Thread: GroupThreadID(t), Value: v}
	}
	return nil
}

type CollectValueBytes struct {
	Group   GroupID
	Req     RequestNum
	Entries []CollectEntry
	Err     ErrorKind
}

func (m *CollectValueBytes) Kind() MessageKind { return KindCollectValueBytes }
func (m *CollectValueBytes) Encode(w *wire.Writer) error {
	w.WriteUint32(uint32(m.Group))
	w.WriteUint64(uint64(m.Req))
	w.WriteUint8(uint8(m.Err))
	w.WriteUint32(uint32(len(m.Entries)))
	for _, e := range m.Entries {
		w.WriteUint32(uint32(e.Thread))
		w.WriteBytes(e.Value)
	}
	return nil
}
func (m *CollectValueBytes) Decode(r *wire.Reader) error {
	if err := decodeGroupReq(r, &m.Group, &m.Req); err != nil {
		return err
	}
	e, err := r.ReadUint8()
	if err != nil {
		return err
	}
	m.Err = ErrorKind(e)
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.Entries = make([]CollectEntry, n)
	for i := range m.Entries {
		t, err := r.ReadUint32()
		if err != nil {
			return err
		}
		v, err := r.ReadBytes()
		if err != nil {
			return err
		}
		m.Entries[i] = CollectEntry{Thread: GroupThreadID(t), Value: v}
	}
	return nil
}

// ---- Reduce ----

type ReduceRequest struct {
	Group     GroupID
	Req       RequestNum
	Requester GlobalThreadID
	Storage   string
	Name      string
	Value     []byte
}

func (m *ReduceRequest) Kind() MessageKind { return KindReduceRequest }
func (m *ReduceRequest) Encode(w *wire.Writer) error {
	w.WriteUint32(uint32(m.Group))
	w.WriteUint64(uint64(m.Req))
	w.WriteUint64(uint64(m.Requester))
	w.WriteString(m.Storage)
	w.WriteString(m.Name)
	w.WriteBytes(m.Value)
	return nil
}
func (m *ReduceRequest) Decode(r *wire.Reader) error {
	if err := decodeGroupReqRequester(r, &m.Group, &m.Req, &m.Requester); err != nil {
		return err
	}
	var err error
	if m.Storage, err = r.ReadString(); err != nil {
		return err
	}
	if m.Name, err = r.ReadString(); err != nil {
		return err
	}
	if m.Value, err = r.ReadBytes(); err != nil {
		return err
	}
	return nil
}

type ReduceValueBytes struct {
	Group GroupID
	Req   RequestNum
	Value []byte
	Err   ErrorKind
}

func (m *ReduceValueBytes) Kind() MessageKind { return KindReduceValueBytes }
func (m *ReduceValueBytes) Encode(w *wire.Writer) error {
	w.WriteUint32(uint32(m.Group))
	w.WriteUint64(uint64(m.Req))
	w.WriteUint8(uint8(m.Err))
	w.WriteBytes(m.Value)
	return nil
}
func (m *ReduceValueBytes) Decode(r *wire.Reader) error {
	if err := decodeGroupReq(r, &m.Group, &m.Req); err != nil {
		return err
	}
	e, err := r.ReadUint8()
	if err != nil {
		return err
	}
	m.Err = ErrorKind(e)
	if m.Value, err = r.ReadBytes(); err != nil {
		return err
	}
	return nil
}

// ---- Group join ----

type ThreadsMapEntry struct {
	GroupThread  GroupThreadID
	GlobalThread GlobalThreadID
}

type GroupJoinRequest struct {
	GroupName string
	Joiner    GlobalThreadID
}

func (m *GroupJoinRequest) Kind() MessageKind { return KindGroupJoinRequest }
func (m *GroupJoinRequest) Encode(w *wire.Writer) error {
	w.WriteString(m.GroupName)
	w.WriteUint64(uint64(m.Joiner))
	return nil
}
func (m *GroupJoinRequest) Decode(r *wire.Reader) error {
	var err error
	if m.GroupName, err = r.ReadString(); err != nil {
		return err
	}
	v, err := r.ReadUint64()
	if err != nil {
		return err
	}
	m.Joiner = GlobalThreadID(v)
	return nil
}

type GroupJoinInform struct {
	Group      GroupID
	GroupName  string
	ThreadsMap []ThreadsMapEntry
}

func (m *GroupJoinInform) Kind() MessageKind { return KindGroupJoinInform }
func (m *GroupJoinInform) Encode(w *wire.Writer) error {
	w.WriteUint32(uint32(m.Group))
	w.WriteString(m.GroupName)
	w.WriteUint32(uint32(len(m.ThreadsMap)))
	for _, e := range m.ThreadsMap {
		w.WriteUint32(uint32(e.GroupThread))
		w.WriteUint64(uint64(e.GlobalThread))
	}
	return nil
}
func (m *GroupJoinInform) Decode(r *wire.Reader) error {
	g, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.Group = GroupID(g)
	if m.GroupName, err = r.ReadString(); err != nil {
		return err
	}
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.ThreadsMap = make([]ThreadsMapEntry, n)
	for i := range m.ThreadsMap {
		gt, err := r.ReadUint32()
		if err != nil {
			return err
		}
		gl, err := r.ReadUint64()
		if err != nil {
			return err
		}
		m.ThreadsMap[i] = ThreadsMapEntry{GroupThread: GroupThreadID(gt), GlobalThread: GlobalThreadID(gl)}
	}
	return nil
}

type GroupJoinConfirm struct {
	Group GroupID
	From  PhysicalID
}

func (m *GroupJoinConfirm) Kind() MessageKind { return KindGroupJoinConfirm }
func (m *GroupJoinConfirm) Encode(w *wire.Writer) error {
	w.WriteUint32(uint32(m.Group))
	w.WriteUint32(uint32(m.From))
	return nil
}
func (m *GroupJoinConfirm) Decode(r *wire.Reader) error {
	g, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.Group = GroupID(g)
	f, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.From = PhysicalID(f)
	return nil
}

type GroupJoinResponse struct {
	Group      GroupID
	GroupName  string
	Joiner     GlobalThreadID
	Assigned   GroupThreadID
	ThreadsMap []ThreadsMapEntry
	Err        ErrorKind
}

func (m *GroupJoinResponse) Kind() MessageKind { return KindGroupJoinResponse }
func (m *GroupJoinResponse) Encode(w *wire.Writer) error {
	w.WriteUint32(uint32(m.Group))
	w.WriteString(m.GroupName)
	w.WriteUint64(uint64(m.Joiner))
	w.WriteUint32(uint32(m.Assigned))
	w.WriteUint8(uint8(m.Err))
	w.WriteUint32(uint32(len(m.ThreadsMap)))
	for _, e := range m.ThreadsMap {
		w.WriteUint32(uint32(e.GroupThread))
		w.WriteUint64(uint64(e.GlobalThread))
	}
	return nil
}
func (m *GroupJoinResponse) Decode(r *wire.Reader) error {
	g, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.Group = GroupID(g)
	if m.GroupName, err = r.ReadString(); err != nil {
		return err
	}
	j, err := r.ReadUint64()
	if err != nil {
		return err
	}
	m.Joiner = GlobalThreadID(j)
	a, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.Assigned = GroupThreadID(a)
	e, err := r.ReadUint8()
	if err != nil {
		return err
	}
	m.Err = ErrorKind(e)
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.ThreadsMap = make([]ThreadsMapEntry, n)
	for i := range m.ThreadsMap {
		gt, err := r.ReadUint32()
		if err != nil {
			return err
		}
		gl, err := r.ReadUint64()
		if err != nil {
			return err
		}
		m.ThreadsMap[i] = ThreadsMapEntry{GroupThread: GroupThreadID(gt), GlobalThread: GlobalThreadID(gl)}
	}
	return nil
}

// ---- Get / Put / Accumulate / AsyncAt ----

type GetRequest struct {
	Target  GlobalThreadID
	Storage string
	Name    string
	Req     RequestNum
	From    PhysicalID
}

func (m *GetRequest) Kind() MessageKind { return KindGetRequest }
func (m *GetRequest) Encode(w *wire.Writer) error {
	w.WriteUint64(uint64(m.Target))
	w.WriteString(m.Storage)
	w.WriteString(m.Name)
	w.WriteUint64(uint64(m.Req))
	w.WriteUint32(uint32(m.From))
	return nil
}
func (m *GetRequest) Decode(r *wire.Reader) error {
	t, err := r.ReadUint64()
	if err != nil {
		return err
	}
	m.Target = GlobalThreadID(t)
	if m.Storage, err = r.ReadString(); err != nil {
		return err
	}
	if m.Name, err = r.ReadString(); err != nil {
		return err
	}
	req, err := r.ReadUint64()
	if err != nil {
		return err
	}
	m.Req = RequestNum(req)
	f, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.From = PhysicalID(f)
	return nil
}

type GetReply struct {
	Req   RequestNum
	Value []byte
	Err   ErrorKind
}

func (m *GetReply) Kind() MessageKind { return KindGetReply }
func (m *GetReply) Encode(w *wire.Writer) error {
	w.WriteUint64(uint64(m.Req))
	w.WriteUint8(uint8(m.Err))
	w.WriteBytes(m.Value)
	return nil
}
func (m *GetReply) Decode(r *wire.Reader) error {
	req, err := r.ReadUint64()
	if err != nil {
		return err
	}
	m.Req = RequestNum(req)
	e, err := r.ReadUint8()
	if err != nil {
		return err
	}
	m.Err = ErrorKind(e)
	if m.Value, err = r.ReadBytes(); err != nil {
		return err
	}
	return nil
}

type PutRequest struct {
	Target  GlobalThreadID
	Storage string
	Name    string
	Value   []byte
	Req     RequestNum
	From    PhysicalID
}

func (m *PutRequest) Kind() MessageKind { return KindPutRequest }
func (m *PutRequest) Encode(w *wire.Writer) error {
	w.WriteUint64(uint64(m.Target))
	w.WriteString(m.Storage)
	w.WriteString(m.Name)
	w.WriteBytes(m.Value)
	w.WriteUint64(uint64(m.Req))
	w.WriteUint32(uint32(m.From))
	return nil
}
func (m *PutRequest) Decode(r *wire.Reader) error {
	t, err := r.ReadUint64()
	if err != nil {
		return err
	}
	m.Target = GlobalThreadID(t)
	if m.Storage, err = r.ReadString(); err != nil {
		return err
	}
	if m.Name, err = r.ReadString(); err != nil {
		return err
	}
	if m.Value, err = r.ReadBytes(); err != nil {
		return err
	}
	req, err := r.ReadUint64()
	if err != nil {
		return err
	}
	m.Req = RequestNum(req)
	f, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.From = PhysicalID(f)
	return nil
}

type PutReply struct {
	Req RequestNum
	Err ErrorKind
}

func (m *PutReply) Kind() MessageKind { return KindPutReply }
func (m *PutReply) Encode(w *wire.Writer) error {
	w.WriteUint64(uint64(m.Req))
	w.WriteUint8(uint8(m.Err))
	return nil
}
func (m *PutReply) Decode(r *wire.Reader) error {
	req, err := r.ReadUint64()
	if err != nil {
		return err
	}
	m.Req = RequestNum(req)
	e, err := r.ReadUint8()
	if err != nil {
		return err
	}
	m.Err = ErrorKind(e)
	return nil
}

type AccumulateRequest struct {
	Target  GlobalThreadID
	Storage string
	Name    string
	Value   []byte
	Req     RequestNum
	From    PhysicalID
}

func (m *AccumulateRequest) Kind() MessageKind { return KindAccumulateRequest }
func (m *AccumulateRequest) Encode(w *wire.Writer) error {
	w.WriteUint64(uint64(m.Target))
	w.WriteString(m.Storage)
	w.WriteString(m.Name)
	w.WriteBytes(m.Value)
	w.WriteUint64(uint64(m.Req))
	w.WriteUint32(uint32(m.From))
	return nil
}
func (m *AccumulateRequest) Decode(r *wire.Reader) error {
	t, err := r.ReadUint64()
	if err != nil {
		return err
	}
	m.Target = GlobalThreadID(t)
	if m.Storage, err = r.ReadString(); err != nil {
		return err
	}
	if m.Name, err = r.ReadString(); err != nil {
		return err
	}
	if m.Value, err = r.ReadBytes(); err != nil {
		return err
	}
	req, err := r.ReadUint64()
	if err != nil {
		return err
	}
	m.Req = RequestNum(req)
	f, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.From = PhysicalID(f)
	return nil
}

type AccumulateReply struct {
	Req RequestNum
	Err ErrorKind
}

func (m *AccumulateReply) Kind() MessageKind { return KindAccumulateReply }
func (m *AccumulateReply) Encode(w *wire.Writer) error {
	w.WriteUint64(uint64(m.Req))
	w.WriteUint8(uint8(m.Err))
	return nil
}
func (m *AccumulateReply) Decode(r *wire.Reader) error {
	req, err := r.ReadUint64()
	if err != nil {
		return err
	}
	m.Req = RequestNum(req)
	e, err := r.ReadUint8()
	if err != nil {
		return err
	}
	m.Err = ErrorKind(e)
	return nil
}

type AsyncAtRequest struct {
	Target    GlobalThreadID
	Operation string
	Payload   []byte
	Req       RequestNum
	From      PhysicalID
}

func (m *AsyncAtRequest) Kind() MessageKind { return KindAsyncAtRequest }
func (m *AsyncAtRequest) Encode(w *wire.Writer) error {
	w.WriteUint64(uint64(m.Target))
	w.WriteString(m.Operation)
	w.WriteBytes(m.Payload)
	w.WriteUint64(uint64(m.Req))
	w.WriteUint32(uint32(m.From))
	return nil
}
func (m *AsyncAtRequest) Decode(r *wire.Reader) error {
	t, err := r.ReadUint64()
	if err != nil {
		return err
	}
	m.Target = GlobalThreadID(t)
	if m.Operation, err = r.ReadString(); err != nil {
		return err
	}
	if m.Payload, err = r.ReadBytes(); err != nil {
		return err
	}
	req, err := r.ReadUint64()
	if err != nil {
		return err
	}
	m.Req = RequestNum(req)
	f, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.From = PhysicalID(f)
	return nil
}

type AsyncAtReply struct {
	Req    RequestNum
	Result []byte
	Err    ErrorKind
}

func (m *AsyncAtReply) Kind() MessageKind { return KindAsyncAtReply }
func (m *AsyncAtReply) Encode(w *wire.Writer) error {
	w.WriteUint64(uint64(m.Req))
	w.WriteUint8(uint8(m.Err))
	w.WriteBytes(m.Result)
	return nil
}
func (m *AsyncAtReply) Decode(r *wire.Reader) error {
	req, err := r.ReadUint64()
	if err != nil {
		return err
	}
	m.Req = RequestNum(req)
	e, err := r.ReadUint8()
	if err != nil {
		return err
	}
	m.Err = ErrorKind(e)
	if m.Result, err = r.ReadBytes(); err != nil {
		return err
	}
	return nil
}

// ---- Bye ----

type Bye struct {
	From PhysicalID
}

func (m *Bye) Kind() MessageKind { return KindBye }
func (m *Bye) Encode(w *wire.Writer) error {
	w.WriteUint32(uint32(m.From))
	return nil
}
func (m *Bye) Decode(r *wire.Reader) error {
	f, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.From = PhysicalID(f)
	return nil
}

type ByeCompleted struct{}

func (m *ByeCompleted) Kind() MessageKind      { return KindByeCompleted }
func (m *ByeCompleted) Encode(*wire.Writer) error { return nil }
func (m *ByeCompleted) Decode(*wire.Reader) error { return nil }

// ---- shared decode helpers ----

func decodeGroupReq(r *wire.Reader, group *GroupID, req *RequestNum) error {
	g, err := r.ReadUint32()
	if err != nil {
		return err
	}
	*group = GroupID(g)
	rn, err := r.ReadUint64()
	if err != nil {
		return err
	}
	*req = RequestNum(rn)
	return nil
}

func decodeGroupReqRequester(r *wire.Reader, group *GroupID, req *RequestNum, requester *GlobalThreadID) error {
	if err := decodeGroupReq(r, group, req); err != nil {
		return err
	}
	t, err := r.ReadUint64()
	if err != nil {
		return err
	}
	*requester = GlobalThreadID(t)
	return nil
}
