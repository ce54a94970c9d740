package core

import (
	"net"
	"testing"
	"time"

	"github.com/jabolina/pcj/pkg/pcj/logging"
	"github.com/jabolina/pcj/pkg/pcj/metrics"
	"github.com/jabolina/pcj/pkg/pcj/types"
	"github.com/jabolina/pcj/pkg/pcj/wire"
)

// pairedSelectors binds a server Selector and dials it once from a
// client Selector, registering each end under the physical ids given.
func pairedSelectors(t *testing.T) (server, client *Selector, serverSide, clientSide types.PhysicalID) {
	t.Helper()
	serverSide, clientSide = 0, 1

	server = NewSelector(logging.NewDefaultLogger(), metrics.New(), nil)
	accepted := make(chan net.Conn, 1)
	server.AcceptWith(func(conn net.Conn) (types.PhysicalID, error) {
		accepted <- conn
		return clientSide, nil
	})
	addr, err := server.Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	client = NewSelector(logging.NewDefaultLogger(), metrics.New(), nil)
	if err := client.ConnectTo(serverSide, addr.String(), nil); err != nil {
		t.Fatalf("connect: %v", err)
	}

	select {
	case <-accepted:
	case <-time.After(time.Second):
		t.Fatal("server never accepted connection")
	}
	return server, client, serverSide, clientSide
}

func TestSelector_RoundTripsFrames(t *testing.T) {
	server, client, _, clientSide := pairedSelectors(t)
	defer server.Close()
	defer client.Close()

	frame := wire.Frame{Kind: 7, Payload: []byte("hello world")}
	if err := client.WriteMessage(0, frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case raw := <-server.Inbound():
		if raw.From != clientSide {
			t.Fatalf("expected from=%d, got %d", clientSide, raw.From)
		}
		if raw.Frame.Kind != frame.Kind || string(raw.Frame.Payload) != string(frame.Payload) {
			t.Fatalf("frame mismatch: got %+v", raw.Frame)
		}
	case <-time.After(time.Second):
		t.Fatal("server never received frame")
	}
}

func TestSelector_WriteToUnknownPeerFails(t *testing.T) {
	s := NewSelector(logging.NewDefaultLogger(), metrics.New(), nil)
	defer s.Close()
	err := s.WriteMessage(42, wire.Frame{Kind: 1})
	if err != types.ErrConnectionLost {
		t.Fatalf("expected ErrConnectionLost, got %v", err)
	}
}

func TestSelector_FailureHandlerInvokedOnPeerClose(t *testing.T) {
	var failedPeer types.PhysicalID
	failed := make(chan struct{})

	server := NewSelector(logging.NewDefaultLogger(), metrics.New(), func(peer types.PhysicalID, err error) {
		failedPeer = peer
		close(failed)
	})
	server.AcceptWith(func(conn net.Conn) (types.PhysicalID, error) {
		return 9, nil
	})
	addr, err := server.Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer server.Close()

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	conn.Close()

	select {
	case <-failed:
		if failedPeer != 9 {
			t.Fatalf("expected failed peer 9, got %d", failedPeer)
		}
	case <-time.After(time.Second):
		t.Fatal("failure handler never invoked")
	}
	if server.Connected(9) {
		t.Fatal("expected peer to be deregistered after failure")
	}
}
