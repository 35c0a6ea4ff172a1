// Package gossip defines the transport boundary the intake pipeline treats
// as an external collaborator (spec §1/§6's "inbound gossip event"): a
// Transport interface plus an in-memory implementation for tests. Grounded
// on the teacher's net.Transport (Consumer channel, RPC/RespChan
// request-response) and net.InmemTransport.
package gossip

import (
	"fmt"
	"sync"
)

// EventMessage is the wire payload gossip delivers: canonical protobuf
// bytes of an Event (spec §6).
type EventMessage struct {
	From    uint64
	Payload []byte
}

// Transport is the boundary the pipeline's gossip-in stage reads from via
// the channel returned by Consumer() — mirroring the teacher's
// Transport.Consumer().
type Transport interface {
	Consumer() <-chan EventMessage
	LocalID() uint64
	Send(to uint64, payload []byte) error
	Close() error
}

// InmemTransport wires a fixed set of peers together via buffered Go
// channels, entirely in-process — the teacher's InmemTransport pattern,
// used here for deterministic pipeline tests.
type InmemTransport struct {
	mu    sync.RWMutex
	id    uint64
	peers map[uint64]*InmemTransport
	inbox chan EventMessage
}

func NewInmemTransport(id uint64) *InmemTransport {
	return &InmemTransport{
		id:    id,
		peers: make(map[uint64]*InmemTransport),
		inbox: make(chan EventMessage, 256),
	}
}

func (t *InmemTransport) Connect(peer *InmemTransport) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[peer.id] = peer
}

func (t *InmemTransport) Consumer() <-chan EventMessage { return t.inbox }
func (t *InmemTransport) LocalID() uint64               { return t.id }

func (t *InmemTransport) Send(to uint64, payload []byte) error {
	t.mu.RLock()
	peer, ok := t.peers[to]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("gossip: no route to peer %d", to)
	}
	select {
	case peer.inbox <- EventMessage{From: t.id, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("gossip: peer %d inbox full", to)
	}
}

func (t *InmemTransport) Close() error {
	close(t.inbox)
	return nil
}
