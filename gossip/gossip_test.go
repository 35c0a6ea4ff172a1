package gossip

import "testing"

func TestInmemTransportSendDeliversToConnectedPeer(t *testing.T) {
	a := NewInmemTransport(1)
	b := NewInmemTransport(2)
	a.Connect(b)

	if err := a.Send(2, []byte("payload")); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-b.Consumer():
		if msg.From != 1 || string(msg.Payload) != "payload" {
			t.Fatalf("got %+v, want From=1 Payload=payload", msg)
		}
	default:
		t.Fatal("expected a message waiting on b's consumer channel")
	}
}

func TestInmemTransportSendRejectsUnknownPeer(t *testing.T) {
	a := NewInmemTransport(1)
	if err := a.Send(99, []byte("x")); err == nil {
		t.Fatal("expected an error sending to an unconnected peer")
	}
}

func TestInmemTransportSendRejectsFullInbox(t *testing.T) {
	a := NewInmemTransport(1)
	b := NewInmemTransport(2)
	a.Connect(b)

	var lastErr error
	for i := 0; i < 300; i++ {
		if err := a.Send(2, []byte("x")); err != nil {
			lastErr = err
			break
		}
	}
	if lastErr == nil {
		t.Fatal("expected Send to eventually report a full inbox rather than block")
	}
}

func TestInmemTransportLocalID(t *testing.T) {
	a := NewInmemTransport(7)
	if a.LocalID() != 7 {
		t.Fatalf("expected LocalID 7, got %d", a.LocalID())
	}
}
