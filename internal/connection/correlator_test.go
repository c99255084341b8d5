package connection

import (
	"testing"

	"github.com/tailfeed/tailfeed/internal/protocol"
)

func TestCorrelatorIDsStartAboveConnect(t *testing.T) {
	c := newCorrelator()

	id := c.track(pendingRequest{kind: kindSubscribe, handle: "c1", channel: "logs:app"})
	if id != protocol.ConnectRequestID+1 {
		t.Fatalf("expected first id %d, got %d", protocol.ConnectRequestID+1, id)
	}
}

func TestCorrelatorIDsStrictlyIncreasing(t *testing.T) {
	c := newCorrelator()

	seen := make(map[uint32]bool)
	prev := protocol.ConnectRequestID
	for i := 0; i < 100; i++ {
		id := c.track(pendingRequest{kind: kindSubscribe})
		if id <= prev {
			t.Fatalf("id %d not strictly increasing after %d", id, prev)
		}
		if seen[id] {
			t.Fatalf("id %d reused", id)
		}
		seen[id] = true
		prev = id
	}
}

func TestCorrelatorResolveRemovesPending(t *testing.T) {
	c := newCorrelator()
	id := c.track(pendingRequest{kind: kindSubscribe, handle: "c1", channel: "logs:app"})

	req, ok := c.resolve(id)
	if !ok {
		t.Fatalf("expected pending request for id %d", id)
	}
	if req.handle != "c1" || req.channel != "logs:app" {
		t.Fatalf("unexpected pending request: %+v", req)
	}

	if _, ok := c.resolve(id); ok {
		t.Fatalf("expected id %d to be removed after resolve", id)
	}
}

func TestCorrelatorUnknownIDIgnored(t *testing.T) {
	c := newCorrelator()
	if _, ok := c.resolve(99); ok {
		t.Fatal("expected unknown id to resolve to nothing")
	}
}
