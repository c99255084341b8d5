package connection

import "github.com/tailfeed/tailfeed/internal/protocol"

type requestKind int

const (
	kindSubscribe requestKind = iota
	kindUnsubscribe
)

// pendingRequest carries enough context to route the eventual response.
type pendingRequest struct {
	kind    requestKind
	handle  string
	channel string
}

// correlator hands out request ids and tracks in-flight requests. Ids start
// just above the reserved connect id and are never reused within a session.
// Only the session goroutine touches it, so no locking is needed.
type correlator struct {
	next    uint32
	pending map[uint32]pendingRequest
}

func newCorrelator() *correlator {
	return &correlator{
		next:    protocol.ConnectRequestID + 1,
		pending: make(map[uint32]pendingRequest),
	}
}

// track allocates a fresh id for the request and records it as pending.
func (c *correlator) track(req pendingRequest) uint32 {
	id := c.next
	c.next++
	c.pending[id] = req
	return id
}

// resolve removes and returns the pending request for a response id.
// Unknown ids (duplicate or stale responses) report ok == false.
func (c *correlator) resolve(id uint32) (pendingRequest, bool) {
	req, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return req, ok
}
