package connection

// registry maintains the bidirectional handle↔channel mapping for the
// session's confirmed subscriptions. The two maps are mutual inverses after
// every operation. Only the session goroutine touches it.
type registry struct {
	byHandle  map[string]string
	byChannel map[string]string
}

func newRegistry() *registry {
	return &registry{
		byHandle:  make(map[string]string),
		byChannel: make(map[string]string),
	}
}

// add records a confirmed subscription. A handle maps to at most one
// channel; re-adding a handle replaces its previous mapping in both
// directions.
func (r *registry) add(handle, channel string) {
	if prev, ok := r.byHandle[handle]; ok {
		delete(r.byChannel, prev)
	}
	r.byHandle[handle] = channel
	r.byChannel[channel] = handle
}

// channelFor resolves a handle to its channel name for command routing.
func (r *registry) channelFor(handle string) (string, bool) {
	channel, ok := r.byHandle[handle]
	return channel, ok
}

// handleFor resolves a push's channel name back to the subscribing handle.
func (r *registry) handleFor(channel string) (string, bool) {
	handle, ok := r.byChannel[channel]
	return handle, ok
}

// remove drops both mapping directions for a handle. Unknown handles are a
// no-op.
func (r *registry) remove(handle string) {
	channel, ok := r.byHandle[handle]
	if !ok {
		return
	}
	delete(r.byHandle, handle)
	delete(r.byChannel, channel)
}
