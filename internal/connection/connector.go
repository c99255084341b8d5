// Package connection implements the client-side protocol state machine for
// the pub/sub gateway: one session goroutine per connection, multiplexing
// control requests against their asynchronous responses and routing server
// pushes to subscribed handles.
package connection

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/tailfeed/tailfeed/internal/metrics"
)

// ErrNoSession is returned for commands issued while no session is active.
var ErrNoSession = errors.New("no active session")

// ErrCommandBacklog is returned when the session is not draining its command
// queue. Command handling is O(1), so this indicates a stuck session.
var ErrCommandBacklog = errors.New("command queue full")

const (
	commandBuffer = 32
	eventBuffer   = 64

	// DefaultChannelPrefix is prepended to logical names when deriving
	// gateway channel names ("<prefix>:<logicalName>").
	DefaultChannelPrefix = "logs"
)

type commandKind int

const (
	cmdSubscribe commandKind = iota
	cmdUnsubscribe
	cmdDisconnect
)

type command struct {
	kind        commandKind
	handle      string
	logicalName string
}

// Connector is the external command surface over the active session. It owns
// the shared status cell, the registered-subscriptions snapshot, and the
// event sink. A new Connect replaces any previous session: the prior
// session's context is cancelled and its late writes are discarded by a
// generation check, so stale events never interleave with the new session's.
type Connector struct {
	logger *zap.Logger
	prefix string
	events chan Event

	mu       sync.RWMutex
	gen      uint64
	status   Status
	subs     map[string]string // handle → channel, confirmed subscriptions
	commands chan command      // nil while no session is active
	cancel   context.CancelFunc
}

// Option configures a Connector.
type Option func(*Connector)

// WithChannelPrefix overrides the channel derivation prefix.
func WithChannelPrefix(prefix string) Option {
	return func(c *Connector) { c.prefix = prefix }
}

// NewConnector creates a Connector with no active session.
func NewConnector(logger *zap.Logger, opts ...Option) *Connector {
	c := &Connector{
		logger: logger,
		prefix: DefaultChannelPrefix,
		events: make(chan Event, eventBuffer),
		status: Status{State: StateDisconnected},
		subs:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events returns the event sink. Events are delivered in the order the
// session processed the corresponding frames, best-effort: when the sink
// backs up the oldest unread events are kept and new ones dropped.
func (c *Connector) Events() <-chan Event {
	return c.events
}

// Status returns the last-known connection status.
func (c *Connector) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Subscriptions returns a snapshot of the confirmed handle→channel mappings.
func (c *Connector) Subscriptions() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make(map[string]string, len(c.subs))
	for handle, channel := range c.subs {
		snapshot[handle] = channel
	}
	return snapshot
}

// Connect starts a new session against url, authenticating with token. It
// returns once the session goroutine is spawned, not once connected; the
// handshake outcome is reported through the event sink and status. Any
// previous session is cancelled and replaced.
func (c *Connector) Connect(ctx context.Context, url, token string) error {
	sessCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	commands := make(chan command, commandBuffer)
	c.commands = commands
	c.cancel = cancel
	c.status = Status{State: StateConnecting}
	c.subs = make(map[string]string)
	c.mu.Unlock()

	s := &session{
		connector: c,
		gen:       gen,
		url:       url,
		token:     token,
		prefix:    c.prefix,
		commands:  commands,
		logger:    c.logger.Named("session"),
	}

	metrics.SessionsStartedTotal.Inc()
	go s.run(sessCtx)
	return nil
}

// Subscribe asks the active session to subscribe handle to the channel
// derived from logicalName. Fails when no session is active.
func (c *Connector) Subscribe(handle, logicalName string) error {
	return c.enqueue(command{kind: cmdSubscribe, handle: handle, logicalName: logicalName})
}

// Unsubscribe asks the active session to drop the subscription for handle.
// Unsubscribing an unknown handle is a no-op inside the session. Fails when
// no session is active.
func (c *Connector) Unsubscribe(handle string) error {
	return c.enqueue(command{kind: cmdUnsubscribe, handle: handle})
}

// Disconnect asks the active session to close gracefully. No-op when no
// session is active.
func (c *Connector) Disconnect() error {
	err := c.enqueue(command{kind: cmdDisconnect})
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	return err
}

func (c *Connector) enqueue(cmd command) error {
	c.mu.RLock()
	commands := c.commands
	c.mu.RUnlock()

	if commands == nil {
		return ErrNoSession
	}
	select {
	case commands <- cmd:
		return nil
	default:
		return ErrCommandBacklog
	}
}

// --- Session-side state writes, gated by generation ---
//
// Every mutation a session makes to shared state carries the generation it
// was created with. Once a newer Connect has bumped the generation, a stale
// session's writes and events are silently discarded.

func (c *Connector) setStatus(gen uint64, status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.status = status
}

func (c *Connector) addSubscription(gen uint64, handle, channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.subs[handle] = channel
}

func (c *Connector) removeSubscription(gen uint64, handle string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	delete(c.subs, handle)
}

// finish is called exactly once when a session terminates. It detaches the
// command channel so subsequent commands fail with ErrNoSession.
func (c *Connector) finish(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.commands = nil
	c.cancel = nil
	c.subs = make(map[string]string)
}

func (c *Connector) emit(gen uint64, ev Event) {
	c.mu.RLock()
	current := gen == c.gen
	c.mu.RUnlock()
	if !current {
		return
	}

	select {
	case c.events <- ev:
		metrics.EventsEmittedTotal.WithLabelValues(string(ev.Type)).Inc()
	default:
		metrics.EventsDroppedTotal.Inc()
		c.logger.Warn("event sink full, dropping event", zap.String("type", string(ev.Type)))
	}
}
