package connection

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tailfeed/tailfeed/internal/metrics"
	"github.com/tailfeed/tailfeed/internal/protocol"
)

const writeTimeout = 10 * time.Second

// session owns one WebSocket connection for its whole lifecycle. The run
// loop is the only goroutine touching the correlator and registry, so
// command handling is serialized without locks. A session never reconnects;
// a terminal state ends the goroutine and a fresh Connect builds a new one.
type session struct {
	connector *Connector
	gen       uint64
	url       string
	token     string
	prefix    string
	commands  <-chan command
	logger    *zap.Logger

	conn       *websocket.Conn
	correlator *correlator
	registry   *registry
}

type readResult struct {
	data []byte
	err  error
}

func (s *session) run(ctx context.Context) {
	defer s.connector.finish(s.gen)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		s.fail(fmt.Sprintf("connection failed: %v", err))
		return
	}
	s.conn = conn
	defer conn.Close()

	s.correlator = newCorrelator()
	s.registry = newRegistry()

	// The handshake request always uses the reserved id. Status stays
	// Connecting until the matching success response is observed.
	if err := s.send(protocol.NewConnect(protocol.ConnectRequestID, s.token)); err != nil {
		s.fail(fmt.Sprintf("send connect: %v", err))
		return
	}

	readCtx, stopRead := context.WithCancel(ctx)
	defer stopRead()
	frames := make(chan readResult)
	go s.readPump(readCtx, frames)

	s.logger.Debug("session started", zap.String("url", s.url))

	for {
		select {
		case <-ctx.Done():
			s.closeGracefully(ReasonUserDisconnected)
			return

		case res := <-frames:
			if res.err != nil {
				s.handleReadError(res.err)
				return
			}
			metrics.FramesReceivedTotal.Inc()
			if terminal := s.handleFrame(res.data); terminal {
				return
			}

		case cmd, ok := <-s.commands:
			if !ok {
				// All senders gone; treated like a lost peer rather than
				// an explicit disconnect.
				s.closeGracefully(ReasonConnectionClosed)
				return
			}
			if terminal := s.handleCommand(cmd); terminal {
				return
			}
		}
	}
}

// readPump feeds inbound frames to the run loop. It exits when the
// connection errors or the session stops; the final error is delivered so
// the loop can classify the termination.
func (s *session) readPump(ctx context.Context, frames chan<- readResult) {
	for {
		_, data, err := s.conn.ReadMessage()
		res := readResult{data: data, err: err}
		select {
		case frames <- res:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// handleFrame processes one inbound text frame. It reports whether the
// session reached a terminal state.
func (s *session) handleFrame(data []byte) bool {
	resp, push, err := protocol.Decode(data)
	if err != nil {
		// Malformed frames are dropped, never fatal.
		metrics.FramesDroppedTotal.WithLabelValues(metrics.DropMalformed).Inc()
		s.logger.Debug("dropping malformed frame", zap.Error(err))
		return false
	}

	switch {
	case resp != nil:
		return s.handleResponse(resp)
	case push != nil:
		s.handlePush(push)
	default:
		metrics.FramesDroppedTotal.WithLabelValues(metrics.DropUnmatched).Inc()
	}
	return false
}

func (s *session) handleResponse(resp *protocol.Response) bool {
	if resp.ID == protocol.ConnectRequestID {
		if resp.Err != nil {
			s.fail(resp.Err.Message)
			return true
		}
		s.connector.setStatus(s.gen, Status{State: StateConnected})
		s.connector.emit(s.gen, Event{Type: EventConnected})
		return false
	}

	pending, ok := s.correlator.resolve(resp.ID)
	if !ok {
		// Duplicate or stale response id.
		metrics.FramesDroppedTotal.WithLabelValues(metrics.DropUnmatched).Inc()
		return false
	}

	switch pending.kind {
	case kindSubscribe:
		if resp.Err != nil {
			s.connector.emit(s.gen, Event{
				Type:   EventSubscriptionError,
				Handle: pending.handle,
				Err:    resp.Err.Message,
			})
			return false
		}
		s.registry.add(pending.handle, pending.channel)
		s.connector.addSubscription(s.gen, pending.handle, pending.channel)
		s.connector.emit(s.gen, Event{Type: EventSubscribed, Handle: pending.handle})
	case kindUnsubscribe:
		// Unsubscribe acknowledgments are not surfaced.
	}
	return false
}

func (s *session) handlePush(push *protocol.Push) {
	handle, ok := s.registry.handleFor(push.Channel)
	if !ok {
		// Push for a channel this session never subscribed to, or one
		// already unsubscribed. Never delivered to the wrong handle.
		metrics.FramesDroppedTotal.WithLabelValues(metrics.DropNoHandle).Inc()
		s.logger.Debug("dropping push for unknown channel", zap.String("channel", push.Channel))
		return
	}
	s.connector.emit(s.gen, Event{Type: EventPublication, Handle: handle, Data: push.Data})
}

func (s *session) handleCommand(cmd command) bool {
	switch cmd.kind {
	case cmdSubscribe:
		channel := s.prefix + ":" + cmd.logicalName
		id := s.correlator.track(pendingRequest{
			kind:    kindSubscribe,
			handle:  cmd.handle,
			channel: channel,
		})
		if err := s.send(protocol.NewSubscribe(id, channel)); err != nil {
			// The transport failure will surface through the read loop.
			s.logger.Warn("send subscribe failed", zap.Uint32("id", id), zap.Error(err))
		}

	case cmdUnsubscribe:
		channel, ok := s.registry.channelFor(cmd.handle)
		if !ok {
			return false
		}
		id := s.correlator.track(pendingRequest{kind: kindUnsubscribe})
		if err := s.send(protocol.NewUnsubscribe(id, channel)); err != nil {
			s.logger.Warn("send unsubscribe failed", zap.Uint32("id", id), zap.Error(err))
		}
		// Optimistically treat requested-unsubscribe as done; waiting for
		// the ack would leak registry state on a lost response.
		s.registry.remove(cmd.handle)
		s.connector.removeSubscription(s.gen, cmd.handle)

	case cmdDisconnect:
		s.closeGracefully(ReasonUserDisconnected)
		return true
	}
	return false
}

func (s *session) handleReadError(err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		s.connector.setStatus(s.gen, Status{State: StateDisconnected})
		s.connector.emit(s.gen, Event{Type: EventDisconnected, Reason: ReasonConnectionClosed})
		return
	}
	s.fail(err.Error())
}

// closeGracefully performs the client-initiated close handshake and reports
// the session as cleanly disconnected.
func (s *session) closeGracefully(reason string) {
	if s.conn != nil {
		deadline := time.Now().Add(writeTimeout)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}
	s.connector.setStatus(s.gen, Status{State: StateDisconnected})
	s.connector.emit(s.gen, Event{Type: EventDisconnected, Reason: reason})
}

// fail records a terminal error. The socket is not explicitly torn down
// here; the deferred close in run releases it once the loop exits.
func (s *session) fail(message string) {
	s.connector.setStatus(s.gen, Status{State: StateError, Err: message})
	s.connector.emit(s.gen, Event{Type: EventError, Err: message})
}

func (s *session) send(req protocol.Request) error {
	data, err := req.Encode()
	if err != nil {
		return err
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", req.Method, err)
	}
	return nil
}
