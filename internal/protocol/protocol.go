// Package protocol defines the wire protocol spoken to the pub/sub gateway:
// JSON text frames carrying id-correlated control requests and responses,
// plus unsolicited pushes with channel publications.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Request methods understood by the gateway.
const (
	MethodConnect     = "connect"
	MethodSubscribe   = "subscribe"
	MethodUnsubscribe = "unsubscribe"
)

// ConnectRequestID is permanently reserved for the implicit connect request
// sent at session start. All other request ids start above it.
const ConnectRequestID uint32 = 1

// Request is an outbound control frame.
type Request struct {
	ID     uint32 `json:"id"`
	Method string `json:"method"`
	Params Params `json:"params"`
}

// Params carries the method-specific request parameters. Exactly one field
// is set per request.
type Params struct {
	Token   string `json:"token,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// NewConnect builds the handshake request for a session token.
func NewConnect(id uint32, token string) Request {
	return Request{ID: id, Method: MethodConnect, Params: Params{Token: token}}
}

// NewSubscribe builds a subscribe request for a fully derived channel name.
func NewSubscribe(id uint32, channel string) Request {
	return Request{ID: id, Method: MethodSubscribe, Params: Params{Channel: channel}}
}

// NewUnsubscribe builds an unsubscribe request for a channel name.
func NewUnsubscribe(id uint32, channel string) Request {
	return Request{ID: id, Method: MethodUnsubscribe, Params: Params{Channel: channel}}
}

// Encode serializes the request for a text frame.
func (r Request) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", r.Method, err)
	}
	return data, nil
}

// Error is a server-reported request failure.
type Error struct {
	Code    uint32 `json:"code"`
	Message string `json:"message"`
}

// Response is an inbound frame correlated to a request id. Exactly one of
// Result and Err is meaningful.
type Response struct {
	ID     uint32
	Result json.RawMessage
	Err    *Error
}

// Push is an unsolicited publication for a subscribed channel. Data is
// passed through verbatim.
type Push struct {
	Channel string
	Data    json.RawMessage
}

// frame is the superset shape of everything the gateway sends. A frame with
// an id is a response; a frame with a channel and a publication is a push.
type frame struct {
	ID      *uint32         `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
	Channel string          `json:"channel"`
	Pub     *publication    `json:"pub"`
}

type publication struct {
	Data json.RawMessage `json:"data"`
}

// Decode classifies an inbound text frame. It returns a Response for an
// id-correlated frame, a Push for a channel publication, and (nil, nil, nil)
// for well-formed frames that match neither shape, which the caller drops.
// Malformed JSON is reported as an error and must never be fatal.
func Decode(data []byte) (*Response, *Push, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("decode frame: %w", err)
	}

	if f.ID != nil {
		return &Response{ID: *f.ID, Result: f.Result, Err: f.Error}, nil, nil
	}
	if f.Channel != "" && f.Pub != nil {
		return nil, &Push{Channel: f.Channel, Data: f.Pub.Data}, nil
	}
	return nil, nil, nil
}
