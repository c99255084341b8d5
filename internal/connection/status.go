package connection

// State is the coarse connection state of the active session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Status is the process-wide connection status. The session goroutine is the
// sole writer; external callers read it concurrently through the Connector.
type Status struct {
	State State  `json:"state"`
	Err   string `json:"error,omitempty"` // set only when State == StateError
}
