package conversation

type ConnectionState string

const (
	ConnDisconnected ConnectionState = "disconnected"
	ConnConnecting   ConnectionState = "connecting"
	ConnConnected    ConnectionState = "connected"
	ConnError        ConnectionState = "error"
)

// Connection is the session's connection status. Message is set only in the
// error state.
type Connection struct {
	State   ConnectionState `json:"state"`
	Message string          `json:"message,omitempty"`
}

func (c Connection) String() string {
	if c.State == ConnError && c.Message != "" {
		return "error(" + c.Message + ")"
	}
	return string(c.State)
}

// Live reports whether a transport is open or being opened.
func (c Connection) Live() bool {
	return c.State == ConnConnecting || c.State == ConnConnected
}

func Disconnected() Connection         { return Connection{State: ConnDisconnected} }
func Connecting() Connection           { return Connection{State: ConnConnecting} }
func Connected() Connection            { return Connection{State: ConnConnected} }
func Failed(message string) Connection { return Connection{State: ConnError, Message: message} }
