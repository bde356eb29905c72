package ws

const (
	msgHello  = "hello"
	msgError  = "error"
	msgResume = "resume"
	msgPing   = "ping"
	msgPong   = "pong"
)

// Hello is the first frame on every connection.
type Hello struct {
	Type            string `json:"type"`
	ProtocolVersion int    `json:"protocol_version"`
	Wallet          string `json:"wallet"`
	Replayed        int    `json:"replayed"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// ClientMessage is anything a subscriber may send. Only resume and ping are
// understood; the rest is ignored.
type ClientMessage struct {
	Type        string `json:"type"`
	LastEventID string `json:"last_event_id,omitempty"`
}

type Pong struct {
	Type     string `json:"type"`
	ServerTS int64  `json:"server_ts"`
}

