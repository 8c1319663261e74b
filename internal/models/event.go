package models

// Outbound event types.
const (
	EventMessage          = "message"
	EventUserConnected    = "user_connected"
	EventUserDisconnected = "user_disconnected"
	EventConnectedUsers   = "connected_users"
	EventAck              = "ack"
	EventError            = "error"
)

// Inbound frame types.
const (
	FrameSend           = "send"
	FrameConnectedUsers = "connected_users"
)

// Event is written to websocket connections.
type Event struct {
	Type     string     `json:"type"`
	Message  *Message   `json:"message,omitempty"`
	UserID   string     `json:"user_id,omitempty"`
	UserName string     `json:"user_name,omitempty"`
	Users    []Identity `json:"users,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// InboundFrame is read from websocket connections.
type InboundFrame struct {
	Type       string   `json:"type"`
	ReceiverID string   `json:"receiver_id,omitempty"`
	ChatType   ChatType `json:"chat_type,omitempty"`
	Content    string   `json:"content,omitempty"`
}
