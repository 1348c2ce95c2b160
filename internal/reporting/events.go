package reporting

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of an Event.
type EventType string

const (
	EventTypeLog         EventType = "log"
	EventTypeStatus      EventType = "status"
	EventTypeInitialized EventType = "initialized"
	EventTypeMessage     EventType = "message"
)

// Stream names the child pipe a log line came from.
type Stream string

const (
	StreamStderr Stream = "stderr"
	StreamStdout Stream = "stdout"
)

// Direction of a protocol message relative to the host.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// MessageKind is the subtype of a message event.
type MessageKind string

const (
	MessageRequest      MessageKind = "request"
	MessageResponse     MessageKind = "response"
	MessageError        MessageKind = "error"
	MessageNotification MessageKind = "notification"
)

// MessageInfo describes one protocol message seen on the wire.
type MessageInfo struct {
	ID        string          `json:"id"`
	Direction Direction       `json:"direction"`
	Kind      MessageKind     `json:"kind"`
	Method    string          `json:"method,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	LatencyMS int64           `json:"latencyMs,omitempty"`
}

// Event is the envelope delivered to observers. Only the fields matching
// Type are populated.
type Event struct {
	ServerID  string    `json:"serverId"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// log
	Stream Stream `json:"stream,omitempty"`
	Line   string `json:"line,omitempty"`

	// status
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
	ExitCode *int   `json:"exitCode,omitempty"`
	Clean    *bool  `json:"clean,omitempty"`

	// initialized
	Capabilities json.RawMessage `json:"capabilities,omitempty"`
	ServerInfo   json.RawMessage `json:"serverInfo,omitempty"`

	// message
	Message *MessageInfo `json:"message,omitempty"`
}

// NewLogEvent builds a diagnostic line event.
func NewLogEvent(serverID string, stream Stream, line string) Event {
	return Event{ServerID: serverID, Type: EventTypeLog, Timestamp: time.Now(), Stream: stream, Line: line}
}

// NewStatusEvent builds a lifecycle event. err may be nil.
func NewStatusEvent(serverID, status string, err error) Event {
	ev := Event{ServerID: serverID, Type: EventTypeStatus, Timestamp: time.Now(), Status: status}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// WithExit records how the process ended.
func (e Event) WithExit(code int) Event {
	clean := code == 0
	e.ExitCode = &code
	e.Clean = &clean
	return e
}

// NewInitializedEvent builds the event emitted after a successful handshake.
func NewInitializedEvent(serverID string, capabilities, serverInfo json.RawMessage) Event {
	return Event{
		ServerID:     serverID,
		Type:         EventTypeInitialized,
		Timestamp:    time.Now(),
		Capabilities: capabilities,
		ServerInfo:   serverInfo,
	}
}

// NewMessageEvent builds a protocol message event. An empty info.ID is
// replaced with a generated identifier.
func NewMessageEvent(serverID string, info MessageInfo) Event {
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	return Event{ServerID: serverID, Type: EventTypeMessage, Timestamp: time.Now(), Message: &info}
}
