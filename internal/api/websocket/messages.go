package websocket

import (
	"time"

	"github.com/KevinKickass/OpenPoolCore/internal/controller"
	"github.com/KevinKickass/OpenPoolCore/internal/procon"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Controller state messages
	MessageTypeSnapshot        MessageType = "snapshot"
	MessageTypeControllerError MessageType = "controller_error"

	// Command messages
	MessageTypeRelayCommand  MessageType = "relay_command"
	MessageTypeDosageCommand MessageType = "dosage_command"
	MessageTypeDMXCommand    MessageType = "dmx_command"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"

	// Connection handshake
	MessageTypeAuth        MessageType = "auth"
	MessageTypeAuthSuccess MessageType = "auth_success"
	MessageTypeAuthFailed  MessageType = "auth_failed"
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeSubscribed  MessageType = "subscribed"
)

// Message represents a WebSocket message. Controller is empty for messages
// that concern the whole system.
type Message struct {
	Type       MessageType `json:"type"`
	Controller string      `json:"controller,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data,omitempty"`
}

// ClientMessage is what clients send: the auth handshake and subscriptions.
type ClientMessage struct {
	Type        MessageType `json:"type"`
	Token       string      `json:"token,omitempty"`
	Controllers []string    `json:"controllers,omitempty"`
}

// ControllerErrorData describes a failed refresh.
type ControllerErrorData struct {
	Error string `json:"error"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewSnapshotMessage(name string, s *procon.Snapshot) Message {
	msg := NewMessage(MessageTypeSnapshot, s)
	msg.Controller = name
	return msg
}

func NewControllerErrorMessage(name string, err error) Message {
	msg := NewMessage(MessageTypeControllerError, ControllerErrorData{Error: err.Error()})
	msg.Controller = name
	return msg
}

// NewCommandMessage picks the message type from the command kind.
func NewCommandMessage(ev controller.CommandEvent) Message {
	msgType := MessageTypeRelayCommand
	switch ev.Kind {
	case controller.CommandDosage:
		msgType = MessageTypeDosageCommand
	case controller.CommandDMX:
		msgType = MessageTypeDMXCommand
	}

	msg := NewMessage(msgType, ev)
	msg.Controller = ev.Controller
	msg.Timestamp = ev.Timestamp
	return msg
}
