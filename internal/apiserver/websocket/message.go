package websocket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	// Settlement event message types
	MessageTypeTaskCompleted MessageType = "TASK_COMPLETED"
	MessageTypeWorkerPayout  MessageType = "WORKER_PAYOUT"

	// System message types
	MessageTypeSubscribe   MessageType = "SUBSCRIBE"
	MessageTypeUnsubscribe MessageType = "UNSUBSCRIBE"
	MessageTypePing        MessageType = "PING"
	MessageTypePong        MessageType = "PONG"
	MessageTypeError       MessageType = "ERROR"
	MessageTypeSuccess     MessageType = "SUCCESS"
)

// RoomTasks carries completion events for every settled task.
const RoomTasks = "tasks"

const workerRoomPrefix = "worker:"

// WorkerRoom returns the room carrying payout events for a single worker.
func WorkerRoom(workerID int64) string {
	return workerRoomPrefix + strconv.FormatInt(workerID, 10)
}

// ParseWorkerRoom extracts the worker ID from a worker room name.
func ParseWorkerRoom(room string) (int64, bool) {
	if !strings.HasPrefix(room, workerRoomPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(room[len(workerRoomPrefix):], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// SubscriptionData represents subscription request data
type SubscriptionData struct {
	Room string `json:"room"`
}

// ErrorData represents error message data
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SuccessData represents success message data
type SuccessData struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewMessage creates a new WebSocket message
func NewMessage(msgType MessageType, data interface{}) *Message {
	return &Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NewErrorMessage creates a new error message
func NewErrorMessage(code, message string) *Message {
	return &Message{
		Type: MessageTypeError,
		Data: &ErrorData{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now(),
	}
}

// NewSuccessMessage creates a new success message
func NewSuccessMessage(message string, data interface{}) *Message {
	return &Message{
		Type: MessageTypeSuccess,
		Data: &SuccessData{
			Message: message,
			Data:    data,
		},
		Timestamp: time.Now(),
	}
}

// ToJSON converts message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates message from JSON bytes
func FromJSON(data []byte) (*Message, error) {
	var msg Message
	err := json.Unmarshal(data, &msg)
	return &msg, err
}
