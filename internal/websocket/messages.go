package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypeStreamStart       MessageType = "stream_start"
	MessageTypeStreamStarted     MessageType = "stream_started"
	MessageTypeStreamEnd         MessageType = "stream_end"
	MessageTypeStreamEnded       MessageType = "stream_ended"
	MessageTypeRecognitionResult MessageType = "recognition_result"
	MessageTypePing              MessageType = "ping"
	MessageTypePong              MessageType = "pong"
	MessageTypeError             MessageType = "error"
)

// Error codes sent in ErrorMessage
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeNoSession      = "no_active_session"
	ErrorCodeSessionActive  = "session_already_active"
	ErrorCodeStartFailed    = "session_start_failed"
	ErrorCodeStreamFailed   = "stream_failed"
	ErrorCodeHeaderInvalid  = "invalid_audio_header"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().Format(time.RFC3339)}
}

// StreamStartMessage opens a recording session on the connection
type StreamStartMessage struct {
	BaseMessage
	Container     string   `json:"container"`
	SampleRate    int      `json:"sample_rate,omitempty"`
	Channels      int      `json:"channels,omitempty"`
	BitsPerSample int      `json:"bits_per_sample,omitempty"`
	WindowSize    int      `json:"window_size"`
	StepSize      int      `json:"step_size"`
	SpeakerIDs    []string `json:"speaker_ids,omitempty"`
}

// Format builds the claimed format; omitted fields take the 16 kHz mono 16-bit defaults
func (m *StreamStartMessage) Format() (entities.FormatDescriptor, error) {
	container, err := entities.ParseContainerKind(m.Container)
	if err != nil {
		return entities.FormatDescriptor{}, err
	}

	def := entities.DefaultFormat(container)
	return entities.NewFormatDescriptor(entities.EncodingPCM,
		valueOr(m.Channels, def.Channels),
		valueOr(m.SampleRate, def.SampleRate),
		valueOr(m.BitsPerSample, def.BitsPerSample),
		container)
}

func valueOr(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

// StreamEndMessage completes the open session
type StreamEndMessage struct {
	BaseMessage
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// StreamStartedMessage acknowledges stream_start
type StreamStartedMessage struct {
	BaseMessage
	SessionID  string   `json:"session_id"`
	ClientID   string   `json:"client_id"`
	Format     string   `json:"format"`
	Candidates []string `json:"candidates"`
}

// StreamEndedMessage is sent after every outcome of the session was delivered
type StreamEndedMessage struct {
	BaseMessage
	SessionID string                 `json:"session_id"`
	Status    string                 `json:"status"`
	Outcomes  int                    `json:"outcomes"`
	Turns     []entities.SpeakerTurn `json:"turns"`
}

// RecognitionResultMessage carries one identification outcome
type RecognitionResultMessage struct {
	BaseMessage
	SessionID     string  `json:"session_id"`
	RequestID     int64   `json:"request_id"`
	Succeeded     bool    `json:"succeeded"`
	Speaker       string  `json:"speaker,omitempty"`
	Confidence    float64 `json:"confidence,omitempty"`
	FailureReason string  `json:"failure_reason,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	// First parse as base message to get type
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeStreamStart:
		var msg StreamStartMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid stream start message: %w", err)
		}
		if err := v.validateStreamStart(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeStreamEnd:
		return &StreamEndMessage{BaseMessage: base}, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// validateStreamStart validates stream start message fields
func (v *MessageValidator) validateStreamStart(msg *StreamStartMessage) error {
	if msg.WindowSize <= 0 {
		return fmt.Errorf("window_size must be positive")
	}
	if msg.StepSize <= 0 {
		return fmt.Errorf("step_size must be positive")
	}
	if msg.SampleRate < 0 || msg.Channels < 0 || msg.BitsPerSample < 0 {
		return fmt.Errorf("format fields must not be negative")
	}
	for _, id := range msg.SpeakerIDs {
		if id == "" {
			return fmt.Errorf("speaker_ids must not contain empty ids")
		}
	}
	if _, err := msg.Format(); err != nil {
		return err
	}
	return nil
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}

// CreateRecognitionResult converts an outcome for the peer
func CreateRecognitionResult(outcome entities.RecognitionOutcome) *RecognitionResultMessage {
	msg := &RecognitionResultMessage{
		BaseMessage:   newBase(MessageTypeRecognitionResult),
		SessionID:     outcome.ClientID,
		RequestID:     outcome.RequestID,
		Succeeded:     outcome.Succeeded,
		Confidence:    outcome.Confidence,
		FailureReason: outcome.FailureReason,
	}
	if outcome.Succeeded {
		msg.Speaker = outcome.SpeakerLabel()
	}
	return msg
}
