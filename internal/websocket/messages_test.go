package websocket

import (
	"encoding/json"
	"testing"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
)

func TestMessageValidator_ValidateStreamStart(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{
			name: "valid wav stream",
			message: `{
				"type": "stream_start",
				"container": "wav",
				"sample_rate": 16000,
				"channels": 1,
				"bits_per_sample": 16,
				"window_size": 2,
				"step_size": 1,
				"speaker_ids": ["alice", "bob"]
			}`,
			wantErr: false,
		},
		{
			name:    "raw stream with defaults",
			message: `{"type": "stream_start", "window_size": 3, "step_size": 2}`,
			wantErr: false,
		},
		{
			name:    "missing window size",
			message: `{"type": "stream_start", "container": "raw", "step_size": 1}`,
			wantErr: true,
		},
		{
			name:    "negative step size",
			message: `{"type": "stream_start", "container": "raw", "window_size": 2, "step_size": -1}`,
			wantErr: true,
		},
		{
			name:    "unsupported container",
			message: `{"type": "stream_start", "container": "mp3", "window_size": 2, "step_size": 1}`,
			wantErr: true,
		},
		{
			name:    "negative sample rate",
			message: `{"type": "stream_start", "sample_rate": -8000, "window_size": 2, "step_size": 1}`,
			wantErr: true,
		},
		{
			name:    "empty speaker id",
			message: `{"type": "stream_start", "window_size": 2, "step_size": 1, "speaker_ids": ["alice", ""]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if _, ok := result.(*StreamStartMessage); !ok {
					t.Errorf("Expected *StreamStartMessage, got %T", result)
				}
			}
		})
	}
}

func TestMessageValidator_OtherMessages(t *testing.T) {
	validator := NewMessageValidator()

	result, err := validator.ValidateMessage([]byte(`{"type": "ping", "data": "x"}`))
	if err != nil {
		t.Fatalf("ValidateMessage failed: %v", err)
	}
	if ping, ok := result.(*PingMessage); !ok || ping.Data != "x" {
		t.Errorf("Expected ping with data, got %#v", result)
	}

	result, err = validator.ValidateMessage([]byte(`{"type": "stream_end"}`))
	if err != nil {
		t.Fatalf("ValidateMessage failed: %v", err)
	}
	if _, ok := result.(*StreamEndMessage); !ok {
		t.Errorf("Expected *StreamEndMessage, got %T", result)
	}

	if _, err := validator.ValidateMessage([]byte(`{"type": "listening_start"}`)); err == nil {
		t.Error("Expected error for unsupported message type")
	}
	if _, err := validator.ValidateMessage([]byte(`not json`)); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestStreamStartMessage_Format(t *testing.T) {
	msg := &StreamStartMessage{Container: "wav", SampleRate: 44100, Channels: 2}

	format, err := msg.Format()
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	want := entities.FormatDescriptor{
		Encoding:      entities.EncodingPCM,
		Channels:      2,
		SampleRate:    44100,
		BitsPerSample: 16,
		Container:     entities.ContainerWav,
	}
	if !format.Equal(want) {
		t.Errorf("Expected %s, got %s", want, format)
	}
}

func TestCreateRecognitionResult(t *testing.T) {
	req := entities.RecognitionRequest{ClientID: "session-1", RequestID: 4}

	tests := []struct {
		name        string
		outcome     entities.RecognitionOutcome
		wantSpeaker string
		wantReason  string
	}{
		{
			name:        "identified",
			outcome:     entities.NewSuccessOutcome(req, "alice", 1),
			wantSpeaker: "alice",
		},
		{
			name:        "no match",
			outcome:     entities.NewSuccessOutcome(req, "", 0),
			wantSpeaker: entities.UnknownSpeaker,
		},
		{
			name:       "failed",
			outcome:    entities.NewFailureOutcome(req, "request timeout"),
			wantReason: "request timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := CreateRecognitionResult(tt.outcome)

			data, err := json.Marshal(msg)
			if err != nil {
				t.Fatalf("Failed to marshal: %v", err)
			}

			var decoded map[string]interface{}
			json.Unmarshal(data, &decoded)

			if decoded["type"] != string(MessageTypeRecognitionResult) {
				t.Errorf("Expected type recognition_result, got %v", decoded["type"])
			}
			if decoded["session_id"] != "session-1" || decoded["request_id"] != float64(4) {
				t.Errorf("Unexpected identifiers %v", decoded)
			}
			if msg.Speaker != tt.wantSpeaker {
				t.Errorf("Expected speaker %q, got %q", tt.wantSpeaker, msg.Speaker)
			}
			if msg.FailureReason != tt.wantReason {
				t.Errorf("Expected reason %q, got %q", tt.wantReason, msg.FailureReason)
			}
		})
	}
}

func TestCreateErrorMessage(t *testing.T) {
	msg := CreateErrorMessage(ErrorCodeHeaderInvalid, "rejected", "missing RIFF")

	if msg.Type != MessageTypeError {
		t.Errorf("Expected type error, got %s", msg.Type)
	}
	if msg.Code != ErrorCodeHeaderInvalid || msg.Details != "missing RIFF" {
		t.Errorf("Unexpected error message %+v", msg)
	}
	if msg.Timestamp == "" {
		t.Error("Timestamp should be set")
	}
}
