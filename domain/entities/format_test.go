package entities

import (
	"errors"
	"testing"
)

func TestNewFormatDescriptor(t *testing.T) {
	tests := []struct {
		name          string
		channels      int
		sampleRate    int
		bitsPerSample int
		wantErr       bool
	}{
		{name: "valid mono", channels: 1, sampleRate: 16000, bitsPerSample: 16},
		{name: "zero channels", channels: 0, sampleRate: 16000, bitsPerSample: 16, wantErr: true},
		{name: "negative sample rate", channels: 1, sampleRate: -1, bitsPerSample: 16, wantErr: true},
		{name: "zero bits", channels: 1, sampleRate: 16000, bitsPerSample: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFormatDescriptor(EncodingPCM, tt.channels, tt.sampleRate, tt.bitsPerSample, ContainerWav)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFormatDescriptor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("Expected ErrInvalidFormat, got %v", err)
			}
		})
	}
}

func TestFormatDescriptorEqual(t *testing.T) {
	wav := DefaultFormat(ContainerWav)
	raw := DefaultFormat(ContainerRaw)

	if !wav.Equal(DefaultFormat(ContainerWav)) {
		t.Error("Identical descriptors should be equal")
	}
	if wav.Equal(raw) {
		t.Error("Descriptors with different containers should not be equal")
	}

	stereo := wav
	stereo.Channels = 2
	if wav.Equal(stereo) {
		t.Error("Descriptors with different channel counts should not be equal")
	}
}

func TestFormatDescriptorBytesPerSecond(t *testing.T) {
	if got := DefaultFormat(ContainerRaw).BytesPerSecond(); got != 32000 {
		t.Errorf("Expected 32000 bytes per second, got %d", got)
	}

	f, err := NewFormatDescriptor(EncodingPCM, 2, 44100, 16, ContainerWav)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.BytesPerSecond(); got != 176400 {
		t.Errorf("Expected 176400 bytes per second, got %d", got)
	}
}

func TestContainerKind(t *testing.T) {
	if ContainerRaw.MaxHeaderSize() != 0 {
		t.Error("Raw container should have no header")
	}
	if ContainerWav.MaxHeaderSize() != WavMaxHeaderSize {
		t.Errorf("Wav container header size should be %d", WavMaxHeaderSize)
	}

	kind, err := ParseContainerKind("wav")
	if err != nil || kind != ContainerWav {
		t.Errorf("ParseContainerKind(wav) = %v, %v", kind, err)
	}
	if _, err := ParseContainerKind("mp3"); err == nil {
		t.Error("Expected error for unsupported container")
	}
}

func TestGroupTurns(t *testing.T) {
	outcomes := []RecognitionOutcome{
		{RequestID: 3, Succeeded: true, Identity: "bob"},
		{RequestID: 1, Succeeded: true, Identity: "alice"},
		{RequestID: 5, Succeeded: true, Identity: "alice"},
		{RequestID: 2, Succeeded: true, Identity: "alice"},
		{RequestID: 4, Succeeded: false, FailureReason: "request timeout"},
		{RequestID: 6, Succeeded: true, Identity: ""},
	}

	turns := GroupTurns(outcomes)
	want := []SpeakerTurn{
		{Identity: "alice", FirstRequestID: 1, LastRequestID: 2},
		{Identity: "bob", FirstRequestID: 3, LastRequestID: 3},
		{Identity: "alice", FirstRequestID: 5, LastRequestID: 5},
	}

	if len(turns) != len(want) {
		t.Fatalf("Expected %d turns, got %d: %+v", len(want), len(turns), turns)
	}
	for i := range want {
		if turns[i] != want[i] {
			t.Errorf("Turn %d: expected %+v, got %+v", i, want[i], turns[i])
		}
	}

	if outcomes[0].RequestID != 3 {
		t.Error("GroupTurns must not reorder the caller's slice")
	}
}

func TestOutcomeSpeakerLabel(t *testing.T) {
	req := RecognitionRequest{ClientID: "c", RequestID: 7}

	unknown := NewSuccessOutcome(req, "", 0.5)
	if !unknown.IsUnknown() || unknown.SpeakerLabel() != UnknownSpeaker {
		t.Errorf("Expected unknown speaker, got %q", unknown.SpeakerLabel())
	}
	if UnknownSpeaker != "Unknown" {
		t.Errorf("Expected the Unknown label, got %q", UnknownSpeaker)
	}

	failed := NewFailureOutcome(req, "boom")
	if failed.IsUnknown() {
		t.Error("Failed outcome is not an unknown-speaker success")
	}
	if failed.RequestID != 7 || failed.ClientID != "c" {
		t.Error("Outcome must carry request identity")
	}
}
