package entities

import (
	"errors"
	"fmt"
)

// ErrInvalidFormat is returned when a format descriptor has a non-positive field
var ErrInvalidFormat = errors.New("invalid audio format")

// AudioEncoding is the sample encoding of an audio stream
type AudioEncoding int

const (
	EncodingNone AudioEncoding = iota
	EncodingPCM
)

func (e AudioEncoding) String() string {
	switch e {
	case EncodingPCM:
		return "PCM"
	case EncodingNone:
		return "None"
	default:
		return fmt.Sprintf("AudioEncoding(%d)", int(e))
	}
}

// ContainerKind describes how an audio stream is wrapped
type ContainerKind int

const (
	// ContainerRaw is a headerless stream of PCM samples
	ContainerRaw ContainerKind = iota
	// ContainerWav is a self-describing RIFF/WAVE stream
	ContainerWav
)

// WavMaxHeaderSize is the number of leading bytes scanned for a WAV header
const WavMaxHeaderSize = 5000

// MaxHeaderSize returns the number of header bytes that must be buffered
// before sample data can be located
func (c ContainerKind) MaxHeaderSize() int {
	if c == ContainerWav {
		return WavMaxHeaderSize
	}
	return 0
}

func (c ContainerKind) String() string {
	switch c {
	case ContainerRaw:
		return "raw"
	case ContainerWav:
		return "wav"
	default:
		return fmt.Sprintf("ContainerKind(%d)", int(c))
	}
}

// ParseContainerKind converts a container name ("wav", "raw") into a ContainerKind
func ParseContainerKind(s string) (ContainerKind, error) {
	switch s {
	case "wav", "WAV":
		return ContainerWav, nil
	case "raw", "RAW", "pcm", "":
		return ContainerRaw, nil
	default:
		return 0, fmt.Errorf("unsupported container: %s", s)
	}
}

// FormatDescriptor describes the expected encoding of an audio stream.
// Values are immutable once constructed with NewFormatDescriptor.
type FormatDescriptor struct {
	Encoding      AudioEncoding `json:"encoding" bson:"encoding"`
	Channels      int           `json:"channels" bson:"channels"`
	SampleRate    int           `json:"sample_rate" bson:"sample_rate"`
	BitsPerSample int           `json:"bits_per_sample" bson:"bits_per_sample"`
	Container     ContainerKind `json:"container" bson:"container"`
}

// NewFormatDescriptor validates and builds a FormatDescriptor
func NewFormatDescriptor(encoding AudioEncoding, channels, sampleRate, bitsPerSample int, container ContainerKind) (FormatDescriptor, error) {
	f := FormatDescriptor{
		Encoding:      encoding,
		Channels:      channels,
		SampleRate:    sampleRate,
		BitsPerSample: bitsPerSample,
		Container:     container,
	}
	if err := f.Validate(); err != nil {
		return FormatDescriptor{}, err
	}
	return f, nil
}

// DefaultFormat is 16 kHz, 16-bit, mono PCM in the given container.
// Headerless streams are always assumed to carry this format.
func DefaultFormat(container ContainerKind) FormatDescriptor {
	return FormatDescriptor{
		Encoding:      EncodingPCM,
		Channels:      1,
		SampleRate:    16000,
		BitsPerSample: 16,
		Container:     container,
	}
}

// Validate checks that all numeric fields are positive
func (f FormatDescriptor) Validate() error {
	if f.Channels <= 0 {
		return fmt.Errorf("%w: channels must be a positive number, got %d", ErrInvalidFormat, f.Channels)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be a positive number, got %d", ErrInvalidFormat, f.SampleRate)
	}
	if f.BitsPerSample <= 0 {
		return fmt.Errorf("%w: bits per sample must be a positive number, got %d", ErrInvalidFormat, f.BitsPerSample)
	}
	return nil
}

// Equal reports whether both descriptors match field by field, container included
func (f FormatDescriptor) Equal(other FormatDescriptor) bool {
	return f == other
}

// BytesPerSecond is bitsPerSample * sampleRate * channels / 8
func (f FormatDescriptor) BytesPerSecond() int {
	return f.BitsPerSample * f.SampleRate * f.Channels / 8
}

func (f FormatDescriptor) String() string {
	return fmt.Sprintf("Container: %s, Encoding: %s, Rate: %d, Sample Format: %d, Channels: %d",
		f.Container, f.Encoding, f.SampleRate, f.BitsPerSample, f.Channels)
}
