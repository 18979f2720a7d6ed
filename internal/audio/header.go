package audio

import (
	"encoding/binary"
	"fmt"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
)

const (
	chunkLabelSize  = 4
	chunkHeaderSize = 8
	fmtChunkMinSize = 16
	formatTagPCM    = 1
)

// ParsedHeaderInfo locates sample data inside a header buffer
type ParsedHeaderInfo struct {
	DataStartOffset int
	BytesPerSecond  int
}

// ParseHeader validates a container header against the expected format.
// header must hold at least expected.Container.MaxHeaderSize() bytes.
// Headerless streams are assumed to carry entities.DefaultFormat.
func ParseHeader(header []byte, expected entities.FormatDescriptor) (ParsedHeaderInfo, error) {
	maxSize := expected.Container.MaxHeaderSize()
	if len(header) < maxSize {
		return ParsedHeaderInfo{}, fmt.Errorf("%w: expected %d vs actual %d", ErrSizeMismatch, maxSize, len(header))
	}

	switch expected.Container {
	case entities.ContainerRaw:
		return ParsedHeaderInfo{
			DataStartOffset: 0,
			BytesPerSecond:  entities.DefaultFormat(entities.ContainerRaw).BytesPerSecond(),
		}, nil
	case entities.ContainerWav:
		return parseWavHeader(header, expected)
	default:
		return ParsedHeaderInfo{}, fmt.Errorf("%w: unsupported container format: %s", ErrInvalidConfiguration, expected.Container)
	}
}

func parseWavHeader(header []byte, expected entities.FormatDescriptor) (ParsedHeaderInfo, error) {
	r := &headerReader{buf: header}

	if label, ok := r.labelAt(0); !ok || label != "RIFF" {
		return ParsedHeaderInfo{}, fmt.Errorf("%w: unable to find RIFF signature in header", ErrMalformedHeader)
	}
	if label, ok := r.labelAt(8); !ok || label != "WAVE" {
		return ParsedHeaderInfo{}, fmt.Errorf("%w: unable to find WAVE signature in header", ErrMalformedHeader)
	}

	var parsed *entities.FormatDescriptor
	r.pos = 12
	for {
		label, size, err := r.chunk()
		if err != nil {
			return ParsedHeaderInfo{}, err
		}

		switch label {
		case "fmt ":
			f, err := r.format(size)
			if err != nil {
				return ParsedHeaderInfo{}, err
			}
			parsed = &f
		case "data":
			if parsed == nil {
				return ParsedHeaderInfo{}, ErrMissingFormatChunk
			}
			if !parsed.Equal(expected) {
				return ParsedHeaderInfo{}, &FormatMismatchError{Claimed: expected, Actual: *parsed}
			}
			bps := parsed.BytesPerSecond()
			if bps <= 0 {
				return ParsedHeaderInfo{}, fmt.Errorf("%w: bytes per second must be a positive integer", ErrMalformedHeader)
			}
			return ParsedHeaderInfo{DataStartOffset: r.pos, BytesPerSecond: bps}, nil
		default:
			if err := r.skip(size); err != nil {
				return ParsedHeaderInfo{}, err
			}
		}
	}
}

// headerReader is a bounds-checked little-endian cursor over a header buffer
type headerReader struct {
	buf []byte
	pos int
}

func (r *headerReader) labelAt(offset int) (string, bool) {
	if offset < 0 || offset+chunkLabelSize > len(r.buf) {
		return "", false
	}
	return string(r.buf[offset : offset+chunkLabelSize]), true
}

func (r *headerReader) chunk() (string, int, error) {
	if r.pos+chunkHeaderSize > len(r.buf) {
		return "", 0, fmt.Errorf("%w: no data chunk within the first %d bytes", ErrMalformedHeader, len(r.buf))
	}
	label := string(r.buf[r.pos : r.pos+chunkLabelSize])
	size := binary.LittleEndian.Uint32(r.buf[r.pos+chunkLabelSize:])
	r.pos += chunkHeaderSize
	// data chunks routinely declare more bytes than the header holds
	if label != "data" && size > uint32(len(r.buf)) {
		return "", 0, fmt.Errorf("%w: chunk %q declares %d bytes", ErrMalformedHeader, label, size)
	}
	return label, int(size), nil
}

func (r *headerReader) skip(n int) error {
	if r.pos+n > len(r.buf) {
		return fmt.Errorf("%w: chunk runs past the end of the header", ErrMalformedHeader)
	}
	r.pos += n
	return nil
}

// format reads a fmt chunk body and advances past its declared length
func (r *headerReader) format(size int) (entities.FormatDescriptor, error) {
	if size < fmtChunkMinSize || r.pos+size > len(r.buf) {
		return entities.FormatDescriptor{}, fmt.Errorf("%w: fmt chunk of %d bytes is invalid", ErrMalformedHeader, size)
	}
	body := r.buf[r.pos : r.pos+size]

	encoding := entities.EncodingNone
	if binary.LittleEndian.Uint16(body[0:2]) == formatTagPCM {
		encoding = entities.EncodingPCM
	}
	f := entities.FormatDescriptor{
		Encoding:   encoding,
		Channels:   int(binary.LittleEndian.Uint16(body[2:4])),
		SampleRate: int(binary.LittleEndian.Uint32(body[4:8])),
		// byte rate and block align are skipped
		BitsPerSample: int(binary.LittleEndian.Uint16(body[14:16])),
		Container:     entities.ContainerWav,
	}

	r.pos += size
	return f, nil
}
