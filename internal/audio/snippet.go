package audio

import (
	"encoding/binary"
)

const (
	// Snippets are always emitted as 16 kHz, 16-bit, mono PCM
	SnippetSampleRate = 16000
	SnippetBitDepth   = 16
	SnippetChannels   = 1

	snippetHeaderSize = 44
)

// Snippet is a self-contained WAV buffer holding the window contents at one step boundary
type Snippet struct {
	Data []byte
	// Seconds is the number of one-second buffers in the payload
	Seconds int
	// Sequence counts emitted snippets from 1 within a stream
	Sequence int
}

// BuildSnippet writes a canonical RIFF/WAVE/fmt/data buffer whose payload is
// the given seconds concatenated oldest first.
func BuildSnippet(seconds [][]byte) []byte {
	const bytesPerSample = SnippetBitDepth / 8
	totalSamples := SnippetSampleRate * len(seconds)
	dataSize := bytesPerSample * totalSamples

	payload := 0
	for _, s := range seconds {
		payload += len(s)
	}

	buf := make([]byte, snippetHeaderSize, snippetHeaderSize+payload)
	le := binary.LittleEndian

	copy(buf[0:4], "RIFF")
	le.PutUint32(buf[4:8], uint32(dataSize+36))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	le.PutUint32(buf[16:20], 16)
	le.PutUint16(buf[20:22], formatTagPCM)
	le.PutUint16(buf[22:24], SnippetChannels)
	le.PutUint32(buf[24:28], SnippetSampleRate)
	le.PutUint32(buf[28:32], SnippetSampleRate*bytesPerSample)
	le.PutUint16(buf[32:34], bytesPerSample)
	le.PutUint16(buf[34:36], SnippetBitDepth)
	copy(buf[36:40], "data")
	le.PutUint32(buf[40:44], uint32(dataSize))

	for _, s := range seconds {
		buf = append(buf, s...)
	}
	return buf
}
