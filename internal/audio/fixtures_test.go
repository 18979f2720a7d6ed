package audio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

type chunkSpec struct {
	label string
	body  []byte
}

// fmtChunk builds a 16-byte fmt chunk body
func fmtChunk(formatTag, channels, sampleRate, bits int) chunkSpec {
	body := make([]byte, 16)
	le := binary.LittleEndian
	le.PutUint16(body[0:2], uint16(formatTag))
	le.PutUint16(body[2:4], uint16(channels))
	le.PutUint32(body[4:8], uint32(sampleRate))
	le.PutUint32(body[8:12], uint32(sampleRate*channels*bits/8))
	le.PutUint16(body[12:14], uint16(channels*bits/8))
	le.PutUint16(body[14:16], uint16(bits))
	return chunkSpec{label: "fmt ", body: body}
}

// wavHeader lays out RIFF/WAVE followed by chunks, terminated by a data chunk
// prefix declaring dataSize bytes.
func wavHeader(riff, wave string, dataSize int, chunks ...chunkSpec) []byte {
	var buf bytes.Buffer
	buf.WriteString(riff)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString(wave)
	for _, c := range chunks {
		buf.WriteString(c.label)
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(c.body)))
		buf.Write(c.body)
	}
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	return buf.Bytes()
}

// padHeader zero-fills header up to the wav scan size
func padHeader(header []byte) []byte {
	out := make([]byte, 5000)
	copy(out, header)
	return out
}

// pcmSeconds returns n seconds of 16 kHz mono 16-bit samples with a
// position-dependent byte pattern
func pcmSeconds(n int) []byte {
	out := make([]byte, n*32000)
	for i := range out {
		out[i] = byte(i % 251)
	}
	return out
}

// encodeWav writes samples through go-audio's encoder and returns the file bytes
func encodeWav(t *testing.T, sampleRate, channels, seconds int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	samples := make([]int, sampleRate*channels*seconds)
	for i := range samples {
		samples[i] = (i * 31) % 20000
	}
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Data:   samples,
		Format: &goaudio.Format{SampleRate: sampleRate, NumChannels: channels},
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// decodeSnippet checks a snippet is a readable 16 kHz mono 16-bit WAV
func decodeSnippet(t *testing.T, data []byte) *wav.Decoder {
	t.Helper()

	d := wav.NewDecoder(bytes.NewReader(data))
	d.ReadInfo()
	require.True(t, d.IsValidFile(), "snippet is not a valid wav file")
	require.Equal(t, uint32(16000), d.SampleRate)
	require.Equal(t, uint16(16), d.BitDepth)
	require.Equal(t, uint16(1), d.NumChans)
	return d
}
