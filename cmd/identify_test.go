package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/arunika/speakerid/adapters/speaker"
	"github.com/satriahrh/arunika/speakerid/domain/entities"
	"github.com/satriahrh/arunika/speakerid/internal/recognition"
	"github.com/satriahrh/arunika/speakerid/usecase"
)

func newLocalService(t *testing.T, profiles ...string) *usecase.IdentificationService {
	logger := zaptest.NewLogger(t)
	mock := speaker.NewMockIdentifier(logger, profiles...)
	identifier := recognition.NewIdentifier(mock, logger, recognition.WithPollInterval(time.Millisecond))
	factory := recognition.NewFactory(identifier, logger, recognition.WithDispatchInterval(time.Millisecond))
	return usecase.NewIdentificationService(factory, logger, usecase.WithProfileLister(mock))
}

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestRunIdentifyRawFile(t *testing.T) {
	path := writeTempFile(t, "speech.raw", make([]byte, 3*32000))

	var out bytes.Buffer
	err := runIdentify(context.Background(), &out, newLocalService(t, "alice", "bob"), &identifyOptions{
		file:          path,
		windowSize:    2,
		stepSize:      1,
		chunkSize:     32000,
		sampleRate:    16000,
		channels:      1,
		bitsPerSample: 16,
	})
	require.NoError(t, err)

	output := out.String()
	assert.Contains(t, output, "3 outcomes")
	assert.Contains(t, output, "bob")
	assert.Contains(t, output, "[  2] Unknown (confidence 0.5)")
	assert.Contains(t, output, "[  3] Unknown (confidence 0.5)")
	assert.Contains(t, output, "  requests 1-1: bob\n")
	assert.NotContains(t, output, "requests 2-")
}

func TestRunIdentifyRejectsBadOptions(t *testing.T) {
	service := newLocalService(t, "alice")

	err := runIdentify(context.Background(), &bytes.Buffer{}, service, &identifyOptions{file: "x.raw", chunkSize: 0})
	assert.Error(t, err)

	err = runIdentify(context.Background(), &bytes.Buffer{}, service, &identifyOptions{
		file: "x.mp3", chunkSize: 1, windowSize: 2, stepSize: 1, sampleRate: 16000, channels: 1, bitsPerSample: 16,
	})
	assert.ErrorContains(t, err, "unsupported container")
}

func TestIdentifyOptionsFormat(t *testing.T) {
	opts := &identifyOptions{file: "a.wav", sampleRate: 16000, channels: 1, bitsPerSample: 16}
	format, err := opts.format()
	require.NoError(t, err)
	assert.Equal(t, entities.ContainerWav, format.Container)

	opts.container = "raw"
	format, err = opts.format()
	require.NoError(t, err)
	assert.Equal(t, entities.ContainerRaw, format.Container)
}

func TestPrintTurns(t *testing.T) {
	var out bytes.Buffer
	printTurns(&out, []entities.SpeakerTurn{
		{Identity: "alice", FirstRequestID: 1, LastRequestID: 2},
		{Identity: "bob", FirstRequestID: 4, LastRequestID: 4},
	})
	assert.Equal(t, "  requests 1-2: alice\n  requests 4-4: bob\n", out.String())
}

func TestPrintWavInfoRejectsNonWav(t *testing.T) {
	path := writeTempFile(t, "noise.wav", bytes.Repeat([]byte{1}, 128))
	assert.Error(t, printWavInfo(&bytes.Buffer{}, path))
}
