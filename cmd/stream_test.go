package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/speakerid/internal/api"
	"github.com/satriahrh/arunika/speakerid/internal/auth"
	"github.com/satriahrh/arunika/speakerid/internal/websocket"
)

func startTestServer(t *testing.T) string {
	t.Helper()
	logger := zap.NewNop()

	service := newLocalService(t, "alice", "bob")
	clients, err := seedClients(context.Background(), map[string]string{"kiosk-1": "secret"})
	require.NoError(t, err)
	tokens, err := auth.NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	hub := websocket.NewHub(service, logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	e := echo.New()
	api.InitRoutes(e, api.Dependencies{
		Hub:      hub,
		Service:  service,
		Clients:  clients,
		Tokens:   tokens,
		Gatherer: prometheus.NewRegistry(),
		Logger:   logger,
	})

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return server.URL
}

func TestRunStream(t *testing.T) {
	serverURL := startTestServer(t)
	path := writeTempFile(t, "speech.raw", make([]byte, 3*32000))

	var out bytes.Buffer
	err := runStream(context.Background(), &out, &streamOptions{
		server:     serverURL,
		clientName: "kiosk-1",
		apiKey:     "secret",
		file:       path,
		windowSize: 2,
		stepSize:   1,
		chunkSize:  32000,
		chunkDelay: time.Millisecond,
	})
	require.NoError(t, err)

	output := out.String()
	assert.Contains(t, output, "started")
	assert.Contains(t, output, "completed with 3 outcomes")
	assert.Contains(t, output, "bob")
}

func TestRunStreamRejectsBadCredentials(t *testing.T) {
	serverURL := startTestServer(t)
	path := writeTempFile(t, "speech.raw", make([]byte, 32000))

	err := runStream(context.Background(), &bytes.Buffer{}, &streamOptions{
		server:     serverURL,
		clientName: "kiosk-1",
		apiKey:     "wrong",
		file:       path,
		windowSize: 2,
		stepSize:   1,
		chunkSize:  32000,
	})
	assert.ErrorContains(t, err, "authentication failed")
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		server  string
		want    string
		wantErr bool
	}{
		{server: "http://localhost:8080", want: "ws://localhost:8080/ws"},
		{server: "https://example.com/base/", want: "wss://example.com/base/ws"},
		{server: "ws://host", want: "ws://host/ws"},
		{server: "ftp://host", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			got, err := websocketURL(tt.server)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
