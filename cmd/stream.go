package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/satriahrh/arunika/speakerid/internal/api"
	wsproto "github.com/satriahrh/arunika/speakerid/internal/websocket"
)

type streamOptions struct {
	server     string
	clientName string
	apiKey     string
	file       string
	container  string
	windowSize int
	stepSize   int
	chunkSize  int
	chunkDelay time.Duration
	speakers   []string
}

func streamCommand() *cobra.Command {
	opts := &streamOptions{}

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream an audio file to a running server over WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runStream(ctx, cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.server, "server", "http://localhost:8080", "Server base URL")
	flags.StringVar(&opts.clientName, "client-name", "", "Registered client name")
	flags.StringVar(&opts.apiKey, "api-key", "", "Client api key")
	flags.StringVarP(&opts.file, "file", "f", "", "Audio file to stream")
	flags.StringVar(&opts.container, "container", "", "Container of the file: wav or raw (default from extension)")
	flags.IntVar(&opts.windowSize, "window", 2, "Snippet length in seconds")
	flags.IntVar(&opts.stepSize, "step", 1, "Seconds between snippet starts")
	flags.IntVar(&opts.chunkSize, "chunk", 32000, "Bytes per binary frame")
	flags.DurationVar(&opts.chunkDelay, "chunk-delay", time.Second, "Pause between frames")
	flags.StringSliceVar(&opts.speakers, "speakers", nil, "Candidate profile ids (default every enrolled profile)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("client-name")
	_ = cmd.MarkFlagRequired("api-key")
	return cmd
}

func runStream(ctx context.Context, out io.Writer, opts *streamOptions) error {
	if opts.chunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}

	data, err := os.ReadFile(opts.file)
	if err != nil {
		return fmt.Errorf("failed to read audio file: %w", err)
	}

	token, err := requestToken(ctx, opts.server, opts.clientName, opts.apiKey)
	if err != nil {
		return err
	}

	wsURL, err := websocketURL(opts.server)
	if err != nil {
		return err
	}

	headers := http.Header{}
	headers.Add("Authorization", "Bearer "+token.Token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	container := opts.container
	if container == "" {
		container = strings.TrimPrefix(filepath.Ext(opts.file), ".")
	}
	start := wsproto.StreamStartMessage{
		BaseMessage: wsproto.BaseMessage{Type: wsproto.MessageTypeStreamStart},
		Container:   container,
		WindowSize:  opts.windowSize,
		StepSize:    opts.stepSize,
		SpeakerIDs:  opts.speakers,
	}
	if err := conn.WriteJSON(start); err != nil {
		return fmt.Errorf("failed to send stream_start: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- readResults(conn, out)
	}()

	for offset := 0; offset < len(data); offset += opts.chunkSize {
		end := min(offset+opts.chunkSize, len(data))
		if err := conn.WriteMessage(websocket.BinaryMessage, data[offset:end]); err != nil {
			return fmt.Errorf("failed to send audio: %w", err)
		}

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.chunkDelay):
		}
	}

	end := wsproto.StreamEndMessage{BaseMessage: wsproto.BaseMessage{Type: wsproto.MessageTypeStreamEnd}}
	if err := conn.WriteJSON(end); err != nil {
		return fmt.Errorf("failed to send stream_end: %w", err)
	}

	select {
	case err := <-done:
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readResults prints server messages until the session ends
func readResults(conn *websocket.Conn, out io.Writer) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("connection closed before the stream ended: %w", err)
		}

		var base wsproto.BaseMessage
		if err := json.Unmarshal(raw, &base); err != nil {
			return fmt.Errorf("invalid server message: %w", err)
		}

		switch base.Type {
		case wsproto.MessageTypeStreamStarted:
			var msg wsproto.StreamStartedMessage
			if err := json.Unmarshal(raw, &msg); err == nil {
				fmt.Fprintf(out, "Session %s started (%s), candidates %v\n", msg.SessionID, msg.Format, msg.Candidates)
			}
		case wsproto.MessageTypeRecognitionResult:
			var msg wsproto.RecognitionResultMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			switch {
			case !msg.Succeeded:
				fmt.Fprintf(out, "[%3d] failed: %s\n", msg.RequestID, msg.FailureReason)
			case msg.Speaker == "":
				fmt.Fprintf(out, "[%3d] Unknown\n", msg.RequestID)
			default:
				fmt.Fprintf(out, "[%3d] %s (confidence %.1f)\n", msg.RequestID, msg.Speaker, msg.Confidence)
			}
		case wsproto.MessageTypeStreamEnded:
			var msg wsproto.StreamEndedMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nSession %s %s with %d outcomes, speaker turns:\n", msg.SessionID, msg.Status, msg.Outcomes)
			printTurns(out, msg.Turns)
			return nil
		case wsproto.MessageTypeError:
			var msg wsproto.ErrorMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				return err
			}
			return fmt.Errorf("server error %s: %s", msg.Code, msg.Message)
		}
	}
}

func requestToken(ctx context.Context, server, clientName, apiKey string) (*api.TokenResponse, error) {
	body, err := json.Marshal(api.TokenRequest{ClientName: clientName, APIKey: apiKey})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+"/api/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("authentication failed: %s", strings.TrimSpace(string(raw)))
	}

	var token api.TokenResponse
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("invalid token response: %w", err)
	}
	return &token, nil
}

// websocketURL maps an http(s) base URL to the ws(s) stream endpoint
func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
