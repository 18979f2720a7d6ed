package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
	"github.com/satriahrh/arunika/speakerid/internal/audio"
	"github.com/satriahrh/arunika/speakerid/internal/recognition"
	"github.com/satriahrh/arunika/speakerid/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	// Time allowed for a completed stream to receive all of its outcomes.
	drainWait = 2 * time.Minute
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active stream connections.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	quit     chan struct{}
	quitOnce sync.Once

	service   *usecase.IdentificationService
	validator *MessageValidator

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(service *usecase.IdentificationService, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		service:    service,
		validator:  NewMessageValidator(),
		logger:     logger,
	}
}

// Run starts the hub's main loop and returns after Stop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.connID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered",
				zap.String("clientID", client.clientID),
				zap.String("connID", client.connID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.connID]; ok {
				delete(h.clients, client.connID)
			}
			h.mu.Unlock()
			client.close()
			h.logger.Info("Client unregistered",
				zap.String("clientID", client.clientID),
				zap.String("connID", client.connID))

		case <-h.quit:
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				client.close()
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop terminates the main loop and closes every connection
func (h *Hub) Stop() {
	h.quitOnce.Do(func() { close(h.quit) })
}

// ActiveConnections returns the number of registered connections
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// done is closed when the hub dropped the client
	done      chan struct{}
	closeOnce sync.Once

	// Authenticated stream client name
	clientID string
	connID   string

	// Logger
	logger *zap.Logger

	// Open recording session, nil between streams
	session *usecase.Session
	mutex   sync.Mutex
}

// HandleWebSocketWithAuth handles websocket requests with a pre-authenticated client ID
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, clientID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	connID := uuid.New().String()
	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan WriteData, 256),
		done:     make(chan struct{}),
		clientID: clientID,
		connID:   connID,
		logger:   logger.With(zap.String("clientID", clientID), zap.String("connID", connID)),
	}

	select {
	case client.hub.register <- client:
	case <-hub.quit:
		conn.Close()
		return errors.New("hub is stopped")
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.disposeSession()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			// Process JSON messages (control messages, metadata)
			c.processMessage(message)
		case websocket.BinaryMessage:
			// Process binary audio data directly
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendJSON queues a message for the peer. Messages are dropped once the
// client is gone or its buffer is full.
func (c *Client) sendJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	case <-c.done:
	default:
		c.logger.Warn("Send buffer full, dropping message")
	}
}

func (c *Client) sendError(code, message string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	c.sendJSON(CreateErrorMessage(code, message, details))
}

// processMessage processes incoming control messages from the peer
func (c *Client) processMessage(message []byte) {
	msg, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
		c.sendError(ErrorCodeInvalidMessage, "invalid message", err)
		return
	}

	switch m := msg.(type) {
	case *StreamStartMessage:
		c.handleStreamStart(m)
	case *StreamEndMessage:
		c.handleStreamEnd()
	case *PingMessage:
		c.sendJSON(CreatePongMessage(m.Data))
	}
}

// processBinaryAudioChunk feeds binary audio data to the open session
func (c *Client) processBinaryAudioChunk(data []byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.session == nil {
		c.logger.Warn("Received binary audio chunk but no active session found")
		c.sendError(ErrorCodeNoSession, "send stream_start before audio", nil)
		return
	}

	err := c.session.Append(data)
	switch {
	case err == nil:
		c.logger.Debug("Appended audio chunk",
			zap.String("sessionID", c.session.ID()),
			zap.Int("size", len(data)))
	case audio.IsFatal(err):
		c.logger.Warn("Audio stream rejected",
			zap.String("sessionID", c.session.ID()),
			zap.Error(err))
		c.sendError(ErrorCodeHeaderInvalid, "audio stream rejected, session closed", err)
		c.session = nil
	case errors.Is(err, usecase.ErrSessionClosed):
		c.sendError(ErrorCodeNoSession, "session is closed", err)
		c.session = nil
	default:
		c.logger.Error("Failed to append audio", zap.Error(err))
		c.sendError(ErrorCodeStreamFailed, "failed to append audio", err)
	}
}

// handleStreamStart opens a recording session for the connection
func (c *Client) handleStreamStart(msg *StreamStartMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.session != nil {
		c.sendError(ErrorCodeSessionActive, "a stream is already open on this connection", nil)
		return
	}

	format, err := msg.Format()
	if err != nil {
		c.sendError(ErrorCodeInvalidMessage, "invalid audio format", err)
		return
	}

	session, err := c.hub.service.StartSession(ctx, usecase.StartRequest{
		ClientID:   c.clientID,
		Format:     format,
		WindowSize: msg.WindowSize,
		StepSize:   msg.StepSize,
		Candidates: msg.SpeakerIDs,
		Sink: recognition.SinkFunc(func(o entities.RecognitionOutcome) {
			c.sendJSON(CreateRecognitionResult(o))
		}),
	})
	if err != nil {
		c.logger.Error("Failed to start session", zap.Error(err))
		c.sendError(ErrorCodeStartFailed, "failed to start session", err)
		return
	}
	c.session = session

	record := session.Record()
	c.logger.Info("Audio stream started",
		zap.String("sessionID", record.ID),
		zap.String("format", format.String()))

	c.sendJSON(&StreamStartedMessage{
		BaseMessage: newBase(MessageTypeStreamStarted),
		SessionID:   record.ID,
		ClientID:    c.clientID,
		Format:      format.String(),
		Candidates:  record.Candidates,
	})
}

// handleStreamEnd completes the open session. Draining runs in the
// background so the connection keeps reading.
func (c *Client) handleStreamEnd() {
	c.mutex.Lock()
	session := c.session
	c.session = nil
	c.mutex.Unlock()

	if session == nil {
		c.sendError(ErrorCodeNoSession, "no stream is open", nil)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), drainWait)
		defer cancel()

		if err := session.Complete(ctx); err != nil {
			c.logger.Warn("Stream did not complete cleanly",
				zap.String("sessionID", session.ID()),
				zap.Error(err))
			session.Dispose()
			c.sendError(ErrorCodeStreamFailed, "stream did not complete", err)
		}

		result := session.Result()
		c.sendJSON(&StreamEndedMessage{
			BaseMessage: newBase(MessageTypeStreamEnded),
			SessionID:   result.Session.ID,
			Status:      string(result.Session.Status),
			Outcomes:    len(result.Outcomes),
			Turns:       result.Turns,
		})
	}()
}

// disposeSession drops the open session when the connection goes away
func (c *Client) disposeSession() {
	c.mutex.Lock()
	session := c.session
	c.session = nil
	c.mutex.Unlock()

	if session != nil {
		c.logger.Info("Connection closed with open stream, disposing session",
			zap.String("sessionID", session.ID()))
		session.Dispose()
	}
}
