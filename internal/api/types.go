package api

import (
	"time"

	"github.com/satriahrh/arunika/speakerid/domain/repositories"
)

// TokenRequest represents the request payload for client authentication
type TokenRequest struct {
	ClientName string `json:"client_name" validate:"required"`
	APIKey     string `json:"api_key" validate:"required"`
}

// TokenResponse represents the response payload for client authentication
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ClientID  string    `json:"client_id"`
}

// ProfilesResponse lists the speaker profiles known to the identification service
type ProfilesResponse struct {
	Profiles []repositories.SpeakerProfile `json:"profiles"`
	Enrolled []string                      `json:"enrolled"`
}

// HealthResponse reports liveness and load
type HealthResponse struct {
	Status            string `json:"status"`
	Service           string `json:"service"`
	ActiveSessions    int    `json:"active_sessions"`
	ActiveConnections int    `json:"active_connections"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
