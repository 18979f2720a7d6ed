package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/speakerid/domain/repositories"
	"github.com/satriahrh/arunika/speakerid/internal/auth"
	"github.com/satriahrh/arunika/speakerid/internal/websocket"
	"github.com/satriahrh/arunika/speakerid/usecase"
)

const claimsKey = "claims"

// Dependencies groups everything the HTTP routes need
type Dependencies struct {
	Hub      *websocket.Hub
	Service  *usecase.IdentificationService
	Clients  repositories.ClientRepository
	Tokens   *auth.TokenIssuer
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies) {
	logger := deps.Logger

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{
			Status:            "ok",
			Service:           "speakerid",
			ActiveSessions:    deps.Service.ActiveSessions(),
			ActiveConnections: deps.Hub.ActiveConnections(),
		})
	})

	if deps.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/auth/token", func(c echo.Context) error {
		return clientAuth(c, deps.Clients, deps.Tokens, logger)
	})

	protected := v1.Group("", requireClient(deps.Tokens, logger))
	protected.GET("/profiles", func(c echo.Context) error {
		return listProfiles(c, deps.Service, logger)
	})
	protected.GET("/sessions/:id", func(c echo.Context) error {
		return getSession(c, deps.Service)
	})
	protected.GET("/sessions/:id/outcomes", func(c echo.Context) error {
		return getOutcomes(c, deps.Service, logger)
	})

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleWebSocketWithAuth(deps.Hub, c, clientClaims(c).ClientName, logger)
	}, requireClient(deps.Tokens, logger))
}

func clientAuth(c echo.Context, clients repositories.ClientRepository, tokens *auth.TokenIssuer, logger *zap.Logger) error {
	var req TokenRequest

	// Bind and validate request
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind client auth request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.ClientName == "" || req.APIKey == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Client name and API key are required",
		})
	}

	client, err := clients.ValidateClient(req.ClientName, req.APIKey)
	if err != nil {
		logger.Warn("Client authentication failed",
			zap.String("client_name", req.ClientName),
			zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid client credentials",
		})
	}

	token, err := tokens.GenerateClientToken(client.ID, client.Name)
	if err != nil {
		logger.Error("Failed to generate client token",
			zap.String("client_id", client.ID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	logger.Info("Client authenticated successfully",
		zap.String("client_id", client.ID),
		zap.String("client_name", client.Name))

	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(tokens.TTL()),
		ClientID:  client.ID,
	})
}

// requireClient validates the Bearer token and stores its claims in the context
func requireClient(tokens *auth.TokenIssuer, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Extract JWT token from Authorization header only
			token, ok := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.Warn("Request rejected: missing token", zap.String("path", c.Path()))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "missing_token",
					Message: "JWT token is required in Authorization header",
				})
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				logger.Warn("Request rejected: invalid token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "Invalid or expired JWT token",
				})
			}

			if claims.ClientName == "" {
				return c.JSON(http.StatusBadRequest, ErrorResponse{
					Error:   "invalid_token_claims",
					Message: "Client name not found in token",
				})
			}

			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

func clientClaims(c echo.Context) *auth.JWTClaims {
	claims, _ := c.Get(claimsKey).(*auth.JWTClaims)
	return claims
}

func listProfiles(c echo.Context, service *usecase.IdentificationService, logger *zap.Logger) error {
	profiles, err := service.ListProfiles(c.Request().Context())
	if err != nil {
		logger.Error("Failed to list speaker profiles", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "profiles_unavailable",
			Message: "Failed to list speaker profiles",
		})
	}

	return c.JSON(http.StatusOK, ProfilesResponse{
		Profiles: profiles,
		Enrolled: repositories.EnrolledProfileIDs(profiles),
	})
}

func getSession(c echo.Context, service *usecase.IdentificationService) error {
	record, err := service.SessionStatus(c.Request().Context(), c.Param("id"))
	if err != nil || record.ClientID != clientClaims(c).ClientName {
		return sessionNotFound(c)
	}
	return c.JSON(http.StatusOK, record)
}

func getOutcomes(c echo.Context, service *usecase.IdentificationService, logger *zap.Logger) error {
	result, err := service.Outcomes(c.Request().Context(), c.Param("id"))
	if errors.Is(err, usecase.ErrSessionNotFound) {
		return sessionNotFound(c)
	}
	if err != nil {
		logger.Error("Failed to load outcomes", zap.String("sessionID", c.Param("id")), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load outcomes",
		})
	}
	if result.Session.ClientID != clientClaims(c).ClientName {
		return sessionNotFound(c)
	}
	return c.JSON(http.StatusOK, result)
}

func sessionNotFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   "session_not_found",
		Message: "Session not found",
	})
}
