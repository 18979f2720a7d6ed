package speaker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/speakerid/domain/repositories"
)

const (
	defaultEndpoint = "https://westus.api.cognitive.microsoft.com/spid/v1.0"
	defaultTimeout  = 30 * time.Second

	subscriptionKeyHeader   = "Ocp-Apim-Subscription-Key"
	operationLocationHeader = "Operation-Location"
)

// Config holds configuration for the HTTPIdentifier adapter
// Required fields:
// - APIKey: subscription key of the speaker recognition resource
// Optional fields with defaults:
// - Endpoint: base URL of the API (default: westus spid/v1.0)
// - Timeout: per-request timeout (default: 30s)
// - HTTPClient: overrides the client built from Timeout
type Config struct {
	APIKey     string
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// HTTPIdentifier implements SpeakerIdentifier and ProfileLister against a
// REST speaker identification API with asynchronous operations
type HTTPIdentifier struct {
	apiKey   string
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

var (
	_ repositories.SpeakerIdentifier = (*HTTPIdentifier)(nil)
	_ repositories.ProfileLister     = (*HTTPIdentifier)(nil)
)

// ValidateConfig validates the Config
func ValidateConfig(config Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("speaker recognition API key is required")
	}
	if config.Endpoint != "" {
		if _, err := url.ParseRequestURI(config.Endpoint); err != nil {
			return fmt.Errorf("invalid speaker recognition endpoint: %w", err)
		}
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %s", config.Timeout)
	}
	return nil
}

// NewHTTPIdentifier creates a new REST speaker identification client
func NewHTTPIdentifier(config Config, logger *zap.Logger) (*HTTPIdentifier, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(config.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
		logger.Info("Using default speaker recognition endpoint", zap.String("endpoint", endpoint))
	}

	client := config.HTTPClient
	if client == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &HTTPIdentifier{
		apiKey:   config.APIKey,
		endpoint: endpoint,
		client:   client,
		logger:   logger,
	}, nil
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type operationResponse struct {
	Status           string `json:"status"`
	Message          string `json:"message"`
	ProcessingResult *struct {
		IdentifiedProfileID string `json:"identifiedProfileId"`
		Confidence          string `json:"confidence"`
	} `json:"processingResult"`
}

type profileResponse struct {
	IdentificationProfileID string `json:"identificationProfileId"`
	Locale                  string `json:"locale"`
	EnrollmentStatus        string `json:"enrollmentStatus"`
}

// Submit implements repositories.SpeakerIdentifier
func (h *HTTPIdentifier) Submit(ctx context.Context, audio io.Reader, candidates []string) (repositories.OperationHandle, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("at least one candidate profile is required")
	}

	query := url.Values{}
	query.Set("identificationProfileIds", strings.Join(candidates, ","))
	query.Set("shortAudio", "true")
	reqURL := fmt.Sprintf("%s/identify?%s", h.endpoint, query.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, audio)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	httpReq.Header.Set(subscriptionKeyHeader, h.apiKey)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", readAPIError(resp)
	}

	location := resp.Header.Get(operationLocationHeader)
	if location == "" {
		return "", fmt.Errorf("response is missing the %s header", operationLocationHeader)
	}

	h.logger.Debug("Identification operation accepted",
		zap.String("operation", location),
		zap.Int("candidates", len(candidates)))
	return repositories.OperationHandle(location), nil
}

// PollStatus implements repositories.SpeakerIdentifier
func (h *HTTPIdentifier) PollStatus(ctx context.Context, handle repositories.OperationHandle) (repositories.OperationStatus, error) {
	var op operationResponse
	if err := h.getJSON(ctx, string(handle), &op); err != nil {
		return repositories.OperationStatus{}, err
	}

	switch strings.ToLower(op.Status) {
	case "succeeded":
		status := repositories.OperationStatus{State: repositories.OperationSucceeded}
		if op.ProcessingResult != nil {
			status.Identity = normalizeProfileID(op.ProcessingResult.IdentifiedProfileID)
			status.Confidence = confidenceScore(op.ProcessingResult.Confidence)
		}
		return status, nil
	case "failed":
		return repositories.OperationStatus{State: repositories.OperationFailed, Message: op.Message}, nil
	case "notstarted", "running":
		return repositories.OperationStatus{State: repositories.OperationRunning}, nil
	default:
		return repositories.OperationStatus{}, fmt.Errorf("unexpected operation status %q", op.Status)
	}
}

// ListProfiles implements repositories.ProfileLister
func (h *HTTPIdentifier) ListProfiles(ctx context.Context) ([]repositories.SpeakerProfile, error) {
	var raw []profileResponse
	if err := h.getJSON(ctx, h.endpoint+"/identificationProfiles", &raw); err != nil {
		return nil, fmt.Errorf("failed to list identification profiles: %w", err)
	}

	profiles := make([]repositories.SpeakerProfile, 0, len(raw))
	for _, p := range raw {
		profiles = append(profiles, repositories.SpeakerProfile{
			ID:               p.IdentificationProfileID,
			EnrollmentStatus: repositories.EnrollmentStatus(p.EnrollmentStatus),
			Locale:           p.Locale,
		})
	}

	h.logger.Info("Retrieved identification profiles", zap.Int("count", len(profiles)))
	return profiles, nil
}

func (h *HTTPIdentifier) getJSON(ctx context.Context, reqURL string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set(subscriptionKeyHeader, h.apiKey)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("API returned error %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
	return fmt.Errorf("API returned error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// normalizeProfileID maps the all-zero profile id, meaning no match, to ""
func normalizeProfileID(id string) string {
	if parsed, err := uuid.Parse(id); err == nil && parsed == uuid.Nil {
		return ""
	}
	return id
}

func confidenceScore(level string) float64 {
	switch strings.ToLower(level) {
	case "high":
		return 1.0
	case "normal":
		return 0.5
	default:
		return 0.0
	}
}
