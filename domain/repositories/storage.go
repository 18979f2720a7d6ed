package repositories

import (
	"context"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
)

// ClientRepository defines data access methods for stream clients
type ClientRepository interface {
	Create(ctx context.Context, client *entities.StreamClient) error
	GetByID(ctx context.Context, id string) (*entities.StreamClient, error)
	GetByName(ctx context.Context, name string) (*entities.StreamClient, error)
	Delete(ctx context.Context, id string) error
	// ValidateClient validates client credentials for authentication
	ValidateClient(name, apiKey string) (*entities.StreamClient, error)
}

// SessionRepository stores recording session bookkeeping
type SessionRepository interface {
	// Save inserts or replaces the session by ID
	Save(ctx context.Context, session *entities.RecordingSession) error
	GetByID(ctx context.Context, id string) (*entities.RecordingSession, error)
}

// OutcomeRepository stores recognition outcomes keyed by client and request id
type OutcomeRepository interface {
	Save(ctx context.Context, outcome entities.RecognitionOutcome) error
	// ListByClientID returns outcomes ordered by request id
	ListByClientID(ctx context.Context, clientID string) ([]entities.RecognitionOutcome, error)
}
