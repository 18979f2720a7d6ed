package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
	"github.com/satriahrh/arunika/speakerid/domain/repositories"
)

// OutcomeRepository persists recognition outcomes, one document per request
type OutcomeRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.OutcomeRepository = (*OutcomeRepository)(nil)

// NewOutcomeRepository creates a new MongoDB outcome repository
func NewOutcomeRepository(ctx context.Context, db *mongo.Database, logger *zap.Logger) (*OutcomeRepository, error) {
	collection := db.Collection("recognition_outcomes")

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// a retried save of the same request must not duplicate it
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "client_id", Value: 1}, {Key: "request_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create outcome indexes: %w", err)
	}

	return &OutcomeRepository{
		collection: collection,
		logger:     logger,
	}, nil
}

// Save implements repositories.OutcomeRepository
func (r *OutcomeRepository) Save(ctx context.Context, outcome entities.RecognitionOutcome) error {
	if outcome.ClientID == "" {
		return errors.New("client ID cannot be empty")
	}

	filter := bson.M{"client_id": outcome.ClientID, "request_id": outcome.RequestID}
	_, err := r.collection.ReplaceOne(ctx, filter, outcome, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save outcome %d: %w", outcome.RequestID, err)
	}
	return nil
}

// ListByClientID implements repositories.OutcomeRepository
func (r *OutcomeRepository) ListByClientID(ctx context.Context, clientID string) ([]entities.RecognitionOutcome, error) {
	if clientID == "" {
		return nil, errors.New("client ID cannot be empty")
	}

	opts := options.Find().SetSort(bson.D{{Key: "request_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"client_id": clientID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find outcomes for client %s: %w", clientID, err)
	}
	defer cursor.Close(ctx)

	outcomes := []entities.RecognitionOutcome{}
	if err := cursor.All(ctx, &outcomes); err != nil {
		return nil, fmt.Errorf("failed to decode outcomes: %w", err)
	}
	return outcomes, nil
}
