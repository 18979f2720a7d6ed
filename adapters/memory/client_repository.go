package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
	"github.com/satriahrh/arunika/speakerid/domain/repositories"
)

var (
	ErrClientNotFound      = errors.New("client not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrClientAlreadyExists = errors.New("client with this name already exists")
)

// ClientRepository is an in-memory implementation of repositories.ClientRepository
type ClientRepository struct {
	mu      sync.RWMutex
	clients map[string]*entities.StreamClient // id -> client
	names   map[string]*entities.StreamClient // name -> client
}

var _ repositories.ClientRepository = (*ClientRepository)(nil)

// NewClientRepository creates an empty client repository
func NewClientRepository() *ClientRepository {
	return &ClientRepository{
		clients: make(map[string]*entities.StreamClient),
		names:   make(map[string]*entities.StreamClient),
	}
}

// ValidateClient validates client credentials (name + api key)
func (m *ClientRepository) ValidateClient(name, apiKey string) (*entities.StreamClient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, exists := m.names[name]
	if !exists {
		return nil, ErrClientNotFound
	}
	if client.APIKey != apiKey {
		return nil, ErrInvalidCredentials
	}

	clientCopy := *client
	return &clientCopy, nil
}

// Create implements repositories.ClientRepository
func (m *ClientRepository) Create(ctx context.Context, client *entities.StreamClient) error {
	if client == nil {
		return errors.New("client cannot be nil")
	}
	if err := client.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.names[client.Name]; exists {
		return ErrClientAlreadyExists
	}

	if client.ID == "" {
		client.ID = uuid.New().String()
	}

	now := time.Now()
	client.CreatedAt = now
	client.UpdatedAt = now

	clientCopy := *client
	m.clients[client.ID] = &clientCopy
	m.names[client.Name] = &clientCopy
	return nil
}

// GetByID implements repositories.ClientRepository
func (m *ClientRepository) GetByID(ctx context.Context, id string) (*entities.StreamClient, error) {
	if id == "" {
		return nil, errors.New("client ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	client, exists := m.clients[id]
	if !exists {
		return nil, ErrClientNotFound
	}

	// Return a copy to prevent external modifications
	clientCopy := *client
	return &clientCopy, nil
}

// GetByName implements repositories.ClientRepository
func (m *ClientRepository) GetByName(ctx context.Context, name string) (*entities.StreamClient, error) {
	if name == "" {
		return nil, errors.New("client name cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	client, exists := m.names[name]
	if !exists {
		return nil, ErrClientNotFound
	}

	clientCopy := *client
	return &clientCopy, nil
}

// Delete implements repositories.ClientRepository
func (m *ClientRepository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("client ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	client, exists := m.clients[id]
	if !exists {
		return ErrClientNotFound
	}

	delete(m.clients, id)
	delete(m.names, client.Name)
	return nil
}
