package entities

import (
	"errors"
	"time"
)

// StreamClient is an application allowed to stream audio for identification
type StreamClient struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	APIKey    string    `json:"-" bson:"api_key"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func (c *StreamClient) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	if c.APIKey == "" {
		return errors.New("api key is required")
	}
	return nil
}
