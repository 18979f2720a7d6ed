// Package mqtt publishes recognition outcomes to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/speakerid/domain/entities"
	"github.com/satriahrh/arunika/speakerid/internal/recognition"
)

const (
	defaultTopicPrefix    = "speakerid"
	defaultConnectTimeout = 30 * time.Second
	defaultPublishTimeout = 10 * time.Second
)

var ErrPublishTimeout = errors.New("publish timeout")

// Config holds MQTT connection settings
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// tokenPublisher is the subset of mqtt.Client the publisher needs
type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher sends every outcome as JSON to {prefix}/{clientID}/outcomes
type Publisher struct {
	client  tokenPublisher
	conn    mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
	logger  *zap.Logger
}

var _ recognition.Sink = (*Publisher)(nil)

// Message is the JSON payload published for each outcome
type Message struct {
	ClientID      string    `json:"client_id"`
	RequestID     int64     `json:"request_id"`
	Succeeded     bool      `json:"succeeded"`
	Speaker       string    `json:"speaker,omitempty"`
	Confidence    float64   `json:"confidence,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Connect dials the broker and returns a ready publisher
func Connect(config Config, logger *zap.Logger) (*Publisher, error) {
	if config.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if config.ClientID == "" {
		config.ClientID = "speakerid"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", config.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("Lost connection to MQTT broker", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connection error: %w", err)
	}

	p := newPublisher(client, config, logger)
	p.conn = client
	return p, nil
}

func newPublisher(client tokenPublisher, config Config, logger *zap.Logger) *Publisher {
	prefix := strings.Trim(config.TopicPrefix, "/")
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	return &Publisher{
		client:  client,
		prefix:  prefix,
		qos:     config.QoS,
		timeout: defaultPublishTimeout,
		logger:  logger,
	}
}

// Topic returns the topic outcomes of the given client are published to
func (p *Publisher) Topic(clientID string) string {
	return fmt.Sprintf("%s/%s/outcomes", p.prefix, clientID)
}

// Publish sends one outcome and waits for the broker acknowledgement
func (p *Publisher) Publish(outcome entities.RecognitionOutcome) error {
	msg := Message{
		ClientID:      outcome.ClientID,
		RequestID:     outcome.RequestID,
		Succeeded:     outcome.Succeeded,
		Confidence:    outcome.Confidence,
		FailureReason: outcome.FailureReason,
		Timestamp:     outcome.CompletedAt,
	}
	if outcome.Succeeded {
		msg.Speaker = outcome.SpeakerLabel()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	token := p.client.Publish(p.Topic(outcome.ClientID), p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

// Collect implements recognition.Sink; publish errors are logged
func (p *Publisher) Collect(outcome entities.RecognitionOutcome) {
	if err := p.Publish(outcome); err != nil {
		p.logger.Error("Failed to publish outcome",
			zap.String("clientID", outcome.ClientID),
			zap.Int64("requestID", outcome.RequestID),
			zap.Error(err))
	}
}

// Close disconnects from the broker
func (p *Publisher) Close() {
	if p.conn != nil && p.conn.IsConnected() {
		p.conn.Disconnect(250)
	}
}
