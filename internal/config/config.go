// Package config loads service settings from .env, the environment and flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the resolved service configuration
type Config struct {
	Server      ServerConfig
	Auth        AuthConfig
	Speaker     SpeakerConfig
	Recognition RecognitionConfig
	MongoDB     MongoDBConfig
	MQTT        MQTTConfig
	Session     SessionConfig
	Debug       bool
}

type ServerConfig struct {
	Port string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	// Clients maps stream client names to api keys
	Clients map[string]string
}

type SpeakerConfig struct {
	Endpoint string
	APIKey   string
	Mock     bool
	// MockProfiles seeds the mock service with enrolled profile ids
	MockProfiles []string
}

type RecognitionConfig struct {
	PollInterval     time.Duration
	PollRetries      int
	DispatchInterval time.Duration
}

type MongoDBConfig struct {
	Enabled  bool
	URI      string
	Database string
}

type MQTTConfig struct {
	Enabled     bool
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

type SessionConfig struct {
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
	ResultTTL       time.Duration
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.clients", []string{})
	v.SetDefault("speaker.endpoint", "")
	v.SetDefault("speaker.api_key", "")
	v.SetDefault("speaker.mock", false)
	v.SetDefault("speaker.mock_profiles", []string{})
	v.SetDefault("recognition.poll_interval", 2*time.Second)
	v.SetDefault("recognition.poll_retries", 3)
	v.SetDefault("recognition.dispatch_interval", 250*time.Millisecond)
	v.SetDefault("mongodb.enabled", false)
	v.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb.database", "speakerid")
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "speakerid")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "speakerid")
	v.SetDefault("session.idle_timeout", 5*time.Minute)
	v.SetDefault("session.cleanup_interval", time.Minute)
	v.SetDefault("session.result_ttl", 30*time.Minute)
	v.SetDefault("debug", false)
}

// New creates a viper instance with defaults and environment lookup.
// SPEAKER_API_KEY overrides speaker.api_key and so on.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv loads environment variables from the given files. Missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// BindFlags makes command-line flags take precedence over the environment.
// Flag names use dashes; "speaker-api-key" binds to speaker.api_key.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		key := flagKey(f.Name)
		if key == "" {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

var flagKeys = map[string]string{
	"port":              "server.port",
	"jwt-secret":        "auth.jwt_secret",
	"speaker-endpoint":  "speaker.endpoint",
	"speaker-api-key":   "speaker.api_key",
	"mock":              "speaker.mock",
	"mock-profiles":     "speaker.mock_profiles",
	"poll-interval":     "recognition.poll_interval",
	"poll-retries":      "recognition.poll_retries",
	"dispatch-interval": "recognition.dispatch_interval",
	"mongodb-uri":       "mongodb.uri",
	"mqtt-broker":       "mqtt.broker",
	"debug":             "debug",
}

func flagKey(name string) string {
	return flagKeys[name]
}

// Load resolves the configuration and validates it
func Load(v *viper.Viper) (*Config, error) {
	clients, err := parseClients(splitList(v.GetStringSlice("auth.clients")))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{Port: v.GetString("server.port")},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
			TokenTTL:  v.GetDuration("auth.token_ttl"),
			Clients:   clients,
		},
		Speaker: SpeakerConfig{
			Endpoint:     v.GetString("speaker.endpoint"),
			APIKey:       v.GetString("speaker.api_key"),
			Mock:         v.GetBool("speaker.mock"),
			MockProfiles: splitList(v.GetStringSlice("speaker.mock_profiles")),
		},
		Recognition: RecognitionConfig{
			PollInterval:     v.GetDuration("recognition.poll_interval"),
			PollRetries:      v.GetInt("recognition.poll_retries"),
			DispatchInterval: v.GetDuration("recognition.dispatch_interval"),
		},
		MongoDB: MongoDBConfig{
			Enabled:  v.GetBool("mongodb.enabled"),
			URI:      v.GetString("mongodb.uri"),
			Database: v.GetString("mongodb.database"),
		},
		MQTT: MQTTConfig{
			Enabled:     v.GetBool("mqtt.enabled"),
			Broker:      v.GetString("mqtt.broker"),
			ClientID:    v.GetString("mqtt.client_id"),
			Username:    v.GetString("mqtt.username"),
			Password:    v.GetString("mqtt.password"),
			TopicPrefix: v.GetString("mqtt.topic_prefix"),
		},
		Session: SessionConfig{
			IdleTimeout:     v.GetDuration("session.idle_timeout"),
			CleanupInterval: v.GetDuration("session.cleanup_interval"),
			ResultTTL:       v.GetDuration("session.result_ttl"),
		},
		Debug: v.GetBool("debug"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if !c.Speaker.Mock && c.Speaker.APIKey == "" {
		return fmt.Errorf("speaker.api_key is required unless speaker.mock is enabled")
	}
	if c.Recognition.PollInterval <= 0 {
		return fmt.Errorf("recognition.poll_interval must be positive, got %s", c.Recognition.PollInterval)
	}
	if c.Recognition.PollRetries <= 0 {
		return fmt.Errorf("recognition.poll_retries must be positive, got %d", c.Recognition.PollRetries)
	}
	if c.Recognition.DispatchInterval <= 0 {
		return fmt.Errorf("recognition.dispatch_interval must be positive, got %s", c.Recognition.DispatchInterval)
	}
	if c.Session.IdleTimeout <= 0 || c.Session.CleanupInterval <= 0 {
		return fmt.Errorf("session timeouts must be positive")
	}
	return nil
}

// splitList accepts both repeated values and a single comma separated value
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseClients reads "name:apikey" pairs
func parseClients(pairs []string) (map[string]string, error) {
	clients := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, key, ok := strings.Cut(pair, ":")
		if !ok || name == "" || key == "" {
			return nil, fmt.Errorf("auth.clients entry %q must be name:apikey", pair)
		}
		clients[name] = key
	}
	return clients, nil
}
