package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/speakerid/adapters/memory"
	"github.com/satriahrh/arunika/speakerid/adapters/mongo"
	"github.com/satriahrh/arunika/speakerid/adapters/mqtt"
	"github.com/satriahrh/arunika/speakerid/domain/entities"
	"github.com/satriahrh/arunika/speakerid/internal/api"
	"github.com/satriahrh/arunika/speakerid/internal/auth"
	"github.com/satriahrh/arunika/speakerid/internal/config"
	"github.com/satriahrh/arunika/speakerid/internal/metrics"
	"github.com/satriahrh/arunika/speakerid/internal/recognition"
	"github.com/satriahrh/arunika/speakerid/internal/websocket"
	"github.com/satriahrh/arunika/speakerid/usecase"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket identification server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("port", "", "HTTP listen port")
	cmd.Flags().String("jwt-secret", "", "Secret used to sign client tokens")
	cmd.Flags().String("mongodb-uri", "", "MongoDB connection URI")
	cmd.Flags().String("mqtt-broker", "", "MQTT broker URL")
	return cmd
}

func runServer(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)

	speakerService, profiles, err := newSpeakerService(cfg, logger)
	if err != nil {
		return err
	}

	// identification requests outlive individual connections, so they run on
	// a base context that is only cancelled once the server has drained
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	identifier := recognition.NewIdentifier(speakerService, logger,
		recognition.WithPollInterval(cfg.Recognition.PollInterval),
		recognition.WithPollRetries(cfg.Recognition.PollRetries),
		recognition.WithObserver(m))
	factory := recognition.NewFactory(identifier, logger,
		recognition.WithDispatchInterval(cfg.Recognition.DispatchInterval),
		recognition.WithClientObserver(m),
		recognition.WithBaseContext(baseCtx))

	opts := []usecase.ServiceOption{
		usecase.WithProfileLister(profiles),
		usecase.WithSessionObserver(m),
		usecase.WithIdleTimeout(cfg.Session.IdleTimeout),
		usecase.WithResultTTL(cfg.Session.ResultTTL),
	}

	if cfg.MongoDB.Enabled {
		mongoClient, err := mongo.NewClient(ctx, mongo.Config{URI: cfg.MongoDB.URI, Database: cfg.MongoDB.Database}, logger)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := mongoClient.Close(closeCtx); err != nil {
				logger.Error("Failed to disconnect from MongoDB", zap.Error(err))
			}
		}()

		sessions, err := mongo.NewSessionRepository(ctx, mongoClient.Database, logger)
		if err != nil {
			return err
		}
		outcomes, err := mongo.NewOutcomeRepository(ctx, mongoClient.Database, logger)
		if err != nil {
			return err
		}
		opts = append(opts, usecase.WithSessionRepository(sessions), usecase.WithOutcomeRepository(outcomes))
	} else {
		logger.Info("MongoDB disabled, keeping sessions in memory")
		opts = append(opts,
			usecase.WithSessionRepository(memory.NewSessionRepository()),
			usecase.WithOutcomeRepository(memory.NewOutcomeRepository()))
	}

	if cfg.MQTT.Enabled {
		publisher, err := mqtt.Connect(mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, usecase.WithSinks(publisher))
	}

	service := usecase.NewIdentificationService(factory, logger, opts...)

	clients, err := seedClients(ctx, cfg.Auth.Clients)
	if err != nil {
		return err
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = uuid.New().String()
		logger.Warn("auth.jwt_secret is not set, using a random secret; tokens will not survive a restart")
	}
	tokens, err := auth.NewTokenIssuer(secret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	hub := websocket.NewHub(service, logger)
	go hub.Run()

	cleanup := websocket.NewSessionCleanupService(service, cfg.Session.CleanupInterval, logger)
	cleanup.Start()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, api.Dependencies{
		Hub:      hub,
		Service:  service,
		Clients:  clients,
		Tokens:   tokens,
		Gatherer: registry,
		Logger:   logger,
	})

	serveErr := make(chan error, 1)
	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	logger.Info("Speaker identification server started",
		zap.String("port", cfg.Server.Port),
		zap.Bool("mock", cfg.Speaker.Mock),
		zap.Bool("mongodb", cfg.MongoDB.Enabled),
		zap.Bool("mqtt", cfg.MQTT.Enabled))

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		logger.Error("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	hub.Stop()
	cleanup.Stop()
	if err := service.Shutdown(shutdownCtx); err != nil {
		logger.Error("Sessions did not drain before shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
	return nil
}

// seedClients registers the configured stream clients
func seedClients(ctx context.Context, clients map[string]string) (*memory.ClientRepository, error) {
	repo := memory.NewClientRepository()
	for name, apiKey := range clients {
		if err := repo.Create(ctx, &entities.StreamClient{Name: name, APIKey: apiKey}); err != nil {
			return nil, fmt.Errorf("failed to register client %s: %w", name, err)
		}
	}
	return repo, nil
}
