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

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wellpath/internal/cache"
	"wellpath/internal/catalog"
	"wellpath/internal/config"
	"wellpath/internal/repository"
	"wellpath/internal/service"
	"wellpath/internal/transport/rest"
	"wellpath/internal/transport/ws"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wellpath",
		Short: "Wellness intake interview API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func connectMongo(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// services wires repositories and services shared by serve and seed
type services struct {
	auth       *service.AuthService
	interviews *service.InterviewService
	cases      *service.CaseService
}

func newServices(cfg *config.Config, db *mongo.Database, logger zerolog.Logger) (*services, error) {
	cat, err := catalog.Default()
	if err != nil {
		return nil, fmt.Errorf("load question bank: %w", err)
	}

	interviewRepo := repository.NewInterviewRepo(db)
	caseRepo := repository.NewCaseRepo(db)
	reasoner := service.NewReasonerService(cfg.AI(), logger)

	return &services{
		auth:       service.NewAuthService(cfg.AuthUsername, cfg.AuthPassword, cfg.JWTSecret),
		interviews: service.NewInterviewService(interviewRepo, caseRepo, cat, reasoner, cfg.Interview(), logger),
		cases:      service.NewCaseService(caseRepo, interviewRepo, logger),
	}, nil
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		fallback := newLogger(nil)
		fallback.Error().Err(err).Msg("failed to load config")
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()

	mongoClient, err := connectMongo(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to MongoDB")
		return err
	}
	defer mongoClient.Disconnect(ctx)
	logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to MongoDB")

	db := mongoClient.Database(cfg.MongoDatabase)
	if err := repository.EnsureInterviewIndexes(ctx, db); err != nil {
		logger.Warn().Err(err).Msg("failed to ensure interview indexes")
	}

	svcs, err := newServices(cfg, db, logger)
	if err != nil {
		return err
	}

	// Redis is optional; without it the version check alone guards writes
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to ping Redis")
			return err
		}
		svcs.interviews.SetLocker(cache.NewInterviewLock(rdb, cfg.LockTTL(), logger))
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis, interview locking enabled")
	} else {
		logger.Warn().Msg("REDIS_ADDR not set, interview locking disabled")
	}

	aiCfg := cfg.AI()
	if aiCfg.IsEnabled() {
		logger.Info().Str("model", aiCfg.Model).Msg("reasoning service configured")
	} else {
		logger.Warn().Msg("OPENAI_API_KEY not set, using scripted reasoner")
	}

	wsHub := ws.NewHub(logger)
	defer wsHub.Close()
	svcs.interviews.SetBroadcaster(wsHub)

	router := rest.NewRouter(&rest.Container{
		AuthService:      svcs.auth,
		InterviewService: svcs.interviews,
		CaseService:      svcs.cases,
		WSHub:            wsHub,
		AllowedOrigins:   cfg.AllowedOrigins(),
		Logger:           logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server failed")
		return err
	}
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
		return err
	}

	logger.Info().Msg("server exited")
	return nil
}
