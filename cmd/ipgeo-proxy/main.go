package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/ipgeo-proxy/pkg/client"
	"github.com/Sternrassler/ipgeo-proxy/pkg/config"
	"github.com/Sternrassler/ipgeo-proxy/pkg/logging"
)

func main() {
	// .env is optional
	_ = godotenv.Load(".env")

	configPath := flag.String("config", getEnv("IPGEO_CONFIG", config.DefaultPath), "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// run serves until ctx is cancelled, then drains in-flight requests.
func run(ctx context.Context, cfg config.Config) error {
	logger := logging.NewLogger("http")

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		opts, err := cfg.RedisOptions()
		if err != nil {
			return err
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	}

	geoClient, err := client.New(cfg, redisClient)
	if err != nil {
		return fmt.Errorf("create lookup client: %w", err)
	}
	defer geoClient.Close()

	srv := &server{
		locator:    geoClient,
		ready:      geoClient,
		retryAfter: cfg.Backpressure.RetryAfterSeconds,
		logger:     logger,
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Server.Addr).
			Str("base_url", cfg.FreeIPAPI.BaseURL).
			Msg("Starting ipgeo proxy")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
