// gmail-tail streams the ids of all messages matching a query, one
// page at a time, persisting its resume token to Redis so an
// interrupted run continues where it left off.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mkrein/gmail-client/pkg/auth"
	"github.com/mkrein/gmail-client/pkg/checkpoint"
	"github.com/mkrein/gmail-client/pkg/gmail"
	"github.com/mkrein/gmail-client/pkg/logging"
	"github.com/mkrein/gmail-client/pkg/pagination"
)

func main() {
	// Configuration from environment
	credentialsPath := getEnv("GOOGLE_CREDENTIALS", "client_id.json")
	refreshToken := os.Getenv("GMAIL_REFRESH_TOKEN")
	redisURL := getEnv("REDIS_URL", "localhost:6379")
	checkpointName := getEnv("CHECKPOINT_NAME", "gmail-tail")
	query := os.Getenv("GMAIL_QUERY")
	metricsAddr := getEnv("METRICS_ADDR", ":9090")

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: os.Getenv("LOG_PRETTY") != "",
		Output: os.Stderr,
	})

	if refreshToken == "" {
		logger.Fatal().Msg("GMAIL_REFRESH_TOKEN is required")
	}

	ctx := context.Background()

	// Setup Redis for checkpointing
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("redis_url", redisURL).Msg("Failed to connect to Redis")
	}
	logger.Info().Str("redis_url", redisURL).Msg("Connected to Redis")

	store := checkpoint.NewStore(redisClient)

	// Setup auth + Gmail client
	creds, err := auth.LoadCredentials(credentialsPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", credentialsPath).Msg("Failed to load credentials")
	}

	authenticator, err := auth.New(creds, logging.NewLogger("auth"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create authenticator")
	}
	authenticator.SetRefreshToken(refreshToken)

	client, err := gmail.New(gmail.DefaultConfig(authenticator))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Gmail client")
	}

	// Metrics endpoint
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	// Resume from the last checkpoint, if any
	resumeToken, err := store.Load(ctx, checkpointName)
	switch {
	case err == nil:
		logger.Info().Str("checkpoint", checkpointName).Msg("Resuming from checkpoint")
	case errors.Is(err, checkpoint.ErrNotFound):
		logger.Info().Str("checkpoint", checkpointName).Msg("No checkpoint, starting fresh")
	default:
		logger.Fatal().Err(err).Msg("Failed to load checkpoint")
	}

	call := client.Messages().ResumeFrom(resumeToken)
	if query != "" {
		call = call.Query(query)
	}
	stream := call.Start()

	tail(ctx, logger, stream, store, checkpointName)
}

// tail drains the stream, checkpointing after every page boundary.
func tail(ctx context.Context, logger zerolog.Logger, stream *pagination.Stream[gmail.MessageRef],
	store *checkpoint.Store, name string) {

	start := time.Now()
	count := 0
	lastToken := stream.ResumeToken()

	for {
		ref, err := stream.Next(ctx)
		if errors.Is(err, pagination.Done) {
			break
		}
		if err != nil {
			logger.Fatal().Err(err).Msg("Stream failed")
		}

		count++
		logger.Info().
			Str("id", ref.ID).
			Str("thread_id", ref.ThreadID).
			Msg("message")

		if token := stream.ResumeToken(); token != lastToken {
			if err := store.Save(ctx, name, token, 0); err != nil {
				logger.Warn().Err(err).Msg("Failed to save checkpoint")
			}
			lastToken = token
		}
	}

	if err := store.Delete(ctx, name); err != nil {
		logger.Warn().Err(err).Msg("Failed to clear checkpoint")
	}

	logger.Info().
		Int("messages", count).
		Dur("elapsed", time.Since(start)).
		Msg("Stream complete")
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
