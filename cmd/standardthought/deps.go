package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"standardthought/internal/ai"
	"standardthought/internal/cache"
	"standardthought/internal/config"
	"standardthought/internal/database"
	"standardthought/internal/mailer"
	"standardthought/internal/newsletter"
	"standardthought/internal/storage"
	"standardthought/internal/store"
)

// openDatabase connects to PostgreSQL and applies pending migrations. In
// development the sample content is seeded as well.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	if cfg.IsDev() {
		if err := database.Seed(db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func connectValkey(cfg *config.Config) (*redis.Client, error) {
	return cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
}

// openStorage returns nil when S3 is not configured.
func openStorage(cfg *config.Config) (*storage.Client, error) {
	if !cfg.StorageEnabled() {
		slog.Warn("s3 storage not configured, cover uploads and guide downloads disabled")
		return nil, nil
	}
	client, err := storage.New(
		cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey,
		cfg.S3BucketPublic, cfg.S3BucketPrivate, cfg.S3PublicURL,
	)
	if err != nil {
		return nil, fmt.Errorf("initialize s3 storage: %w", err)
	}
	slog.Info("s3 storage connected",
		"endpoint", cfg.S3Endpoint,
		"public_bucket", cfg.S3BucketPublic,
		"private_bucket", cfg.S3BucketPrivate,
	)
	return client, nil
}

func newImageService(cfg *config.Config) *ai.Service {
	svc := ai.NewService(ai.Config{
		APIKey:  cfg.OpenAIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Models: []string{
			cfg.ImageModelPrimary,
			cfg.ImageModelSecondary,
			cfg.ImageModelTertiary,
		},
		FallbackURL: cfg.FallbackImageURL,
	})
	if cfg.OpenAIKey == "" {
		slog.Warn("OPENAI_API_KEY not set, image generation will fail")
	}
	return svc
}

// newDispatcher wires the weekly newsletter. guard may be nil, in which
// case every run sends.
func newDispatcher(cfg *config.Config, db *sql.DB, guard newsletter.Guard) (*newsletter.Dispatcher, error) {
	sender, err := mailer.New(cfg)
	if err != nil {
		return nil, err
	}
	renderer, err := newsletter.NewRenderer(cfg.SiteURL, cfg.FunctionsBaseURL)
	if err != nil {
		return nil, err
	}
	return newsletter.NewDispatcher(
		store.NewPostStore(db),
		store.NewSubscriberStore(db),
		sender,
		renderer,
		newsletter.Options{
			BatchSize:  cfg.NewsletterBatchSize,
			BatchDelay: cfg.NewsletterBatchDelay,
			Lookback:   cfg.NewsletterLookback,
			MaxPosts:   cfg.NewsletterMaxPosts,
			From:       cfg.EmailFrom,
			Guard:      guard,
		},
	), nil
}
