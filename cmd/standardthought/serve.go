package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"standardthought/internal/ai"
	"standardthought/internal/cache"
	"standardthought/internal/handlers"
	"standardthought/internal/middleware"
	"standardthought/internal/newsletter"
	"standardthought/internal/router"
	"standardthought/internal/store"
	"standardthought/internal/telemetry"
)

const (
	imageRateLimit     = 10
	subscribeRateLimit = 5
	rateWindow         = time.Minute

	// writeSlack is added on top of the image chain budget for decoding,
	// storage and encoding the response.
	writeSlack = 15 * time.Second
)

// writeTimeout covers the slowest image request the server can accept.
// Newsletter runs lift their own deadline.
func writeTimeout(images *ai.Service) time.Duration {
	return images.Budget() + writeSlack
}

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Starts the public API, the edge functions under /functions/v1 and the
admin API. Migrations run on startup; development mode also seeds sample
posts and subscribers.`,
		Example: `  # Start with settings from .env
  standardthought serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), c)
		},
	}
	return cmd
}

func runServer(ctx context.Context, c *cli) error {
	cfg := c.cfg
	slog.Info("configuration loaded", "env", cfg.Env, "addr", cfg.Addr())

	shutdownTracing, err := telemetry.InitTracing(cfg.TracingEnabled, "standardthought", version, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	valkeyClient, err := connectValkey(cfg)
	if err != nil {
		return err
	}
	defer valkeyClient.Close()

	storageClient, err := openStorage(cfg)
	if err != nil {
		return err
	}
	// Keep the interface nil rather than holding a nil *storage.Client.
	var objects handlers.ObjectStorage
	if storageClient != nil {
		objects = storageClient
	}

	dispatcher, err := newDispatcher(cfg, db, cache.NewNewsletterGuard(valkeyClient))
	if err != nil {
		return err
	}
	images := newImageService(cfg)

	postStore := store.NewPostStore(db)
	categoryStore := store.NewCategoryStore(db)
	subscriberStore := store.NewSubscriberStore(db)
	guideStore := store.NewGuideStore(db)
	responseCache := cache.NewResponseCache(valkeyClient, cache.DefaultResponseTTL)

	trusted, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	imageLimiter := middleware.NewRateLimiter(imageRateLimit, rateWindow).TrustProxies(trusted)
	defer imageLimiter.Stop()
	subscribeLimiter := middleware.NewRateLimiter(subscribeRateLimit, rateWindow).TrustProxies(trusted)
	defer subscribeLimiter.Stop()

	r := router.New(router.Handlers{
		Functions: handlers.NewFunctions(images, dispatcher, subscriberStore),
		Public:    handlers.NewPublic(postStore, categoryStore, subscriberStore, guideStore, objects, responseCache, cfg.SiteURL),
		Admin:     handlers.NewAdmin(postStore, subscriberStore, guideStore, images, objects, responseCache, cfg.SiteURL),
	}, router.Options{
		SiteURL:          cfg.SiteURL,
		AdminTokenHash:   cfg.AdminTokenHash,
		CronSecret:       cfg.CronSecret,
		HSTS:             !cfg.IsDev(),
		ImageLimiter:     imageLimiter,
		SubscribeLimiter: subscribeLimiter,
	})

	if cfg.AdminTokenHash == "" {
		slog.Warn("ADMIN_TOKEN_HASH not set, admin API disabled")
	}
	if cfg.CronSecret == "" {
		slog.Warn("CRON_SECRET not set, send-weekly-newsletter is open")
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      otelhttp.NewHandler(r, "standardthought"),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: writeTimeout(images),
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serverErr:
		return err
	}

	// Give active requests up to 30 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		return err
	}

	slog.Info("server stopped gracefully")
	return nil
}

// Compile-time check that the dispatcher serves the newsletter endpoint.
var _ handlers.NewsletterRunner = (*newsletter.Dispatcher)(nil)
