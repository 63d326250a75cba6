package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ophtha-dss/internal/config"
	"ophtha-dss/internal/consultation"
	"ophtha-dss/internal/decisiontree"
	"ophtha-dss/internal/platform/postgres"
	"ophtha-dss/internal/platform/redislock"
	"ophtha-dss/internal/recommendation"
)

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tree, _ := decisiontree.LoadWithFallback(decisiontree.FileSource{Path: cfg.Data.KnowledgeBasePath}, log.Logger)

	recs, err := loadRecommendations(cfg.Data.RecommendationsPath)
	if err != nil {
		return err
	}

	repo, db, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	opts := []consultation.Option{consultation.WithLogger(log.Logger)}
	if cfg.Redis.Addr != "" {
		client, err := redislock.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		opts = append(opts, consultation.WithLocker(redislock.New(client, cfg.Redis.LockTTL)))
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using Redis record locks")
	}

	svc := consultation.NewService(repo, tree, recs, opts...)
	handler := consultation.NewHandler(svc)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           newRouter(handler, db),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadRecommendations(path string) (recommendation.Lookup, error) {
	if path == "" {
		return recommendation.Default(), nil
	}
	table, err := recommendation.LoadFile(path)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Msg("recommendations loaded")
	return table, nil
}

func openRepository(ctx context.Context, cfg *config.Config) (consultation.Repository, *sql.DB, error) {
	if cfg.Database.URL == "" {
		log.Warn().Msg("DATABASE_URL is not set, consultations are kept in memory")
		return consultation.NewMemoryRepository(), nil, nil
	}

	db, err := postgres.Open(ctx, cfg.Database.URL, postgres.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.MigrateOnStart {
		if err := postgres.Migrate(cfg.Database.URL, "up"); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return consultation.NewRepository(db), db, nil
}

func newRouter(h *consultation.Handler, db *sql.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS for frontend
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")
			if r.Method == http.MethodOptions {
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		consultation.RegisterRoutes(r, h)
	})
	return r
}
