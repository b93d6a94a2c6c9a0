package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signet.dev/internal/auth"
	"signet.dev/internal/config"
	"signet.dev/internal/obs"
	"signet.dev/internal/provider"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, db, err := buildStore(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	svc, err := auth.NewService(context.Background(), store, buildProvider(cfg),
		auth.WithChallengeTTL(cfg.ChallengeTTL),
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	stats := svc.Stats()
	log.Printf("Engine restored: %d users, %d sessions (%d active), %d personal tokens",
		stats.Users, stats.TotalSessions, stats.ActiveSessions, stats.PersonalTokens)

	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Handler())
	mux.HandleFunc("/statusz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(svc.Stats())
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting signet-authd %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func buildStore(ctx context.Context, cfg config.Config) (auth.SnapshotStore, *sql.DB, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := auth.OpenPG(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		return auth.NewPGStore(db), db, nil
	default:
		fs, err := auth.NewFileStore(cfg.StorePath)
		if err != nil {
			return nil, nil, err
		}
		return fs, nil, nil
	}
}

func buildProvider(cfg config.Config) provider.Client {
	switch cfg.ProviderMode {
	case config.ProviderLocalTest:
		return provider.NewLocalTest()
	case config.ProviderMock:
		return provider.NewMock("")
	case config.ProviderUnavailable:
		return provider.NewUnavailable()
	default:
		return provider.NewExternal(cfg.ProviderURL, cfg.ProviderAPIKey)
	}
}
