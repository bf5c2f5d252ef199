package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/notepid/calcserv/internal/command"
	"github.com/notepid/calcserv/internal/config"
	"github.com/notepid/calcserv/internal/db"
	"github.com/notepid/calcserv/internal/eval"
	"github.com/notepid/calcserv/internal/logger"
	"github.com/notepid/calcserv/internal/registry"
	"github.com/notepid/calcserv/internal/server"
	"github.com/notepid/calcserv/internal/store"
	"github.com/notepid/calcserv/internal/user"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.Init(logger.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	log.Info().Str("config", *configPath).Msg("starting calcd")

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		log.Fatal().Err(err).Msg("create data directory")
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer database.Close()
	log.Info().Str("path", cfg.Database.Path).Msg("database opened")

	st := store.New(database.DB)

	if err := ensureBootstrapAdmin(st, cfg.Bootstrap, log); err != nil {
		log.Fatal().Err(err).Msg("bootstrap admin")
	}

	reg := registry.New(st)
	evaluator := &eval.Evaluator{
		MaxLen:   cfg.Calc.MaxExprLen,
		MaxDepth: cfg.Calc.MaxDepth,
	}
	dispatcher := command.New(st, reg, evaluator, command.Config{
		Cost:           cfg.Calc.Cost,
		DefaultBalance: cfg.Calc.DefaultBalance,
	}, log)

	srv := server.New(cfg.Server.Host, cfg.Server.Port, cfg.Server.IdleTimeout, dispatcher, log)

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Health and metrics on a side listener.
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	healthMux.Handle("/metrics", promhttp.Handler())

	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 2 * time.Second,
	}

	go func() {
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("health server error")
		}
	}()

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Int("health_port", cfg.Server.HealthPort).
		Msg("calcd is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Info().Str("signal", sig.String()).Msg("shutting down")

	srv.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = healthServer.Shutdown(shutdownCtx)

	log.Info().Msg("shutdown complete")
}

// ensureBootstrapAdmin creates the initial ADMIN account when it does not
// exist yet. Registration over the wire is admin-only, so without this a
// fresh database would be unusable.
func ensureBootstrapAdmin(st *store.Store, cfg config.BootstrapConfig, log zerolog.Logger) error {
	if cfg.AdminLogin == "" {
		return nil
	}

	ctx := context.Background()
	exists, err := st.Exists(ctx, cfg.AdminLogin)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	password := cfg.AdminPassword
	generated := false
	if password == "" {
		password = uuid.NewString()
		generated = true
	}

	hash, err := user.HashPassword(password)
	if err != nil {
		return err
	}
	if _, err := st.InsertNewUser(ctx, cfg.AdminLogin, hash, user.RoleAdmin, cfg.AdminBalance); err != nil {
		return err
	}

	if generated {
		// One-time credential; change it through calc-admin.
		log.Warn().Str("login", cfg.AdminLogin).Str("password", password).
			Msg("created bootstrap admin with generated password")
	} else {
		log.Info().Str("login", cfg.AdminLogin).Msg("created bootstrap admin")
	}
	return nil
}
