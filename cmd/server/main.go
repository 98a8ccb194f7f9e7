package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Skotchmaster/authcore/internal/audit"
	"github.com/Skotchmaster/authcore/internal/config"
	"github.com/Skotchmaster/authcore/internal/db"
	"github.com/Skotchmaster/authcore/internal/hash"
	"github.com/Skotchmaster/authcore/internal/httpserver"
	"github.com/Skotchmaster/authcore/internal/logging"
	"github.com/Skotchmaster/authcore/internal/middleware/auth"
	"github.com/Skotchmaster/authcore/internal/mykafka"
	"github.com/Skotchmaster/authcore/internal/repo"
	"github.com/Skotchmaster/authcore/internal/service"
)

type eventProducer interface {
	service.EventPublisher
	Close() error
}

type auditRecorder interface {
	audit.Recorder
	Close() error
}

func main() {
	if err := run(); err != nil {
		slog.Error("server_exit", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logging.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DBDriver, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(gdb); err != nil {
			log.Error("db_close_error", "error", err)
		}
	}()
	if err := db.Migrate(gdb); err != nil {
		return err
	}

	var producer eventProducer = mykafka.Nop{}
	if cfg.EventsEnabled() {
		p, err := mykafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		producer = p
		log.Info("events_enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			log.Error("kafka_close_error", "error", err)
		}
	}()

	var recorder auditRecorder = audit.Nop{}
	if cfg.AuditEnabled() {
		client, err := audit.NewClient(cfg.ESURL, cfg.ESUser, cfg.ESPassword)
		if err != nil {
			return err
		}
		if err := audit.Ping(ctx, client); err != nil {
			log.Warn("audit_unreachable", "error", err)
		}
		recorder = audit.NewESRecorder(client, cfg.ESAuditIndex, log)
		log.Info("audit_enabled", "index", cfg.ESAuditIndex)
	}
	// runs after the server has drained, flushing queued audit events
	defer func() {
		if err := recorder.Close(); err != nil {
			log.Error("audit_close_error", "error", err)
		}
	}()

	ipExtractor, err := httpserver.IPExtractor(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	r := repo.New(gdb)
	hasher := hash.Hasher{Cost: cfg.BcryptCost}
	verifier, err := service.NewCredentialVerifier(r, hasher)
	if err != nil {
		return err
	}

	e := httpserver.New(log, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{
			Auth: &service.AuthService{
				Users:    r,
				Verifier: verifier,
				Hasher:   hasher,
				Events:   producer,
				Audit:    recorder,
			},
			Tokens: &service.TokenService{
				Users:         r,
				Refresh:       r,
				JWTSecret:     cfg.JWTSecret,
				RefreshSecret: cfg.RefreshSecret,
				AccessTTL:     cfg.AccessTokenTTL,
				RefreshTTL:    cfg.RefreshTokenTTL,
				Audit:         recorder,
			},
		},
		Gate:        &auth.Gate{Secret: cfg.JWTSecret, Audit: recorder},
		Ready:       func(ctx context.Context) error { return db.Ping(ctx, gdb) },
		IPExtractor: ipExtractor,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting_down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown_complete")
	return nil
}
