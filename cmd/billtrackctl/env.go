package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	billstore "billtrack/internal/billing/store/bill"
	documentstore "billtrack/internal/billing/store/document"
	ledgerservice "billtrack/internal/ledger/service"
	ledgerstore "billtrack/internal/ledger/store"
	"billtrack/internal/platform/config"
	"billtrack/internal/platform/logger"
	"billtrack/internal/platform/postgres"
	"billtrack/internal/platform/redis"
	"billtrack/internal/reconcile/orphan"
	reconcileservice "billtrack/internal/reconcile/service"
	auditpostgres "billtrack/pkg/platform/audit/store/postgres"
	"billtrack/pkg/platform/audit/publisher"
)

var errNoDatabase = errors.New("database.url is required for this command")

// env is the wiring shared by commands that touch stored documents.
type env struct {
	cfg       *config.Config
	log       *slog.Logger
	db        *sql.DB
	redis     *redis.Client
	documents *documentstore.PostgresStore
	ledger    *ledgerservice.Service
	orphans   orphan.Queue
	audit     *publisher.Publisher
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func openEnv(ctx context.Context, cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if !cfg.Database.Enabled() {
		return nil, errNoDatabase
	}
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	e := &env{
		cfg:       cfg,
		log:       logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log),
		db:        db,
		documents: documentstore.NewPostgres(db),
		audit:     publisher.NewPublisher(auditpostgres.New(db)),
	}
	e.ledger = ledgerservice.New(ledgerstore.NewPostgres(db), billstore.NewPostgres(db),
		ledgerservice.WithLogger(e.log),
		ledgerservice.WithAuditPublisher(e.audit),
	)

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		e.Close()
		return nil, err
	}
	if client != nil {
		e.redis = client
		e.orphans = orphan.NewRedis(client.Client, client.Key("orphan-events"))
	} else {
		e.orphans = orphan.NewInMemory()
	}
	return e, nil
}

func (e *env) reconciler() *reconcileservice.Reconciler {
	return reconcileservice.New(e.documents, e.ledger, e.orphans,
		reconcileservice.WithLogger(e.log),
		reconcileservice.WithAuditPublisher(e.audit),
		reconcileservice.WithOrphanRetryDelay(e.cfg.Reconcile.OrphanRetryDelay),
	)
}

func (e *env) Close() {
	e.audit.Close()
	if e.redis != nil {
		_ = e.redis.Close()
	}
	_ = e.db.Close()
}
