package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"billtrack/internal/apilog"
	apilogstore "billtrack/internal/apilog/store"
	authservice "billtrack/internal/auth/service"
	userstore "billtrack/internal/auth/store/user"
	billingservice "billtrack/internal/billing/service"
	billstore "billtrack/internal/billing/store/bill"
	documentstore "billtrack/internal/billing/store/document"
	"billtrack/internal/billing/store/sequence"
	"billtrack/internal/delivery/poller"
	"billtrack/internal/delivery/tracking"
	ledgerservice "billtrack/internal/ledger/service"
	ledgerstore "billtrack/internal/ledger/store"
	"billtrack/internal/platform/config"
	"billtrack/internal/platform/postgres"
	"billtrack/internal/platform/redis"
	"billtrack/internal/reconcile/orphan"
	reconcileservice "billtrack/internal/reconcile/service"
	audit "billtrack/pkg/platform/audit"
	auditmemory "billtrack/pkg/platform/audit/store/memory"
	auditpostgres "billtrack/pkg/platform/audit/store/postgres"
	txcontext "billtrack/pkg/platform/tx"
)

// documentStore is what the billing, delivery and reconcile services need
// from the shared document store.
type documentStore interface {
	billingservice.DocumentStore
	reconcileservice.DocumentStore
	poller.DocumentStore
	tracking.DocumentStore
}

// backend holds the persistence layer: Postgres when a database URL is
// configured, in-memory otherwise.
type backend struct {
	db        *sql.DB
	tx        txcontext.Runner
	bills     billingservice.BillStore
	documents documentStore
	sequences sequence.Store
	income    ledgerservice.Store
	users     authservice.UserStore
	apiLogs   apilog.Recorder
	audit     audit.Store
	orphans   orphan.Queue
	redis     *redis.Client
}

func openBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backend, error) {
	b := &backend{}

	if cfg.Database.Enabled() {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			applied, err := postgres.Migrate(ctx, db)
			if err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			if len(applied) > 0 {
				log.InfoContext(ctx, "applied migrations", "versions", applied)
			}
		}
		b.db = db
		b.tx = txcontext.NewSQLRunner(db)
		b.bills = billstore.NewPostgres(db)
		b.documents = documentstore.NewPostgres(db)
		b.sequences = sequence.NewPostgres(db)
		b.income = ledgerstore.NewPostgres(db)
		b.users = userstore.NewPostgres(db)
		b.apiLogs = apilogstore.NewPostgres(db)
		b.audit = auditpostgres.New(db)
		log.InfoContext(ctx, "using postgres storage")
	} else {
		b.tx = &txcontext.LockRunner{}
		b.bills = billstore.NewInMemory()
		b.documents = documentstore.NewInMemory()
		b.sequences = sequence.NewInMemory()
		b.income = ledgerstore.NewInMemory()
		b.users = userstore.NewInMemory()
		b.apiLogs = apilogstore.NewInMemory(1000)
		b.audit = auditmemory.NewInMemoryStore()
		log.WarnContext(ctx, "database.url not set, using in-memory storage")
	}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		b.Close()
		return nil, err
	}
	if client != nil {
		b.redis = client
		b.orphans = orphan.NewRedis(client.Client, client.Key("orphan-events"))
	} else {
		b.orphans = orphan.NewInMemory()
	}
	return b, nil
}

// Health pings the configured dependencies.
func (b *backend) Health(ctx context.Context) error {
	if b.db != nil {
		if err := b.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if b.redis != nil {
		if err := b.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (b *backend) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}
