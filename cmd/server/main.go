package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // Asia/Bangkok on hosts without zoneinfo

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"billtrack/internal/apilog"
	audithandler "billtrack/internal/audit/handler"
	"billtrack/internal/auth"
	authservice "billtrack/internal/auth/service"
	"billtrack/internal/billing"
	billingmetrics "billtrack/internal/billing/metrics"
	billingmodels "billtrack/internal/billing/models"
	billingservice "billtrack/internal/billing/service"
	"billtrack/internal/billing/store/sequence"
	"billtrack/internal/delivery"
	"billtrack/internal/delivery/channel"
	"billtrack/internal/delivery/dispatcher"
	deliverymetrics "billtrack/internal/delivery/metrics"
	"billtrack/internal/delivery/poller"
	"billtrack/internal/delivery/tracking"
	jwttoken "billtrack/internal/jwt_token"
	"billtrack/internal/ledger"
	ledgermetrics "billtrack/internal/ledger/metrics"
	ledgerservice "billtrack/internal/ledger/service"
	"billtrack/internal/platform/config"
	"billtrack/internal/platform/httpserver"
	"billtrack/internal/platform/kafka/consumer"
	"billtrack/internal/platform/kafka/producer"
	"billtrack/internal/platform/logger"
	"billtrack/internal/platform/metrics"
	"billtrack/internal/platform/middleware"
	"billtrack/internal/reconcile"
	reconcilemetrics "billtrack/internal/reconcile/metrics"
	reconcileservice "billtrack/internal/reconcile/service"
	"billtrack/internal/reconcile/stream"
	id "billtrack/pkg/domain"
	"billtrack/pkg/platform/audit/outbox"
	"billtrack/pkg/platform/audit/publisher"
	"billtrack/pkg/platform/httputil"
	authmw "billtrack/pkg/platform/middleware/auth"
	"billtrack/pkg/platform/middleware/metadata"
	"billtrack/pkg/platform/middleware/requesttime"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("BILLTRACK_CONFIG"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	loc, err := cfg.Server.Location()
	if err != nil {
		return err
	}

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	auditPublisher := publisher.NewPublisher(b.audit, publisher.WithAsyncBuffer(256), publisher.WithLogger(log))
	defer auditPublisher.Close()

	httpMetrics := metrics.New()
	numbers := sequence.NewGenerator(b.sequences, loc)

	// Auth
	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer)
	authSvc := auth.NewService(b.users, tokens,
		authservice.WithLogger(log),
		authservice.WithAuditPublisher(auditPublisher),
		authservice.WithTokenTTL(cfg.Auth.TokenTTL),
	)
	if seeded, err := authSvc.SeedAdmin(ctx, cfg.Auth.SeedAdminUsername, cfg.Auth.SeedAdminPassword); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	} else if seeded {
		log.InfoContext(ctx, "seeded admin user", "username", cfg.Auth.SeedAdminUsername)
	}

	// Billing and ledger
	billingSvc := billing.NewService(b.bills, b.documents, numbers, b.tx,
		billingservice.WithLogger(log),
		billingservice.WithAuditPublisher(auditPublisher),
		billingservice.WithMetrics(billingmetrics.New()),
	)
	ledgerSvc := ledger.NewService(b.income, b.bills,
		ledgerservice.WithLogger(log),
		ledgerservice.WithAuditPublisher(auditPublisher),
		ledgerservice.WithMetrics(ledgermetrics.New()),
	)

	// Delivery channels
	deliveryMetrics := deliverymetrics.New()
	senders, postSender, err := buildSenders(ctx, cfg, b.apiLogs, log)
	if err != nil {
		return err
	}
	dispatch := delivery.NewDispatcher(b.documents, b.bills, numbers, senders,
		dispatcher.WithLogger(log),
		dispatcher.WithAuditPublisher(auditPublisher),
		dispatcher.WithMetrics(deliveryMetrics),
		dispatcher.WithRetryPolicy(dispatcher.RetryPolicy{
			MaxAttempts:    cfg.Delivery.MaxAttempts,
			InitialBackoff: cfg.Delivery.InitialBackoff,
			AttemptTimeout: cfg.Delivery.AttemptTimeout,
		}),
		dispatcher.WithBreakerThresholds(cfg.Delivery.BreakerFailures, cfg.Delivery.BreakerSuccesses),
	)

	// Reconciliation
	reconciler := reconcile.NewReconciler(b.documents, ledgerSvc, b.orphans,
		reconcileservice.WithLogger(log),
		reconcileservice.WithAuditPublisher(auditPublisher),
		reconcileservice.WithMetrics(reconcilemetrics.New()),
		reconcileservice.WithOrphanRetryDelay(cfg.Reconcile.OrphanRetryDelay),
	)
	retryWorker := reconcile.NewRetryWorker(reconciler, b.orphans,
		reconcileservice.WithInterval(cfg.Reconcile.RetryInterval),
		reconcileservice.WithBatchSize(cfg.Reconcile.RetryBatch),
		reconcileservice.WithWorkerLogger(log),
	)

	var tracker tracking.Tracker
	if postSender != nil {
		tracker = postSender
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		retryWorker.Run(gctx)
		return nil
	})

	if postSender != nil {
		statusPoller := delivery.NewPoller(b.documents, postSender, reconciler,
			poller.WithInterval(cfg.Poller.Interval),
			poller.WithConcurrency(cfg.Poller.Concurrency),
			poller.WithBatchSize(cfg.Poller.BatchSize),
			poller.WithLogger(log),
			poller.WithMetrics(deliveryMetrics),
		)
		g.Go(func() error {
			statusPoller.Run(gctx)
			return nil
		})
	}

	if cfg.Kafka.Enabled() {
		if err := startKafka(gctx, g, cfg, b, reconciler, log); err != nil {
			return err
		}
	}

	router := newRouter(cfg, log, httpMetrics, b, routes{
		auth:      auth.NewHandler(authSvc, log),
		billing:   billing.NewHandler(billingSvc, log, loc),
		delivery:  delivery.NewHandler(dispatch, b.documents, tracker, log),
		ledger:    ledger.NewHandler(ledgerSvc, log, loc),
		callbacks: reconcile.NewHandler(reconciler, cfg.Callbacks.Token, log),
		audit:     audithandler.New(auditPublisher, log),
		tokens:    tokens.Validator(),
	})
	srv := httpserver.New(cfg.Server.Addr, router)
	g.Go(func() error {
		return httpserver.Serve(gctx, srv, log)
	})

	return g.Wait()
}

// buildSenders registers every configured channel. The post sender is also
// returned because it doubles as the shipment tracker.
func buildSenders(ctx context.Context, cfg *config.Config, recorder apilog.Recorder, log *slog.Logger) (*channel.Registry, *channel.PostSender, error) {
	registry := channel.NewRegistry().Register(billingmodels.ChannelHandDelivery, channel.HandDeliverySender{})
	callMetrics := apilog.NewMetrics()

	if cfg.Email.From != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Email.Region))
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		email, err := channel.NewSESEmailSender(awsCfg, cfg.Email.From)
		if err != nil {
			return nil, nil, err
		}
		registry.Register(billingmodels.ChannelEmail, email)
	} else {
		log.WarnContext(ctx, "email channel disabled: email.from not set")
	}

	if cfg.SMS.Enabled() {
		client := apilog.NewClient(recorder, cfg.SMS.Timeout, apilog.WithLogger(log), apilog.WithMetrics(callMetrics))
		registry.Register(billingmodels.ChannelSMS, channel.NewSMSSender(cfg.SMS.BaseURL, cfg.SMS.APIKey, client))
	}

	var post *channel.PostSender
	if cfg.Post.Enabled() {
		client := apilog.NewClient(recorder, cfg.Post.Timeout, apilog.WithLogger(log), apilog.WithMetrics(callMetrics))
		post = channel.NewPostSender(cfg.Post.BaseURL, cfg.Post.APIKey, client)
		registry.Register(billingmodels.ChannelPost, post)
	}

	log.InfoContext(ctx, "delivery channels configured", "channels", registry.Channels())
	return registry, post, nil
}

// startKafka bootstraps topics, consumes gateway callbacks and, with
// Postgres, relays the audit outbox.
func startKafka(ctx context.Context, g *errgroup.Group, cfg *config.Config, b *backend, r *reconcile.Reconciler, log *slog.Logger) error {
	prod, err := producer.New(cfg.Kafka.Brokers)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	if err := prod.EnsureTopics(ctx, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor,
		cfg.Kafka.DeliveryEventsTopic, cfg.Kafka.PaymentEventsTopic, cfg.Kafka.AuditTopic); err != nil {
		prod.Close()
		return fmt.Errorf("ensure kafka topics: %w", err)
	}

	router := consumer.NewRouter(log, nil)
	stream.Register(router, r, cfg.Kafka.DeliveryEventsTopic, cfg.Kafka.PaymentEventsTopic, log)
	cons, err := consumer.New(consumer.Config{
		Brokers: cfg.Kafka.Brokers,
		Group:   cfg.Kafka.ConsumerGroup,
		Topics:  router.Topics(),
	}, router, log)
	if err != nil {
		prod.Close()
		return fmt.Errorf("kafka consumer: %w", err)
	}

	g.Go(func() error {
		defer cons.Close()
		return ignoreCanceled(cons.Run(ctx))
	})

	if b.db == nil {
		g.Go(func() error {
			<-ctx.Done()
			prod.Close()
			return nil
		})
		return nil
	}
	relay := outbox.NewRelay(b.db, prod, cfg.Kafka.AuditTopic, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize, log)
	g.Go(func() error {
		defer prod.Close()
		return ignoreCanceled(relay.Run(ctx))
	})
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type routes struct {
	auth      *auth.Handler
	billing   *billing.Handler
	delivery  *delivery.Handler
	ledger    *ledger.Handler
	callbacks *reconcile.Handler
	audit     *audithandler.Handler
	tokens    authmw.TokenValidator
}

func newRouter(cfg *config.Config, log *slog.Logger, m *metrics.Metrics, b *backend, h routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Latency(m))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := b.Health(ctx); err != nil {
			log.WarnContext(ctx, "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", m.Handler())

	h.auth.RegisterPublic(r)
	h.callbacks.Register(r)

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(h.tokens, log))
		h.auth.Register(r)
		h.billing.Register(r)
		h.delivery.Register(r)
		h.ledger.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole(log, id.RoleAdmin))
			h.auth.RegisterAdmin(r)
			h.audit.Register(r)
		})
	})
	return r
}
