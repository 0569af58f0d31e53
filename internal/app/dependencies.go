package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/gateway/payment"
	"github.com/vladislavdragonenkov/commerce/internal/gateway/stock"
	"github.com/vladislavdragonenkov/commerce/internal/health"
	"github.com/vladislavdragonenkov/commerce/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/commerce/internal/service/checkout"
	idemsvc "github.com/vladislavdragonenkov/commerce/internal/service/idempotency"
	ledgersvc "github.com/vladislavdragonenkov/commerce/internal/service/ledger"
	"github.com/vladislavdragonenkov/commerce/internal/service/outbox"
	"github.com/vladislavdragonenkov/commerce/internal/service/promotion"
	"github.com/vladislavdragonenkov/commerce/internal/service/reconcile"
	"github.com/vladislavdragonenkov/commerce/internal/service/release"
	"github.com/vladislavdragonenkov/commerce/internal/service/settlement"
	"github.com/vladislavdragonenkov/commerce/internal/service/snapshot"
	"github.com/vladislavdragonenkov/commerce/internal/service/webhook"
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
	"github.com/vladislavdragonenkov/commerce/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/commerce/internal/storage/redis"
	transport "github.com/vladislavdragonenkov/commerce/internal/transport/http"
	"github.com/vladislavdragonenkov/commerce/internal/version"
)

// Repositories — полный набор хранилищ платформы.
type Repositories struct {
	Carts          domain.CartRepository
	Orders         domain.OrderRepository
	Financial      domain.FinancialOrderRepository
	Payments       domain.PaymentRepository
	Ledgers        domain.LedgerRepository
	Promotions     domain.PromotionRepository
	Invoices       domain.InvoiceRepository
	Outbox         domain.OutboxRepository
	Idempotency    domain.IdempotencyRepository
	ProviderEvents domain.ProviderEventRepository
	TxRunner       domain.TxRunner
}

// Dependencies — собранный граф зависимостей приложения.
type Dependencies struct {
	Repos  Repositories
	Store  *postgres.Store // nil при in-memory хранилище
	Redis  *goredis.Client // nil без redis
	Kafka  *kafka.Producer // nil без kafka
	Health *health.Handler

	Orchestrator *checkout.Orchestrator
	Reconciler   *reconcile.Service
	Idempotency  *idemsvc.Service
	OutboxWorker *outbox.Worker
	Cleanup      *idemsvc.CleanupWorker
	StockRelease *kafka.Consumer // nil без kafka
	Server       *transport.Server
}

// buildRepositories выбирает бэкенд хранилища по конфигурации.
func buildRepositories(ctx context.Context, cfg Config, logger *log.Entry) (Repositories, *postgres.Store, error) {
	if cfg.DatabaseDSN == "" {
		logger.Info("database dsn is empty, using in-memory storage")
		return Repositories{
			Carts:          memory.NewCartRepository(),
			Orders:         memory.NewOrderRepository(),
			Financial:      memory.NewFinancialOrderRepository(),
			Payments:       memory.NewPaymentRepository(),
			Ledgers:        memory.NewLedgerRepository(),
			Promotions:     memory.NewPromotionRepository(),
			Invoices:       memory.NewInvoiceRepository(),
			Outbox:         memory.NewOutboxRepository(),
			Idempotency:    memory.NewIdempotencyRepository(),
			ProviderEvents: memory.NewProviderEventRepository(),
			TxRunner:       memory.NewTxRunner(),
		}, nil, nil
	}

	store, err := postgres.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return Repositories{}, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return Repositories{}, nil, fmt.Errorf("apply migrations: %w", err)
	}

	return Repositories{
		Carts:          postgres.NewCartRepository(store),
		Orders:         postgres.NewOrderRepository(store),
		Financial:      postgres.NewFinancialOrderRepository(store),
		Payments:       postgres.NewPaymentRepository(store),
		Ledgers:        postgres.NewLedgerRepository(store),
		Promotions:     postgres.NewPromotionRepository(store),
		Invoices:       postgres.NewInvoiceRepository(store),
		Outbox:         postgres.NewOutboxRepository(store),
		Idempotency:    postgres.NewIdempotencyRepository(store),
		ProviderEvents: postgres.NewProviderEventRepository(store),
		TxRunner:       postgres.NewTxRunner(store),
	}, store, nil
}

// BuildDependencies собирает граф приложения: хранилище, шлюзы, сервисы,
// воркеры и HTTP-сервер.
func BuildDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	repos, store, err := buildRepositories(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{Repos: repos, Store: store}

	// Платёжный шлюз: реальный провайдер или mock для разработки.
	var paymentGateway domain.PaymentGateway
	if cfg.PaymentBaseURL != "" {
		paymentGateway = payment.NewHTTPGateway(payment.ClientConfig{
			BaseURL: cfg.PaymentBaseURL,
			APIKey:  cfg.PaymentAPIKey,
		}, logger.WithField("component", "payment-gateway"))
	} else {
		logger.Info("payment base url is empty, using mock payment gateway")
		paymentGateway = payment.NewMockGateway()
	}

	stockGateway := stock.NewMemoryGateway(nil, logger.WithField("component", "stock-gateway"))

	// Redis — быстрый кеш дедупликации webhook, опционален.
	var dedupCache domain.EventDedupCache
	if cfg.RedisAddr != "" {
		deps.Redis = goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		dedupCache = redisstore.NewDedupCache(deps.Redis)
	}

	taxes := snapshot.TaxConfig{
		cfg.TaxJurisdiction: {
			{Name: "VAT", RateBps: 2000},
		},
	}

	ledgerService := ledgersvc.NewService(repos.Ledgers, logger.WithField("component", "ledger"))
	resolver := promotion.NewResolver(repos.Promotions, logger.WithField("component", "promotion"))
	locker := snapshot.NewLocker(taxes, logger.WithField("component", "snapshot"))

	listener := settlement.NewListener(
		repos.Payments,
		repos.Orders,
		repos.Financial,
		repos.Invoices,
		locker,
		ledgerService,
		resolver,
		repos.Outbox,
		repos.TxRunner,
		cfg.TaxJurisdiction,
		logger.WithField("component", "settlement"),
	)

	checkoutOpts := checkout.Options{}

	deps.Orchestrator = checkout.NewOrchestrator(
		repos.Carts,
		repos.Orders,
		repos.Payments,
		repos.Financial,
		repos.Invoices,
		stockGateway,
		paymentGateway,
		resolver,
		locker,
		cfg.TaxJurisdiction,
		ledgerService,
		listener,
		repos.Outbox,
		repos.TxRunner,
		checkoutOpts,
		logger.WithField("component", "checkout"),
	)

	deps.Reconciler = reconcile.NewService(
		repos.Financial,
		repos.Ledgers,
		repos.Invoices,
		logger.WithField("component", "reconcile"),
	)

	deps.Idempotency = idemsvc.NewService(
		repos.Idempotency,
		logger.WithField("component", "idempotency"),
		cfg.IdempotencyTTL,
	)
	deps.Cleanup = idemsvc.NewCleanupWorker(
		repos.Idempotency,
		idemsvc.WithLogger(logger.WithField("component", "idempotency-cleanup")),
	)

	// Outbox-диспетчер публикует события в kafka; без брокеров события
	// остаются в таблице.
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		deps.Kafka = producer
		deps.OutboxWorker = outbox.NewWorker(
			repos.Outbox,
			kafka.NewOutboxPublisher(producer),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(kafka.NewDLQPublisher(producer)),
		)

		// Consumer платёжных событий: по PaymentFailed отменяет заказ и
		// возвращает резерв на склад. Неразобранные сообщения после
		// ретраев уходят в DLQ.
		releaseHandler := release.NewHandler(
			repos.Orders,
			stockGateway,
			repos.TxRunner,
			checkoutOpts.DeferredReservation,
			logger.WithField("component", "stock-release"),
		)
		deps.StockRelease, err = kafka.NewConsumerWithDLQ(
			cfg.KafkaBrokers,
			"commerce-stock-release",
			[]string{kafka.TopicPaymentEvents},
			releaseHandler.Handle,
			producer,
			3,
		)
		if err != nil {
			return nil, fmt.Errorf("create stock release consumer: %w", err)
		}
	}

	processor := webhook.NewProcessor(
		repos.ProviderEvents,
		dedupCache,
		listener,
		logger.WithField("component", "webhook"),
	)

	deps.Health = buildHealth(ctx, deps, cfg)

	handlers := transport.NewHandlers(
		repos.Carts,
		repos.Orders,
		deps.Orchestrator,
		deps.Reconciler,
		logger.WithField("component", "http-handlers"),
	)
	webhookHandler := transport.NewWebhookHandler(
		processor,
		func(tenantID string) (string, bool) {
			secret, ok := cfg.WebhookSecrets[tenantID]
			return secret, ok
		},
		logger.WithField("component", "webhook-handler"),
	)

	deps.Server = transport.NewServer(transport.ServerConfig{
		Addr:        cfg.HTTPAddr,
		Handlers:    handlers,
		Webhooks:    webhookHandler,
		Idempotency: deps.Idempotency,
		Health:      deps.Health,
		Logger:      logger.WithField("component", "http-server"),
	})

	return deps, nil
}

func buildHealth(ctx context.Context, deps *Dependencies, cfg Config) *health.Handler {
	handler := health.NewHandler(version.GetVersion())

	if deps.Store != nil {
		store := deps.Store
		handler.RegisterChecker("postgres", health.NewSimpleChecker("postgres", func() error {
			return store.Ping(ctx)
		}))
	}
	if deps.Redis != nil {
		client := deps.Redis
		handler.RegisterChecker("redis", health.NewSimpleChecker("redis", func() error {
			return client.Ping(ctx).Err()
		}))
	}

	return handler
}

// Close освобождает внешние ресурсы графа зависимостей.
func (d *Dependencies) Close(logger *log.Entry) {
	if d.Kafka != nil {
		if err := d.Kafka.Close(); err != nil {
			logger.WithError(err).Warn("failed to close kafka producer")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
