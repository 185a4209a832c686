package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/robertarktes/cinema-booking/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/cinema-booking/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/cinema-booking/internal/adapters/redis"
	"github.com/robertarktes/cinema-booking/internal/adapters/stripe"
	"github.com/robertarktes/cinema-booking/internal/config"
	"github.com/robertarktes/cinema-booking/internal/domain"
	"github.com/robertarktes/cinema-booking/internal/lifecycle"
	"github.com/robertarktes/cinema-booking/internal/observability"
	"github.com/robertarktes/cinema-booking/internal/ports"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("cinema")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient)

	gateway, err := stripe.NewGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.CheckoutDomain)
	if err != nil {
		log.Fatalf("failed to create payment gateway: %v", err)
	}

	lifecycleSvc := lifecycle.NewService(repo, catalog, gateway, cache, audit, logger, cfg.RefundCutoff)

	worker := NewExpiryWorker(repo, lifecycleSvc, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, cfg.SweepInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry worker")
}

// ExpiryWorker is the backstop for lost checkout.session.expired events:
// it sweeps PENDING reservations whose session horizon has passed and
// expires them through the same guarded transition the webhook uses, so
// a late-arriving event for a swept reservation is a harmless no-op.
type ExpiryWorker struct {
	store  ports.Store
	svc    *lifecycle.Service
	logger observability.Logger
}

func NewExpiryWorker(store ports.Store, svc *lifecycle.Service, logger observability.Logger) *ExpiryWorker {
	return &ExpiryWorker{store: store, svc: svc, logger: logger}
}

func (w *ExpiryWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("expiry worker started")
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			ids, err := w.store.ExpiredPending(ctx, now.UTC())
			if err != nil {
				w.logger.WithError(err).Error("failed to list expired reservations")
				continue
			}
			for _, id := range ids {
				if err := w.expireWithRetry(ctx, id); err != nil {
					w.logger.WithError(err).WithField("reservation_id", id).Error("failed to expire reservation after retries")
				}
			}
		}
	}
}

func (w *ExpiryWorker) expireWithRetry(ctx context.Context, id uuid.UUID) error {
	const maxRetries = 3
	var err error
	for i := 0; i < maxRetries; i++ {
		err = w.svc.Expire(ctx, id, "worker")
		if err == nil {
			return nil
		}
		// The webhook raced us and won; nothing left to do.
		if errors.Is(err, domain.ErrBadRequest) || errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
