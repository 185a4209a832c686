package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/robertarktes/cinema-booking/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/cinema-booking/internal/adapters/mongo"
	"github.com/robertarktes/cinema-booking/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/cinema-booking/internal/adapters/redis"
	"github.com/robertarktes/cinema-booking/internal/adapters/stripe"
	"github.com/robertarktes/cinema-booking/internal/booking"
	"github.com/robertarktes/cinema-booking/internal/config"
	httphandler "github.com/robertarktes/cinema-booking/internal/http"
	"github.com/robertarktes/cinema-booking/internal/lifecycle"
	"github.com/robertarktes/cinema-booking/internal/observability"
	"github.com/robertarktes/cinema-booking/internal/outbox"
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
	deduper := redisadapter.NewEventDeduper(redisClient)
	rl := redisadapter.NewRateLimiter(cache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	gateway, err := stripe.NewGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.CheckoutDomain)
	if err != nil {
		log.Fatalf("failed to create payment gateway: %v", err)
	}

	bookingSvc := booking.NewService(repo, catalog, gateway, cache, logger, cfg.SessionTTL)
	lifecycleSvc := lifecycle.NewService(repo, catalog, gateway, cache, audit, logger, cfg.RefundCutoff)

	// The API process also relays its own outbox; the standalone
	// outbox-publisher binary exists for deployments that split the two.
	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	go outbox.NewPublisher(repo, rabbitPub, logger, 5*time.Second).Run(relayCtx)

	handlers := httphandler.NewHandlers(cfg, bookingSvc, lifecycleSvc, gateway, deduper, logger)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()
	logger.WithField("port", cfg.Port).Info("booking API started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	stopRelay()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
