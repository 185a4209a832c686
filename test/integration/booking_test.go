package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/robertarktes/cinema-booking/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/cinema-booking/internal/adapters/mongo"
	"github.com/robertarktes/cinema-booking/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/cinema-booking/internal/adapters/redis"
	"github.com/robertarktes/cinema-booking/internal/booking"
	"github.com/robertarktes/cinema-booking/internal/config"
	"github.com/robertarktes/cinema-booking/internal/domain"
	httphandler "github.com/robertarktes/cinema-booking/internal/http"
	"github.com/robertarktes/cinema-booking/internal/lifecycle"
	"github.com/robertarktes/cinema-booking/internal/observability"
	"github.com/robertarktes/cinema-booking/internal/outbox"
	"github.com/robertarktes/cinema-booking/internal/ports"
	"github.com/robertarktes/cinema-booking/internal/ports/portstest"
)

const schema = `
	CREATE DATABASE IF NOT EXISTS cinema;
	CREATE TABLE IF NOT EXISTS cinema.reservations (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		showtime_id INT8 NOT NULL,
		status TEXT NOT NULL,
		total_price FLOAT8 NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		session_url TEXT NOT NULL DEFAULT '',
		charge_id TEXT,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS cinema.seat_allocations (
		reservation_id UUID NOT NULL REFERENCES cinema.reservations (id) ON DELETE CASCADE,
		showtime_id INT8 NOT NULL,
		row_number INT NOT NULL,
		seat_number INT NOT NULL,
		UNIQUE (showtime_id, row_number, seat_number)
	);
	CREATE TABLE IF NOT EXISTS cinema.outbox (
		id UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id UUID NOT NULL,
		event_type TEXT NOT NULL,
		payload_json JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		published_at TIMESTAMPTZ,
		status TEXT NOT NULL DEFAULT 'NEW',
		dedupe_key TEXT NOT NULL
	);
`

// TestIntegration_BookConfirmRefund drives the whole booking flow over
// HTTP against real CockroachDB, Mongo, Redis and RabbitMQ containers.
// The payment gateway is the in-memory fake: webhook payloads are staged
// on it instead of signed by Stripe.
func TestIntegration_BookConfirmRefund(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer crdbContainer.Terminate(ctx)

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForExec([]string{"mongosh", "--eval", "db.runCommand('ping').ok"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer mongoContainer.Terminate(ctx)

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer redisContainer.Terminate(ctx)

	rabbitContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-management",
			ExposedPorts: []string{"5672/tcp", "15672/tcp"},
			WaitingFor:   wait.ForHTTP("/api/health/checks/alarms").WithPort("15672").WithBasicAuth("guest", "guest"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitContainer.Terminate(ctx)

	crdbDSN, err := crdbContainer.Endpoint(ctx, "postgresql")
	if err != nil {
		t.Fatal(err)
	}
	mongoHost, _ := mongoContainer.Host(ctx)
	mongoPort, _ := mongoContainer.MappedPort(ctx, "27017")
	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")
	rabbitHost, _ := rabbitContainer.Host(ctx)
	rabbitPort, _ := rabbitContainer.MappedPort(ctx, "5672")

	cfg := &config.Config{
		Port:         "8081",
		CRDBDSN:      crdbDSN + "/cinema?sslmode=disable",
		MongoURI:     "mongodb://" + mongoHost + ":" + mongoPort.Port(),
		RedisAddr:    redisHost + ":" + redisPort.Port(),
		RabbitURL:    "amqp://guest:guest@" + rabbitHost + ":" + rabbitPort.Port() + "/",
		SessionTTL:   30 * time.Minute,
		RefundCutoff: 15 * time.Minute,
	}

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, schema); err != nil {
		t.Fatal(err)
	}
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		t.Fatal(err)
	}
	defer mongoClient.Disconnect(ctx)
	mongoDB := mongoClient.Database("cinema")
	logger := observability.NewLogger()
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient)
	deduper := redisadapter.NewEventDeduper(redisClient)
	rl := redisadapter.NewRateLimiter(cache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		t.Fatal(err)
	}
	consumer, err := rabbit.NewConsumer(rabbitConn, "booking.test.q", "reservation.*")
	if err != nil {
		t.Fatal(err)
	}
	deliveries, err := consumer.Consume()
	if err != nil {
		t.Fatal(err)
	}

	gateway := &portstest.FakeGateway{}

	bookingSvc := booking.NewService(repo, catalog, gateway, cache, logger, cfg.SessionTTL)
	lifecycleSvc := lifecycle.NewService(repo, catalog, gateway, cache, audit, logger, cfg.RefundCutoff)

	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	go outbox.NewPublisher(repo, rabbitPub, logger, 500*time.Millisecond).Run(relayCtx)

	handlers := httphandler.NewHandlers(cfg, bookingSvc, lifecycleSvc, gateway, deduper, logger)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{Addr: ":8081", Handler: r}
	go srv.ListenAndServe()
	defer srv.Shutdown(ctx)
	time.Sleep(200 * time.Millisecond)

	// Seed catalog fixtures.
	userID := uuid.New()
	showtime := domain.Showtime{
		ID:          1,
		MovieTitle:  "Dune",
		ScreenName:  "Screen 1",
		TotalRows:   10,
		SeatsPerRow: 10,
		Price:       12.00,
		StartTime:   time.Now().UTC().Add(48 * time.Hour),
	}
	if err := catalog.CreateShowtime(ctx, showtime); err != nil {
		t.Fatal(err)
	}
	if err := catalog.CreateUser(ctx, userID); err != nil {
		t.Fatal(err)
	}

	base := "http://localhost:8081/v1"

	// Book two seats.
	createBody, _ := json.Marshal(map[string]interface{}{
		"user_id":     userID,
		"showtime_id": showtime.ID,
		"seats": []map[string]int{
			{"row_number": 3, "seat_number": 6},
			{"row_number": 3, "seat_number": 7},
		},
	})
	resp, err := http.Post(base+"/reservations", "application/json", bytes.NewReader(createBody))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created struct {
		ReservationID uuid.UUID `json:"reservation_id"`
		TotalPrice    float64   `json:"total_price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if created.TotalPrice != 24.00 {
		t.Errorf("expected total price 24.00, got %f", created.TotalPrice)
	}

	// A second booking of the same seat is rejected.
	resp, err = http.Post(base+"/reservations", "application/json", bytes.NewReader(createBody))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for double booking, got %d", resp.StatusCode)
	}

	// Seat map shows the allocation.
	resp, err = http.Get(base + "/showtimes/1/seat-map")
	if err != nil {
		t.Fatal(err)
	}
	var seatMap domain.SeatMap
	if err := json.NewDecoder(resp.Body).Decode(&seatMap); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !seatMap.Rows[2][5] || !seatMap.Rows[2][6] {
		t.Errorf("expected R3S6 and R3S7 occupied, got %v", seatMap.Rows[2])
	}

	// Simulate the completed-checkout webhook.
	gateway.WebhookEvent = &ports.GatewayEvent{
		ID:              "evt_completed_1",
		Type:            ports.EventCheckoutCompleted,
		Known:           true,
		ReservationID:   created.ReservationID,
		PaymentIntentID: "pi_test",
	}
	resp, err = http.Post(base+"/payments/webhook", "application/json", bytes.NewReader([]byte("{}")))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from webhook, got %d", resp.StatusCode)
	}

	got, err := repo.GetReservation(ctx, created.ReservationID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", got.Status)
	}

	// Revenue reflects the completed reservation.
	resp, err = http.Get(base + "/admin/revenue")
	if err != nil {
		t.Fatal(err)
	}
	var rev map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&rev); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if rev["total_revenue"] != 24.00 {
		t.Errorf("expected revenue 24.00, got %f", rev["total_revenue"])
	}

	// Refund, then verify seats freed up.
	refundBody, _ := json.Marshal(map[string]interface{}{"user_id": userID})
	resp, err = http.Post(base+"/reservations/"+created.ReservationID.String()+"/refund", "application/json", bytes.NewReader(refundBody))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from refund, got %d", resp.StatusCode)
	}
	seats, err := repo.OccupiedSeats(ctx, showtime.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(seats) != 0 {
		t.Errorf("expected no allocations after refund, got %v", seats)
	}

	// The outbox relay delivered the lifecycle events to the broker.
	received := map[string]bool{}
	timeout := time.After(15 * time.Second)
	for len(received) < 3 {
		select {
		case d := <-deliveries:
			received[d.RoutingKey] = true
			d.Ack(false)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %v", received)
		}
	}
	for _, key := range []string{"reservation.created", "reservation.completed", "reservation.refunded"} {
		if !received[key] {
			t.Errorf("missing event %s", key)
		}
	}
}
