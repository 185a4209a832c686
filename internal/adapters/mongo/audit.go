package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/robertarktes/cinema-booking/internal/domain"
	"github.com/robertarktes/cinema-booking/internal/observability"
)

// AuditLogger records every lifecycle transition. Failures are logged and
// swallowed by callers; the audit trail never blocks a transition.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type transitionDoc struct {
	ID            uuid.UUID `bson:"_id"`
	ReservationID uuid.UUID `bson:"reservation_id"`
	From          string    `bson:"from"`
	To            string    `bson:"to"`
	Actor         string    `bson:"actor"` // "user", "webhook", "worker", "admin"
	Timestamp     time.Time `bson:"timestamp"`
}

func (a *AuditLogger) LogTransition(ctx context.Context, reservationID uuid.UUID, from, to domain.ReservationStatus, actor string) error {
	doc := transitionDoc{
		ID:            uuid.New(),
		ReservationID: reservationID,
		From:          string(from),
		To:            string(to),
		Actor:         actor,
		Timestamp:     time.Now().UTC(),
	}
	if _, err := a.coll.InsertOne(ctx, doc); err != nil {
		a.logger.WithError(err).WithField("reservation_id", reservationID).Warn("audit write failed")
		return err
	}
	return nil
}

// Transitions returns the audit trail for one reservation, oldest first.
func (a *AuditLogger) Transitions(ctx context.Context, reservationID uuid.UUID) ([]domain.Transition, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cur, err := a.coll.Find(ctx, bson.M{"reservation_id": reservationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []transitionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Transition, len(docs))
	for i, doc := range docs {
		out[i] = domain.Transition{
			ReservationID: doc.ReservationID,
			From:          domain.ReservationStatus(doc.From),
			To:            domain.ReservationStatus(doc.To),
			Actor:         doc.Actor,
			At:            doc.Timestamp,
		}
	}
	return out, nil
}
