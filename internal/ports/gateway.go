package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CheckoutParams describes one checkout session: a single line item priced
// per seat, multiplied by the seat count.
type CheckoutParams struct {
	ReservationID uuid.UUID
	UserID        uuid.UUID
	ProductName   string
	Description   string
	UnitAmount    int64 // smallest currency unit, per seat
	Quantity      int64
	ExpiresAt     time.Time
}

type CheckoutSession struct {
	ID  string
	URL string
}

// Gateway webhook event types the lifecycle controller consumes.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
	EventChargeRefunded    = "charge.refunded"
)

// GatewayEvent is a verified inbound webhook event, reduced to what the
// lifecycle controller needs. Known is false for event types the core
// acknowledges without acting on. ReservationID is uuid.Nil when the
// event carried no usable reservation metadata; such events are
// permanently malformed and must be acknowledged, not retried.
type GatewayEvent struct {
	ID              string
	Type            string
	Known           bool
	ReservationID   uuid.UUID
	PaymentIntentID string
}

// PaymentGateway is the external payment service boundary. The production
// implementation talks to Stripe; tests inject a fake.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error)
	ExpireSession(ctx context.Context, sessionID string) error
	Refund(ctx context.Context, chargeID string) error

	// ChargeID resolves the charge behind a payment intent. Best-effort
	// during payment confirmation: a failure is logged, not fatal.
	ChargeID(ctx context.Context, paymentIntentID string) (string, error)

	// ParseWebhook verifies the event signature and extracts the
	// reservation metadata. A bad signature or unparseable payload is
	// domain.ErrValidation.
	ParseWebhook(payload []byte, signatureHeader string) (*GatewayEvent, error)
}
