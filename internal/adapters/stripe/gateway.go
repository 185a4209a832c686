// Package stripe adapts the Stripe API to the ports.PaymentGateway
// boundary. The adapter is constructed once at process start and injected
// into the booking and lifecycle services.
package stripe

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/robertarktes/cinema-booking/internal/domain"
	"github.com/robertarktes/cinema-booking/internal/ports"
)

type Gateway struct {
	webhookSecret string
	successURL    string
	cancelURL     string
}

func NewGateway(secretKey, webhookSecret, checkoutDomain string) (*Gateway, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	stripeapi.Key = secretKey
	return &Gateway{
		webhookSecret: webhookSecret,
		successURL:    checkoutDomain + "/success.html",
		cancelURL:     checkoutDomain + "/cancel.html",
	}, nil
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, p ports.CheckoutParams) (*ports.CheckoutSession, error) {
	params := &stripeapi.CheckoutSessionParams{
		Params: stripeapi.Params{Context: ctx},
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{
				PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripeapi.String(string(stripeapi.CurrencyUSD)),
					UnitAmount: stripeapi.Int64(p.UnitAmount),
					ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripeapi.String(p.ProductName),
						Description: stripeapi.String(p.Description),
					},
				},
				Quantity: stripeapi.Int64(p.Quantity),
			},
		},
		Mode:       stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		SuccessURL: stripeapi.String(g.successURL),
		CancelURL:  stripeapi.String(g.cancelURL),
		ExpiresAt:  stripeapi.Int64(p.ExpiresAt.Unix()),
	}
	params.AddMetadata("reservation_id", p.ReservationID.String())
	params.AddMetadata("user_id", p.UserID.String())

	s, err := session.New(params)
	if err != nil {
		return nil, errors.Wrap(domain.ErrExternalService, err.Error())
	}
	return &ports.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *Gateway) ExpireSession(ctx context.Context, sessionID string) error {
	params := &stripeapi.CheckoutSessionExpireParams{Params: stripeapi.Params{Context: ctx}}
	if _, err := session.Expire(sessionID, params); err != nil {
		return errors.Wrap(domain.ErrExternalService, err.Error())
	}
	return nil
}

func (g *Gateway) Refund(ctx context.Context, chargeID string) error {
	params := &stripeapi.RefundParams{
		Params: stripeapi.Params{Context: ctx},
		Charge: stripeapi.String(chargeID),
	}
	if _, err := refund.New(params); err != nil {
		return errors.Wrap(domain.ErrExternalService, err.Error())
	}
	return nil
}

func (g *Gateway) ChargeID(ctx context.Context, paymentIntentID string) (string, error) {
	params := &stripeapi.PaymentIntentParams{Params: stripeapi.Params{Context: ctx}}
	pi, err := paymentintent.Get(paymentIntentID, params)
	if err != nil {
		return "", errors.Wrap(domain.ErrExternalService, err.Error())
	}
	if pi.LatestCharge == nil {
		return "", errors.Wrap(domain.ErrExternalService, "payment intent has no charge")
	}
	return pi.LatestCharge.ID, nil
}

// ParseWebhook verifies the signature and reduces the event to what the
// lifecycle controller needs. Unknown event types come back with
// Known=false so the caller can acknowledge without acting.
func (g *Gateway) ParseWebhook(payload []byte, signatureHeader string) (*ports.GatewayEvent, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, g.webhookSecret)
	if err != nil {
		return nil, errors.Wrap(domain.ErrValidation, "webhook signature verification failed")
	}

	out := &ports.GatewayEvent{ID: event.ID, Type: string(event.Type)}

	switch event.Type {
	case stripeapi.EventTypeCheckoutSessionCompleted, stripeapi.EventTypeCheckoutSessionExpired:
		var s stripeapi.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, errors.Wrap(domain.ErrValidation, "malformed checkout session payload")
		}
		out.Known = true
		out.ReservationID = reservationIDFromMetadata(s.Metadata)
		if s.PaymentIntent != nil {
			out.PaymentIntentID = s.PaymentIntent.ID
		}
	case stripeapi.EventTypeChargeRefunded:
		var ch stripeapi.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, errors.Wrap(domain.ErrValidation, "malformed charge payload")
		}
		out.Known = true
		out.ReservationID = reservationIDFromMetadata(ch.Metadata)
	}

	return out, nil
}

// reservationIDFromMetadata returns uuid.Nil for absent or unparseable
// metadata. The caller acknowledges such events instead of failing them:
// the gateway would redeliver the same malformed payload forever.
func reservationIDFromMetadata(metadata map[string]string) uuid.UUID {
	id, err := uuid.Parse(metadata["reservation_id"])
	if err != nil {
		return uuid.Nil
	}
	return id
}
