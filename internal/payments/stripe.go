package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"

	"bookline/backend/internal/domain"
)

// StripeAuthority initiates payment through a Stripe checkout session and
// verifies webhook signatures for the callback path.
type StripeAuthority struct {
	secretKey        string
	webhookSecret    string
	successURL       string
	cancelURL        string
	webhookTolerance time.Duration
}

type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	SuccessURL       string
	CancelURL        string
	WebhookTolerance time.Duration
}

func NewStripeAuthority(cfg StripeConfig) *StripeAuthority {
	tolerance := cfg.WebhookTolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &StripeAuthority{
		secretKey:        strings.TrimSpace(cfg.SecretKey),
		webhookSecret:    strings.TrimSpace(cfg.WebhookSecret),
		successURL:       strings.TrimSpace(cfg.SuccessURL),
		cancelURL:        strings.TrimSpace(cfg.CancelURL),
		webhookTolerance: tolerance,
	}
}

func (s *StripeAuthority) Configured() bool {
	return s.secretKey != ""
}

func (s *StripeAuthority) Initiate(ctx context.Context, appt domain.Appointment, amountCents int64) (Redirect, error) {
	if !s.Configured() {
		return Redirect{}, fmt.Errorf("stripe not configured")
	}

	stripe.Key = s.secretKey
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(appt.ID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(amountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%s appointment on %s at %s", appt.Kind, appt.Date.Format(domain.DateFormat), appt.StartTime)),
					},
				},
			},
		},
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String("booking-" + appt.ID.String())
	params.AddMetadata("appointment_id", appt.ID.String())

	sess, err := checkoutsession.New(params)
	if err != nil {
		return Redirect{}, fmt.Errorf("create checkout session: %w", err)
	}
	return Redirect{URL: sess.URL, Reference: sess.ID}, nil
}

// VerifyWebhook checks the Stripe-Signature header against the raw payload
// and returns the decoded event.
func (s *StripeAuthority) VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	if s.webhookSecret == "" {
		return stripe.Event{}, fmt.Errorf("stripe webhook secret not configured")
	}
	return webhook.ConstructEventWithTolerance(payload, sigHeader, s.webhookSecret, s.webhookTolerance)
}
