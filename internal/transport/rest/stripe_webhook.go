package rest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v79"

	"bookline/backend/internal/service/booking"
)

// StripeWebhook translates verified Stripe checkout events into the payment
// callback. Signature verification is the authentication; duplicate
// deliveries are harmless because the callback itself is idempotent.
func (h *Handler) StripeWebhook(c echo.Context) error {
	if h.stripe == nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody("stripe webhook not configured"))
	}

	sig := c.Request().Header.Get("Stripe-Signature")
	if strings.TrimSpace(sig) == "" {
		return c.JSON(http.StatusBadRequest, errorBody("missing Stripe-Signature header"))
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("failed to read request body"))
	}

	evt, err := h.stripe.VerifyWebhook(body, sig)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid signature"))
	}

	h.log.Info("payment provider event received",
		slog.String("provider", "stripe"),
		slog.String("provider_event_id", evt.ID),
		slog.String("event_type", string(evt.Type)),
	)

	var outcome booking.PaymentOutcome
	switch evt.Type {
	case "checkout.session.completed":
		outcome = booking.PaymentOutcomeSuccess
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		outcome = booking.PaymentOutcomeFailure
	default:
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
		h.log.Error("stripe: invalid checkout session payload", slog.Any("err", err))
		return c.JSON(http.StatusBadRequest, errorBody("invalid event payload"))
	}
	apptID, err := uuid.Parse(strings.TrimSpace(session.Metadata["appointment_id"]))
	if err != nil {
		h.log.Warn("stripe: missing appointment_id metadata", slog.String("provider_event_id", evt.ID))
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	if err := h.svc.PaymentCallback(c.Request().Context(), apptID, outcome, session.ID); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
