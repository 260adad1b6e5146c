package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"bookline/backend/internal/domain"
	"bookline/backend/internal/payments"
	"bookline/backend/internal/service/booking"
	"bookline/backend/internal/store"
)

type bookingService interface {
	RequestBooking(ctx context.Context, in booking.RequestBookingInput) (domain.Appointment, payments.Redirect, error)
	PaymentCallback(ctx context.Context, id uuid.UUID, outcome booking.PaymentOutcome, reference string) error
	ConfirmBooking(ctx context.Context, id uuid.UUID) error
	CancelBooking(ctx context.Context, id uuid.UUID, actorID string, role domain.Role, reason string) error
	RequestReschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime string, reason string) error
	RespondToReschedule(ctx context.Context, id uuid.UUID, accept bool) error
	CompleteBooking(ctx context.Context, id uuid.UUID) error
	MarkNoShow(ctx context.Context, id uuid.UUID) error
	GetBooking(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	AvailableSlots(ctx context.Context, providerID string, date time.Time) ([]string, error)
}

type reminderProcessor interface {
	ProcessDue(ctx context.Context, now time.Time) (processed, failed int, err error)
}

type Handler struct {
	svc       bookingService
	processor reminderProcessor
	stripe    *payments.StripeAuthority // nil when stripe is not configured
	log       *slog.Logger
}

func NewHandler(svc bookingService, processor reminderProcessor, stripe *payments.StripeAuthority, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		svc:       svc,
		processor: processor,
		stripe:    stripe,
		log:       log.With(slog.String("component", "rest")),
	}
}

// Validator adapts go-playground/validator to echo's binding hook.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

func (v *Validator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func (h *Handler) Register(e *echo.Echo, limit echo.MiddlewareFunc) {
	mutating := []echo.MiddlewareFunc{}
	if limit != nil {
		mutating = append(mutating, limit)
	}

	e.POST("/v1/bookings", h.RequestBooking, mutating...)
	e.GET("/v1/bookings/:id", h.GetBooking)
	e.POST("/v1/bookings/:id/confirm", h.ConfirmBooking, mutating...)
	e.POST("/v1/bookings/:id/cancel", h.CancelBooking, mutating...)
	e.POST("/v1/bookings/:id/reschedule", h.RequestReschedule, mutating...)
	e.POST("/v1/bookings/:id/reschedule/respond", h.RespondToReschedule, mutating...)
	e.POST("/v1/bookings/:id/complete", h.CompleteBooking)
	e.POST("/v1/bookings/:id/no-show", h.MarkNoShow)
	e.GET("/v1/providers/:id/slots", h.ProviderSlots)
	e.POST("/v1/payments/callback", h.PaymentCallback)
	e.POST("/v1/payments/stripe/webhook", h.StripeWebhook)
	e.POST("/v1/reminders/process", h.ProcessReminders)
}

type requestBookingRequest struct {
	ProviderID     string `json:"provider_id" validate:"required"`
	RequesterID    string `json:"requester_id" validate:"required"`
	RequesterEmail string `json:"requester_email" validate:"omitempty,email"`
	RequesterPhone string `json:"requester_phone"`
	Date           string `json:"date" validate:"required"`
	Time           string `json:"time" validate:"required"`
	Kind           string `json:"kind" validate:"required"`
	Mode           string `json:"mode" validate:"required"`
}

type requestBookingResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	PaymentURL    string `json:"payment_url,omitempty"`
	PaymentRef    string `json:"payment_ref,omitempty"`
}

func (h *Handler) RequestBooking(c echo.Context) error {
	var req requestBookingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid json body"))
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	date, err := time.Parse(domain.DateFormat, req.Date)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid date, want YYYY-MM-DD"))
	}

	appt, redirect, err := h.svc.RequestBooking(c.Request().Context(), booking.RequestBookingInput{
		ProviderID:     req.ProviderID,
		RequesterID:    req.RequesterID,
		RequesterEmail: req.RequesterEmail,
		RequesterPhone: req.RequesterPhone,
		Date:           date,
		StartTime:      req.Time,
		Kind:           domain.Kind(req.Kind),
		Mode:           domain.Mode(req.Mode),
		IdempotencyKey: c.Request().Header.Get("Idempotency-Key"),
	})
	if err != nil {
		return h.writeError(c, err)
	}

	return c.JSON(http.StatusCreated, requestBookingResponse{
		AppointmentID: appt.ID.String(),
		Status:        string(appt.Status),
		PaymentURL:    redirect.URL,
		PaymentRef:    redirect.Reference,
	})
}

func (h *Handler) GetBooking(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid appointment id"))
	}
	appt, err := h.svc.GetBooking(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toAppointmentResponse(appt))
}

type paymentCallbackRequest struct {
	AppointmentID string `json:"appointment_id" validate:"required"`
	Outcome       string `json:"outcome" validate:"required,oneof=success failure"`
	Reference     string `json:"reference"`
}

func (h *Handler) PaymentCallback(c echo.Context) error {
	var req paymentCallbackRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid json body"))
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	id, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid appointment id"))
	}
	if err := h.svc.PaymentCallback(c.Request().Context(), id, booking.PaymentOutcome(req.Outcome), req.Reference); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ConfirmBooking(c echo.Context) error {
	return h.simpleTransition(c, h.svc.ConfirmBooking)
}

type cancelBookingRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
	// Only the two participants may cancel through the API; the system
	// role is reserved for internal failure handling.
	Role   string `json:"role" validate:"required,oneof=requester provider"`
	Reason string `json:"reason"`
}

func (h *Handler) CancelBooking(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid appointment id"))
	}
	var req cancelBookingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid json body"))
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.svc.CancelBooking(c.Request().Context(), id, req.ActorID, domain.Role(req.Role), req.Reason); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}

type rescheduleRequest struct {
	NewDate string `json:"new_date" validate:"required"`
	NewTime string `json:"new_time" validate:"required"`
	Reason  string `json:"reason"`
}

func (h *Handler) RequestReschedule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid appointment id"))
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid json body"))
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	date, err := time.Parse(domain.DateFormat, req.NewDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid new_date, want YYYY-MM-DD"))
	}
	if err := h.svc.RequestReschedule(c.Request().Context(), id, date, req.NewTime, req.Reason); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "pending_reschedule"})
}

type rescheduleResponseRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

func (h *Handler) RespondToReschedule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid appointment id"))
	}
	var req rescheduleResponseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid json body"))
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.svc.RespondToReschedule(c.Request().Context(), id, *req.Accept); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CompleteBooking(c echo.Context) error {
	return h.simpleTransition(c, h.svc.CompleteBooking)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	return h.simpleTransition(c, h.svc.MarkNoShow)
}

func (h *Handler) simpleTransition(c echo.Context, fn func(ctx context.Context, id uuid.UUID) error) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid appointment id"))
	}
	if err := fn(c.Request().Context(), id); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ProviderSlots(c echo.Context) error {
	providerID := c.Param("id")
	date, err := time.Parse(domain.DateFormat, c.QueryParam("date"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid or missing date, want YYYY-MM-DD"))
	}
	slots, err := h.svc.AvailableSlots(c.Request().Context(), providerID, date)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"provider_id": providerID,
		"date":        c.QueryParam("date"),
		"slots":       slots,
	})
}

func (h *Handler) ProcessReminders(c echo.Context) error {
	processed, failed, err := h.processor.ProcessDue(c.Request().Context(), time.Now().UTC())
	if err != nil {
		h.log.Error("reminder processing failed", slog.Any("err", err))
		return c.JSON(http.StatusInternalServerError, errorBody("reminder processing failed"))
	}
	return c.JSON(http.StatusOK, map[string]int{"processed": processed, "failed": failed})
}

type appointmentResponse struct {
	ID              string  `json:"id"`
	ProviderID      string  `json:"provider_id"`
	RequesterID     string  `json:"requester_id"`
	Date            string  `json:"date"`
	Time            string  `json:"time"`
	Kind            string  `json:"kind"`
	Mode            string  `json:"mode"`
	Status          string  `json:"status"`
	PaymentStatus   string  `json:"payment_status"`
	RescheduleCount int     `json:"reschedule_count"`
	PreviousDate    *string `json:"previous_date,omitempty"`
	PreviousTime    *string `json:"previous_time,omitempty"`
	CancelReason    string  `json:"cancel_reason,omitempty"`
}

func toAppointmentResponse(a domain.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:              a.ID.String(),
		ProviderID:      a.ProviderID,
		RequesterID:     a.RequesterID,
		Date:            a.Date.Format(domain.DateFormat),
		Time:            a.StartTime,
		Kind:            string(a.Kind),
		Mode:            string(a.Mode),
		Status:          string(a.Status),
		PaymentStatus:   string(a.PaymentStatus),
		RescheduleCount: a.RescheduleCount,
		PreviousTime:    a.PreviousTime,
		CancelReason:    a.CancelReason,
	}
	if a.PreviousDate != nil {
		d := a.PreviousDate.Format(domain.DateFormat)
		resp.PreviousDate = &d
	}
	return resp
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func (h *Handler) writeError(c echo.Context, err error) error {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{
			"error": "validation failed",
			"codes": vErr.Codes,
		})
	}
	var pErr *domain.PolicyViolationError
	if errors.As(err, &pErr) {
		body := map[string]any{
			"error":  "policy violation",
			"rule":   pErr.Rule,
			"reason": pErr.Reason,
		}
		if !pErr.Deadline.IsZero() {
			body["deadline"] = pErr.Deadline.Format(time.RFC3339)
		}
		return c.JSON(http.StatusConflict, body)
	}
	var tErr *domain.InvalidTransitionError
	if errors.As(err, &tErr) {
		// Integration error: log the detail, keep the response generic.
		h.log.Error("invalid status transition", slog.String("from", string(tErr.From)), slog.String("to", string(tErr.To)))
		return c.JSON(http.StatusConflict, errorBody("operation not allowed in the appointment's current state"))
	}
	var xErr *booking.ExternalDependencyError
	if errors.As(err, &xErr) {
		h.log.Error("external dependency failed", slog.String("dependency", xErr.Dependency), slog.Any("err", err))
		return c.JSON(http.StatusBadGateway, errorBody(xErr.Dependency+" temporarily unavailable"))
	}
	switch {
	case errors.Is(err, store.ErrConflict):
		return c.JSON(http.StatusConflict, errorBody("the slot is no longer available; re-query availability and pick another"))
	case errors.Is(err, store.ErrIdempotencyConflict):
		return c.JSON(http.StatusConflict, errorBody("this request key was already used for a different booking"))
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorBody("appointment not found"))
	case errors.Is(err, domain.ErrInvalidConfiguration):
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}
	h.log.Error("request failed", slog.Any("err", err))
	return c.JSON(http.StatusInternalServerError, errorBody("internal error"))
}
