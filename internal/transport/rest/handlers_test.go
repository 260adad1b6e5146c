package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"bookline/backend/internal/domain"
	"bookline/backend/internal/payments"
	"bookline/backend/internal/service/booking"
	"bookline/backend/internal/store"
)

type fakeService struct {
	requestFn    func(ctx context.Context, in booking.RequestBookingInput) (domain.Appointment, payments.Redirect, error)
	callbackFn   func(ctx context.Context, id uuid.UUID, outcome booking.PaymentOutcome, reference string) error
	confirmFn    func(ctx context.Context, id uuid.UUID) error
	cancelFn     func(ctx context.Context, id uuid.UUID, actorID string, role domain.Role, reason string) error
	rescheduleFn func(ctx context.Context, id uuid.UUID, newDate time.Time, newTime string, reason string) error
	respondFn    func(ctx context.Context, id uuid.UUID, accept bool) error
	completeFn   func(ctx context.Context, id uuid.UUID) error
	noShowFn     func(ctx context.Context, id uuid.UUID) error
	getFn        func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	slotsFn      func(ctx context.Context, providerID string, date time.Time) ([]string, error)
}

func (f *fakeService) RequestBooking(ctx context.Context, in booking.RequestBookingInput) (domain.Appointment, payments.Redirect, error) {
	if f.requestFn == nil {
		panic("RequestBooking not configured")
	}
	return f.requestFn(ctx, in)
}

func (f *fakeService) PaymentCallback(ctx context.Context, id uuid.UUID, outcome booking.PaymentOutcome, reference string) error {
	if f.callbackFn == nil {
		panic("PaymentCallback not configured")
	}
	return f.callbackFn(ctx, id, outcome, reference)
}

func (f *fakeService) ConfirmBooking(ctx context.Context, id uuid.UUID) error {
	if f.confirmFn == nil {
		panic("ConfirmBooking not configured")
	}
	return f.confirmFn(ctx, id)
}

func (f *fakeService) CancelBooking(ctx context.Context, id uuid.UUID, actorID string, role domain.Role, reason string) error {
	if f.cancelFn == nil {
		panic("CancelBooking not configured")
	}
	return f.cancelFn(ctx, id, actorID, role, reason)
}

func (f *fakeService) RequestReschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime string, reason string) error {
	if f.rescheduleFn == nil {
		panic("RequestReschedule not configured")
	}
	return f.rescheduleFn(ctx, id, newDate, newTime, reason)
}

func (f *fakeService) RespondToReschedule(ctx context.Context, id uuid.UUID, accept bool) error {
	if f.respondFn == nil {
		panic("RespondToReschedule not configured")
	}
	return f.respondFn(ctx, id, accept)
}

func (f *fakeService) CompleteBooking(ctx context.Context, id uuid.UUID) error {
	if f.completeFn == nil {
		panic("CompleteBooking not configured")
	}
	return f.completeFn(ctx, id)
}

func (f *fakeService) MarkNoShow(ctx context.Context, id uuid.UUID) error {
	if f.noShowFn == nil {
		panic("MarkNoShow not configured")
	}
	return f.noShowFn(ctx, id)
}

func (f *fakeService) GetBooking(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.getFn == nil {
		panic("GetBooking not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeService) AvailableSlots(ctx context.Context, providerID string, date time.Time) ([]string, error) {
	if f.slotsFn == nil {
		panic("AvailableSlots not configured")
	}
	return f.slotsFn(ctx, providerID, date)
}

type fakeProcessor struct {
	processFn func(ctx context.Context, now time.Time) (int, int, error)
}

func (f *fakeProcessor) ProcessDue(ctx context.Context, now time.Time) (int, int, error) {
	if f.processFn == nil {
		panic("ProcessDue not configured")
	}
	return f.processFn(ctx, now)
}

func newTestEcho(svc *fakeService, processor *fakeProcessor) *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	NewHandler(svc, processor, nil, nil).Register(e, nil)
	return e
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRequestBooking_Created(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	var gotKey string
	svc := &fakeService{
		requestFn: func(ctx context.Context, in booking.RequestBookingInput) (domain.Appointment, payments.Redirect, error) {
			gotKey = in.IdempotencyKey
			return domain.Appointment{ID: id, Status: domain.StatusPending},
				payments.Redirect{URL: "https://pay.example/cs_1", Reference: "cs_1"}, nil
		},
	}
	e := newTestEcho(svc, nil)

	body := `{"provider_id":"p1","requester_id":"r1","date":"2026-09-14","time":"10:00","kind":"standard","mode":"remote"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	if gotKey != "k1" {
		t.Fatalf("idempotency key = %q, want k1", gotKey)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["appointment_id"] != id.String() || resp["payment_url"] != "https://pay.example/cs_1" {
		t.Fatalf("response = %v", resp)
	}
}

func TestRequestBooking_MissingFields(t *testing.T) {
	e := newTestEcho(&fakeService{}, nil)
	rec := doJSON(e, http.MethodPost, "/v1/bookings", `{"provider_id":"p1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRequestBooking_BadDate(t *testing.T) {
	e := newTestEcho(&fakeService{}, nil)
	body := `{"provider_id":"p1","requester_id":"r1","date":"14/09/2026","time":"10:00","kind":"standard","mode":"remote"}`
	rec := doJSON(e, http.MethodPost, "/v1/bookings", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWriteError_Mapping(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "validation error",
			err:  &domain.ValidationError{Codes: []domain.ValidationCode{domain.CodeSlotConflict}},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "policy violation",
			err:  &domain.PolicyViolationError{Rule: "cancellation_deadline", Reason: "too late"},
			want: http.StatusConflict,
		},
		{
			name: "invalid transition",
			err:  &domain.InvalidTransitionError{From: domain.StatusCompleted, To: domain.StatusCancelled},
			want: http.StatusConflict,
		},
		{
			name: "external dependency",
			err:  &booking.ExternalDependencyError{Dependency: "payment"},
			want: http.StatusBadGateway,
		},
		{name: "slot conflict", err: store.ErrConflict, want: http.StatusConflict},
		{name: "idempotency conflict", err: store.ErrIdempotencyConflict, want: http.StatusConflict},
		{name: "not found", err: store.ErrNotFound, want: http.StatusNotFound},
		{name: "unexpected", err: context.DeadlineExceeded, want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{
				confirmFn: func(ctx context.Context, got uuid.UUID) error { return tt.err },
			}
			e := newTestEcho(svc, nil)
			rec := doJSON(e, http.MethodPost, "/v1/bookings/"+id.String()+"/confirm", "")
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestGetBooking_NotFound(t *testing.T) {
	svc := &fakeService{
		getFn: func(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
			return domain.Appointment{}, store.ErrNotFound
		},
	}
	e := newTestEcho(svc, nil)
	rec := doJSON(e, http.MethodGet, "/v1/bookings/"+uuid.New().String(), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetBooking_InvalidID(t *testing.T) {
	e := newTestEcho(&fakeService{}, nil)
	rec := doJSON(e, http.MethodGet, "/v1/bookings/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCancelBooking_PassesActorAndRole(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000003")
	var gotActor string
	var gotRole domain.Role
	svc := &fakeService{
		cancelFn: func(ctx context.Context, got uuid.UUID, actorID string, role domain.Role, reason string) error {
			gotActor, gotRole = actorID, role
			return nil
		},
	}
	e := newTestEcho(svc, nil)

	rec := doJSON(e, http.MethodPost, "/v1/bookings/"+id.String()+"/cancel",
		`{"actor_id":"r1","role":"requester","reason":"sick"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if gotActor != "r1" || gotRole != domain.RoleRequester {
		t.Fatalf("actor/role = %q/%s", gotActor, gotRole)
	}
}

func TestCancelBooking_RejectsSystemRole(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000003")
	svc := &fakeService{
		cancelFn: func(ctx context.Context, got uuid.UUID, actorID string, role domain.Role, reason string) error {
			t.Fatalf("CancelBooking must not be reached for role %s", role)
			return nil
		},
	}
	e := newTestEcho(svc, nil)

	rec := doJSON(e, http.MethodPost, "/v1/bookings/"+id.String()+"/cancel",
		`{"actor_id":"ops","role":"system","reason":"cleanup"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestProviderSlots(t *testing.T) {
	svc := &fakeService{
		slotsFn: func(ctx context.Context, providerID string, date time.Time) ([]string, error) {
			return []string{"09:00", "09:30"}, nil
		},
	}
	e := newTestEcho(svc, nil)

	rec := doJSON(e, http.MethodGet, "/v1/providers/p1/slots?date=2026-09-14", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var resp struct {
		ProviderID string   `json:"provider_id"`
		Slots      []string `json:"slots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.ProviderID != "p1" || len(resp.Slots) != 2 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestProviderSlots_MissingDate(t *testing.T) {
	e := newTestEcho(&fakeService{}, nil)
	rec := doJSON(e, http.MethodGet, "/v1/providers/p1/slots", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestProcessReminders(t *testing.T) {
	processor := &fakeProcessor{
		processFn: func(ctx context.Context, now time.Time) (int, int, error) {
			return 3, 1, nil
		},
	}
	e := newTestEcho(&fakeService{}, processor)

	rec := doJSON(e, http.MethodPost, "/v1/reminders/process", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["processed"] != 3 || resp["failed"] != 1 {
		t.Fatalf("response = %v", resp)
	}
}

func TestStripeWebhook_Unconfigured(t *testing.T) {
	e := newTestEcho(&fakeService{}, nil)
	rec := doJSON(e, http.MethodPost, "/v1/payments/stripe/webhook", `{}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestPaymentCallback_Endpoint(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000004")
	var gotOutcome booking.PaymentOutcome
	svc := &fakeService{
		callbackFn: func(ctx context.Context, got uuid.UUID, outcome booking.PaymentOutcome, reference string) error {
			gotOutcome = outcome
			return nil
		},
	}
	e := newTestEcho(svc, nil)

	rec := doJSON(e, http.MethodPost, "/v1/payments/callback",
		`{"appointment_id":"`+id.String()+`","outcome":"success","reference":"pi_1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if gotOutcome != booking.PaymentOutcomeSuccess {
		t.Fatalf("outcome = %s, want success", gotOutcome)
	}
}
