package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"bookline/backend/internal/domain"
	"bookline/backend/internal/store"
)

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type bookingTx struct {
	tx bun.Tx
}

func (r *AppointmentRepo) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := r.db.NewSelect().
		Model(&appt).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepo) ListProviderDay(ctx context.Context, providerID string, date time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("date = ?", date.UTC().Truncate(24*time.Hour)).
		Where("status != ?", domain.StatusCancelled).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.BookingTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProviderCalendar(ctx, tx, providerID); err != nil {
			return err
		}
		return fn(ctx, bookingTx{tx: tx})
	})
}

// lockProviderCalendar serializes booking writes per provider for the
// duration of the transaction.
func lockProviderCalendar(ctx context.Context, tx bun.Tx, providerID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", providerID).Exec(ctx)
	return err
}

func (t bookingTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := t.tx.NewSelect().
		Model(&appt).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return appt, nil
}

func (t bookingTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, bool, error) {
	m := appt
	_, err := t.tx.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case "appointments_active_slot_idx":
				return domain.Appointment{}, false, store.ErrConflict
			case "appointments_pkey":
				// Deterministic id from an idempotency key: replay returns
				// the original row when the payload matches.
				var existing domain.Appointment
				selectErr := t.tx.NewSelect().
					Model(&existing).
					Where("id = ?", m.ID).
					Limit(1).
					Scan(ctx)
				if selectErr != nil {
					return domain.Appointment{}, false, err
				}
				if existing.ProviderID != appt.ProviderID ||
					existing.RequesterID != appt.RequesterID ||
					!existing.Date.Equal(appt.Date) ||
					existing.StartTime != appt.StartTime ||
					existing.Kind != appt.Kind {
					return domain.Appointment{}, false, store.ErrIdempotencyConflict
				}
				return existing, true, nil
			}
		}
		return domain.Appointment{}, false, err
	}
	return m, false, nil
}

func (t bookingTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	res, err := t.tx.NewUpdate().
		Model(&m).
		WherePK().
		Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "appointments_active_slot_idx" {
			return domain.Appointment{}, store.ErrConflict
		}
		return domain.Appointment{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}

func (t bookingTx) ListProviderDay(ctx context.Context, providerID string, date time.Time, excludeID uuid.UUID) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := t.tx.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("date = ?", date.UTC().Truncate(24*time.Hour)).
		Where("status != ?", domain.StatusCancelled).
		OrderExpr("start_time ASC")
	if excludeID != uuid.Nil {
		q = q.Where("id != ?", excludeID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (t bookingTx) CountRequesterDay(ctx context.Context, requesterID string, date time.Time, excludeID uuid.UUID) (int, error) {
	q := t.tx.NewSelect().
		Model((*domain.Appointment)(nil)).
		Where("requester_id = ?", requesterID).
		Where("date = ?", date.UTC().Truncate(24*time.Hour)).
		Where("status != ?", domain.StatusCancelled)
	if excludeID != uuid.Nil {
		q = q.Where("id != ?", excludeID)
	}
	return q.Count(ctx)
}

func (t bookingTx) CreateReminders(ctx context.Context, reminders []domain.Reminder) error {
	if len(reminders) == 0 {
		return nil
	}
	rows := make([]domain.Reminder, len(reminders))
	copy(rows, reminders)
	_, err := t.tx.NewInsert().Model(&rows).Exec(ctx)
	return err
}

func (t bookingTx) CancelPendingReminders(ctx context.Context, appointmentID uuid.UUID) error {
	_, err := t.tx.NewUpdate().
		Model((*domain.Reminder)(nil)).
		Set("status = ?", domain.ReminderCancelled).
		Set("updated_at = ?", time.Now().UTC()).
		Where("appointment_id = ?", appointmentID).
		Where("status IN (?, ?)", domain.ReminderPending, domain.ReminderDispatching).
		Exec(ctx)
	return err
}

func (t bookingTx) RecordEvent(ctx context.Context, ev domain.OutboxEvent) error {
	m := ev
	_, err := t.tx.NewInsert().Model(&m).Exec(ctx)
	return err
}
