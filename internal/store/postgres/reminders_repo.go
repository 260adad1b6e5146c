package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"bookline/backend/internal/domain"
	"bookline/backend/internal/store"
)

type ReminderRepo struct {
	db *bun.DB
}

func NewReminderRepo(db *bun.DB) *ReminderRepo {
	return &ReminderRepo{db: db}
}

type claimRow struct {
	ID            uuid.UUID           `bun:"id"`
	AppointmentID uuid.UUID           `bun:"appointment_id"`
	ScheduledFor  time.Time           `bun:"scheduled_for"`
	Kind          domain.ReminderKind `bun:"kind"`
	Channel       domain.Channel      `bun:"channel"`
	Recipient     string              `bun:"recipient"`
	Body          string              `bun:"body"`
	Attempts      int                 `bun:"attempts"`
	OwnerStatus   domain.Status       `bun:"owner_status"`
}

func (r *ReminderRepo) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]store.DueReminder, error) {
	var out []store.DueReminder
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var rows []claimRow
		err := tx.NewRaw(`
			SELECT r.id, r.appointment_id, r.scheduled_for, r.kind, r.channel,
			       r.recipient, r.body, r.attempts, a.status AS owner_status
			FROM reminders r
			JOIN appointments a ON a.id = r.appointment_id
			WHERE r.status = ? AND r.scheduled_for <= ?
			ORDER BY r.scheduled_for
			LIMIT ?
			FOR UPDATE OF r SKIP LOCKED
		`, domain.ReminderPending, now.UTC(), limit).Scan(ctx, &rows)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(rows))
		for i, row := range rows {
			ids[i] = row.ID
		}
		leaseUntil := now.UTC().Add(lease)
		_, err = tx.NewUpdate().
			Model((*domain.Reminder)(nil)).
			Set("status = ?", domain.ReminderDispatching).
			Set("lease_expires_at = ?", leaseUntil).
			Set("updated_at = ?", now.UTC()).
			Where("id IN (?)", bun.In(ids)).
			Exec(ctx)
		if err != nil {
			return err
		}

		out = make([]store.DueReminder, len(rows))
		for i, row := range rows {
			out[i] = store.DueReminder{
				Reminder: domain.Reminder{
					ID:            row.ID,
					AppointmentID: row.AppointmentID,
					ScheduledFor:  row.ScheduledFor,
					Kind:          row.Kind,
					Channel:       row.Channel,
					Recipient:     row.Recipient,
					Body:          row.Body,
					Status:        domain.ReminderDispatching,
					Attempts:      row.Attempts,
					LeaseExpires:  &leaseUntil,
				},
				OwnerStatus: row.OwnerStatus,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ReminderRepo) ReclaimExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*domain.Reminder)(nil)).
		Set("status = ?", domain.ReminderPending).
		Set("lease_expires_at = NULL").
		Set("updated_at = ?", now.UTC()).
		Where("status = ?", domain.ReminderDispatching).
		Where("lease_expires_at < ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *ReminderRepo) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*domain.Reminder)(nil)).
		Set("status = ?", domain.ReminderSent).
		Set("sent_at = ?", at.UTC()).
		Set("lease_expires_at = NULL").
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("status = ?", domain.ReminderDispatching).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *ReminderRepo) MarkFailed(ctx context.Context, id uuid.UUID, attempts, maxAttempts int, lastError string) error {
	status := domain.ReminderPending
	if attempts >= maxAttempts {
		status = domain.ReminderFailed
	}
	_, err := r.db.NewUpdate().
		Model((*domain.Reminder)(nil)).
		Set("status = ?", status).
		Set("attempts = ?", attempts).
		Set("last_error = ?", lastError).
		Set("lease_expires_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *ReminderRepo) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*domain.Reminder)(nil)).
		Set("status = ?", domain.ReminderCancelled).
		Set("lease_expires_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}
