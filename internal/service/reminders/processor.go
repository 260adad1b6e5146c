package reminders

import (
	"context"
	"log/slog"
	"time"

	"bookline/backend/internal/domain"
	"bookline/backend/internal/notify"
	"bookline/backend/internal/store"
)

type Processor struct {
	repo     store.ReminderRepository
	notifier notify.Notifier
	log      *slog.Logger

	interval        time.Duration
	batchSize       int
	lease           time.Duration
	maxAttempts     int
	dispatchTimeout time.Duration
}

type ProcessorConfig struct {
	Interval        time.Duration
	BatchSize       int
	Lease           time.Duration
	MaxAttempts     int
	DispatchTimeout time.Duration
}

func NewProcessor(repo store.ReminderRepository, notifier notify.Notifier, log *slog.Logger, cfg ProcessorConfig) *Processor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		repo:            repo,
		notifier:        notifier,
		log:             log.With(slog.String("component", "reminders")),
		interval:        cfg.Interval,
		batchSize:       cfg.BatchSize,
		lease:           cfg.Lease,
		maxAttempts:     cfg.MaxAttempts,
		dispatchTimeout: cfg.DispatchTimeout,
	}
}

// Run processes due reminders on a fixed interval until ctx is done.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := p.ProcessDue(ctx, time.Now().UTC()); err != nil {
				p.log.Error("reminder batch failed", slog.Any("err", err))
			}
		}
	}
}

// ProcessDue claims due pending reminders and dispatches them. A notifier
// failure is a handled outcome: the reminder returns to pending for retry
// until maxAttempts, then becomes failed and is surfaced in the logs for
// manual follow-up. Reminders whose appointment has left confirmed are
// cancelled, never dispatched.
func (p *Processor) ProcessDue(ctx context.Context, now time.Time) (processed, failed int, err error) {
	reclaimed, err := p.repo.ReclaimExpired(ctx, now)
	if err != nil {
		return 0, 0, err
	}
	if reclaimed > 0 {
		p.log.Warn("reclaimed stuck reminders", slog.Int64("count", reclaimed))
	}

	due, err := p.repo.ClaimDue(ctx, now, p.batchSize, p.lease)
	if err != nil {
		return 0, 0, err
	}

	for _, d := range due {
		r := d.Reminder

		if d.OwnerStatus != domain.StatusConfirmed {
			if err := p.repo.MarkCancelled(ctx, r.ID); err != nil {
				return processed, failed, err
			}
			continue
		}

		dispatchErr := p.dispatch(ctx, r)
		if dispatchErr == nil {
			if err := p.repo.MarkSent(ctx, r.ID, now); err != nil {
				return processed, failed, err
			}
			processed++
			continue
		}

		attempts := r.Attempts + 1
		failed++
		if attempts >= p.maxAttempts {
			p.log.Error("reminder permanently failed",
				slog.String("reminder_id", r.ID.String()),
				slog.String("appointment_id", r.AppointmentID.String()),
				slog.Int("attempts", attempts),
				slog.Any("err", dispatchErr),
			)
		} else {
			p.log.Warn("reminder dispatch failed",
				slog.String("reminder_id", r.ID.String()),
				slog.Int("attempts", attempts),
				slog.Any("err", dispatchErr),
			)
		}
		if err := p.repo.MarkFailed(ctx, r.ID, attempts, p.maxAttempts, dispatchErr.Error()); err != nil {
			return processed, failed, err
		}
	}
	return processed, failed, nil
}

func (p *Processor) dispatch(ctx context.Context, r domain.Reminder) error {
	ctx, cancel := context.WithTimeout(ctx, p.dispatchTimeout)
	defer cancel()
	return p.notifier.Dispatch(ctx, r)
}
