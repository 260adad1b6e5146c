package postgres

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"bookline/backend/internal/domain"
)

type OutboxRepo struct {
	db *bun.DB
}

func NewOutboxRepo(db *bun.DB) *OutboxRepo {
	return &OutboxRepo{db: db}
}

func (r *OutboxRepo) FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	var rows []domain.OutboxEvent
	err := r.db.NewSelect().
		Model(&rows).
		Where("published_at IS NULL").
		OrderExpr("id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *OutboxRepo) MarkPublished(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.NewUpdate().
		Model((*domain.OutboxEvent)(nil)).
		Set("published_at = ?", at.UTC()).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	return err
}
