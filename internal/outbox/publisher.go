package outbox

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"bookline/backend/internal/store"
)

// Publisher drains unpublished lifecycle events to a Kafka topic. Events are
// written in the same transaction as the state change they describe, so the
// broker being down never loses or blocks a booking operation.
type Publisher struct {
	repo      store.OutboxRepository
	log       *slog.Logger
	brokers   []string
	topic     string
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	Brokers   string // comma-separated
	Topic     string
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(repo store.OutboxRepository, log *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Topic == "" {
		cfg.Topic = "bookline.appointments"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		repo:      repo,
		log:       log.With(slog.String("component", "outbox")),
		brokers:   splitBrokers(cfg.Brokers),
		topic:     cfg.Topic,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.log.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  p.brokers,
		Topic:    p.topic,
		Balancer: &kafka.Hash{},
	})
	defer writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.publishBatch(ctx, writer); err != nil {
				p.log.Error("outbox publish failed", slog.Any("err", err))
			}
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context, writer *kafka.Writer) error {
	events, err := p.repo.FetchUnpublished(ctx, p.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, len(events))
	for i, ev := range events {
		msgs[i] = kafka.Message{
			Key:   []byte(ev.AppointmentID.String()),
			Value: ev.Payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(ev.EventType)},
			},
		}
	}
	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}

	ids := make([]int64, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	return p.repo.MarkPublished(ctx, ids, time.Now().UTC())
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
