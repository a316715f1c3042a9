package notification

import (
	"context"
	"time"

	repo "shop/internal/repository"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// OutboxPoller は未配信のoutbox行を拾ってブローカーへ流す。
// 配信はat-least-once。購読側は重複を前提にすること。
type OutboxPoller struct {
	outbox   repo.OutboxRepository
	writer   *kafka.Writer
	logger   zerolog.Logger
	interval time.Duration
	batch    int
}

func NewOutboxPoller(
	outbox repo.OutboxRepository,
	brokers []string,
	topic string,
	logger zerolog.Logger,
	interval time.Duration,
) *OutboxPoller {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}

	return &OutboxPoller{
		outbox:   outbox,
		writer:   writer,
		logger:   logger,
		interval: interval,
		batch:    100,
	}
}

// Run はctxが閉じるまでポーリングし続ける。
func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer p.writer.Close()

	p.logger.Info().
		Dur("interval", p.interval).
		Msg("outbox poller started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("outbox poller stopped")
			return
		case <-ticker.C:
			p.drainOnce(ctx)
		}
	}
}

// drainOnce は1バッチ分を配信する。
// 失敗した行はpublished_atが付かないので次の周回で再試行される。
func (p *OutboxPoller) drainOnce(ctx context.Context) {
	events, err := p.outbox.ListUnpublished(ctx, p.batch)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to list unpublished events")
		return
	}
	if len(events) == 0 {
		return
	}

	for _, ev := range events {
		msg := kafka.Message{
			//同じ注文の通知は同じパーティションへ
			Key:   []byte(ev.AggregateID),
			Value: []byte(ev.Payload),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(ev.EventType)},
			},
		}

		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			p.logger.Error().Err(err).
				Int64("event_id", ev.ID).
				Str("event_type", ev.EventType).
				Msg("failed to publish event")
			//ここで止めて次の周回で順序どおりに再試行
			return
		}

		if err := p.outbox.MarkPublished(ctx, ev.ID, time.Now()); err != nil {
			p.logger.Error().Err(err).
				Int64("event_id", ev.ID).
				Msg("published but failed to mark, will be re-sent")
			return
		}

		p.logger.Debug().
			Int64("event_id", ev.ID).
			Str("event_type", ev.EventType).
			Str("aggregate_id", ev.AggregateID).
			Msg("event published")
	}
}
