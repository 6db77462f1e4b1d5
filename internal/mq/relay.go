package mq

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shaiso/Overseer/internal/bus"
)

// Relay пересылает события шины в RabbitMQ.
//
// Трансляция делается на условиях "лучших усилий": события, потерянные
// при переполнении буфера подписчика или из-за ошибки публикации,
// логируются и пропускаются. Авторитетная история событий — JSONL-журнал
// на диске, не брокер.
type Relay struct {
	pub    *Publisher
	logger *slog.Logger
}

// NewRelay создаёт новый Relay.
func NewRelay(pub *Publisher, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		pub:    pub,
		logger: logger.With(slog.String("component", "mq-relay")),
	}
}

// Run читает события из подписки и публикует их до отмены контекста
// или закрытия подписки.
func (r *Relay) Run(ctx context.Context, sub *bus.Subscriber) error {
	defer sub.Close()

	for {
		ev, lagged, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, bus.ErrSubscriberClosed) {
				return nil
			}
			return err
		}
		if lagged > 0 {
			r.logger.Warn("подписчик отстал, часть событий не опубликована",
				"dropped", lagged,
			)
		}

		if err := r.pub.PublishEvent(ctx, ev); err != nil {
			r.logger.Warn("не удалось опубликовать событие",
				"kind", ev.Kind,
				"exec_id", ev.ExecID,
				"error", err,
			)
		}
	}
}
