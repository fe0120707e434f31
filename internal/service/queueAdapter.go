package service

import (
	"context"

	"github.com/ds124wfegd/ems-booking/internal/entity"
	"github.com/ds124wfegd/ems-booking/pkg/kafka"
	"github.com/ds124wfegd/ems-booking/pkg/rabbitMQ"
	"github.com/ds124wfegd/ems-booking/pkg/telegram"

	"github.com/sirupsen/logrus"
)

// QueueNotifier adapts the RabbitMQ publisher to Notifier.
type QueueNotifier struct {
	queue rabbitMQ.Publisher
}

func NewQueueNotifier(q rabbitMQ.Publisher) *QueueNotifier {
	return &QueueNotifier{queue: q}
}

func (a *QueueNotifier) Notify(ctx context.Context, n *entity.Notification) error {
	if a.queue == nil {
		return nil
	}
	return a.queue.Publish(ctx, string(n.Type), n)
}

// StreamPublisher adapts the Kafka producer to EventPublisher, keyed by
// booking id.
type StreamPublisher struct {
	producer kafka.Producer
}

func NewStreamPublisher(p kafka.Producer) *StreamPublisher {
	return &StreamPublisher{producer: p}
}

func (a *StreamPublisher) PublishBookingEvent(ctx context.Context, e entity.BookingEvent) error {
	if a.producer == nil {
		return nil
	}
	return a.producer.SendMessage(ctx, e.BookingID, e)
}

// TelegramAlerter adapts the Telegram bot to Alerter.
type TelegramAlerter struct {
	bot *telegram.Bot
}

func NewTelegramAlerter(bot *telegram.Bot) *TelegramAlerter {
	return &TelegramAlerter{bot: bot}
}

func (a *TelegramAlerter) Alert(ctx context.Context, text string) error {
	if a.bot == nil {
		return nil
	}
	return a.bot.Alert(ctx, text)
}

type NoopNotifier struct{}

func (NoopNotifier) Notify(_ context.Context, n *entity.Notification) error {
	logrus.WithFields(logrus.Fields{
		"type":    n.Type,
		"user_id": n.UserID,
	}).Debug("Notification dropped, no notifier configured")
	return nil
}

type NoopPublisher struct{}

func (NoopPublisher) PublishBookingEvent(context.Context, entity.BookingEvent) error { return nil }

// NoopAlerter logs alerts instead of delivering them.
type NoopAlerter struct{}

func (NoopAlerter) Alert(_ context.Context, text string) error {
	logrus.WithField("alert", text).Warn("Ops alert")
	return nil
}

type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]entity.CategoryAvailability, bool, error) {
	return nil, false, nil
}

func (NoopCache) Set(context.Context, string, []entity.CategoryAvailability) error { return nil }

func (NoopCache) Invalidate(context.Context, string) error { return nil }
