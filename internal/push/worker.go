// Package push consumes the offline-push queue and hands missed messages to
// a notifier. The default notifier only logs; a real APNs/FCM sender slots
// in behind the same interface.
package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"dm_core/internal/broker"
	"dm_core/internal/domain"
)

// Notifier receives one notification per missed message.
type Notifier interface {
	Notify(ctx context.Context, userID string, msg *domain.Message)
}

// LogNotifier is the stand-in notifier used when no push provider is wired.
type LogNotifier struct {
	Log *slog.Logger
}

func (n *LogNotifier) Notify(_ context.Context, userID string, msg *domain.Message) {
	n.Log.Info("push notification", "user", userID, "message", msg.ID, "sender", msg.SenderID)
}

type Worker struct {
	broker   *broker.RabbitMQClient
	notifier Notifier
	log      *slog.Logger
}

func NewWorker(b *broker.RabbitMQClient, n Notifier, log *slog.Logger) *Worker {
	return &Worker{broker: b, notifier: n, log: log}
}

func (w *Worker) Start(ctx context.Context) {
	msgs, err := w.broker.ConsumePush()
	if err != nil {
		w.log.Error("failed to start push consumer", "err", err)
		return
	}

	go func() {
		for d := range msgs {
			var frame struct {
				Event string `json:"event"`
				Data  struct {
					Message *domain.Message `json:"message"`
				} `json:"data"`
			}
			if err := json.Unmarshal(d.Body, &frame); err != nil {
				w.log.Error("failed to unmarshal push event", "err", err)
				d.Ack(false)
				continue
			}
			if frame.Event != "newMessage" || frame.Data.Message == nil {
				d.Ack(false)
				continue
			}

			// Routing key format: user.{userID}
			userID := strings.TrimPrefix(d.RoutingKey, "user.")
			w.notifier.Notify(ctx, userID, frame.Data.Message)
			d.Ack(false)
		}
	}()

	<-ctx.Done()
}
