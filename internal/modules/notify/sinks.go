// README: Notification sinks: FCM push, Redis pub/sub and log.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"firebase.google.com/go/v4/messaging"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"plow/internal/types"
)

// Messenger is the part of the FCM client the push sink needs.
type Messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// TokenSource resolves a user's device token. An empty token means the user
// has no registered device.
type TokenSource interface {
	DeviceToken(ctx context.Context, userID types.ID) (string, error)
}

type PushSink struct {
	client Messenger
	tokens TokenSource
}

func NewPushSink(client Messenger, tokens TokenSource) *PushSink {
	return &PushSink{client: client, tokens: tokens}
}

func (s *PushSink) Name() string { return "fcm" }

func (s *PushSink) Send(ctx context.Context, e Event) error {
	var errs []error
	for _, uid := range e.Recipients() {
		token, err := s.tokens.DeviceToken(ctx, uid)
		if err != nil {
			errs = append(errs, fmt.Errorf("token for %s: %w", uid, err))
			continue
		}
		if token == "" {
			continue
		}
		title, body := pushText(e)
		_, err = s.client.Send(ctx, &messaging.Message{
			Token:        token,
			Notification: &messaging.Notification{Title: title, Body: body},
			Data: map[string]string{
				"kind":           string(e.Kind),
				"job_id":         string(e.JobID),
				"status":         e.Status,
				"payment_status": e.PaymentStatus,
			},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", uid, err))
		}
	}
	return errors.Join(errs...)
}

func pushText(e Event) (string, string) {
	switch e.Kind {
	case KindJobCreated:
		return "New snow removal job", "Job " + string(e.JobID) + " was booked"
	case KindPayment:
		return "Payment update", "Payment is now " + e.PaymentStatus + " (" + formatAmount(e.Amount) + " " + e.Currency + ")"
	default:
		return "Job update", "Job is now " + e.Status
	}
}

func formatAmount(minor int64) string {
	return strconv.FormatFloat(float64(minor)/100, 'f', 2, 64)
}

// PubSubSink publishes events as JSON on a Redis channel.
type PubSubSink struct {
	rdb     *redis.Client
	channel string
}

func NewPubSubSink(rdb *redis.Client, channel string) *PubSubSink {
	return &PubSubSink{rdb: rdb, channel: channel}
}

func (s *PubSubSink) Name() string { return "redis" }

func (s *PubSubSink) Send(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, s.channel, payload).Err()
}

type LogSink struct {
	log logrus.FieldLogger
}

func NewLogSink(log logrus.FieldLogger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, e Event) error {
	s.log.WithFields(logrus.Fields{
		"kind":           e.Kind,
		"job_id":         e.JobID,
		"status":         e.Status,
		"payment_status": e.PaymentStatus,
	}).Info("job event")
	return nil
}
