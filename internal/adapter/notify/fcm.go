// Package notify delivers push notifications to user devices.
package notify

import (
	"context"
	"fmt"

	"surplus-ledger/config"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// messenger is the part of *messaging.Client the sender uses.
type messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMSender implements ports.PushSender with Firebase Cloud Messaging.
// Each user's devices subscribe to the topic <prefix><user id>.
type FCMSender struct {
	client      messenger
	topicPrefix string
	log         zerolog.Logger
}

// NewFCMSender initializes the Firebase app from a service account file.
func NewFCMSender(ctx context.Context, cfg config.PushConfig, log zerolog.Logger) (*FCMSender, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting messaging client: %w", err)
	}

	log.Info().Str("topic_prefix", cfg.TopicPrefix).Msg("Firebase Cloud Messaging ready")
	return newFCMSender(client, cfg.TopicPrefix, log), nil
}

func newFCMSender(client messenger, topicPrefix string, log zerolog.Logger) *FCMSender {
	return &FCMSender{client: client, topicPrefix: topicPrefix, log: log}
}

// Topic returns the topic a user's devices listen on.
func (s *FCMSender) Topic(userID uuid.UUID) string {
	return s.topicPrefix + userID.String()
}

// Send publishes one message to the user's topic.
func (s *FCMSender) Send(ctx context.Context, userID uuid.UUID, title, message string, data map[string]string) error {
	msg := &messaging.Message{
		Topic: s.Topic(userID),
		Notification: &messaging.Notification{
			Title: title,
			Body:  message,
		},
		Data: data,
	}

	id, err := s.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("fcm send to %s: %w", msg.Topic, err)
	}

	s.log.Debug().Str("user_id", userID.String()).Str("message_id", id).Msg("Push notification sent")
	return nil
}
