// Package notify pushes call notifications to agent devices via Firebase
// Cloud Messaging.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/dialplane/dialplane/internal/database"
	"github.com/dialplane/dialplane/internal/database/models"
)

// FCMNotifier sends call notifications through Firebase Cloud Messaging.
type FCMNotifier struct {
	client *messaging.Client
	agents database.AgentRepository
	logger *slog.Logger
}

// NewFCMNotifier initialises a Firebase app from the service-account JSON
// file at credentialsFile. If credentialsFile is empty, the SDK falls back
// to GOOGLE_APPLICATION_CREDENTIALS or the default service account.
func NewFCMNotifier(ctx context.Context, credentialsFile string, agents database.AgentRepository, logger *slog.Logger) (*FCMNotifier, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtaining messaging client: %w", err)
	}

	logger.Info("fcm notifier initialised")
	return &FCMNotifier{client: client, agents: agents, logger: logger.With("subsystem", "notify")}, nil
}

// CallBridged tells an agent's device that a call has been bridged to them.
// A token FCM reports as unregistered is cleared from the agent record so it
// is not retried on every call.
func (n *FCMNotifier) CallBridged(ctx context.Context, agent *models.Agent, from string) error {
	if agent.PushToken == "" {
		return nil
	}

	ttl := 30 * time.Second
	msg := &messaging.Message{
		Token: agent.PushToken,
		Data: map[string]string{
			"type":      "call_bridged",
			"caller_id": from,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			TTL:      &ttl,
		},
	}

	id, err := n.client.Send(ctx, msg)
	if err != nil {
		if messaging.IsUnregistered(err) {
			agent.PushToken = ""
			if updateErr := n.agents.Update(ctx, agent); updateErr != nil {
				n.logger.Error("clearing stale push token failed", "agent_id", agent.ID, "error", updateErr)
			}
			return fmt.Errorf("fcm: token no longer valid: %w", err)
		}
		return fmt.Errorf("fcm: send failed: %w", err)
	}

	n.logger.Debug("fcm message sent", "message_id", id, "agent_id", agent.ID)
	return nil
}
