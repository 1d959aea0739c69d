package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// AWSSESLockoutNotifier emails the security alert address when an account
// gets locked, using AWS SES.
type AWSSESLockoutNotifier struct {
	sesClient    *ses.Client
	fromAddress  string
	alertAddress string
	logger       *slog.Logger
}

// NewAWSSESLockoutNotifier creates a new SES-backed lockout notifier
func NewAWSSESLockoutNotifier(region, fromAddress, alertAddress string, logger *slog.Logger) (*AWSSESLockoutNotifier, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESLockoutNotifier{
		sesClient:    ses.NewFromConfig(cfg),
		fromAddress:  fromAddress,
		alertAddress: alertAddress,
		logger:       logger,
	}, nil
}

// NotifyLockout sends a lockout alert email
func (n *AWSSESLockoutNotifier) NotifyLockout(ctx context.Context, username string, lockedUntil time.Time) {
	textBody := fmt.Sprintf(`Account Lockout Alert

The account %q was locked after repeated failed login attempts.

Locked until: %s

This is an automated message from the authentication protection engine.
`, username, lockedUntil.UTC().Format(time.RFC3339))

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{n.alertAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(fmt.Sprintf("Account locked: %s", username)),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := n.sesClient.SendEmail(ctx, input)
	if err != nil {
		n.logger.Error("failed to send lockout alert via SES",
			slog.String("username", username),
			slog.Any("error", err))
		return
	}

	n.logger.Info("lockout alert sent",
		slog.String("username", username),
		slog.String("message_id", *result.MessageId))
}

// NoopLockoutNotifier is used when lockout alerts are disabled.
type NoopLockoutNotifier struct{}

func (NoopLockoutNotifier) NotifyLockout(ctx context.Context, username string, lockedUntil time.Time) {
}
