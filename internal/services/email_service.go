package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/lumenclass/authcore/internal/models"
)

// Sender delivers one-time codes and security alerts to a user-controlled
// destination. Delivery is best effort: callers never roll back an auth
// operation because a send failed.
type Sender interface {
	Send(ctx context.Context, destination, channel, subject, body string) error
}

// AWSSESSender sends the email channel through AWS SES. The SMS channel is a
// logged stub until an SMS provider is wired up.
type AWSSESSender struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

func NewAWSSESSender(region, fromAddress string, logger *slog.Logger) (*AWSSESSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESSender{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

func (s *AWSSESSender) Send(ctx context.Context, destination, channel, subject, body string) error {
	switch channel {
	case models.DeliveryEmail:
		return s.sendEmail(ctx, destination, subject, body)
	case models.DeliverySMS:
		// TODO: wire an SMS provider (SNS or Twilio) once one is provisioned.
		s.logger.Info("sms delivery stub invoked",
			slog.String("destination", destination),
			slog.String("subject", subject))
		return nil
	default:
		return fmt.Errorf("unknown delivery channel: %s", channel)
	}
}

func (s *AWSSESSender) sendEmail(ctx context.Context, destination, subject, body string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{destination},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(body),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("subject", subject),
		slog.String("message_id", *result.MessageId))

	return nil
}
