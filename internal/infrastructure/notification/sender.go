package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bizbook/backend/internal/domain/notification"
	"github.com/bizbook/backend/internal/infrastructure/config"
	"github.com/mrz1836/postmark"
	"go.uber.org/zap"
)

// Sender names accepted in configuration
const (
	SenderLog      = "log"
	SenderPostmark = "postmark"
)

// ErrInvalidConfig is returned when a sender cannot be built from configuration
var ErrInvalidConfig = errors.New("notification: invalid sender configuration")

// LogSender writes notifications to the log instead of delivering them
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a log-only sender
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the message
func (s *LogSender) Send(_ context.Context, to notification.Recipient, msg notification.Message) error {
	s.logger.Info("Notification",
		zap.String("kind", string(msg.Kind)),
		zap.String("to", to.Email),
		zap.String("subject", msg.Kind.Subject()),
		zap.Any("payload", msg.Payload),
	)
	return nil
}

// PostmarkSender delivers notifications as transactional email
type PostmarkSender struct {
	client *postmark.Client
	from   string
}

// NewPostmarkSender creates a Postmark-backed sender
func NewPostmarkSender(serverToken, accountToken, from string) (*PostmarkSender, error) {
	if serverToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", ErrInvalidConfig)
	}
	if !strings.Contains(from, "@") {
		return nil, fmt.Errorf("%w: from address must be an email address", ErrInvalidConfig)
	}
	return &PostmarkSender{
		client: postmark.NewClient(serverToken, accountToken),
		from:   from,
	}, nil
}

// Send delivers one message
func (s *PostmarkSender) Send(ctx context.Context, to notification.Recipient, msg notification.Message) error {
	body, err := RenderHTML(to, msg)
	if err != nil {
		return fmt.Errorf("render %s: %w", msg.Kind, err)
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:       s.from,
		To:         to.Email,
		Subject:    msg.Kind.Subject(),
		Tag:        string(msg.Kind),
		HTMLBody:   body,
		TrackOpens: false,
	})
	if err != nil {
		return fmt.Errorf("postmark send: %w", err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
	}
	return nil
}

// NewSender builds the sender selected in configuration
func NewSender(cfg config.NotificationConfig, logger *zap.Logger) (notification.Sender, error) {
	switch strings.ToLower(cfg.Sender) {
	case "", SenderLog:
		return NewLogSender(logger), nil
	case SenderPostmark:
		s, err := NewPostmarkSender(cfg.PostmarkToken, "", cfg.FromAddress)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown sender %q", ErrInvalidConfig, cfg.Sender)
	}
}

var (
	_ notification.Sender = (*LogSender)(nil)
	_ notification.Sender = (*PostmarkSender)(nil)
)
