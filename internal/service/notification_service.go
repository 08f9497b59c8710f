package service

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/spec-kit/vending-service/internal/config"
)

// Notifier sends the receipt for a confirmed door actuation.
type Notifier interface {
	SendReceipt(ctx context.Context, to, orderID string, door int) error
}

// SendGridNotifier sends receipt emails through SendGrid. With no API
// key configured every send is a logged no-op so a missing notification
// setup never blocks the confirmation flow.
type SendGridNotifier struct {
	apiKey string
	from   string
	logger *zap.Logger
}

// NewSendGridNotifier creates the notifier.
func NewSendGridNotifier(cfg config.NotificationConfig, logger *zap.Logger) *SendGridNotifier {
	if cfg.SendGridAPIKey == "" {
		logger.Warn("no SENDGRID_API_KEY set, receipt emails will not be sent")
	}
	return &SendGridNotifier{
		apiKey: cfg.SendGridAPIKey,
		from:   cfg.FromEmail,
		logger: logger,
	}
}

// SendReceipt sends the purchase receipt for an unlocked door.
func (n *SendGridNotifier) SendReceipt(ctx context.Context, to, orderID string, door int) error {
	if n.apiKey == "" {
		n.logger.Warn("skipping receipt email, SENDGRID_API_KEY not set",
			zap.String("order_id", orderID))
		return nil
	}

	subject := fmt.Sprintf("Your receipt for order %s", orderID)
	plain := fmt.Sprintf(
		"Thank you for your purchase. Your order %s unlocked door %d.",
		orderID, door)
	html := fmt.Sprintf(
		"<p>Thank you for your purchase.</p><p>Your order <strong>%s</strong> unlocked door <strong>%d</strong>.</p>",
		orderID, door)

	message := mail.NewSingleEmail(
		mail.NewEmail("", n.from),
		subject,
		mail.NewEmail("", to),
		plain,
		html,
	)

	client := sendgrid.NewSendClient(n.apiKey)
	resp, err := client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}
