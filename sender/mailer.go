package sender

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"settlement-service/models"
	"settlement-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	abandonedCartTemplate     = "abandoned_cart.html"
	orderConfirmationTemplate = "order_confirmation.html"

	defaultAttempts = 3
)

type ReminderItem struct {
	Name     string
	Quantity int
	Price    string
}

// ReminderEmail is the data rendered into the abandoned-cart reminder.
type ReminderEmail struct {
	UserID     uuid.UUID
	To         string
	Name       string
	CouponCode string
	Discount   string
	ExpiresAt  time.Time
	Items      []ReminderItem
	StoreURL   string
}

// OrderConfirmationEmail is the data rendered into the order confirmation.
type OrderConfirmationEmail struct {
	UserID          uuid.UUID
	To              string
	Name            string
	OrderID         string
	Subtotal        string
	TaxType         string
	TaxRate         string
	TaxInclusive    bool
	TaxAmount       string
	DiscountCode    string
	DiscountAmount  string
	FinalAmount     string
	ShippingAddress string
}

// Mailer renders transactional emails, sends them with retries and records every outcome
// in the notification log.
type Mailer struct {
	sender    EmailSender
	repo      repository.NotificationRepository
	templates *template.Template
	logger    *zap.Logger
	attempts  int
	backoff   time.Duration
}

func NewMailer(sender EmailSender, repo repository.NotificationRepository, logger *zap.Logger) (*Mailer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}
	return &Mailer{
		sender:    sender,
		repo:      repo,
		templates: tmpl,
		logger:    logger,
		attempts:  defaultAttempts,
		backoff:   time.Second,
	}, nil
}

// SendAbandonedCartReminder returns an error only when every attempt failed.
func (m *Mailer) SendAbandonedCartReminder(ctx context.Context, data ReminderEmail) error {
	body, err := m.render(abandonedCartTemplate, data)
	if err != nil {
		return err
	}
	userID := data.UserID
	return m.sendWithRetry(ctx, &userID, data.To, "You left items in your cart", body, models.TypeAbandonedCartReminder)
}

func (m *Mailer) SendOrderConfirmation(ctx context.Context, data OrderConfirmationEmail) error {
	body, err := m.render(orderConfirmationTemplate, data)
	if err != nil {
		return err
	}
	userID := data.UserID
	return m.sendWithRetry(ctx, &userID, data.To, "Order Confirmed!", body, models.TypeOrderConfirmation)
}

func (m *Mailer) render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := m.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("template render failed: %w", err)
	}
	return buf.String(), nil
}

func (m *Mailer) sendWithRetry(ctx context.Context, userID *uuid.UUID, to, subject, body, kind string) error {
	if to == "" {
		return fmt.Errorf("missing recipient for %s", kind)
	}

	var (
		lastErr   error
		messageID string
		attempt   int
	)
	for attempt = 0; attempt < m.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(time.Duration(attempt) * m.backoff):
			}
			if ctx.Err() != nil {
				break
			}
		}

		var result SendResult
		result, lastErr = m.sender.SendEmail(ctx, to, subject, body)
		if lastErr == nil {
			messageID = result.MessageID
			break
		}

		m.logger.Warn("send attempt failed",
			zap.String("type", kind),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	entry := &models.NotificationLog{
		UserID:     userID,
		Recipient:  to,
		Type:       kind,
		Channel:    models.ChannelEmail,
		Status:     models.StatusSent,
		RetryCount: attempt,
	}
	if lastErr != nil {
		entry.Status = models.StatusFailed
		entry.Error = lastErr.Error()
	}

	m.logger.Info("email processed",
		zap.String("type", kind),
		zap.String("status", entry.Status),
		zap.String("message_id", messageID),
	)

	if err := m.repo.SaveLog(context.WithoutCancel(ctx), entry); err != nil {
		m.logger.Error("failed to save notification log", zap.Error(err))
	}
	return lastErr
}
