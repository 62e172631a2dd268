package consumer

import (
	"context"
	"encoding/json"
	"strings"

	"settlement-service/apperrors"
	"settlement-service/models"
	awspkg "settlement-service/pkg/aws"

	"go.uber.org/zap"
)

const EventPaymentCaptured = "payment.captured"

// PaymentConfirmer is the part of the order service the consumer drives.
type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, gatewayOrderID, transactionID string) (*models.Order, error)
}

// Poller delivers queue messages to a handler until ctx is cancelled.
type Poller interface {
	StartPolling(ctx context.Context, handler awspkg.MessageHandler) error
}

// PaymentEvent is published by the payment gateway webhook bridge.
type PaymentEvent struct {
	Event          string `json:"event"`
	GatewayOrderID string `json:"gateway_order_id"`
	PaymentID      string `json:"payment_id"`
}

// snsEnvelope unwraps the SNS → SQS message wrapper
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// PaymentConsumer confirms orders from captured-payment events.
type PaymentConsumer struct {
	poller Poller
	orders PaymentConfirmer
	logger *zap.Logger
}

func NewPaymentConsumer(poller Poller, orders PaymentConfirmer, logger *zap.Logger) *PaymentConsumer {
	return &PaymentConsumer{poller: poller, orders: orders, logger: logger}
}

// Start blocks until ctx is cancelled.
func (c *PaymentConsumer) Start(ctx context.Context) {
	c.logger.Info("Payment consumer started")
	if err := c.poller.StartPolling(ctx, c.Handle); err != nil && ctx.Err() == nil {
		c.logger.Error("Payment consumer stopped", zap.Error(err))
		return
	}
	c.logger.Info("Payment consumer shutting down")
}

// Handle processes one message body. Malformed or unactionable events return nil so the
// queue drops them; transient failures return an error and the message is retried.
func (c *PaymentConsumer) Handle(ctx context.Context, body string) error {
	payload := unwrap(body)

	var event PaymentEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		c.logger.Error("failed to unmarshal payment event", zap.Error(err))
		return nil
	}
	if event.Event != EventPaymentCaptured {
		c.logger.Debug("ignoring payment event", zap.String("event", event.Event))
		return nil
	}
	if strings.TrimSpace(event.GatewayOrderID) == "" {
		c.logger.Error("payment event without gateway order id", zap.String("payment_id", event.PaymentID))
		return nil
	}

	order, err := c.orders.ConfirmPayment(ctx, event.GatewayOrderID, event.PaymentID)
	if err != nil {
		switch apperrors.From(err).Kind {
		case apperrors.KindNotFound, apperrors.KindValidation, apperrors.KindConflict:
			c.logger.Warn("dropping payment event",
				zap.String("gateway_order_id", event.GatewayOrderID),
				zap.Error(err),
			)
			return nil
		}
		c.logger.Error("failed to confirm payment",
			zap.String("gateway_order_id", event.GatewayOrderID),
			zap.Error(err),
		)
		return err
	}

	c.logger.Info("Payment captured",
		zap.String("order_id", order.ID.String()),
		zap.String("gateway_order_id", event.GatewayOrderID),
	)
	return nil
}

// unwrap returns the inner message of an SNS notification, or body unchanged.
func unwrap(body string) string {
	var envelope snsEnvelope
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return body
	}
	if envelope.Type == "Notification" && envelope.Message != "" {
		return envelope.Message
	}
	return body
}
