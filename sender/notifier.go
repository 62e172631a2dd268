package sender

import (
	"context"
	"encoding/json"
	"time"

	"settlement-service/models"
	awspkg "settlement-service/pkg/aws"
	"settlement-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, message string, category models.NotificationCategory) error
}

// InAppNotifier stores the notification and fans it out over SNS for push delivery.
type InAppNotifier struct {
	repo      repository.NotificationRepository
	publisher awspkg.SNSPublisher
	topicARN  string
	logger    *zap.Logger
}

func NewInAppNotifier(repo repository.NotificationRepository, publisher awspkg.SNSPublisher, topicARN string, logger *zap.Logger) *InAppNotifier {
	return &InAppNotifier{repo: repo, publisher: publisher, topicARN: topicARN, logger: logger}
}

func (n *InAppNotifier) Notify(ctx context.Context, userID uuid.UUID, message string, category models.NotificationCategory) error {
	if err := n.repo.Create(ctx, &models.Notification{
		UserID:   userID,
		Message:  message,
		Category: category,
	}); err != nil {
		return err
	}

	if n.publisher == nil || n.topicARN == "" {
		return nil
	}
	payload, _ := json.Marshal(models.NotificationEvent{
		EventType: "notification_created",
		UserID:    userID.String(),
		Category:  string(category),
		Message:   message,
		Timestamp: time.Now(),
	})
	if err := n.publisher.Publish(ctx, n.topicARN, payload); err != nil {
		n.logger.Warn("failed to publish notification event", zap.Error(err), zap.String("user_id", userID.String()))
	}
	return nil
}
