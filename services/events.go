package services

import (
	"context"
	"encoding/json"

	awspkg "settlement-service/pkg/aws"

	"go.uber.org/zap"
)

// attributedPublisher tags messages with an event_type attribute for subscription filters.
type attributedPublisher interface {
	PublishEvent(ctx context.Context, topicArn, eventType string, message []byte) error
}

// eventPublisher sends best-effort JSON events to one SNS topic.
type eventPublisher struct {
	client   awspkg.SNSPublisher
	topicArn string
	logger   *zap.Logger
}

func (p eventPublisher) publish(ctx context.Context, eventType string, event interface{}) {
	if p.client == nil || p.topicArn == "" {
		p.logger.Debug("SNS client not configured, skipping event", zap.String("event_type", eventType))
		return
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event", zap.String("event_type", eventType), zap.Error(err))
		return
	}

	if ap, ok := p.client.(attributedPublisher); ok {
		err = ap.PublishEvent(ctx, p.topicArn, eventType, eventBytes)
	} else {
		err = p.client.Publish(ctx, p.topicArn, eventBytes)
	}
	if err != nil {
		p.logger.Error("Failed to publish event", zap.String("event_type", eventType), zap.Error(err))
		return
	}

	p.logger.Info("Published event", zap.String("event_type", eventType))
}

func recordCount(ctx context.Context, m awspkg.MetricsRecorder, logger *zap.Logger, name string) {
	if m == nil || !m.IsEnabled() {
		return
	}
	if err := m.RecordCount(ctx, name, nil); err != nil {
		logger.Warn("failed to record metric", zap.String("metric", name), zap.Error(err))
	}
}

func recordValue(ctx context.Context, m awspkg.MetricsRecorder, logger *zap.Logger, name string, v float64) {
	if m == nil || !m.IsEnabled() {
		return
	}
	if err := m.RecordValue(ctx, name, v, nil); err != nil {
		logger.Warn("failed to record metric", zap.String("metric", name), zap.Error(err))
	}
}
