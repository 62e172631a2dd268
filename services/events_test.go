package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type attributedSNS struct {
	fakeSNS
	eventTypes []string
}

func (a *attributedSNS) PublishEvent(ctx context.Context, topicArn, eventType string, message []byte) error {
	a.eventTypes = append(a.eventTypes, eventType)
	return a.fakeSNS.Publish(ctx, topicArn, message)
}

func TestEventPublisher_UsesEventAttributesWhenSupported(t *testing.T) {
	client := &attributedSNS{}
	p := eventPublisher{client: client, topicArn: "arn:aws:sns:ap-south-1:000000000000:orders", logger: zap.NewNop()}

	p.publish(context.Background(), "order_created", map[string]string{"order_id": "1"})

	assert.Equal(t, []string{"order_created"}, client.eventTypes)
	assert.Equal(t, 1, client.count())
}

func TestEventPublisher_SkipsWithoutTopic(t *testing.T) {
	client := &fakeSNS{}
	p := eventPublisher{client: client, logger: zap.NewNop()}

	p.publish(context.Background(), "order_created", struct{}{})

	assert.Equal(t, 0, client.count())
}
