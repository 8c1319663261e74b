package rabbitmq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chathub/internal/models"
)

func TestNewPublisherFallsBackToNoop(t *testing.T) {
	p := NewPublisher("", "chat.events")

	assert.Equal(t, "noop", PublisherMode(p))
	assert.Equal(t, "empty amqp url", PublisherNoopReason(p))
	require.NoError(t, p.Publish(context.Background(), "notifications.message", models.Notification{ReceiverID: "u2"}))
	require.NoError(t, p.Close())
}
