package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNotification(t *testing.T) {
	n, err := decodeNotification([]byte(`{"message_id":"m1","sender_id":"u1","receiver_id":"u2","content":"hi","created_at":"2024-05-01T10:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "m1", n.MessageID)
	assert.Equal(t, "u2", n.ReceiverID)
	assert.Equal(t, 2024, n.CreatedAt.Year())

	_, err = decodeNotification([]byte(`{"message_id":"m1"}`))
	assert.Error(t, err)

	_, err = decodeNotification([]byte(`not json`))
	assert.Error(t, err)
}
