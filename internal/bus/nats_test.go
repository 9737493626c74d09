package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_WithoutURLIsNoop(t *testing.T) {
	p, err := NewPublisher("", "skytrace.jobs.completed")
	require.NoError(t, err)
	assert.Nil(t, p.Conn)

	assert.NoError(t, p.Publish(context.Background(), map[string]any{"job_id": "a"}))
	assert.NotPanics(t, p.Close)
}

func TestPublisher_NilIsNoop(t *testing.T) {
	var p *Publisher
	assert.NoError(t, p.Publish(context.Background(), struct{}{}))
	assert.NotPanics(t, p.Close)
}

func TestNewPublisher_Unreachable(t *testing.T) {
	_, err := NewPublisher("nats://127.0.0.1:1", "skytrace.jobs.completed")
	assert.Error(t, err)
}
