package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "  req-1 ")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))

	ctx = WithRequestID(context.Background(), "   ")
	assert.Empty(t, RequestIDFromContext(ctx))
}

func TestActorRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), "frontdesk")
	assert.Equal(t, "frontdesk", ActorFromContext(ctx))
	assert.Empty(t, ActorFromContext(context.Background()))
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "01HZX")
	assert.Equal(t, "01HZX", CorrelationIDFromContext(ctx))
	assert.Empty(t, CorrelationIDFromContext(context.Background()))
}
