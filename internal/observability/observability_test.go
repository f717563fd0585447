package observability

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientMetaFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws/conversations/1", nil)
	req.Header.Set("X-Device-Id", "device-9")
	req.Header.Set("X-Request-Id", "req-42")
	req.RemoteAddr = "10.0.0.5:51234"

	meta := ClientMetaFromRequest(req)
	assert.Equal(t, "device-9", meta.DeviceID)
	assert.Equal(t, "req-42", meta.RequestID)
	assert.Equal(t, "10.0.0.5", meta.IP)
}

func TestClientMetaPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws/notifications", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.RemoteAddr = "10.0.0.5:51234"

	assert.Equal(t, "203.0.113.7", ClientMetaFromRequest(req).IP)
}

type publisherStub struct {
	routingKey string
	message    any
	headers    map[string]string
}

func (p *publisherStub) PublishJSON(ctx context.Context, routingKey string, message any, headers map[string]string) error {
	p.routingKey = routingKey
	p.message = message
	p.headers = headers
	return nil
}

func TestPublishEventNoopWithoutPublisher(t *testing.T) {
	SetPublisher(nil)
	assert.NoError(t, PublishEvent(context.Background(), "ws_events.conversations", EventEnvelope{}, nil))
}

func TestPublishEventDelegates(t *testing.T) {
	stub := &publisherStub{}
	SetPublisher(stub)
	defer SetPublisher(nil)

	envelope := EventEnvelope{EventType: "ws_events", EventName: "ws_connect"}
	headers := BuildHeaders("req-1", "trace-1")
	require.NoError(t, PublishEvent(context.Background(), "ws_events.conversations", envelope, headers))

	assert.Equal(t, "ws_events.conversations", stub.routingKey)
	assert.Equal(t, envelope, stub.message)
	assert.Equal(t, "req-1", stub.headers["x-request-id"])
	assert.Equal(t, "trace-1", stub.headers["trace_id"])
}
