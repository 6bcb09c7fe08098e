package service

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nif-edu/fees-api/pkg/config"
)

type capturedDelivery struct {
	body      []byte
	signature string
	apiKey    string
}

func TestWebhookDeliverySignsPayload(t *testing.T) {
	var mu sync.Mutex
	var deliveries []capturedDelivery
	done := make(chan struct{}, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		deliveries = append(deliveries, capturedDelivery{
			body:      body,
			signature: r.Header.Get("X-Webhook-Signature"),
			apiKey:    r.Header.Get("X-API-Key"),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		done <- struct{}{}
	}))
	defer server.Close()

	svc := NewWebhookService(config.WebhookConfig{
		URL:     server.URL,
		APIKey:  "platform-key",
		Secret:  "shhh",
		Timeout: 2 * time.Second,
		Retries: 1,
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	svc.Emit("fee.collected", map[string]interface{}{"fee_record_id": "fee-1", "amount": 50000})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, deliveries, 1)
	d := deliveries[0]

	assert.Equal(t, "platform-key", d.apiKey)
	assert.Equal(t, Sign(d.body, "shhh"), d.signature)
	assert.True(t, hmac.Equal([]byte(Sign(d.body, "shhh")), []byte(d.signature)))

	var event WebhookEvent
	require.NoError(t, json.Unmarshal(d.body, &event))
	assert.Equal(t, "fee.collected", event.Event)
	assert.Equal(t, "fees-api", event.Source)
	assert.False(t, event.Timestamp.IsZero())
}

func TestWebhookRetriesFailedDelivery(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{}, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		current := attempts
		mu.Unlock()
		if current == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
		done <- struct{}{}
	}))
	defer server.Close()

	svc := NewWebhookService(config.WebhookConfig{
		URL:     server.URL,
		Timeout: 2 * time.Second,
		Retries: 3,
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	svc.Emit("student.archived", map[string]interface{}{"student_id": "st-1"})

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("webhook retry never succeeded")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, attempts)
}

func TestWebhookDisabledWithoutURL(t *testing.T) {
	svc := NewWebhookService(config.WebhookConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	// Must not panic or block.
	svc.Emit("fee.collected", map[string]interface{}{"amount": 1})
}

func TestSignIsDeterministic(t *testing.T) {
	payload := []byte(`{"event":"fee.collected"}`)
	assert.Equal(t, Sign(payload, "secret"), Sign(payload, "secret"))
	assert.NotEqual(t, Sign(payload, "secret"), Sign(payload, "other"))
}
