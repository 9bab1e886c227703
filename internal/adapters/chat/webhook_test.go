package chat

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comanda/pkg/logger"
)

func TestWebhook_DispatchesAndAcks(t *testing.T) {
	received := make(chan InboundMessage, 1)
	handler := NewWebhookHandler(func(msg InboundMessage) {
		received <- msg
	}, logger.Get())

	req := httptest.NewRequest(http.MethodPost, "/webhook",
		strings.NewReader(`{"senderId":"5511999","text":"oi"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":true`)

	select {
	case msg := <-received:
		assert.Equal(t, "5511999", msg.SenderID)
		assert.Equal(t, "oi", msg.Text)
	case <-time.After(time.Second):
		t.Fatal("message never reached the handler")
	}
}

func TestWebhook_RejectsBadRequests(t *testing.T) {
	handler := NewWebhookHandler(func(InboundMessage) {
		t.Fatal("handler must not run for rejected requests")
	}, logger.Get())

	// Wrong method
	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	// Broken JSON
	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing fields
	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"senderId":"x"}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "required")
}

func TestWebhook_HandlerPanicDoesNotEscape(t *testing.T) {
	done := make(chan struct{})
	handler := NewWebhookHandler(func(InboundMessage) {
		defer close(done)
		panic("boom")
	}, logger.Get())

	req := httptest.NewRequest(http.MethodPost, "/webhook",
		strings.NewReader(`{"senderId":"5511999","text":"oi"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
}

func TestClient_SendMessage(t *testing.T) {
	var gotPath, gotAuth, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(Config{GatewayURL: server.URL, Token: "secret"}, logger.Get())
	require.NoError(t, err)

	require.NoError(t, client.SendMessage(t.Context(), "5511999", "Olá!"))
	assert.Equal(t, "/messages", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Contains(t, gotBody, `"senderId":"5511999"`)
	assert.Contains(t, gotBody, "Olá!")
}

func TestClient_SendMessageGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(Config{GatewayURL: server.URL}, logger.Get())
	require.NoError(t, err)

	assert.Error(t, client.SendMessage(t.Context(), "5511999", "oi"))
}

func TestClient_RequiresGatewayURL(t *testing.T) {
	_, err := NewClient(Config{}, logger.Get())
	assert.Error(t, err)
}
