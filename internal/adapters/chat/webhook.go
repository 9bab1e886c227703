package chat

import (
	"encoding/json"
	"net/http"

	"comanda/pkg/logger"
)

// WebhookHandler receives inbound messages pushed by the gateway.
// Each message is handed to the dispatcher before the ack is written,
// so the party's arrival order is fixed while the gateway is still
// waiting; the dispatcher's per-party queue returns immediately when
// a drain for that party is already running.
type WebhookHandler struct {
	handle func(InboundMessage)
	log    *logger.Logger
}

// NewWebhookHandler creates a webhook handler. handle is called once
// per inbound message on the request goroutine and must enqueue
// rather than block on slow work.
func NewWebhookHandler(handle func(InboundMessage), log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		handle: handle,
		log:    log.With("component", "chat_webhook"),
	}
}

// ServeHTTP implements http.Handler
func (wh *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		wh.log.Warnw("Invalid webhook request method", "method", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var msg InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		wh.log.Errorw("Failed to decode inbound message", "error", err)
		wh.respond(w, http.StatusBadRequest, false, "Invalid JSON")
		return
	}

	if msg.SenderID == "" || msg.Text == "" {
		wh.respond(w, http.StatusBadRequest, false, "senderId and text are required")
		return
	}

	wh.log.Debugw("Received inbound message", "sender_id", msg.SenderID, "chars", len(msg.Text))

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				wh.log.Errorw("Panic in message handler",
					"panic", rec,
					"sender_id", msg.SenderID,
				)
			}
		}()

		wh.handle(msg)
	}()

	// Ack once the message is enqueued so the gateway does not retry
	wh.respond(w, http.StatusOK, true, "")
}

func (wh *WebhookHandler) respond(w http.ResponseWriter, status int, ok bool, errMsg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload := map[string]interface{}{"ok": ok}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	json.NewEncoder(w).Encode(payload)
}
