package legacy_order

import (
	"context"
	"strings"
	"sync"
	"time"

	"comanda/internal/adapters/chat"
	"comanda/internal/domain/order"
	"comanda/pkg/logger"
	"comanda/pkg/templates"
)

// Submitter persists orders captured by the legacy flow
type Submitter interface {
	SubmitOrder(ctx context.Context, req order.SubmissionRequest) (*order.Receipt, error)
}

type step string

const (
	stepItem    step = "item"
	stepAddress step = "address"
)

type state struct {
	step      step
	item      string
	createdAt time.Time
}

// Service is the old single-purpose linear order flow, kept isolated so
// customers with the original shortcut phrase still get served. It does
// not share session state with the main flow.
type Service struct {
	mu        sync.Mutex
	states    map[string]*state
	sender    chat.Sender
	submitter Submitter
	templates *templates.Registry
	log       *logger.Logger
}

// NewService creates the legacy order flow
func NewService(sender chat.Sender, submitter Submitter, tmpl *templates.Registry, log *logger.Logger) *Service {
	if tmpl == nil {
		tmpl = templates.Get()
	}
	return &Service{
		states:    make(map[string]*state),
		sender:    sender,
		submitter: submitter,
		templates: tmpl,
		log:       log.With("component", "legacy_order"),
	}
}

// HasState reports whether the party is mid-flow here
func (s *Service) HasState(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.states[id]
	return ok
}

// TryStart begins the flow when the message is the legacy trigger
// phrase. Returns false when the message is not for this flow.
func (s *Service) TryStart(ctx context.Context, id string, text string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "pedido", "fazer pedido", "quero pedir":
	default:
		return false, nil
	}

	s.mu.Lock()
	s.states[id] = &state{step: stepItem, createdAt: time.Now()}
	s.mu.Unlock()

	err := s.sendTemplate(ctx, id, "chat/legacy_prompt_item")
	return true, err
}

// HandleMessage advances the linear flow one step
func (s *Service) HandleMessage(ctx context.Context, id string, text string) error {
	s.mu.Lock()
	st, ok := s.states[id]
	s.mu.Unlock()

	if !ok {
		return nil
	}

	switch st.step {
	case stepItem:
		s.mu.Lock()
		st.item = strings.TrimSpace(text)
		st.step = stepAddress
		s.mu.Unlock()
		return s.sendTemplate(ctx, id, "chat/legacy_prompt_address")

	case stepAddress:
		address := strings.TrimSpace(text)
		item := st.item

		s.mu.Lock()
		delete(s.states, id)
		s.mu.Unlock()

		// The legacy flow has always been fire-and-forget: the customer
		// gets the confirmation either way and staff reconcile failures
		// by hand.
		_, err := s.submitter.SubmitOrder(ctx, order.SubmissionRequest{
			CustomerPhone:   id,
			CustomerAddress: address,
			Items:           []order.Item{{Name: item, Quantity: 1}},
		})
		if err != nil {
			s.log.Errorw("Legacy order submission failed", "sender_id", id, "error", err)
		}

		return s.sendTemplate(ctx, id, "chat/legacy_done")
	}

	return nil
}

// Expire drops abandoned legacy states older than ttl
func (s *Service) Expire(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	expired := 0
	for id, st := range s.states {
		if st.createdAt.Before(cutoff) {
			delete(s.states, id)
			expired++
		}
	}
	return expired
}

func (s *Service) sendTemplate(ctx context.Context, id string, tmplID string) error {
	msg, err := s.templates.Render(tmplID, nil)
	if err != nil {
		return err
	}
	return s.sender.SendMessage(ctx, id, msg)
}
