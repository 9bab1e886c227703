package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"comanda/internal/adapters/chat"
	"comanda/internal/domain/customer"
	"comanda/internal/domain/order"
	"comanda/internal/metrics"
	"comanda/internal/repository/memory"
	"comanda/internal/services/flow"
	"comanda/internal/services/legacy_order"
	"comanda/internal/services/survey"
	"comanda/pkg/errors"
	"comanda/pkg/logger"
	"comanda/pkg/templates"
)

// CustomerAPI is the slice of the orders adapter the dispatcher needs
type CustomerAPI interface {
	GetCustomerByPhone(ctx context.Context, phone string) (*customer.Profile, error)
	GetLastOrder(ctx context.Context, phone string) (*order.OrderData, error)
}

// Service is the single entry point for inbound messages. It applies a
// strict priority order across the independent flows and forwards each
// message to exactly one of them.
type Service struct {
	store      *memory.SessionStore
	flow       *flow.Controller
	survey     *survey.Service
	legacy     *legacy_order.Service
	customers  CustomerAPI
	sender     chat.Sender
	templates  *templates.Registry
	catalogURL string
	log        *logger.Logger

	qmu    sync.Mutex
	queues map[string]*partyQueue
}

// partyQueue holds one party's messages awaiting processing. active
// marks that some goroutine is draining it.
type partyQueue struct {
	pending []chat.InboundMessage
	active  bool
}

// NewService creates the dispatcher
func NewService(
	store *memory.SessionStore,
	flowCtrl *flow.Controller,
	surveySvc *survey.Service,
	legacySvc *legacy_order.Service,
	customers CustomerAPI,
	sender chat.Sender,
	tmpl *templates.Registry,
	catalogURL string,
	log *logger.Logger,
) *Service {
	if tmpl == nil {
		tmpl = templates.Get()
	}
	return &Service{
		store:      store,
		flow:       flowCtrl,
		survey:     surveySvc,
		legacy:     legacySvc,
		customers:  customers,
		sender:     sender,
		templates:  tmpl,
		catalogURL: catalogURL,
		log:        log.With("component", "dispatcher"),
	}
}

// Static keyword sets for the greeting branch
var greetingWords = map[string]struct{}{
	"oi": {}, "ola": {}, "olá": {}, "menu": {}, "cardapio": {}, "cardápio": {},
	"bom dia": {}, "boa tarde": {}, "boa noite": {}, "inicio": {}, "início": {},
}

// HandleInbound processes one inbound message end to end. Messages
// from the same party are queued in arrival order and drained by a
// single goroutine, so each one observes the session mutations of the
// previous one and replies never come out of order; different parties
// proceed in parallel. The call returns immediately when another
// goroutine is already draining the party's queue.
func (s *Service) HandleInbound(ctx context.Context, msg chat.InboundMessage) {
	s.qmu.Lock()
	if s.queues == nil {
		s.queues = make(map[string]*partyQueue)
	}
	q := s.queues[msg.SenderID]
	if q == nil {
		q = &partyQueue{}
		s.queues[msg.SenderID] = q
	}
	q.pending = append(q.pending, msg)
	if q.active {
		s.qmu.Unlock()
		return
	}
	q.active = true
	s.qmu.Unlock()

	for {
		s.qmu.Lock()
		if len(q.pending) == 0 {
			q.active = false
			s.qmu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		s.qmu.Unlock()

		s.process(ctx, next)
	}
}

// process runs exactly one message through the routing table
func (s *Service) process(ctx context.Context, msg chat.InboundMessage) {
	start := time.Now()
	defer func() {
		metrics.MessageHandlingDuration.Observe(time.Since(start).Seconds())
		metrics.ActiveSessions.Set(float64(s.store.Count()))
	}()

	defer func() {
		if rec := recover(); rec != nil {
			// Session state is deliberately left untouched so a
			// transient fault does not force the customer to restart.
			s.log.Errorw("Panic while handling message", "sender_id", msg.SenderID, "panic", rec)
			s.sendTemplate(ctx, msg.SenderID, "chat/error_generic", nil)
		}
	}()

	branch, err := s.route(ctx, msg.SenderID, msg.Text)
	metrics.MessagesProcessed.WithLabelValues(branch).Inc()

	if err != nil {
		s.log.Errorw("Message handling failed",
			"sender_id", msg.SenderID,
			"branch", branch,
			"error", err,
		)
		s.sendTemplate(ctx, msg.SenderID, "chat/error_generic", nil)
	}
}

// route picks exactly one branch for the message and runs it. The
// priority order is fixed; earlier branches always win.
func (s *Service) route(ctx context.Context, id string, text string) (string, error) {
	// 1. Open satisfaction survey
	if s.survey.HasOpenSurvey(id) {
		return "survey", s.survey.HandleResponse(ctx, id, text)
	}

	// 2. Structured order recap pasted from the catalog
	if od, ok := parseRecap(text); ok {
		return "recap", s.startRecapFlow(ctx, id, od)
	}

	// 3. Active conversation in the main flow
	if s.store.IsInActiveFlow(id) {
		return "flow", s.flow.HandleMessage(ctx, id, text)
	}

	// 4. Legacy linear flow
	if s.legacy.HasState(id) {
		return "legacy", s.legacy.HandleMessage(ctx, id, text)
	}
	if started, err := s.legacy.TryStart(ctx, id, text); started {
		return "legacy", err
	}

	// 5. Static greeting / menu keywords
	norm := normalize(text)
	if _, ok := greetingWords[norm]; ok {
		return "greeting", s.sendTemplate(ctx, id, "chat/greeting", nil)
	}

	// 6. Numbered main menu
	switch norm {
	case "1":
		return "menu", s.sendTemplate(ctx, id, "chat/catalog", map[string]interface{}{
			"CatalogURL": s.catalogURL,
		})
	case "2":
		return "menu", s.startNewOrder(ctx, id)
	case "3":
		return "menu", s.repeatLastOrder(ctx, id)
	case "4":
		return "menu", s.sendTemplate(ctx, id, "chat/handoff", nil)
	}

	// 7. Fallback
	return "fallback", s.sendTemplate(ctx, id, "chat/fallback", nil)
}

// startRecapFlow enters the order flow with pre-parsed items, using the
// express path when a complete profile exists.
func (s *Service) startRecapFlow(ctx context.Context, id string, od *order.OrderData) error {
	if profile := s.lookupProfile(ctx, id); profile != nil {
		return s.flow.StartExpressFlowWithOrder(ctx, id, profile, od)
	}
	return s.flow.StartFlowWithOrder(ctx, id, od)
}

// startNewOrder enters a fresh order, using the express path when a
// complete profile exists.
func (s *Service) startNewOrder(ctx context.Context, id string) error {
	if profile := s.lookupProfile(ctx, id); profile != nil {
		return s.flow.StartExpressFlow(ctx, id, profile)
	}
	return s.flow.StartDirectOrder(ctx, id)
}

// repeatLastOrder re-enters the flow with the party's previous order
func (s *Service) repeatLastOrder(ctx context.Context, id string) error {
	od, err := s.customers.GetLastOrder(ctx, id)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			s.log.Warnw("Last order lookup failed", "sender_id", id, "error", err)
		}
		return s.sendTemplate(ctx, id, "chat/no_last_order", nil)
	}

	if profile := s.lookupProfile(ctx, id); profile != nil {
		return s.flow.StartExpressFlowWithOrder(ctx, id, profile, od)
	}
	return s.flow.StartFlowWithOrder(ctx, id, od)
}

// lookupProfile returns a complete profile or nil. Lookup failures of
// any kind mean "no express path available".
func (s *Service) lookupProfile(ctx context.Context, id string) *customer.Profile {
	profile, err := s.customers.GetCustomerByPhone(ctx, id)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) && !errors.Is(err, errors.ErrProfileIncomplete) {
			s.log.Warnw("Profile lookup failed", "sender_id", id, "error", err)
		}
		return nil
	}
	if !profile.Complete() {
		return nil
	}
	return profile
}

func (s *Service) sendTemplate(ctx context.Context, id string, tmplID string, data interface{}) error {
	msg, err := s.templates.Render(tmplID, data)
	if err != nil {
		return errors.Wrapf(err, "render template %s", tmplID)
	}
	return s.sender.SendMessage(ctx, id, msg)
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
