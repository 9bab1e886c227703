package flow

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"comanda/internal/adapters/chat"
	"comanda/internal/domain/customer"
	"comanda/internal/domain/order"
	"comanda/internal/domain/session"
	"comanda/internal/metrics"
	"comanda/internal/repository/memory"
	"comanda/pkg/errors"
	"comanda/pkg/logger"
	"comanda/pkg/templates"
)

// OrderSubmitter persists a finalized order in the external orders API
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, req order.SubmissionRequest) (*order.Receipt, error)
}

// Controller is the conversation state machine. Given the party's
// current state and an inbound message it decides the next state,
// mutates accumulated data through the validators and produces the
// outbound replies.
type Controller struct {
	store     *memory.SessionStore
	sender    chat.Sender
	submitter OrderSubmitter
	templates *templates.Registry
	clock     memory.Clock
	grace     time.Duration
	log       *logger.Logger
	handlers  map[session.State]stateHandler

	invalidateProfile func(ctx context.Context, phone string)
}

type stateHandler func(ctx context.Context, id string, text string) error

// NewController creates the flow controller
func NewController(
	store *memory.SessionStore,
	sender chat.Sender,
	submitter OrderSubmitter,
	tmpl *templates.Registry,
	clock memory.Clock,
	completionGrace time.Duration,
	log *logger.Logger,
) *Controller {
	if tmpl == nil {
		tmpl = templates.Get()
	}
	if clock == nil {
		clock = memory.SystemClock()
	}
	if completionGrace == 0 {
		completionGrace = 5 * time.Minute
	}

	c := &Controller{
		store:     store,
		sender:    sender,
		submitter: submitter,
		templates: tmpl,
		clock:     clock,
		grace:     completionGrace,
		log:       log.With("component", "flow_controller"),
	}

	c.handlers = map[session.State]stateHandler{
		session.StateConfirmingCustomerData: c.handleConfirmingCustomerData,
		session.StateConfirmingOrder:        c.handleConfirmingOrder,
		session.StateCollectingName:         c.handleCollectingName,
		session.StateCollectingStreet:       c.handleCollectingStreet,
		session.StateCollectingNumber:       c.handleCollectingNumber,
		session.StateCollectingObservations: c.handleCollectingObservations,
		session.StateSelectingPayment:       c.handleSelectingPayment,
		session.StateWaitingPayment:         c.handleWaitingPayment,
		session.StateOrderCompleted:         c.handleOrderCompleted,
	}

	return c
}

// SetProfileInvalidator registers a hook that drops the party's cached
// profile after an order is saved, since the backend may have updated
// the stored customer data from the submission.
func (c *Controller) SetProfileInvalidator(fn func(ctx context.Context, phone string)) {
	c.invalidateProfile = fn
}

// Global command keywords, matched against the whole normalized message
var (
	cancelWords = wordSet("cancelar", "parar", "sair", "cancel", "stop", "exit")
	humanWords  = wordSet("atendente", "humano", "suporte", "falar com atendente")
	helpWords   = wordSet("ajuda", "help", "comandos")
	backWords   = wordSet("voltar", "anterior", "back")
)

// backTable maps each state to its predecessor. States absent here do
// not support going back.
var backTable = map[session.State]session.State{
	session.StateCollectingName:         session.StateConfirmingOrder,
	session.StateCollectingStreet:       session.StateCollectingName,
	session.StateCollectingNumber:       session.StateCollectingStreet,
	session.StateCollectingObservations: session.StateCollectingNumber,
	session.StateSelectingPayment:       session.StateCollectingObservations,
}

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func matches(set map[string]struct{}, norm string) bool {
	_, ok := set[norm]
	return ok
}

// HandleMessage processes one inbound message for a party with an
// active session. Global commands win over state handling regardless of
// the current state.
func (c *Controller) HandleMessage(ctx context.Context, id string, text string) error {
	norm := normalizeInput(text)

	switch {
	case matches(cancelWords, norm):
		c.store.ResetSession(id)
		return c.sendTemplate(ctx, id, "chat/cancelled", nil)

	case matches(humanWords, norm):
		return c.sendTemplate(ctx, id, "chat/handoff", nil)

	case matches(helpWords, norm):
		return c.sendTemplate(ctx, id, "chat/help", nil)

	case matches(backWords, norm):
		return c.handleBack(ctx, id)
	}

	state := c.store.GetState(id)
	handler, ok := c.handlers[state]
	if !ok {
		return errors.Wrapf(errors.ErrNoActiveFlow, "state %s has no handler for sender %s", state, id)
	}

	return handler(ctx, id, text)
}

// handleBack moves the session to the documented predecessor and
// re-issues that state's entry prompt.
func (c *Controller) handleBack(ctx context.Context, id string) error {
	state := c.store.GetState(id)

	prev, ok := backTable[state]
	if !ok {
		return c.sendTemplate(ctx, id, "chat/back_unavailable", nil)
	}

	var patch func(*session.Data)
	if state == session.StateSelectingPayment {
		// Leaving the payment sub-machine discards partial payment input
		patch = func(d *session.Data) {
			d.PaymentStep = session.PaymentStepNone
			d.PaymentTiming = ""
			d.PaymentMethod = ""
			d.PaymentValue = decimal.Zero
			d.ChangeValue = decimal.Zero
		}
	}

	c.store.SetState(id, prev, patch)
	return c.sendStatePrompt(ctx, id)
}

// Sub-flow entry points, called by the dispatcher

// StartDirectOrder seeds a fresh order with no pre-parsed items
func (c *Controller) StartDirectOrder(ctx context.Context, id string) error {
	c.store.SetState(id, session.StateCollectingName, func(d *session.Data) {
		*d = session.Data{Order: &order.OrderData{Source: order.SourceDirect}}
	})
	return c.sendTemplate(ctx, id, "chat/prompt_name", nil)
}

// StartFlowWithOrder seeds the flow with pre-parsed items awaiting
// confirmation
func (c *Controller) StartFlowWithOrder(ctx context.Context, id string, od *order.OrderData) error {
	c.store.SetState(id, session.StateConfirmingOrder, func(d *session.Data) {
		*d = session.Data{Order: od}
	})
	return c.sendOrderConfirmation(ctx, id, od)
}

// StartExpressFlow seeds the flow with a stored profile and no items
func (c *Controller) StartExpressFlow(ctx context.Context, id string, profile *customer.Profile) error {
	return c.StartExpressFlowWithOrder(ctx, id, profile, &order.OrderData{Source: order.SourceExpress})
}

// StartExpressFlowWithOrder seeds the flow with a stored profile plus
// pre-parsed items
func (c *Controller) StartExpressFlowWithOrder(ctx context.Context, id string, profile *customer.Profile, od *order.OrderData) error {
	c.store.SetState(id, session.StateConfirmingCustomerData, func(d *session.Data) {
		*d = session.Data{Express: profile, Order: od}
	})
	return c.sendTemplate(ctx, id, "chat/confirm_customer_data", map[string]interface{}{
		"Name":    profile.Name,
		"Address": profile.Address,
	})
}

// Per-state handlers

func (c *Controller) handleConfirmingCustomerData(ctx context.Context, id string, text string) error {
	norm := normalizeInput(text)

	switch norm {
	case "1", "sim", "s", "confirmar", "yes":
		data := c.store.GetData(id)
		if data.Express == nil {
			// Session lost its profile somehow, fall back to manual entry
			c.store.SetState(id, session.StateCollectingName, nil)
			return c.sendStatePrompt(ctx, id)
		}

		profile := data.Express
		c.store.SetState(id, session.StateCollectingObservations, func(d *session.Data) {
			d.Name = profile.Name
			d.FirstName = firstWord(profile.Name)
			d.FullAddress = profile.Address
			d.Express = nil
		})
		return c.sendStatePrompt(ctx, id)

	case "2", "nao", "não", "n", "alterar", "trocar":
		c.store.SetState(id, session.StateCollectingName, func(d *session.Data) {
			d.Express = nil
		})
		return c.sendStatePrompt(ctx, id)
	}

	return c.sendStatePrompt(ctx, id)
}

func (c *Controller) handleConfirmingOrder(ctx context.Context, id string, text string) error {
	norm := normalizeInput(text)

	switch norm {
	case "1", "sim", "s", "confirmar", "yes":
		c.store.SetState(id, session.StateCollectingName, nil)
		return c.sendStatePrompt(ctx, id)

	case "2", "nao", "não", "n", "cancelar":
		c.store.ResetSession(id)
		return c.sendTemplate(ctx, id, "chat/cancelled", nil)
	}

	return c.sendStatePrompt(ctx, id)
}

func (c *Controller) handleCollectingName(ctx context.Context, id string, text string) error {
	result, err := ValidateName(text)
	if err != nil {
		return c.rejectInput(ctx, id, err)
	}

	c.store.SetState(id, session.StateCollectingStreet, func(d *session.Data) {
		d.Name = result.Name
		d.FirstName = result.FirstName
	})
	return c.sendStatePrompt(ctx, id)
}

func (c *Controller) handleCollectingStreet(ctx context.Context, id string, text string) error {
	street, err := ValidateStreet(text)
	if err != nil {
		return c.rejectInput(ctx, id, err)
	}

	c.store.SetState(id, session.StateCollectingNumber, func(d *session.Data) {
		d.Street = street
	})
	return c.sendStatePrompt(ctx, id)
}

func (c *Controller) handleCollectingNumber(ctx context.Context, id string, text string) error {
	number, err := ValidateNumber(text)
	if err != nil {
		return c.rejectInput(ctx, id, err)
	}

	c.store.SetState(id, session.StateCollectingObservations, func(d *session.Data) {
		d.Number = number
		d.FullAddress = d.Street + ", " + number
	})
	return c.sendStatePrompt(ctx, id)
}

func (c *Controller) handleCollectingObservations(ctx context.Context, id string, text string) error {
	observations := strings.TrimSpace(text)
	switch normalizeInput(text) {
	case "pular", "nenhuma", "nao", "não", "skip", "none":
		observations = ""
	}

	c.store.SetState(id, session.StateSelectingPayment, func(d *session.Data) {
		d.Observations = observations
		d.PaymentStep = session.PaymentStepTiming
	})
	return c.sendStatePrompt(ctx, id)
}

func (c *Controller) handleSelectingPayment(ctx context.Context, id string, text string) error {
	data := c.store.GetData(id)

	switch data.PaymentStep {
	case session.PaymentStepTiming:
		timing, err := ValidatePaymentTiming(text)
		if err != nil {
			return c.rejectInput(ctx, id, err)
		}

		c.store.UpdateData(id, func(d *session.Data) {
			d.PaymentTiming = timing
			d.PaymentStep = session.PaymentStepMethod
		})
		return c.sendStatePrompt(ctx, id)

	case session.PaymentStepMethod:
		if data.PaymentTiming == order.TimingNow {
			method, err := ValidateOnlinePayment(text)
			if err != nil {
				return c.rejectInput(ctx, id, err)
			}

			c.store.UpdateData(id, func(d *session.Data) {
				d.PaymentMethod = method
			})
			return c.finalize(ctx, id)
		}

		method, err := ValidateDeliveryPayment(text)
		if err != nil {
			return c.rejectInput(ctx, id, err)
		}

		if method == order.MethodCash {
			c.store.UpdateData(id, func(d *session.Data) {
				d.PaymentMethod = method
				d.PaymentStep = session.PaymentStepChange
			})
			return c.sendStatePrompt(ctx, id)
		}

		c.store.UpdateData(id, func(d *session.Data) {
			d.PaymentMethod = method
		})
		return c.finalize(ctx, id)

	case session.PaymentStepChange:
		result, err := ValidateChange(text, c.orderTotal(data))
		if err != nil {
			return c.rejectInput(ctx, id, err)
		}

		c.store.UpdateData(id, func(d *session.Data) {
			d.PaymentValue = result.PaymentValue
			d.ChangeValue = result.ChangeValue
		})
		return c.finalize(ctx, id)
	}

	return errors.Wrapf(errors.ErrUnknownState, "payment step %q for sender %s", data.PaymentStep, id)
}

func (c *Controller) handleWaitingPayment(ctx context.Context, id string, text string) error {
	return c.sendTemplate(ctx, id, "chat/awaiting_payment", nil)
}

// handleOrderCompleted keeps a finished order finished until the grace
// timer clears the session.
func (c *Controller) handleOrderCompleted(ctx context.Context, id string, text string) error {
	return c.sendTemplate(ctx, id, "chat/help", nil)
}

// finalize submits the order and, on success, moves the session to
// OrderCompleted and schedules its reset. On submission failure the
// session keeps its current state so the customer can retry by
// resending the last answer; the completion summary is never shown for
// an unsaved order.
func (c *Controller) finalize(ctx context.Context, id string) error {
	data := c.store.GetData(id)

	var items []order.Item
	total := decimal.Zero
	if data.Order != nil {
		items = data.Order.Items
		total = data.Order.Total
	}

	req := order.SubmissionRequest{
		CustomerName:    data.Name,
		CustomerPhone:   id,
		CustomerAddress: data.FullAddress,
		Observations:    data.Observations,
		Items:           items,
		Total:           total,
		PaymentMethod:   data.PaymentMethod,
	}

	receipt, err := c.submitter.SubmitOrder(ctx, req)
	if err != nil {
		metrics.OrdersSubmitted.WithLabelValues("failed").Inc()
		c.log.Errorw("Order submission failed",
			"sender_id", id,
			"total", total.String(),
			"error", err,
		)
		return c.sendTemplate(ctx, id, "chat/submission_failed", nil)
	}

	metrics.OrdersSubmitted.WithLabelValues("ok").Inc()
	c.store.SetState(id, session.StateOrderCompleted, nil)
	c.store.ScheduleReset(id, c.grace)

	if c.invalidateProfile != nil {
		c.invalidateProfile(ctx, id)
	}

	hasChange := data.PaymentMethod == order.MethodCash && data.PaymentValue.IsPositive()
	summary := map[string]interface{}{
		"OrderID":      receipt.OrderID,
		"Name":         data.Name,
		"Address":      data.FullAddress,
		"Items":        itemViews(items),
		"Total":        order.FormatBRL(total),
		"PaymentLabel": data.PaymentMethod.Label(),
		"HasChange":    hasChange,
		"PaymentValue": order.FormatBRL(data.PaymentValue),
		"ChangeValue":  order.FormatBRL(data.ChangeValue),
		"EtaWindow":    c.etaWindow(),
	}

	return c.sendTemplate(ctx, id, "chat/order_completed", summary)
}

// etaWindow derives the delivery estimate from the day of week
func (c *Controller) etaWindow() string {
	switch c.clock.Now().Weekday() {
	case time.Monday, time.Tuesday, time.Wednesday, time.Thursday:
		return "30-45 minutos"
	default:
		return "45-60 minutos"
	}
}

// rejectInput echoes the validator's reason and re-issues the current
// state's prompt. Non-validation errors propagate.
func (c *Controller) rejectInput(ctx context.Context, id string, err error) error {
	var verr *errors.ValidationError
	if !errors.As(err, &verr) {
		return err
	}

	metrics.ValidationFailures.WithLabelValues(verr.Field).Inc()

	if sendErr := c.sender.SendMessage(ctx, id, verr.Message); sendErr != nil {
		return sendErr
	}
	return c.sendStatePrompt(ctx, id)
}

// sendStatePrompt sends the entry prompt of the session's current state
func (c *Controller) sendStatePrompt(ctx context.Context, id string) error {
	data := c.store.GetData(id)

	switch c.store.GetState(id) {
	case session.StateConfirmingCustomerData:
		if data.Express == nil {
			return c.sendTemplate(ctx, id, "chat/prompt_name", nil)
		}
		return c.sendTemplate(ctx, id, "chat/confirm_customer_data", map[string]interface{}{
			"Name":    data.Express.Name,
			"Address": data.Express.Address,
		})

	case session.StateConfirmingOrder:
		return c.sendOrderConfirmation(ctx, id, data.Order)

	case session.StateCollectingName:
		return c.sendTemplate(ctx, id, "chat/prompt_name", nil)

	case session.StateCollectingStreet:
		return c.sendTemplate(ctx, id, "chat/prompt_street", map[string]interface{}{
			"FirstName": data.FirstName,
		})

	case session.StateCollectingNumber:
		return c.sendTemplate(ctx, id, "chat/prompt_number", nil)

	case session.StateCollectingObservations:
		return c.sendTemplate(ctx, id, "chat/prompt_observations", nil)

	case session.StateSelectingPayment:
		return c.sendPaymentPrompt(ctx, id, data)

	case session.StateWaitingPayment:
		return c.sendTemplate(ctx, id, "chat/awaiting_payment", nil)
	}

	return c.sendTemplate(ctx, id, "chat/fallback", nil)
}

func (c *Controller) sendPaymentPrompt(ctx context.Context, id string, data session.Data) error {
	switch data.PaymentStep {
	case session.PaymentStepMethod:
		if data.PaymentTiming == order.TimingNow {
			return c.sendTemplate(ctx, id, "chat/prompt_payment_online", nil)
		}
		return c.sendTemplate(ctx, id, "chat/prompt_payment_delivery", nil)

	case session.PaymentStepChange:
		return c.sendTemplate(ctx, id, "chat/prompt_change", map[string]interface{}{
			"Total": order.FormatBRL(c.orderTotal(data)),
		})
	}

	return c.sendTemplate(ctx, id, "chat/prompt_payment_timing", nil)
}

func (c *Controller) sendOrderConfirmation(ctx context.Context, id string, od *order.OrderData) error {
	if od == nil {
		od = &order.OrderData{}
	}
	return c.sendTemplate(ctx, id, "chat/confirm_order", map[string]interface{}{
		"Items": itemViews(od.Items),
		"Total": order.FormatBRL(od.Total),
	})
}

func (c *Controller) sendTemplate(ctx context.Context, id string, tmplID string, data interface{}) error {
	msg, err := c.templates.Render(tmplID, data)
	if err != nil {
		return errors.Wrapf(err, "render template %s", tmplID)
	}
	return c.sender.SendMessage(ctx, id, msg)
}

func (c *Controller) orderTotal(data session.Data) decimal.Decimal {
	if data.Order == nil {
		return decimal.Zero
	}
	return data.Order.Total
}

type itemView struct {
	Quantity int
	Name     string
	Price    string
}

func itemViews(items []order.Item) []itemView {
	views := make([]itemView, 0, len(items))
	for _, it := range items {
		views = append(views, itemView{
			Quantity: it.Quantity,
			Name:     it.Name,
			Price:    order.FormatBRL(it.Price),
		})
	}
	return views
}

func firstWord(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return s
}
