package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comanda/internal/adapters/chat"
	"comanda/internal/domain/customer"
	"comanda/internal/domain/order"
	"comanda/internal/domain/session"
	"comanda/internal/repository/memory"
	"comanda/internal/services/flow"
	"comanda/internal/services/legacy_order"
	"comanda/internal/services/survey"
	"comanda/pkg/errors"
	"comanda/pkg/logger"
)

type fakeSender struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeSender) SendMessage(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, text)
	return nil
}

func (f *fakeSender) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return ""
	}
	return f.msgs[len(f.msgs)-1]
}

type fakeSubmitter struct {
	mu   sync.Mutex
	reqs []order.SubmissionRequest
}

func (f *fakeSubmitter) SubmitOrder(_ context.Context, req order.SubmissionRequest) (*order.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return &order.Receipt{OrderID: "ord-1"}, nil
}

type fakeCustomers struct {
	profile      *customer.Profile
	profileErr   error
	lastOrder    *order.OrderData
	lastOrderErr error
}

func (f *fakeCustomers) GetCustomerByPhone(context.Context, string) (*customer.Profile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profile, nil
}

func (f *fakeCustomers) GetLastOrder(context.Context, string) (*order.OrderData, error) {
	if f.lastOrderErr != nil {
		return nil, f.lastOrderErr
	}
	return f.lastOrder, nil
}

type testEnv struct {
	svc       *Service
	store     *memory.SessionStore
	sender    *fakeSender
	submitter *fakeSubmitter
	survey    *survey.Service
	legacy    *legacy_order.Service
	customers *fakeCustomers
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.Get()

	store := memory.NewSessionStore(nil, log)
	t.Cleanup(store.Close)

	sender := &fakeSender{}
	submitter := &fakeSubmitter{}
	customers := &fakeCustomers{
		profileErr:   errors.ErrNotFound,
		lastOrderErr: errors.ErrNotFound,
	}

	flowCtrl := flow.NewController(store, sender, submitter, nil, nil, time.Minute, log)
	surveySvc := survey.NewService(sender, nil, nil, log)
	legacySvc := legacy_order.NewService(sender, submitter, nil, log)

	svc := NewService(store, flowCtrl, surveySvc, legacySvc, customers,
		sender, nil, "https://cardapio.example.com", log)

	return &testEnv{
		svc:       svc,
		store:     store,
		sender:    sender,
		submitter: submitter,
		survey:    surveySvc,
		legacy:    legacySvc,
		customers: customers,
	}
}

func (e *testEnv) inbound(id string, text string) {
	e.svc.HandleInbound(context.Background(), chat.InboundMessage{SenderID: id, Text: text})
}

const recapMsg = `Resumo do Pedido
- 2x Pizza Margherita - R$ 35,00
- 1x Refrigerante - R$ 15,00
Total: R$ 85,00`

func TestDispatch_SurveyWinsOverEverything(t *testing.T) {
	env := newTestEnv(t)
	id := "5511900000001"

	require.NoError(t, env.survey.Open(context.Background(), id))

	// Even a recap is consumed as a survey answer while one is open
	env.inbound(id, recapMsg)
	assert.True(t, env.survey.HasOpenSurvey(id))
	assert.Contains(t, env.sender.last(), "nota de *1* a *5*")
	assert.Equal(t, session.StateIdle, env.store.GetState(id))

	env.inbound(id, "5")
	assert.False(t, env.survey.HasOpenSurvey(id))
	assert.Contains(t, env.sender.last(), "Obrigado pela avaliação")
}

func TestDispatch_RecapStartsFlow(t *testing.T) {
	env := newTestEnv(t)
	id := "5511900000002"

	env.inbound(id, recapMsg)

	// No stored profile, so the flow asks to confirm the items
	assert.Equal(t, session.StateConfirmingOrder, env.store.GetState(id))
	assert.Contains(t, env.sender.last(), "R$ 85,00")
}

func TestDispatch_RecapWithProfileUsesExpressPath(t *testing.T) {
	env := newTestEnv(t)
	id := "5511900000003"

	env.customers.profileErr = nil
	env.customers.profile = &customer.Profile{
		Name:    "Carlos Lima",
		Phone:   id,
		Address: "Rua B, 77",
	}

	env.inbound(id, recapMsg)

	assert.Equal(t, session.StateConfirmingCustomerData, env.store.GetState(id))
	assert.Contains(t, env.sender.last(), "Carlos Lima")
	assert.Contains(t, env.sender.last(), "Rua B, 77")
}

func TestDispatch_IncompleteProfileFallsBackToManualEntry(t *testing.T) {
	env := newTestEnv(t)
	id := "5511900000004"

	env.customers.profileErr = nil
	env.customers.profile = &customer.Profile{Name: "Carlos Lima", Phone: id}

	env.inbound(id, "2")

	assert.Equal(t, session.StateCollectingName, env.store.GetState(id))
	assert.Contains(t, env.sender.last(), "nome completo")
}

func TestDispatch_ActiveFlowConsumesKeywords(t *testing.T) {
	env := newTestEnv(t)
	id := "5511900000005"

	env.inbound(id, "2")
	require.Equal(t, session.StateCollectingName, env.store.GetState(id))

	// "menu" mid-flow is flow input, and an invalid name at that
	env.inbound(id, "menu")
	assert.Equal(t, session.StateCollectingName, env.store.GetState(id))
	assert.NotContains(t, env.sender.last(), "Bem-vindo")
}

func TestDispatch_CancelThenMenuGreets(t *testing.T) {
	env := newTestEnv(t)
	id := "5511900000006"

	env.inbound(id, "2")
	env.inbound(id, "Ana Souza")
	require.Equal(t, session.StateCollectingStreet, env.store.GetState(id))

	env.inbound(id, "cancelar")
	assert.Equal(t, session.StateIdle, env.store.GetState(id))
	assert.Contains(t, env.sender.last(), "Pedido cancelado")

	env.inbound(id, "menu")
	assert.Contains(t, env.sender.last(), "Bem-vindo")
}

func TestDispatch_GreetingKeywords(t *testing.T) {
	env := newTestEnv(t)

	for _, greeting := range []string{"oi", "Olá", "BOM DIA", "menu"} {
		env.inbound("5511900000007", greeting)
		assert.Contains(t, env.sender.last(), "Bem-vindo", "greeting %q", greeting)
	}
}

func TestDispatch_MenuOptions(t *testing.T) {
	env := newTestEnv(t)
	id := "5511900000008"

	env.inbound(id, "1")
	assert.Contains(t, env.sender.last(), "https://cardapio.example.com")

	env.inbound(id, "4")
	assert.Contains(t, env.sender.last(), "atendente")

	// No previous order on record
	env.inbound(id, "3")
	assert.Contains(t, env.sender.last(), "Não encontrei um pedido anterior")
}

func TestDispatch_RepeatLastOrder(t *testing.T) {
	env := newTestEnv(t)
	id := "5511900000009"

	last := &order.OrderData{
		Items:  []order.Item{{Name: "Pizza Calabresa", Quantity: 1, Price: decimal.NewFromInt(40)}},
		Source: order.SourceRepeat,
	}
	last.RecomputeTotal()
	env.customers.lastOrderErr = nil
	env.customers.lastOrder = last

	env.inbound(id, "3")

	assert.Equal(t, session.StateConfirmingOrder, env.store.GetState(id))
	assert.Contains(t, env.sender.last(), "Pizza Calabresa")
}

func TestDispatch_LegacyFlow(t *testing.T) {
	env := newTestEnv(t)
	id := "5511900000010"

	env.inbound(id, "fazer pedido")
	require.True(t, env.legacy.HasState(id))
	assert.Contains(t, env.sender.last(), "gostaria de pedir")

	env.inbound(id, "Pizza Portuguesa")
	assert.Contains(t, env.sender.last(), "endereço completo")

	env.inbound(id, "Rua C, 99")
	assert.False(t, env.legacy.HasState(id))
	assert.Contains(t, env.sender.last(), "Pedido anotado")

	require.Len(t, env.submitter.reqs, 1)
	assert.Equal(t, "Rua C, 99", env.submitter.reqs[0].CustomerAddress)
	require.Len(t, env.submitter.reqs[0].Items, 1)
	assert.Equal(t, "Pizza Portuguesa", env.submitter.reqs[0].Items[0].Name)
}

func TestDispatch_Fallback(t *testing.T) {
	env := newTestEnv(t)

	env.inbound("5511900000011", "qwerty asdf")
	assert.Contains(t, env.sender.last(), "não entendi")
}

type gatedSender struct {
	fakeSender
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (g *gatedSender) SendMessage(ctx context.Context, id string, text string) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.gate
	}
	return g.fakeSender.SendMessage(ctx, id, text)
}

func TestDispatch_SamePartyMessagesKeepArrivalOrder(t *testing.T) {
	log := logger.Get()
	store := memory.NewSessionStore(nil, log)
	t.Cleanup(store.Close)

	sender := &gatedSender{entered: make(chan struct{}), gate: make(chan struct{})}
	submitter := &fakeSubmitter{}
	customers := &fakeCustomers{profileErr: errors.ErrNotFound, lastOrderErr: errors.ErrNotFound}

	flowCtrl := flow.NewController(store, sender, submitter, nil, nil, time.Minute, log)
	surveySvc := survey.NewService(sender, nil, nil, log)
	legacySvc := legacy_order.NewService(sender, submitter, nil, log)
	svc := NewService(store, flowCtrl, surveySvc, legacySvc, customers,
		sender, nil, "https://cardapio.example.com", log)

	id := "5511900000012"

	// First message stalls inside the gateway send. The name arriving
	// right behind it must wait its turn instead of being handled
	// against the still-idle session.
	go svc.HandleInbound(context.Background(), chat.InboundMessage{SenderID: id, Text: "2"})
	<-sender.entered

	svc.HandleInbound(context.Background(), chat.InboundMessage{SenderID: id, Text: "Ana Souza"})
	close(sender.gate)

	require.Eventually(t, func() bool {
		return store.GetState(id) == session.StateCollectingStreet
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Ana Souza", store.GetData(id).Name)
}

func TestDispatch_ConcurrentPartiesDoNotInterfere(t *testing.T) {
	env := newTestEnv(t)

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			env.inbound(id, "2")
			env.inbound(id, "Ana Souza")
		}(id)
	}
	wg.Wait()

	for _, id := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, session.StateCollectingStreet, env.store.GetState(id))
	}
}
