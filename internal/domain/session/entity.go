package session

import (
	"time"

	"github.com/shopspring/decimal"

	"comanda/internal/domain/customer"
	"comanda/internal/domain/order"
)

// State is the conversation state of one remote party.
// StateIdle means "no active flow"; it is never stored, absence of a
// session entry is what represents it.
type State string

const (
	StateIdle                   State = "idle"
	StateConfirmingCustomerData State = "confirming_customer_data"
	StateConfirmingOrder        State = "confirming_order"
	StateCollectingName         State = "collecting_name"
	StateCollectingStreet       State = "collecting_street"
	StateCollectingNumber       State = "collecting_number"
	StateCollectingObservations State = "collecting_observations"
	StateSelectingPayment       State = "selecting_payment"
	StateWaitingPayment         State = "waiting_payment"
	StateOrderCompleted         State = "order_completed"
)

// Valid reports whether s belongs to the closed state set
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateConfirmingCustomerData, StateConfirmingOrder,
		StateCollectingName, StateCollectingStreet, StateCollectingNumber,
		StateCollectingObservations, StateSelectingPayment,
		StateWaitingPayment, StateOrderCompleted:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}

// PaymentStep is the sub-state nested inside StateSelectingPayment
type PaymentStep string

const (
	PaymentStepNone   PaymentStep = ""
	PaymentStepTiming PaymentStep = "timing"
	PaymentStepMethod PaymentStep = "method"
	PaymentStepChange PaymentStep = "change"
)

// Data is everything a conversation accumulates before finalization
type Data struct {
	Name         string
	FirstName    string
	Street       string
	Number       string
	FullAddress  string
	Observations string

	PaymentTiming order.PaymentTiming
	PaymentMethod order.PaymentMethod
	PaymentStep   PaymentStep

	// PaymentValue and ChangeValue are only populated for cash payments
	PaymentValue decimal.Decimal
	ChangeValue  decimal.Decimal

	Order   *order.OrderData
	Express *customer.Profile
}

// Session tracks one remote party, keyed by its phone-like identifier
type Session struct {
	ID           string
	State        State
	Data         Data
	CreatedAt    time.Time
	LastActivity time.Time
}
