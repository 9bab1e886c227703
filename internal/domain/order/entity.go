package order

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentTiming says when the customer pays
type PaymentTiming string

const (
	TimingNow      PaymentTiming = "now"
	TimingDelivery PaymentTiming = "delivery"
)

// PaymentMethod identifies how the customer pays
type PaymentMethod string

const (
	MethodPix          PaymentMethod = "pix"
	MethodCardOnline   PaymentMethod = "card_online"
	MethodCardDelivery PaymentMethod = "card_delivery"
	MethodCash         PaymentMethod = "cash"
)

// Label returns the customer-facing name of the payment method
func (m PaymentMethod) Label() string {
	switch m {
	case MethodPix:
		return "PIX"
	case MethodCardOnline:
		return "Cartão (online)"
	case MethodCardDelivery:
		return "Cartão na entrega"
	case MethodCash:
		return "Dinheiro"
	default:
		return string(m)
	}
}

// Source tags record which entry path produced an order
const (
	SourceDirect  = "direct"
	SourceRecap   = "recap"
	SourceExpress = "express"
	SourceRepeat  = "repeat"
	SourceLegacy  = "legacy"
)

// Item is one order line
type Item struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// OrderData holds the items captured before the conversation starts
// filling in customer fields. Total is fixed at flow start and only
// changes through RecomputeTotal.
type OrderData struct {
	Items  []Item          `json:"items"`
	Total  decimal.Decimal `json:"total"`
	Source string          `json:"source"`
}

// RecomputeTotal derives Total from the item lines
func (o *OrderData) RecomputeTotal() {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	o.Total = total
}

// SubmissionRequest is the payload sent to the external orders API
type SubmissionRequest struct {
	CustomerName    string          `json:"customerName"`
	CustomerPhone   string          `json:"customerPhone"`
	CustomerAddress string          `json:"customerAddress"`
	Observations    string          `json:"observations"`
	Items           []Item          `json:"items"`
	Total           decimal.Decimal `json:"total"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
}

// Receipt is the orders API acknowledgement
type Receipt struct {
	OrderID string `json:"orderId"`
}

// FormatBRL renders a monetary amount as "R$ 12,50"
func FormatBRL(d decimal.Decimal) string {
	return "R$ " + strings.ReplaceAll(d.StringFixed(2), ".", ",")
}
