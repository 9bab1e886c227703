package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRecomputeTotal(t *testing.T) {
	od := OrderData{
		Items: []Item{
			{Name: "Pizza", Quantity: 2, Price: decimal.RequireFromString("35.50")},
			{Name: "Refrigerante", Quantity: 1, Price: decimal.NewFromInt(15)},
		},
	}
	od.RecomputeTotal()
	assert.Equal(t, "86", od.Total.String())

	od.Items = nil
	od.RecomputeTotal()
	assert.True(t, od.Total.IsZero())
}

func TestFormatBRL(t *testing.T) {
	assert.Equal(t, "R$ 12,50", FormatBRL(decimal.RequireFromString("12.5")))
	assert.Equal(t, "R$ 85,00", FormatBRL(decimal.NewFromInt(85)))
	assert.Equal(t, "R$ 0,00", FormatBRL(decimal.Zero))
}

func TestPaymentMethodLabel(t *testing.T) {
	assert.Equal(t, "PIX", MethodPix.Label())
	assert.Equal(t, "Dinheiro", MethodCash.Label())
	assert.Equal(t, "boleto", PaymentMethod("boleto").Label())
}
