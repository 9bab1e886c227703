package dispatch

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"comanda/internal/domain/order"
)

// Structured order recaps are produced by the catalog web page and
// pasted into the chat. The format is fixed: a marker line, one
// "- NxItem - R$price" line per item and a trailing "Total: R$amount".

const recapMarker = "resumo do pedido"

var (
	recapItemLine = regexp.MustCompile(`(?m)^\s*-\s*(\d+)\s*x\s*(.+?)\s*-\s*R\$\s*([0-9.,]+)\s*$`)
	recapTotal    = regexp.MustCompile(`(?i)total:?\s*R\$\s*([0-9.,]+)`)
)

// parseRecap extracts the pre-parsed order from a recap message.
// Returns false when the message is not a recap or the pattern is
// malformed.
func parseRecap(text string) (*order.OrderData, bool) {
	if !strings.Contains(strings.ToLower(text), recapMarker) {
		return nil, false
	}

	itemMatches := recapItemLine.FindAllStringSubmatch(text, -1)
	if len(itemMatches) == 0 {
		return nil, false
	}

	totalMatch := recapTotal.FindStringSubmatch(text)
	if totalMatch == nil {
		return nil, false
	}

	items := make([]order.Item, 0, len(itemMatches))
	for _, m := range itemMatches {
		quantity, err := decimal.NewFromString(m[1])
		if err != nil || !quantity.IsPositive() {
			return nil, false
		}
		price, err := parseBRLAmount(m[3])
		if err != nil {
			return nil, false
		}
		items = append(items, order.Item{
			Name:     strings.TrimSpace(m[2]),
			Quantity: int(quantity.IntPart()),
			Price:    price,
		})
	}

	total, err := parseBRLAmount(totalMatch[1])
	if err != nil {
		return nil, false
	}

	return &order.OrderData{
		Items:  items,
		Total:  total,
		Source: order.SourceRecap,
	}, true
}

// parseBRLAmount handles both "1.234,56" and "45.00" spellings
func parseBRLAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.Contains(cleaned, ",") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}
	return decimal.NewFromString(cleaned)
}
