package flow

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"comanda/internal/domain/order"
	"comanda/pkg/errors"
)

// Field validators are pure: raw text in, normalized value or a
// *errors.ValidationError out. Validation messages are user-facing and
// echoed back verbatim as re-prompts.

var (
	nameCharset   = regexp.MustCompile(`^[\p{L} ]+$`)
	streetCharset = regexp.MustCompile(`^[\p{L}\p{N} .,\-]+$`)
	numberCharset = regexp.MustCompile(`^[\p{L}\p{N} .,/\-]+$`)
)

// NameResult is a normalized customer name
type NameResult struct {
	Name      string
	FirstName string
}

// ValidateName checks a full customer name: 2-100 chars, letters and
// spaces only, at least two words.
func ValidateName(raw string) (NameResult, error) {
	name := strings.TrimSpace(raw)

	// Length limits count runes, not bytes, so accented names measure
	// the same as unaccented ones
	if utf8.RuneCountInString(name) < 2 {
		return NameResult{}, errors.NewValidationError("name",
			"Nome muito curto. Envie seu nome completo (nome e sobrenome).", raw)
	}
	if utf8.RuneCountInString(name) > 100 {
		return NameResult{}, errors.NewValidationError("name",
			"Nome muito longo. Use no máximo 100 caracteres.", raw)
	}
	if !nameCharset.MatchString(name) {
		return NameResult{}, errors.NewValidationError("name",
			"O nome deve conter apenas letras e espaços.", raw)
	}

	words := strings.Fields(name)
	if len(words) < 2 {
		return NameResult{}, errors.NewValidationError("name",
			"Preciso do seu nome completo (nome e sobrenome).", raw)
	}

	return NameResult{
		Name:      strings.Join(words, " "),
		FirstName: words[0],
	}, nil
}

// ValidateStreet checks a street name: 3-150 chars, letters, digits,
// spaces and ". , -".
func ValidateStreet(raw string) (string, error) {
	street := strings.TrimSpace(raw)

	if n := utf8.RuneCountInString(street); n < 3 || n > 150 {
		return "", errors.NewValidationError("street",
			"O nome da rua deve ter entre 3 e 150 caracteres.", raw)
	}
	if !streetCharset.MatchString(street) {
		return "", errors.NewValidationError("street",
			"A rua deve conter apenas letras, números, espaços e os sinais . , -", raw)
	}

	return street, nil
}

// ValidateNumber checks a house number, allowing apartment/complement
// notation: 1-50 chars, letters, digits, spaces and ". , - /".
func ValidateNumber(raw string) (string, error) {
	number := strings.TrimSpace(raw)

	if n := utf8.RuneCountInString(number); n < 1 || n > 50 {
		return "", errors.NewValidationError("number",
			"O número deve ter entre 1 e 50 caracteres.", raw)
	}
	if !numberCharset.MatchString(number) {
		return "", errors.NewValidationError("number",
			"O número deve conter apenas letras, números, espaços e os sinais . , - /", raw)
	}

	return number, nil
}

// ValidatePaymentTiming maps the timing answer to now/delivery
func ValidatePaymentTiming(raw string) (order.PaymentTiming, error) {
	switch normalizeInput(raw) {
	case "1", "agora", "online", "pagar agora":
		return order.TimingNow, nil
	case "2", "entrega", "na entrega", "pagar na entrega":
		return order.TimingDelivery, nil
	}

	return "", errors.NewValidationError("paymentTiming",
		"Opção inválida. Envie *1* para pagar agora ou *2* para pagar na entrega.", raw)
}

// ValidateOnlinePayment maps the online method answer. Only reachable
// when the timing is "now".
func ValidateOnlinePayment(raw string) (order.PaymentMethod, error) {
	switch normalizeInput(raw) {
	case "1", "pix":
		return order.MethodPix, nil
	case "2", "cartao", "cartão":
		return order.MethodCardOnline, nil
	}

	return "", errors.NewValidationError("paymentMethod",
		"Opção inválida. Envie *1* para PIX ou *2* para cartão.", raw)
}

// ValidateDeliveryPayment maps the delivery method answer. Only
// reachable when the timing is "delivery".
func ValidateDeliveryPayment(raw string) (order.PaymentMethod, error) {
	switch normalizeInput(raw) {
	case "1", "cartao", "cartão":
		return order.MethodCardDelivery, nil
	case "2", "dinheiro":
		return order.MethodCash, nil
	}

	return "", errors.NewValidationError("paymentMethod",
		"Opção inválida. Envie *1* para cartão ou *2* para dinheiro.", raw)
}

// ChangeResult is the parsed cash amount and the change owed
type ChangeResult struct {
	PaymentValue decimal.Decimal
	ChangeValue  decimal.Decimal
}

// ValidateChange parses the cash amount the customer will pay with and
// computes the change against the order total. Accepts "R$ 100,50",
// "100.50" and plain "100".
func ValidateChange(raw string, orderTotal decimal.Decimal) (ChangeResult, error) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.ReplaceAll(cleaned, "r$", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return ChangeResult{}, errors.NewValidationError("changeValue",
			"Não entendi o valor. Envie apenas o número, por exemplo: 100", raw)
	}

	if value.LessThan(orderTotal) {
		return ChangeResult{}, errors.NewValidationError("changeValue",
			"O valor precisa ser maior ou igual ao total do pedido ("+order.FormatBRL(orderTotal)+").", raw)
	}

	return ChangeResult{
		PaymentValue: value,
		ChangeValue:  value.Sub(orderTotal),
	}, nil
}

// normalizeInput lowercases and trims free-text answers before keyword
// matching
func normalizeInput(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
