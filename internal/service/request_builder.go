package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/terminal-connector/internal/models"
)

// minorUnitExponent is the number of decimal digits carried in minor units.
const minorUnitExponent = 2

const defaultCurrency = "USD"

// AmountToMinorUnits rounds half to even at the minor unit.
func AmountToMinorUnits(amount decimal.Decimal) int64 {
	return amount.RoundBank(minorUnitExponent).Shift(minorUnitExponent).IntPart()
}

func MinorUnitsToAmount(minor int64) decimal.Decimal {
	return decimal.New(minor, -minorUnitExponent)
}

// CorrelationID identifies one logical payment attempt for deduplication on
// the terminal side.
func CorrelationID(order models.Order) string {
	return fmt.Sprintf("%s--%s", order.ID, order.SessionID)
}

// BuildPaymentRequest converts a payment line into the sale payload.
func BuildPaymentRequest(order models.Order, line models.PaymentLine) (models.PaymentRequest, error) {
	if line.Amount.IsNegative() {
		return models.PaymentRequest{}, fmt.Errorf("%w: %s", models.ErrInvalidAmount, line.Amount.StringFixed(minorUnitExponent))
	}

	currency := strings.ToUpper(strings.TrimSpace(order.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	name := order.Name
	if name == "" {
		name = order.ID
	}

	return models.PaymentRequest{
		Amount:            AmountToMinorUnits(line.Amount),
		Currency:          currency,
		ExternalPaymentID: CorrelationID(order),
		OrderName:         name,
		Note:              fmt.Sprintf("Payment for %s", name),
	}, nil
}
