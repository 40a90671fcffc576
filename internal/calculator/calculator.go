package calculator

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/0gfoundation/0g-data-redeem/internal/offers"
	"github.com/0gfoundation/0g-data-redeem/internal/pricing"
)

// ErrInvalidInput is returned for amounts that are not positive finite numbers.
// Its message is shown to the user as-is.
var ErrInvalidInput = errors.New("Enter a valid number.")

type Unit string

const (
	MB Unit = "MB"
	GB Unit = "GB"
)

// ParseUnit accepts "MB" or "GB" in any case; empty means MB.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(MB):
		return MB, nil
	case string(GB):
		return GB, nil
	}
	return "", ErrInvalidInput
}

// Result is a priced custom amount.
type Result struct {
	Amount   float64       `json:"amount"`
	Unit     Unit          `json:"unit"`
	AmountMB float64       `json:"amount_mb"`
	Label    string        `json:"label"`
	Quote    pricing.Quote `json:"quote"`
}

// Offer returns the redeemable offer for this result.
func (r Result) Offer() offers.Offer {
	return offers.Offer{Label: r.Label, AmountMB: r.AmountMB}
}

// Calculate validates a raw amount and unit and prices it.
func Calculate(engine pricing.Engine, amount, unit string) (Result, error) {
	n, err := ParseAmount(amount)
	if err != nil {
		return Result{}, err
	}
	u, err := ParseUnit(unit)
	if err != nil {
		return Result{}, err
	}
	mb := n
	if u == GB {
		mb = n * offers.MBPerGB
	}
	return Result{
		Amount:   n,
		Unit:     u,
		AmountMB: mb,
		Label:    strconv.FormatFloat(n, 'f', -1, 64) + " " + string(u),
		Quote:    engine.Quote(mb),
	}, nil
}

// ParseAmount accepts positive finite decimals only.
func ParseAmount(s string) (float64, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, ErrInvalidInput
	}
	if !ValidAmount(n) {
		return 0, ErrInvalidInput
	}
	return n, nil
}

func ValidAmount(n float64) bool {
	return !math.IsNaN(n) && !math.IsInf(n, 0) && n > 0
}
