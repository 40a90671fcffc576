package pricing

import (
	"math"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	DefaultPricePerMB     = 1.0
	DefaultCommissionRate = 0.20
	DefaultCurrencySymbol = "₦"
)

// Quote is the money breakdown for a data amount. Values are kept unrounded
// so that Payout == Value - Commission holds on the numbers themselves.
type Quote struct {
	Value      float64 `json:"value"`
	Commission float64 `json:"commission"`
	Payout     float64 `json:"payout"`
}

// Engine prices data volumes.
type Engine struct {
	PricePerMB     float64
	CommissionRate float64
}

func NewEngine(pricePerMB, commissionRate float64) Engine {
	return Engine{PricePerMB: pricePerMB, CommissionRate: commissionRate}
}

// Quote is defined for any finite amount, including zero and negatives.
// Callers validate positivity before showing a quote to a user.
func (e Engine) Quote(amountMB float64) Quote {
	value := amountMB * e.PricePerMB
	commission := value * e.CommissionRate
	return Quote{
		Value:      value,
		Commission: commission,
		Payout:     value - commission,
	}
}

// CommissionPercent renders the rate for labels, e.g. 0.2 -> "20%".
func (e Engine) CommissionPercent() string {
	return strconv.FormatFloat(e.CommissionRate*100, 'f', -1, 64) + "%"
}

// Formatter renders money amounts for display.
type Formatter struct {
	Symbol string
	p      *message.Printer
}

func NewFormatter(symbol string) Formatter {
	return Formatter{Symbol: symbol, p: message.NewPrinter(language.English)}
}

// Format rounds to the nearest whole unit (halves toward +Inf) and adds
// thousands separators: 1234.5 -> "₦1,235".
func (f Formatter) Format(n float64) string {
	p := f.p
	if p == nil {
		p = message.NewPrinter(language.English)
	}
	return f.Symbol + p.Sprintf("%.0f", RoundHalfUp(n))
}

// RoundHalfUp rounds to the nearest integer with ties going toward +Inf.
func RoundHalfUp(n float64) float64 {
	return math.Floor(n + 0.5)
}
