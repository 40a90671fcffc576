// Package view turns pricing results and redemption state into
// toolkit-independent view models. The HTML page is one consumer; the JSON
// API is another.
package view

import (
	"embed"
	"html/template"

	"github.com/0gfoundation/0g-data-redeem/internal/calculator"
	"github.com/0gfoundation/0g-data-redeem/internal/offers"
	"github.com/0gfoundation/0g-data-redeem/internal/pricing"
	"github.com/0gfoundation/0g-data-redeem/internal/redeem"
)

const (
	PendingNote   = "This is a simulation. No real transfer will occur until backend & payment integration are added."
	ConfirmedNote = "Note: This is a simulated confirmation. To actually pay users, integrate a payment provider (Paystack, Flutterwave, Stripe) and a backend."
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Templates parses the embedded page templates.
func Templates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))
}

type OfferRow struct {
	Label      string  `json:"label"`
	AmountMB   float64 `json:"amount_mb"`
	Value      string  `json:"value"`
	Commission string  `json:"commission"`
	Payout     string  `json:"payout"`
}

type Modal struct {
	Open         bool     `json:"open"`
	State        string   `json:"state"`
	Heading      string   `json:"heading,omitempty"`
	Lines        []string `json:"lines,omitempty"`
	Highlight    string   `json:"highlight,omitempty"`
	Note         string   `json:"note,omitempty"`
	Reference    string   `json:"reference,omitempty"`
	ConfirmLabel string   `json:"confirm_label"`
}

type Calc struct {
	Shown      bool    `json:"-"`
	Error      string  `json:"error,omitempty"`
	Label      string  `json:"label,omitempty"`
	AmountMB   float64 `json:"amount_mb,omitempty"`
	Value      string  `json:"value,omitempty"`
	Commission string  `json:"commission,omitempty"`
	Payout     string  `json:"payout,omitempty"`
}

// Page is everything the index template needs.
type Page struct {
	Query             string
	Amount            string
	Unit              string
	CommissionPercent string
	Rows              []OfferRow
	Calc              Calc
	Modal             Modal
}

// Renderer is the rendering surface the HTTP layer depends on.
type Renderer interface {
	RenderOffers(rows []offers.Row) []OfferRow
	RenderModal(s redeem.State, p redeem.Policy) Modal
	RenderCalc(res *calculator.Result, err error) Calc
}

// Presenter renders with a money formatter.
type Presenter struct {
	Engine pricing.Engine
	Money  pricing.Formatter
}

func NewPresenter(engine pricing.Engine, money pricing.Formatter) *Presenter {
	return &Presenter{Engine: engine, Money: money}
}

func (p *Presenter) RenderOffers(rows []offers.Row) []OfferRow {
	out := make([]OfferRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, OfferRow{
			Label:      r.Label,
			AmountMB:   r.AmountMB,
			Value:      p.Money.Format(r.Value),
			Commission: p.Money.Format(r.Commission),
			Payout:     p.Money.Format(r.Payout),
		})
	}
	return out
}

func (p *Presenter) RenderModal(s redeem.State, pol redeem.Policy) Modal {
	m := Modal{State: s.Kind.String(), ConfirmLabel: redeem.ConfirmLabel(s, pol)}
	switch {
	case s.Kind == redeem.KindPending && s.Pending != nil:
		pr := s.Pending
		m.Open = true
		m.Heading = pr.Label
		m.Lines = []string{
			"Value: " + p.Money.Format(pr.Value),
			"Commission (" + p.Engine.CommissionPercent() + "): " + p.Money.Format(pr.Commission),
		}
		m.Highlight = "Payout: " + p.Money.Format(pr.Payout)
		m.Note = PendingNote
	case s.Kind == redeem.KindConfirmed && s.Confirmed != nil:
		done := s.Confirmed
		m.Open = true
		m.Heading = "Success!"
		m.Lines = []string{"You requested to redeem " + done.Label + "."}
		m.Highlight = "Payout: " + p.Money.Format(done.Payout)
		m.Note = ConfirmedNote
		m.Reference = s.ReceiptID
	}
	return m
}

func (p *Presenter) RenderCalc(res *calculator.Result, err error) Calc {
	if err != nil {
		return Calc{Shown: true, Error: err.Error()}
	}
	if res == nil {
		return Calc{}
	}
	return Calc{
		Shown:      true,
		Label:      res.Label,
		AmountMB:   res.AmountMB,
		Value:      p.Money.Format(res.Quote.Value),
		Commission: p.Money.Format(res.Quote.Commission),
		Payout:     p.Money.Format(res.Quote.Payout),
	}
}
