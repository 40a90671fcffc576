// Package redeem implements the simulated redemption flow as pure
// transitions over an explicit State value.
package redeem

import (
	"github.com/0gfoundation/0g-data-redeem/internal/offers"
	"github.com/0gfoundation/0g-data-redeem/internal/pricing"
)

type Kind int

const (
	KindIdle Kind = iota
	KindPending
	KindConfirmed
)

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "idle"
	case KindPending:
		return "pending"
	case KindConfirmed:
		return "confirmed"
	}
	return "unknown"
}

func parseKind(s string) Kind {
	switch s {
	case "pending":
		return KindPending
	case "confirmed":
		return KindConfirmed
	}
	return KindIdle
}

// Pending is the redemption awaiting confirmation.
type Pending struct {
	AmountMB   float64 `json:"amount_mb"`
	Label      string  `json:"label"`
	Value      float64 `json:"value"`
	Commission float64 `json:"commission"`
	Payout     float64 `json:"payout"`
}

// State is a tagged union: Pending is set only in KindPending, Confirmed only
// in KindConfirmed. ConfirmRebound survives every transition once set.
type State struct {
	Kind           Kind
	Pending        *Pending
	Confirmed      *Pending
	ReceiptID      string
	ConfirmRebound bool
}

// Policy decides what the confirm control does after the first confirmation.
type Policy int

const (
	// ResetEachCycle: every cycle returns to idle with confirm available.
	ResetEachCycle Policy = iota
	// StickyClose: after the first confirmation the confirm control only
	// closes the modal until the session resets.
	StickyClose
)

func Open(s State, engine pricing.Engine, o offers.Offer) State {
	q := engine.Quote(o.AmountMB)
	return State{
		Kind: KindPending,
		Pending: &Pending{
			AmountMB:   o.AmountMB,
			Label:      o.Label,
			Value:      q.Value,
			Commission: q.Commission,
			Payout:     q.Payout,
		},
		ConfirmRebound: s.ConfirmRebound,
	}
}

// Cancel discards any pending redemption without side effects.
func Cancel(s State) State {
	return State{Kind: KindIdle, ConfirmRebound: s.ConfirmRebound}
}

func Close(s State) State { return Cancel(s) }

// Confirm moves Pending to KindConfirmed. Without a pending redemption it is a no-op.
func Confirm(s State) State {
	if s.Kind != KindPending || s.Pending == nil {
		return s
	}
	done := *s.Pending
	return State{Kind: KindConfirmed, Confirmed: &done, ConfirmRebound: true}
}

// PressConfirm is the confirm control's action in state s.
func PressConfirm(s State, p Policy) State {
	switch s.Kind {
	case KindConfirmed:
		return Close(s)
	case KindPending:
		if p == StickyClose && s.ConfirmRebound {
			return Close(s)
		}
		return Confirm(s)
	}
	return s
}

// ConfirmLabel is the caption of the confirm control.
func ConfirmLabel(s State, p Policy) string {
	if s.Kind == KindConfirmed || (p == StickyClose && s.ConfirmRebound) {
		return "Close"
	}
	return "Confirm"
}
