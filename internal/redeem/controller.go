package redeem

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/0gfoundation/0g-data-redeem/internal/calculator"
	"github.com/0gfoundation/0g-data-redeem/internal/offers"
	"github.com/0gfoundation/0g-data-redeem/internal/pricing"
	"github.com/0gfoundation/0g-data-redeem/internal/receipt"
)

// ReceiptIssuer is satisfied by receipt.Signer.
type ReceiptIssuer interface {
	Issue(label string, amountMB, payout float64, at time.Time) (*receipt.Receipt, error)
}

// Controller applies transitions to the state stored for a session.
type Controller struct {
	store    Store
	engine   pricing.Engine
	policy   Policy
	receipts ReceiptIssuer
	log      *zap.Logger
	now      func() time.Time
}

func NewController(store Store, engine pricing.Engine, policy Policy, receipts ReceiptIssuer, log *zap.Logger) *Controller {
	return &Controller{
		store:    store,
		engine:   engine,
		policy:   policy,
		receipts: receipts,
		log:      log,
		now:      time.Now,
	}
}

func (c *Controller) Policy() Policy { return c.policy }

func (c *Controller) State(ctx context.Context, sid string) (State, error) {
	return c.store.Load(ctx, sid)
}

// Open starts confirming o. The amount must be a positive finite number.
func (c *Controller) Open(ctx context.Context, sid string, o offers.Offer) (State, error) {
	if !calculator.ValidAmount(o.AmountMB) {
		return State{}, calculator.ErrInvalidInput
	}
	return c.apply(ctx, sid, func(s State) State { return Open(s, c.engine, o) })
}

func (c *Controller) Cancel(ctx context.Context, sid string) (State, error) {
	return c.apply(ctx, sid, Cancel)
}

func (c *Controller) Close(ctx context.Context, sid string) (State, error) {
	return c.apply(ctx, sid, Close)
}

// Confirm confirms the pending redemption regardless of the control policy.
func (c *Controller) Confirm(ctx context.Context, sid string) (State, *receipt.Receipt, error) {
	return c.confirmWith(ctx, sid, Confirm)
}

// PressConfirm runs whatever the confirm control currently does.
func (c *Controller) PressConfirm(ctx context.Context, sid string) (State, *receipt.Receipt, error) {
	return c.confirmWith(ctx, sid, func(s State) State { return PressConfirm(s, c.policy) })
}

// Reset forgets the session entirely, like reloading the page: any pending
// redemption and the confirm control rebinding are dropped.
func (c *Controller) Reset(ctx context.Context, sid string) (State, error) {
	unlock, err := c.store.Lock(ctx, sid)
	if err != nil {
		return State{}, err
	}
	defer unlock()
	if err := c.store.Delete(ctx, sid); err != nil {
		return State{}, err
	}
	c.log.Debug("redeem session reset", zap.String("session", sid))
	return State{}, nil
}

func (c *Controller) confirmWith(ctx context.Context, sid string, fn func(State) State) (State, *receipt.Receipt, error) {
	unlock, err := c.store.Lock(ctx, sid)
	if err != nil {
		return State{}, nil, err
	}
	defer unlock()

	prev, err := c.store.Load(ctx, sid)
	if err != nil {
		return State{}, nil, err
	}
	next := fn(prev)

	var rc *receipt.Receipt
	if prev.Kind == KindPending && next.Kind == KindConfirmed && c.receipts != nil {
		done := next.Confirmed
		rc, err = c.receipts.Issue(done.Label, done.AmountMB, done.Payout, c.now())
		if err != nil {
			// the confirmation still stands; it just has no reference
			c.log.Error("issue receipt", zap.String("session", sid), zap.Error(err))
		} else {
			next.ReceiptID = rc.ID
		}
	}

	if err := c.store.Save(ctx, sid, next); err != nil {
		return State{}, nil, err
	}
	if next.Kind == KindConfirmed && prev.Kind == KindPending {
		c.log.Info("redemption confirmed (simulated)",
			zap.String("session", sid),
			zap.String("label", next.Confirmed.Label),
			zap.Float64("payout", next.Confirmed.Payout),
			zap.String("receipt", next.ReceiptID),
		)
	}
	return next, rc, nil
}

func (c *Controller) apply(ctx context.Context, sid string, fn func(State) State) (State, error) {
	unlock, err := c.store.Lock(ctx, sid)
	if err != nil {
		return State{}, err
	}
	defer unlock()

	prev, err := c.store.Load(ctx, sid)
	if err != nil {
		return State{}, err
	}
	next := fn(prev)
	if err := c.store.Save(ctx, sid, next); err != nil {
		return State{}, err
	}
	c.log.Debug("redeem transition",
		zap.String("session", sid),
		zap.Stringer("from", prev.Kind),
		zap.Stringer("to", next.Kind),
	)
	return next, nil
}
