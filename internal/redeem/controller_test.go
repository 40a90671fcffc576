package redeem

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/0gfoundation/0g-data-redeem/internal/calculator"
	"github.com/0gfoundation/0g-data-redeem/internal/offers"
	"github.com/0gfoundation/0g-data-redeem/internal/receipt"
)

// ── Mock issuer ───────────────────────────────────────────────────────────────

type mockIssuer struct {
	mu     sync.Mutex
	issued []*receipt.Receipt
	err    error
}

func (m *mockIssuer) Issue(label string, amountMB, payout float64, at time.Time) (*receipt.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	r := &receipt.Receipt{ID: "rc-" + label, Label: label, AmountMB: amountMB, Payout: payout, IssuedAt: at.Unix()}
	m.issued = append(m.issued, r)
	return r, nil
}

func (m *mockIssuer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.issued)
}

// failingStore errors on every call.
type failingStore struct{}

var errStore = errors.New("store down")

func (failingStore) Load(context.Context, string) (State, error) { return State{}, errStore }
func (failingStore) Save(context.Context, string, State) error { return errStore }
func (failingStore) Delete(context.Context, string) error { return errStore }
func (failingStore) Lock(context.Context, string) (func(), error) { return func() {}, nil }

// slowStore widens the window between Load and Save.
type slowStore struct {
	Store
	delay time.Duration
}

func (s slowStore) Load(ctx context.Context, sid string) (State, error) {
	st, err := s.Store.Load(ctx, sid)
	time.Sleep(s.delay)
	return st, err
}

func newTestController(policy Policy, mi *mockIssuer) *Controller {
	return NewController(NewMemoryStore(), testEngine, policy, mi, zap.NewNop())
}

// ── Scenario ──────────────────────────────────────────────────────────────────

func TestController_Redeem200Scenario(t *testing.T) {
	mi := &mockIssuer{}
	c := newTestController(ResetEachCycle, mi)
	ctx := context.Background()

	s, err := c.Open(ctx, "sid", offer200)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	want := Pending{AmountMB: 200, Label: "200 MB", Value: 200, Commission: 40, Payout: 160}
	if s.Kind != KindPending || *s.Pending != want {
		t.Fatalf("after open: %+v", s)
	}

	s, rc, err := c.PressConfirm(ctx, "sid")
	if err != nil {
		t.Fatalf("PressConfirm: %v", err)
	}
	if s.Kind != KindConfirmed || s.Pending != nil {
		t.Fatalf("after confirm: %+v", s)
	}
	if rc == nil || rc.Label != "200 MB" || rc.Payout != 160 || s.ReceiptID != rc.ID {
		t.Fatalf("receipt: %+v state receipt=%q", rc, s.ReceiptID)
	}

	s, rc, err = c.PressConfirm(ctx, "sid")
	if err != nil {
		t.Fatal(err)
	}
	if s.Kind != KindIdle || rc != nil {
		t.Fatalf("second press should close without a receipt: %+v %+v", s, rc)
	}
	if mi.count() != 1 {
		t.Errorf("issued %d receipts, want 1", mi.count())
	}
}

func TestController_StateIsPerSession(t *testing.T) {
	c := newTestController(ResetEachCycle, &mockIssuer{})
	ctx := context.Background()
	c.Open(ctx, "a", offer200) //nolint:errcheck

	b, err := c.State(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if b.Kind != KindIdle {
		t.Fatalf("session b should be idle, got %s", b.Kind)
	}
	a, _ := c.State(ctx, "a")
	if a.Kind != KindPending {
		t.Fatalf("session a should be pending, got %s", a.Kind)
	}
}

func TestController_OpenRejectsInvalidAmount(t *testing.T) {
	c := newTestController(ResetEachCycle, &mockIssuer{})
	for _, mb := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		_, err := c.Open(context.Background(), "sid", offers.Offer{Label: "x", AmountMB: mb})
		if !errors.Is(err, calculator.ErrInvalidInput) {
			t.Errorf("Open(%v): got %v want ErrInvalidInput", mb, err)
		}
	}
}

func TestController_CancelAndClose(t *testing.T) {
	c := newTestController(ResetEachCycle, &mockIssuer{})
	ctx := context.Background()

	c.Open(ctx, "sid", offer200) //nolint:errcheck
	s, err := c.Cancel(ctx, "sid")
	if err != nil || s.Kind != KindIdle {
		t.Fatalf("Cancel: %+v %v", s, err)
	}

	c.Open(ctx, "sid", offer200) //nolint:errcheck
	s, err = c.Close(ctx, "sid")
	if err != nil || s.Kind != KindIdle {
		t.Fatalf("Close: %+v %v", s, err)
	}
}

func TestController_ConfirmWithoutPendingIsNoop(t *testing.T) {
	mi := &mockIssuer{}
	c := newTestController(ResetEachCycle, mi)
	s, rc, err := c.Confirm(context.Background(), "sid")
	if err != nil {
		t.Fatal(err)
	}
	if s.Kind != KindIdle || rc != nil || mi.count() != 0 {
		t.Fatalf("confirm from idle should do nothing: %+v %+v", s, rc)
	}
}

func TestController_StickyClose(t *testing.T) {
	mi := &mockIssuer{}
	c := newTestController(StickyClose, mi)
	ctx := context.Background()

	c.Open(ctx, "sid", offer200) //nolint:errcheck
	c.PressConfirm(ctx, "sid")   //nolint:errcheck
	c.Close(ctx, "sid")          //nolint:errcheck

	c.Open(ctx, "sid", offers.Offer{Label: "1 GB", AmountMB: 1000}) //nolint:errcheck
	s, rc, err := c.PressConfirm(ctx, "sid")
	if err != nil {
		t.Fatal(err)
	}
	if s.Kind != KindIdle || rc != nil {
		t.Fatalf("rebound confirm control should close: %+v", s)
	}
	if mi.count() != 1 {
		t.Errorf("issued %d receipts, want 1", mi.count())
	}

	// the explicit confirm action still works
	c.Open(ctx, "sid", offers.Offer{Label: "1 GB", AmountMB: 1000}) //nolint:errcheck
	s, _, _ = c.Confirm(ctx, "sid")
	if s.Kind != KindConfirmed {
		t.Fatalf("Confirm: got %s", s.Kind)
	}
}

func TestController_ReceiptFailureStillConfirms(t *testing.T) {
	mi := &mockIssuer{err: errors.New("no key")}
	c := newTestController(ResetEachCycle, mi)
	ctx := context.Background()

	c.Open(ctx, "sid", offer200) //nolint:errcheck
	s, rc, err := c.PressConfirm(ctx, "sid")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Kind != KindConfirmed || rc != nil || s.ReceiptID != "" {
		t.Fatalf("got %+v %+v", s, rc)
	}
}

func TestController_NilIssuer(t *testing.T) {
	c := NewController(NewMemoryStore(), testEngine, ResetEachCycle, nil, zap.NewNop())
	ctx := context.Background()
	c.Open(ctx, "sid", offer200) //nolint:errcheck
	s, rc, err := c.Confirm(ctx, "sid")
	if err != nil || s.Kind != KindConfirmed || rc != nil {
		t.Fatalf("got %+v %+v %v", s, rc, err)
	}
}

func TestController_StoreErrorsPropagate(t *testing.T) {
	c := NewController(failingStore{}, testEngine, ResetEachCycle, nil, zap.NewNop())
	ctx := context.Background()
	if _, err := c.Open(ctx, "sid", offer200); !errors.Is(err, errStore) {
		t.Errorf("Open: got %v", err)
	}
	if _, _, err := c.PressConfirm(ctx, "sid"); !errors.Is(err, errStore) {
		t.Errorf("PressConfirm: got %v", err)
	}
	if _, err := c.State(ctx, "sid"); !errors.Is(err, errStore) {
		t.Errorf("State: got %v", err)
	}
}

func TestController_WithRedisStore(t *testing.T) {
	rdb, _ := newTestRedis(t)
	c := NewController(NewRedisStore(rdb, time.Minute), testEngine, ResetEachCycle, &mockIssuer{}, zap.NewNop())
	ctx := context.Background()

	c.Open(ctx, "sid", offers.Offer{Label: "5 GB", AmountMB: 5000}) //nolint:errcheck
	s, rc, err := c.PressConfirm(ctx, "sid")
	if err != nil {
		t.Fatal(err)
	}
	if s.Kind != KindConfirmed || s.Confirmed.Payout != 4000 || rc == nil {
		t.Fatalf("got %+v", s)
	}
	loaded, _ := c.State(ctx, "sid")
	if loaded.ReceiptID != rc.ID || loaded.Confirmed.Label != "5 GB" {
		t.Fatalf("persisted state: %+v", loaded)
	}
}

// ── Concurrency ───────────────────────────────────────────────────────────────

func TestController_ConcurrentConfirmConsumesPendingOnce(t *testing.T) {
	rdb, _ := newTestRedis(t)
	backends := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(rdb, time.Minute),
	}
	for name, backend := range backends {
		t.Run(name, func(t *testing.T) {
			mi := &mockIssuer{}
			c := NewController(slowStore{Store: backend, delay: 20 * time.Millisecond}, testEngine, ResetEachCycle, mi, zap.NewNop())
			ctx := context.Background()
			if _, err := c.Open(ctx, "sid", offer200); err != nil {
				t.Fatal(err)
			}

			const n = 4
			var wg sync.WaitGroup
			receipts := make(chan *receipt.Receipt, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, rc, err := c.PressConfirm(ctx, "sid")
					if err != nil {
						t.Errorf("PressConfirm: %v", err)
						return
					}
					if rc != nil {
						receipts <- rc
					}
				}()
			}
			wg.Wait()
			close(receipts)

			if got := len(receipts); got != 1 {
				t.Errorf("receipts returned: got %d want 1", got)
			}
			if mi.count() != 1 {
				t.Errorf("receipts issued: got %d want 1", mi.count())
			}
		})
	}
}

func TestController_LockRespectsContext(t *testing.T) {
	st := NewMemoryStore()
	c := NewController(st, testEngine, ResetEachCycle, nil, zap.NewNop())

	unlock, err := st.Lock(context.Background(), "sid")
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Open(ctx, "sid", offer200); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Open on a held session: got %v want deadline exceeded", err)
	}
	// other sessions are unaffected
	if _, err := c.Open(context.Background(), "other", offer200); err != nil {
		t.Fatalf("Open other session: %v", err)
	}
}

// ── Reset ─────────────────────────────────────────────────────────────────────

func TestController_ResetClearsRebound(t *testing.T) {
	for name, st := range stores(t) {
		c := NewController(st, testEngine, StickyClose, &mockIssuer{}, zap.NewNop())
		ctx := context.Background()

		c.Open(ctx, "sid", offer200) //nolint:errcheck
		c.PressConfirm(ctx, "sid")   //nolint:errcheck
		c.Open(ctx, "sid", offer200) //nolint:errcheck

		s, err := c.Reset(ctx, "sid")
		if err != nil {
			t.Fatalf("%s: Reset: %v", name, err)
		}
		if s.Kind != KindIdle || s.ConfirmRebound {
			t.Errorf("%s: after reset: %+v", name, s)
		}
		loaded, _ := c.State(ctx, "sid")
		if loaded.Kind != KindIdle || loaded.ConfirmRebound {
			t.Errorf("%s: stored after reset: %+v", name, loaded)
		}

		// confirm works again under the sticky policy
		c.Open(ctx, "sid", offer200) //nolint:errcheck
		s, rc, _ := c.PressConfirm(ctx, "sid")
		if s.Kind != KindConfirmed || rc == nil {
			t.Errorf("%s: confirm after reset: %+v", name, s)
		}
	}
}

func TestController_ResetStoreError(t *testing.T) {
	c := NewController(failingStore{}, testEngine, ResetEachCycle, nil, zap.NewNop())
	if _, err := c.Reset(context.Background(), "sid"); !errors.Is(err, errStore) {
		t.Fatalf("Reset: got %v", err)
	}
}
