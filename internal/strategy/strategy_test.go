package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fxsim/paperbroker/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func stateAt(mid float64) model.MarketState {
	return model.MarketState{
		Tick: model.Tick{
			Symbol: "EURUSD",
			Bid:    d(mid - 0.0001),
			Ask:    d(mid + 0.0001),
			Time:   time.Now().UTC(),
		},
	}
}

// --- Registry tests ---

func TestRegistry_RegisterAndNew(t *testing.T) {
	r := NewRegistry()
	r.Register("noop", func() Strategy {
		return Func(func(model.MarketState) *model.Signal { return nil })
	})

	s, err := r.New("noop")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig := s.Analyze(stateAt(1.1000)); sig != nil {
		t.Errorf("noop strategy should never signal, got %+v", sig)
	}
}

func TestRegistry_UnknownName(t *testing.T) {
	r := NewRegistry()
	_, err := r.New("missing")
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestRegistry_FreshInstancePerNew(t *testing.T) {
	r := NewRegistry()
	r.Register("sma", func() Strategy {
		return NewSMACrossover(2, 3, d(0.1), d(20), d(40))
	})

	a, _ := r.New("sma")
	b, _ := r.New("sma")
	if a == b {
		t.Error("each New must return an independent instance")
	}
}

// --- SMA crossover tests ---

func TestSMACrossover_NoSignalWhileWarmingUp(t *testing.T) {
	s := NewSMACrossover(2, 4, d(0.1), d(20), d(40))

	for i := 0; i < 4; i++ {
		if sig := s.Analyze(stateAt(1.1000)); sig != nil {
			t.Fatalf("tick %d: no signal expected during warm-up, got %+v", i, sig)
		}
	}
}

func TestSMACrossover_BuyOnUpwardCross(t *testing.T) {
	s := NewSMACrossover(2, 4, d(0.1), d(20), d(40))

	// Flat prices prime the averages, then a sharp rise pushes the fast
	// SMA above the slow one.
	mids := []float64{1.1000, 1.1000, 1.1000, 1.1000, 1.1000, 1.1040, 1.1080}
	var got *model.Signal
	for _, mid := range mids {
		if sig := s.Analyze(stateAt(mid)); sig != nil {
			got = sig
			break
		}
	}

	if got == nil {
		t.Fatal("expected a signal after the upward cross")
	}
	if got.Side != model.Buy {
		t.Errorf("expected buy, got %s", got.Side)
	}
	if !got.Quantity.Equal(d(0.1)) {
		t.Errorf("expected quantity 0.1, got %s", got.Quantity)
	}
	if !got.StopLossPips.Equal(d(20)) || !got.TakeProfitPips.Equal(d(40)) {
		t.Errorf("expected configured stops, got sl=%s tp=%s", got.StopLossPips, got.TakeProfitPips)
	}
}

func TestSMACrossover_SellOnDownwardCross(t *testing.T) {
	s := NewSMACrossover(2, 4, d(0.1), d(20), d(40))

	// Rise first to set the fast SMA above, then fall through it.
	mids := []float64{1.1000, 1.1000, 1.1000, 1.1000, 1.1040, 1.1080, 1.1080, 1.1000, 1.0940, 1.0900}
	var signals []*model.Signal
	for _, mid := range mids {
		if sig := s.Analyze(stateAt(mid)); sig != nil {
			signals = append(signals, sig)
		}
	}

	if len(signals) < 2 {
		t.Fatalf("expected a buy then a sell, got %d signals", len(signals))
	}
	last := signals[len(signals)-1]
	if last.Side != model.Sell {
		t.Errorf("expected sell on downward cross, got %s", last.Side)
	}
}

func TestSMACrossover_NoRepeatWithoutNewCross(t *testing.T) {
	s := NewSMACrossover(2, 4, d(0.1), d(20), d(40))

	mids := []float64{1.1000, 1.1000, 1.1000, 1.1000, 1.1000, 1.1040, 1.1080, 1.1120, 1.1160}
	count := 0
	for _, mid := range mids {
		if sig := s.Analyze(stateAt(mid)); sig != nil {
			count++
		}
	}
	if count != 1 {
		t.Errorf("a sustained trend should signal once, got %d", count)
	}
}
