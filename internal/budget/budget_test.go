package budget

import (
	"math"
	"testing"
)

func TestBudgetLedger(t *testing.T) {
	b := New(10000)
	b.SetEstimate("generate", 3000)
	b.Record("validate", "local", 0, "schema validation")
	b.Record("generate", "medium", 2400, "rust codegen")
	b.Record("verify_rust", "small", 600, "")

	if got := b.TotalConsumed(); got != 3000 {
		t.Fatalf("TotalConsumed() = %d, want 3000", got)
	}
	remaining, limited := b.Remaining()
	if !limited || remaining != 7000 {
		t.Fatalf("Remaining() = %d, %v, want 7000, true", remaining, limited)
	}
	if !b.CanAfford(7000) {
		t.Error("CanAfford(7000) = false, want true")
	}
	if b.CanAfford(7001) {
		t.Error("CanAfford(7001) = true, want false")
	}
	if got := b.Pressure(); got != 0.3 {
		t.Errorf("Pressure() = %v, want 0.3", got)
	}
	if got := len(b.Ledger()); got != 3 {
		t.Errorf("len(Ledger()) = %d, want 3", got)
	}
}

func TestBudgetUnlimited(t *testing.T) {
	b := New(0)
	b.Record("generate", "large", 500000, "")

	if !b.CanAfford(math.MaxInt32) {
		t.Error("unlimited budget should always afford")
	}
	if _, limited := b.Remaining(); limited {
		t.Error("unlimited budget reported a remaining capacity")
	}
	if got := b.Pressure(); got != 0 {
		t.Errorf("Pressure() = %v, want 0", got)
	}
}

func TestBudgetEfficiency(t *testing.T) {
	b := New(10000)
	b.SetEstimate("generate", 2000)
	b.Record("validate", "local", 0, "")
	b.Record("diff", "local", 0, "")
	b.Record("generate", "medium", 2500, "")

	eff := b.Efficiency()
	if eff.TotalConsumed != 2500 {
		t.Errorf("TotalConsumed = %d, want 2500", eff.TotalConsumed)
	}
	if eff.TotalEstimated != 2000 {
		t.Errorf("TotalEstimated = %d, want 2000", eff.TotalEstimated)
	}
	if eff.Remaining != 7500 {
		t.Errorf("Remaining = %d, want 7500", eff.Remaining)
	}
	if eff.ByTier["medium"] != 2500 {
		t.Errorf("ByTier[medium] = %d, want 2500", eff.ByTier["medium"])
	}
	want := 100 * 2.0 / 3.0
	if math.Abs(eff.LocalStagePct-want) > 1e-9 {
		t.Errorf("LocalStagePct = %v, want %v", eff.LocalStagePct, want)
	}
}

func TestBudgetReset(t *testing.T) {
	b := New(1000)
	b.Record("generate", "small", 400, "")
	b.Reset()
	if got := b.TotalConsumed(); got != 0 {
		t.Fatalf("TotalConsumed() after Reset = %d, want 0", got)
	}
}

func TestPredictorRollingAverage(t *testing.T) {
	p := NewPredictor(nil)
	for _, actual := range []int{1000, 1200, 1100} {
		p.RecordActual("generate", actual)
	}
	got := p.Predict("generate")
	if got <= 900 || got >= 1300 {
		t.Fatalf("Predict() = %d, want strictly between 900 and 1300", got)
	}
}

func TestPredictorDefaults(t *testing.T) {
	p := NewPredictor(map[string]int{"generate": 8000})
	if got := p.Predict("generate"); got != 8000 {
		t.Errorf("Predict() with default = %d, want 8000", got)
	}
	if got := p.Predict("verify"); got != 0 {
		t.Errorf("Predict() with no history and no default = %d, want 0", got)
	}
}

func TestPredictorWindowEvicts(t *testing.T) {
	p := NewPredictor(nil)
	p.RecordActual("generate", 100000)
	for i := 0; i < historyWindow; i++ {
		p.RecordActual("generate", 1000)
	}
	if got := p.Predict("generate"); got != 1000 {
		t.Fatalf("Predict() = %d, want 1000 after the outlier left the window", got)
	}
}

func TestPredictorAccuracy(t *testing.T) {
	p := NewPredictor(map[string]int{"generate": 1000})
	if got := p.PredictAndTrack("generate"); got != 1000 {
		t.Fatalf("PredictAndTrack() = %d, want 1000", got)
	}
	p.FinalizePrediction("generate", 900)

	preds := p.Predictions()
	if len(preds) != 1 || !preds[0].Settled {
		t.Fatalf("Predictions() = %+v, want one settled entry", preds)
	}
	if math.Abs(preds[0].Accuracy-90.0) > 1e-9 {
		t.Errorf("Accuracy = %v, want 90", preds[0].Accuracy)
	}
	if math.Abs(p.Accuracy()-90.0) > 1e-9 {
		t.Errorf("overall Accuracy() = %v, want 90", p.Accuracy())
	}
	// The actual feeds back into history for the next forecast.
	if got := p.Predict("generate"); got != 900 {
		t.Errorf("Predict() after finalize = %d, want 900", got)
	}
}

func TestPredictRemaining(t *testing.T) {
	p := NewPredictor(map[string]int{"verify": 500})
	p.RecordActual("generate", 2000)
	if got := p.PredictRemaining([]string{"generate", "verify", "unknown"}); got != 2500 {
		t.Fatalf("PredictRemaining() = %d, want 2500", got)
	}
}
