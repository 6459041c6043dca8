package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// collateralUSDC returns a qualifying position with the default USDC reserve
// parameters (LTV 0.80, liquidation threshold 0.85).
func collateralUSDC(amountUsd string) CollateralInput {
	return CollateralInput{
		AmountUsd:            d(amountUsd),
		LTV:                  d("0.80"),
		LiquidationThreshold: d("0.85"),
	}
}

// ── ComputeHealthFactor ───────────────────────────────────────────────────────

// Worked example: 1000 USDC collateral, 900 USD borrowed.
// HF = 1000 × 0.85 / 900 ≈ 0.9444 → liquidatable.
// Available borrow = max(0, 1000 × 0.80 − 900) = 0.
func TestComputeHealthFactor_Underwater(t *testing.T) {
	snap := ComputeHealthFactor(uuid.New(), "ethereum",
		[]CollateralInput{collateralUSDC("1000")},
		[]DebtInput{{AmountUsd: d("900")}},
	)

	wantHF := d("1000").Mul(d("0.85")).Div(d("900"))
	if !snap.HealthFactor.Equal(wantHF) {
		t.Errorf("health factor = %s, want %s", snap.HealthFactor, wantHF)
	}
	if !snap.IsLiquidatable() {
		t.Errorf("HF %s with debt should be liquidatable", snap.HealthFactor)
	}
	if !snap.AvailableBorrowUsd.IsZero() {
		t.Errorf("available borrow = %s, want 0 (floored)", snap.AvailableBorrowUsd)
	}
}

// Worked example: 1000 USDC collateral, 500 USD borrowed.
// HF = 1000 × 0.85 / 500 = 1.7 → safe.  Available = 800 − 500 = 300.
func TestComputeHealthFactor_Healthy(t *testing.T) {
	snap := ComputeHealthFactor(uuid.New(), "ethereum",
		[]CollateralInput{collateralUSDC("1000")},
		[]DebtInput{{AmountUsd: d("500")}},
	)

	if !snap.HealthFactor.Equal(d("1.7")) {
		t.Errorf("health factor = %s, want 1.7", snap.HealthFactor)
	}
	if snap.IsLiquidatable() {
		t.Error("HF 1.7 should not be liquidatable")
	}
	if !snap.AvailableBorrowUsd.Equal(d("300")) {
		t.Errorf("available borrow = %s, want 300", snap.AvailableBorrowUsd)
	}
}

func TestComputeHealthFactor_NoDebtSentinel(t *testing.T) {
	snap := ComputeHealthFactor(uuid.New(), "ethereum",
		[]CollateralInput{collateralUSDC("1000")},
		nil,
	)

	if !snap.HealthFactor.Equal(HealthFactorSentinel) {
		t.Errorf("zero-debt health factor = %s, want sentinel %s", snap.HealthFactor, HealthFactorSentinel)
	}
	if snap.IsLiquidatable() {
		t.Error("account without debt must never be liquidatable")
	}
	// Full borrowing power available: 1000 × 0.80
	if !snap.AvailableBorrowUsd.Equal(d("800")) {
		t.Errorf("available borrow = %s, want 800", snap.AvailableBorrowUsd)
	}
}

func TestComputeHealthFactor_NoCollateralSentinel(t *testing.T) {
	snap := ComputeHealthFactor(uuid.New(), "ethereum",
		nil,
		[]DebtInput{{AmountUsd: d("500")}},
	)

	if !snap.HealthFactor.Equal(HealthFactorSentinel) {
		t.Errorf("zero-collateral health factor = %s, want sentinel %s", snap.HealthFactor, HealthFactorSentinel)
	}
	if !snap.AvailableBorrowUsd.IsZero() {
		t.Errorf("available borrow = %s, want 0", snap.AvailableBorrowUsd)
	}
}

func TestComputeHealthFactor_EmptyAccount(t *testing.T) {
	snap := ComputeHealthFactor(uuid.New(), "ethereum", nil, nil)

	if !snap.HealthFactor.Equal(HealthFactorSentinel) {
		t.Errorf("empty account health factor = %s, want sentinel", snap.HealthFactor)
	}
	if !snap.TotalCollateralUsd.IsZero() || !snap.TotalDebtUsd.IsZero() {
		t.Error("empty account totals should be zero")
	}
}

// Weighted thresholds: 1000 @ 0.85 + 1000 @ 0.75 → blended 0.80.
func TestComputeHealthFactor_WeightedThreshold(t *testing.T) {
	snap := ComputeHealthFactor(uuid.New(), "ethereum",
		[]CollateralInput{
			{AmountUsd: d("1000"), LTV: d("0.80"), LiquidationThreshold: d("0.85")},
			{AmountUsd: d("1000"), LTV: d("0.70"), LiquidationThreshold: d("0.75")},
		},
		[]DebtInput{{AmountUsd: d("1000")}},
	)

	if !snap.LiquidationThreshold.Equal(d("0.80")) {
		t.Errorf("weighted liquidation threshold = %s, want 0.80", snap.LiquidationThreshold)
	}
	if !snap.LTV.Equal(d("0.75")) {
		t.Errorf("weighted LTV = %s, want 0.75", snap.LTV)
	}
	// HF = 2000 × 0.80 / 1000 = 1.6
	if !snap.HealthFactor.Equal(d("1.6")) {
		t.Errorf("health factor = %s, want 1.6", snap.HealthFactor)
	}
}

func TestComputeHealthFactor_SkipsNonPositiveInputs(t *testing.T) {
	snap := ComputeHealthFactor(uuid.New(), "ethereum",
		[]CollateralInput{
			collateralUSDC("1000"),
			{AmountUsd: decimal.Zero, LTV: d("0.80"), LiquidationThreshold: d("0.85")},
		},
		[]DebtInput{{AmountUsd: d("500")}, {AmountUsd: decimal.Zero}},
	)

	if !snap.TotalCollateralUsd.Equal(d("1000")) {
		t.Errorf("total collateral = %s, want 1000 (zero positions skipped)", snap.TotalCollateralUsd)
	}
	if !snap.TotalDebtUsd.Equal(d("500")) {
		t.Errorf("total debt = %s, want 500 (zero debts skipped)", snap.TotalDebtUsd)
	}
}

// Deterministic: same inputs, same snapshot figures on every recompute.
func TestComputeHealthFactor_Deterministic(t *testing.T) {
	userID := uuid.New()
	collateral := []CollateralInput{collateralUSDC("1234.5678")}
	debt := []DebtInput{{AmountUsd: d("987.6543")}}

	first := ComputeHealthFactor(userID, "ethereum", collateral, debt)
	for i := 0; i < 10; i++ {
		again := ComputeHealthFactor(userID, "ethereum", collateral, debt)
		if !again.HealthFactor.Equal(first.HealthFactor) ||
			!again.AvailableBorrowUsd.Equal(first.AvailableBorrowUsd) {
			t.Fatalf("recompute %d diverged: HF %s vs %s", i, again.HealthFactor, first.HealthFactor)
		}
	}
}

// More debt against the same collateral must never raise the health factor.
func TestComputeHealthFactor_MonotonicInDebt(t *testing.T) {
	collateral := []CollateralInput{collateralUSDC("1000")}
	prev := ComputeHealthFactor(uuid.New(), "ethereum", collateral, []DebtInput{{AmountUsd: d("100")}})

	for _, debtUsd := range []string{"200", "400", "800", "1600"} {
		snap := ComputeHealthFactor(uuid.New(), "ethereum", collateral, []DebtInput{{AmountUsd: d(debtUsd)}})
		if snap.HealthFactor.GreaterThan(prev.HealthFactor) {
			t.Errorf("debt %s: HF %s > previous %s, want non-increasing", debtUsd, snap.HealthFactor, prev.HealthFactor)
		}
		prev = snap
	}
}

// ── IsLiquidatable boundary ───────────────────────────────────────────────────

func TestIsLiquidatable_Boundary(t *testing.T) {
	tests := []struct {
		name    string
		hf      string
		debtUsd string
		want    bool
	}{
		{"exactly 1.0 is safe", "1.0", "500", false},
		{"just below 1.0", "0.999999", "500", true},
		{"deep underwater", "0.5", "500", true},
		{"above 1.0", "1.7", "500", false},
		{"below 1.0 but no debt", "0.5", "0", false},
		{"sentinel", "999", "0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := HealthFactorSnapshot{
				HealthFactor: d(tt.hf),
				TotalDebtUsd: d(tt.debtUsd),
			}
			if got := snap.IsLiquidatable(); got != tt.want {
				t.Errorf("IsLiquidatable(HF=%s, debt=%s) = %v, want %v", tt.hf, tt.debtUsd, got, tt.want)
			}
		})
	}
}

// ── IsStale ───────────────────────────────────────────────────────────────────

func TestSnapshotIsStale(t *testing.T) {
	fresh := HealthFactorSnapshot{LastCalculatedAt: time.Now().Add(-time.Minute)}
	if fresh.IsStale(5 * time.Minute) {
		t.Error("1m-old snapshot should not be stale at 5m max age")
	}

	old := HealthFactorSnapshot{LastCalculatedAt: time.Now().Add(-10 * time.Minute)}
	if !old.IsStale(5 * time.Minute) {
		t.Error("10m-old snapshot should be stale at 5m max age")
	}
}
