package domain

import (
	"testing"
)

// ── MaxLiquidationAmount ──────────────────────────────────────────────────────

func TestMaxLiquidationAmount(t *testing.T) {
	tests := []struct {
		name        string
		totalDebt   string
		closeFactor string
		want        string
	}{
		{"half of 1000", "1000", "0.5", "500"},
		{"half of odd debt", "333.33", "0.5", "166.665"},
		{"full close factor", "1000", "1", "1000"},
		{"zero debt", "0", "0.5", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaxLiquidationAmount(d(tt.totalDebt), d(tt.closeFactor))
			if !got.Equal(d(tt.want)) {
				t.Errorf("MaxLiquidationAmount(%s, %s) = %s, want %s", tt.totalDebt, tt.closeFactor, got, tt.want)
			}
		})
	}
}

func TestMaxLiquidationAmount_NegativeDebt(t *testing.T) {
	got := MaxLiquidationAmount(d("-100"), d("0.5"))
	if !got.IsZero() {
		t.Errorf("negative debt should yield 0, got %s", got)
	}
}

// ── ClampDebtToCover ──────────────────────────────────────────────────────────

func TestClampDebtToCover(t *testing.T) {
	maxAmount := d("500")

	// Request above the close-factor cap is silently clamped, not rejected.
	if got := ClampDebtToCover(d("900"), maxAmount); !got.Equal(maxAmount) {
		t.Errorf("clamp(900, 500) = %s, want 500", got)
	}
	// Request at the cap passes through unchanged.
	if got := ClampDebtToCover(d("500"), maxAmount); !got.Equal(maxAmount) {
		t.Errorf("clamp(500, 500) = %s, want 500", got)
	}
	// Request below the cap passes through unchanged.
	if got := ClampDebtToCover(d("100"), maxAmount); !got.Equal(d("100")) {
		t.Errorf("clamp(100, 500) = %s, want 100", got)
	}
}

// ── CollateralSeized ──────────────────────────────────────────────────────────

func TestCollateralSeized(t *testing.T) {
	tests := []struct {
		name        string
		debtToCover string
		bonus       string
		want        string
	}{
		{"5% bonus", "100", "0.05", "105"},
		{"4% bonus on 450", "450", "0.04", "468"},
		{"zero bonus", "100", "0", "100"},
		{"zero debt", "0", "0.05", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CollateralSeized(d(tt.debtToCover), d(tt.bonus))
			if !got.Equal(d(tt.want)) {
				t.Errorf("CollateralSeized(%s, %s) = %s, want %s", tt.debtToCover, tt.bonus, got, tt.want)
			}
		})
	}
}

// The seizure always exceeds the debt covered when a positive bonus is set —
// this margin is the liquidator's incentive.
func TestCollateralSeized_BonusIsProfit(t *testing.T) {
	debt := d("250")
	seized := CollateralSeized(debt, d("0.05"))

	profit := seized.Sub(debt)
	if !profit.Equal(d("12.5")) {
		t.Errorf("profit = %s, want 12.5", profit)
	}
	if !seized.GreaterThan(debt) {
		t.Error("seized collateral must exceed covered debt for positive bonus")
	}
}

// ── Full pipeline: clamp then seize ───────────────────────────────────────────

// An over-sized request against a 1000 USD debt at close factor 0.5 and 5%
// bonus covers 500 and seizes 525.
func TestLiquidationArithmetic_EndToEnd(t *testing.T) {
	totalDebt := d("1000")
	maxAmount := MaxLiquidationAmount(totalDebt, DefaultCloseFactor)
	covered := ClampDebtToCover(d("2000"), maxAmount)
	seized := CollateralSeized(covered, d("0.05"))

	if !covered.Equal(d("500")) {
		t.Errorf("covered = %s, want 500", covered)
	}
	if !seized.Equal(d("525")) {
		t.Errorf("seized = %s, want 525", seized)
	}
}
