package entity

import (
	"math"
	"testing"
	"time"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFillBuyFees(t *testing.T) {
	// 1000 * 10.00 = 10000: commission 3 -> floored to 5, no stamp tax,
	// transfer fee 0.2 -> floored to 1.
	f := NewFill("order-1", "600000.SH", SideBuy, 1000, 10.0, time.Now(), "strat-1")

	if !almostEqual(f.Amount, 10000) {
		t.Errorf("amount = %f, want 10000", f.Amount)
	}
	if !almostEqual(f.Commission, 5) {
		t.Errorf("commission = %f, want 5 (floor)", f.Commission)
	}
	if !almostEqual(f.StampTax, 0) {
		t.Errorf("stamp tax on buy = %f, want 0", f.StampTax)
	}
	if !almostEqual(f.TransferFee, 1) {
		t.Errorf("transfer fee = %f, want 1 (floor)", f.TransferFee)
	}
	if !almostEqual(f.TotalFee, 6) {
		t.Errorf("total fee = %f, want 6", f.TotalFee)
	}
	if !almostEqual(f.NetAmount, -10006) {
		t.Errorf("net amount = %f, want -10006", f.NetAmount)
	}
}

func TestFillSellFees(t *testing.T) {
	// 10000 * 10.00 = 100000: commission 30, stamp tax 100, transfer
	// fee 2.
	f := NewFill("order-2", "600000.SH", SideSell, 10000, 10.0, time.Now(), "strat-1")

	if !almostEqual(f.Commission, 30) {
		t.Errorf("commission = %f, want 30", f.Commission)
	}
	if !almostEqual(f.StampTax, 100) {
		t.Errorf("stamp tax = %f, want 100", f.StampTax)
	}
	if !almostEqual(f.TransferFee, 2) {
		t.Errorf("transfer fee = %f, want 2", f.TransferFee)
	}
	if !almostEqual(f.NetAmount, 100000-132) {
		t.Errorf("net amount = %f, want %f", f.NetAmount, 100000.0-132)
	}
}

func TestFillCustomSchedule(t *testing.T) {
	f := NewFill("order-3", "000001.SZ", SideSell, 100, 50.0, time.Now(), "")
	f.ApplyFees(FeeSchedule{}) // zero schedule charges nothing

	if !almostEqual(f.TotalFee, 0) {
		t.Errorf("total fee under zero schedule = %f, want 0", f.TotalFee)
	}
	if !almostEqual(f.NetAmount, 5000) {
		t.Errorf("net amount = %f, want 5000", f.NetAmount)
	}
}

func TestFillSignedQuantity(t *testing.T) {
	buy := NewFill("o", "s", SideBuy, 200, 1, time.Now(), "")
	sell := NewFill("o", "s", SideSell, 200, 1, time.Now(), "")
	if buy.SignedQuantity() != 200 {
		t.Errorf("buy signed quantity = %d, want 200", buy.SignedQuantity())
	}
	if sell.SignedQuantity() != -200 {
		t.Errorf("sell signed quantity = %d, want -200", sell.SignedQuantity())
	}
}

func TestFillReverse(t *testing.T) {
	f := NewFill("order-4", "600519.SH", SideBuy, 100, 1500.0, time.Now(), "strat-2")
	r := f.Reverse()

	if r.Side != SideSell {
		t.Errorf("reversed side = %s, want SELL", r.Side)
	}
	if r.Quantity != f.Quantity || r.Price != f.Price {
		t.Errorf("reverse changed terms: %d@%f", r.Quantity, r.Price)
	}
	if r.FillID == f.FillID {
		t.Error("reverse must mint a new fill id")
	}
}

func TestFillValidation(t *testing.T) {
	f := NewFill("order-5", "600000.SH", SideBuy, 100, 10.0, time.Now(), "")
	if !f.IsValid() {
		t.Error("well-formed fill reported invalid")
	}

	bad := *f
	bad.Quantity = 0
	bad.ApplyFees(DefaultFeeSchedule())
	if bad.IsValid() {
		t.Error("zero-quantity fill reported valid")
	}
}
