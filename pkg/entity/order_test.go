package entity

import (
	"testing"
	"time"
)

func TestOrderFillAccounting(t *testing.T) {
	o := NewOrder("600000.SH", OrderLimit, SideBuy, 1000, 10.0, "s1")

	o.AddFill(300, 10.0)
	if o.Status != OrderPartiallyFilled {
		t.Errorf("status = %s, want PARTIALLY_FILLED", o.Status)
	}
	if o.FilledQuantity+o.RemainingQuantity != o.Quantity {
		t.Errorf("fill accounting broken: %d + %d != %d",
			o.FilledQuantity, o.RemainingQuantity, o.Quantity)
	}

	o.AddFill(700, 10.2)
	if o.Status != OrderFilled {
		t.Errorf("status = %s, want FILLED", o.Status)
	}
	want := (300*10.0 + 700*10.2) / 1000
	if !almostEqual(o.AvgFillPrice, want) {
		t.Errorf("avg fill price = %f, want %f", o.AvgFillPrice, want)
	}
}

func TestOrderIgnoresInvalidFill(t *testing.T) {
	o := NewOrder("600000.SH", OrderLimit, SideBuy, 100, 10.0, "")
	o.AddFill(0, 10.0)
	o.AddFill(50, -1)

	if o.FilledQuantity != 0 || o.Status != OrderPending {
		t.Errorf("invalid fills must be ignored, got filled=%d status=%s",
			o.FilledQuantity, o.Status)
	}
}

func TestOrderLifecycle(t *testing.T) {
	o := NewOrder("600000.SH", OrderLimit, SideBuy, 100, 10.0, "")
	if !o.IsCancellable() {
		t.Error("pending order must be cancellable")
	}

	o.UpdateStatus(OrderSubmitted)
	if o.SubmittedTime.IsZero() {
		t.Error("submitted time not stamped")
	}

	o.Cancel("user request")
	if !o.IsFinished() || o.CancelReason != "user request" {
		t.Errorf("cancel not applied: %s %q", o.Status, o.CancelReason)
	}
	if o.IsCancellable() {
		t.Error("cancelled order must not be cancellable")
	}
}

func TestOrderValidity(t *testing.T) {
	now := time.Now()

	market := NewOrder("600000.SH", OrderMarket, SideBuy, 100, 0, "")
	if !market.IsValidAt(now) {
		t.Error("market order with zero price must be valid")
	}

	limit := NewOrder("600000.SH", OrderLimit, SideBuy, 100, 0, "")
	if limit.IsValidAt(now) {
		t.Error("limit order with zero price must be invalid")
	}

	gtt := NewOrder("600000.SH", OrderLimit, SideBuy, 100, 10.0, "")
	gtt.TimeInForce = TIFGTT
	gtt.ExpireTime = now.Add(-time.Minute)
	if gtt.IsValidAt(now) {
		t.Error("expired GTT order must be invalid")
	}
}

func TestOrderFillRatio(t *testing.T) {
	o := NewOrder("600000.SH", OrderLimit, SideSell, 400, 10.0, "")
	o.AddFill(100, 10.0)
	if !almostEqual(o.FillRatio(), 0.25) {
		t.Errorf("fill ratio = %f, want 0.25", o.FillRatio())
	}
}
