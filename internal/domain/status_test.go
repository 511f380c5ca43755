package domain

import (
	"testing"
	"time"
)

func strp(s string) *string   { return &s }
func f64p(f float64) *float64 { return &f }

func at(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestStatusProgression(t *testing.T) {
	now := at("2024-06-01")
	c := Contract{}
	if got := Status(c, now); got != StateUnfilled {
		t.Fatalf("empty contract: got %s", got)
	}
	c.Title = strp("Equipment supply")
	c.ContractValue = f64p(1000000)
	c.SignedDate = strp("2024-01-10")
	if got := Status(c, now); got != StateNew {
		t.Fatalf("filled contract: got %s", got)
	}
	c.DeliveredValue = f64p(500000)
	if got := Status(c, now); got != StateInDelivery {
		t.Fatalf("after delivery: got %s", got)
	}
	c.AcceptedValue = f64p(500000)
	if got := Status(c, now); got != StateAccepted {
		t.Fatalf("after acceptance: got %s", got)
	}
	c.PaymentApprovalDate = strp("2024-05-01")
	if got := Status(c, now); got != StatePaymentApproved {
		t.Fatalf("after payment approval: got %s", got)
	}
	c.WarrantyExpiryDate = strp("2025-05-01")
	if got := Status(c, now); got != StateUnderWarranty {
		t.Fatalf("warranty in future: got %s", got)
	}
	c.IsSettled = true
	if got := Status(c, now); got != StateSettled {
		t.Fatalf("settled: got %s", got)
	}
}

func TestStatusExpiredWarrantyFallsBack(t *testing.T) {
	c := Contract{
		Title:               strp("x"),
		ContractValue:       f64p(1),
		SignedDate:          strp("2023-01-01"),
		PaymentApprovalDate: strp("2023-06-01"),
		WarrantyExpiryDate:  strp("2024-01-01"),
	}
	if got := Status(c, at("2024-06-01")); got != StatePaymentApproved {
		t.Fatalf("expired warranty: got %s", got)
	}
	if got := Status(c, at("2023-12-01")); got != StateUnderWarranty {
		t.Fatalf("active warranty: got %s", got)
	}
}

// Nothing stops a caller clearing delivered_value after acceptance; the
// derived state regresses accordingly. Transition monotonicity is a UI
// convention, not a server rule.
func TestStatusNotMonotonic(t *testing.T) {
	c := Contract{
		Title:         strp("x"),
		ContractValue: f64p(1),
		SignedDate:    strp("2024-01-01"),
		AcceptedValue: f64p(9),
	}
	if got := Status(c, at("2024-06-01")); got != StateAccepted {
		t.Fatalf("got %s", got)
	}
	c.AcceptedValue = nil
	if got := Status(c, at("2024-06-01")); got != StateNew {
		t.Fatalf("after clearing accepted value: got %s", got)
	}
}
