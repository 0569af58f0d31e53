package domain

import (
	"errors"
	"testing"
	"time"
)

func TestOrderTransitions(t *testing.T) {
	cases := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusPaid, false},
		{OrderStatusConfirmed, OrderStatusPaid, true},
		{OrderStatusConfirmed, OrderStatusCancelled, true},
		{OrderStatusConfirmed, OrderStatusShipped, false},
		{OrderStatusPaid, OrderStatusShipped, true},
		{OrderStatusPaid, OrderStatusRefunded, true},
		{OrderStatusPaid, OrderStatusCancelled, false},
		{OrderStatusShipped, OrderStatusRefunded, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusRefunded, OrderStatusPaid, false},
	}

	for _, tc := range cases {
		order := Order{Status: tc.from}
		err := order.Transition(tc.to, time.Now())
		if tc.allowed && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if !tc.allowed && !errors.Is(err, ErrInvalidStateTransition) {
			t.Errorf("%s -> %s: expected ErrInvalidStateTransition, got %v", tc.from, tc.to, err)
		}
		if tc.allowed && order.Status != tc.to {
			t.Errorf("%s -> %s: status not applied", tc.from, tc.to)
		}
	}
}

func TestOrderValidateInvariants(t *testing.T) {
	now := time.Now().UTC()
	order := Order{
		ID:            "order-1",
		TenantID:      "tenant-1",
		Currency:      "USD",
		Status:        OrderStatusPending,
		SubtotalMinor: 3000,
		DiscountMinor: 500,
		TotalMinor:    2500,
		Items: []OrderItem{
			{ID: "i1", ProductID: "p1", Qty: 2, UnitPriceMinor: 1000, TotalMinor: 2000, CreatedAt: now},
			{ID: "i2", ProductID: "p2", Qty: 1, UnitPriceMinor: 1000, TotalMinor: 1000, CreatedAt: now},
		},
	}

	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no violations, got %v", errs)
	}

	// Итог с налогом поверх нетто — валидный заказ.
	order.TotalMinor = 3000
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("tax-inclusive total must be accepted, got %v", errs)
	}

	// Итог ниже нетто после скидки невозможен ни при каком налоге.
	order.TotalMinor = 2400
	errs := order.ValidateInvariants()
	found := false
	for _, err := range errs {
		if errors.Is(err, ErrTotalsMismatch) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ErrTotalsMismatch, got %v", errs)
	}
}

func TestPaymentTransitions(t *testing.T) {
	cases := []struct {
		from    PaymentStatus
		to      PaymentStatus
		allowed bool
	}{
		{PaymentStatusPending, PaymentStatusAuthorized, true},
		{PaymentStatusPending, PaymentStatusFailed, true},
		{PaymentStatusAuthorized, PaymentStatusSucceeded, true},
		{PaymentStatusAuthorized, PaymentStatusCancelled, true},
		{PaymentStatusSucceeded, PaymentStatusRefunded, true},
		{PaymentStatusSucceeded, PaymentStatusFailed, false},
		{PaymentStatusFailed, PaymentStatusSucceeded, false},
		{PaymentStatusRefunded, PaymentStatusPending, false},
	}

	for _, tc := range cases {
		payment := Payment{Status: tc.from}
		err := payment.Transition(tc.to, time.Now())
		if tc.allowed && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if !tc.allowed && !errors.Is(err, ErrInvalidStateTransition) {
			t.Errorf("%s -> %s: expected ErrInvalidStateTransition, got %v", tc.from, tc.to, err)
		}
	}
}

func TestCartValidateForCheckout(t *testing.T) {
	now := time.Now().UTC()
	cart := Cart{
		ID:            "cart-1",
		TenantID:      "tenant-1",
		CustomerEmail: "buyer@example.com",
		Currency:      "USD",
		Status:        CartStatusActive,
		Items: []CartItem{
			{ID: "i1", ProductID: "p1", Qty: 1, UnitPriceMinor: 500, TotalMinor: 500, CreatedAt: now},
		},
	}

	if err := cart.ValidateForCheckout(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	empty := cart
	empty.Items = nil
	if err := empty.ValidateForCheckout(); !errors.Is(err, ErrCartEmpty) {
		t.Fatalf("expected ErrCartEmpty, got %v", err)
	}

	converted := cart
	converted.Status = CartStatusConverted
	if err := converted.ValidateForCheckout(); !errors.Is(err, ErrCartNotActive) {
		t.Fatalf("expected ErrCartNotActive, got %v", err)
	}

	anonymous := cart
	anonymous.CustomerEmail = ""
	if err := anonymous.ValidateForCheckout(); !errors.Is(err, ErrCustomerEmailRequired) {
		t.Fatalf("expected ErrCustomerEmailRequired, got %v", err)
	}
}

func TestCartMarkConverted(t *testing.T) {
	now := time.Now().UTC()
	cart := Cart{Status: CartStatusActive}

	if err := cart.MarkConverted("order-1", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.Status != CartStatusConverted || cart.OrderID != "order-1" {
		t.Fatalf("conversion not applied: %+v", cart)
	}

	if err := cart.MarkConverted("order-2", now); !errors.Is(err, ErrCartNotActive) {
		t.Fatalf("expected ErrCartNotActive on double conversion, got %v", err)
	}
}
