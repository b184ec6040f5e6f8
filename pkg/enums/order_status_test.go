package enums

import "testing"

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{OrderStatusPlaced, OrderStatusConfirmed, true},
		{OrderStatusPlaced, OrderStatusCancelled, true},
		{OrderStatusPlaced, OrderStatusShipped, false},
		{OrderStatusConfirmed, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusConfirmed, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPlaced, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	if !OrderStatusDelivered.IsTerminal() {
		t.Error("DELIVERED should be terminal")
	}
	if !OrderStatusCancelled.IsTerminal() {
		t.Error("CANCELLED should be terminal")
	}
	if OrderStatusShipped.IsTerminal() {
		t.Error("SHIPPED should not be terminal")
	}
}

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus("SHIPPED")
	if err != nil || status != OrderStatusShipped {
		t.Fatalf("ParseOrderStatus = %v, %v", status, err)
	}
	if _, err := ParseOrderStatus("shipped"); err == nil {
		t.Fatal("expected error for lowercase input")
	}
}
