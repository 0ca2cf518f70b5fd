package domain

import "testing"

func TestSaleStatusFromItems(t *testing.T) {
	cases := []struct {
		name    string
		current string
		items   []SaleItem
		want    string
	}{
		{
			name:    "nothing returned keeps current",
			current: SaleStatusCompleted,
			items:   []SaleItem{{Qty: 2, ReturnableQty: 2}},
			want:    SaleStatusCompleted,
		},
		{
			name:    "pending payment preserved",
			current: SaleStatusPendingPayment,
			items:   []SaleItem{{Qty: 1, ReturnableQty: 1}},
			want:    SaleStatusPendingPayment,
		},
		{
			name:    "partial return",
			current: SaleStatusCompleted,
			items:   []SaleItem{{Qty: 2, ReturnableQty: 1}, {Qty: 1, ReturnableQty: 1}},
			want:    SaleStatusPartiallyReturned,
		},
		{
			name:    "full return",
			current: SaleStatusCompleted,
			items:   []SaleItem{{Qty: 2, ReturnableQty: 0}, {Qty: 1, ReturnableQty: 0}},
			want:    SaleStatusFullyReturned,
		},
	}

	for _, tc := range cases {
		if got := SaleStatusFromItems(tc.current, tc.items); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestPurchaseOrderStatusFromItems(t *testing.T) {
	cases := []struct {
		name  string
		items []PurchaseOrderItem
		want  string
	}{
		{"nothing received", []PurchaseOrderItem{{QtyOrdered: 10}}, POStatusPending},
		{"partial receipt", []PurchaseOrderItem{{QtyOrdered: 10, QtyReceived: 4}}, POStatusPartiallyReceived},
		{"complete receipt", []PurchaseOrderItem{{QtyOrdered: 10, QtyReceived: 10}}, POStatusReceived},
		{
			"mixed lines complete",
			[]PurchaseOrderItem{{QtyOrdered: 5, QtyReceived: 5}, {QtyOrdered: 3, QtyReceived: 3}},
			POStatusReceived,
		},
	}

	for _, tc := range cases {
		if got := PurchaseOrderStatusFromItems(tc.items); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestValidPaymentMethod(t *testing.T) {
	for _, method := range []string{PaymentCash, PaymentCreditCard, PaymentDebitCard, PaymentPix, PaymentOnDelivery, PaymentTradeCredit} {
		if !ValidPaymentMethod(method) {
			t.Fatalf("expected %s to be valid", method)
		}
	}
	for _, method := range []string{"", "cheque", "CASH", "boleto"} {
		if ValidPaymentMethod(method) {
			t.Fatalf("expected %s to be invalid", method)
		}
	}
}
