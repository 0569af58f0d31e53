package domain

import (
	"errors"
	"testing"
)

func TestInvoiceValidateCreditNote(t *testing.T) {
	invoice := Invoice{ID: "inv-1", TotalMinor: 12000}

	cases := []struct {
		name     string
		amount   int64
		credited int64
		want     error
	}{
		{"full credit", 12000, 0, nil},
		{"partial credit", 5000, 0, nil},
		{"second note within limit", 7000, 5000, nil},
		{"zero amount", 0, 0, ErrAmountNegative},
		{"negative amount", -100, 0, ErrAmountNegative},
		{"exceeds total", 12001, 0, ErrCreditNoteExceedsInvoice},
		{"exceeds remainder", 7001, 5000, ErrCreditNoteExceedsInvoice},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := invoice.ValidateCreditNote(tc.amount, tc.credited)
			if !errors.Is(err, tc.want) {
				t.Fatalf("ValidateCreditNote(%d, %d) = %v, want %v", tc.amount, tc.credited, err, tc.want)
			}
		})
	}
}
