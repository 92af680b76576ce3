package domain

import "testing"

func TestStockStatusForQuantity(t *testing.T) {
	cases := []struct {
		name     string
		quantity int64
		want     StockStatus
	}{
		{name: "negative", quantity: -3, want: StockStatusOutOfStock},
		{name: "zero", quantity: 0, want: StockStatusOutOfStock},
		{name: "one", quantity: 1, want: StockStatusLowStock},
		{name: "threshold", quantity: 10, want: StockStatusLowStock},
		{name: "above threshold", quantity: 11, want: StockStatusInStock},
		{name: "large", quantity: 5000, want: StockStatusInStock},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StockStatusForQuantity(tc.quantity); got != tc.want {
				t.Fatalf("StockStatusForQuantity(%d) = %q, want %q", tc.quantity, got, tc.want)
			}
		})
	}
}
