package domain

// PricingBreakdown captures the aggregated monetary results of pricing an
// order request.
type PricingBreakdown struct {
	Subtotal   Money
	Tax        Money
	Total      Money
	TaxRateBps int64
	Lines      []LinePricing
}

// LinePricing stores the per-line pricing outputs, with the resolved unit
// price and product name snapshot.
type LinePricing struct {
	ProductID   string
	ProductName string
	Quantity    int64
	UnitPrice   Money
	Subtotal    Money
}
