package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/orderdesk/api/internal/repositories"
)

var (
	// ErrPricingInvalidInput signals bad request data such as missing lines or negative prices.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
)

// taxRateDivisor converts a basis-point rate into a fraction of the taxable amount.
const taxRateDivisor = int64(10_000)

// StandardPricingEngine prices order lines and applies the commerce tax rate.
// Amounts are integer minor currency units throughout; the only rounding point
// is the tax line, which rounds half up.
type StandardPricingEngine struct {
	settings repositories.SettingsRepository
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

type StandardPricingEngineDeps struct {
	Settings repositories.SettingsRepository
	Now      func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

func NewStandardPricingEngine(deps StandardPricingEngineDeps) (*StandardPricingEngine, error) {
	if deps.Settings == nil {
		return nil, errors.New("pricing engine: settings repository is required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StandardPricingEngine{
		settings: deps.Settings,
		now: func() time.Time {
			return now().UTC()
		},
		logger: logger,
	}, nil
}

var _ PricingEngine = (*StandardPricingEngine)(nil)

func (e *StandardPricingEngine) Price(ctx context.Context, lines []PricingLineInput) (PricingBreakdown, error) {
	if len(lines) == 0 {
		return PricingBreakdown{}, fmt.Errorf("%w: at least one line is required", ErrPricingInvalidInput)
	}

	linePricings := make([]LinePricing, 0, len(lines))
	var subtotal int64
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return PricingBreakdown{}, fmt.Errorf("%w: line product id is required", ErrPricingInvalidInput)
		}
		if line.Quantity <= 0 {
			return PricingBreakdown{}, fmt.Errorf("%w: line %s quantity must be positive", ErrPricingInvalidInput, productID)
		}
		if line.UnitPrice < 0 {
			return PricingBreakdown{}, fmt.Errorf("%w: line %s unit price cannot be negative", ErrPricingInvalidInput, productID)
		}
		if line.UnitPrice > 0 && line.UnitPrice > math.MaxInt64/line.Quantity {
			return PricingBreakdown{}, fmt.Errorf("%w: line %s subtotal overflow", ErrPricingInvalidInput, productID)
		}

		lineSubtotal := line.UnitPrice * line.Quantity
		if lineSubtotal > 0 && subtotal > math.MaxInt64-lineSubtotal {
			return PricingBreakdown{}, fmt.Errorf("%w: order subtotal overflow", ErrPricingInvalidInput)
		}
		subtotal += lineSubtotal

		linePricings = append(linePricings, LinePricing{
			ProductID:   productID,
			ProductName: strings.TrimSpace(line.ProductName),
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Subtotal:    lineSubtotal,
		})
	}

	rate, err := e.taxRate(ctx)
	if err != nil {
		return PricingBreakdown{}, err
	}

	if rate > 0 && subtotal > math.MaxInt64/rate {
		return PricingBreakdown{}, fmt.Errorf("%w: order total overflow", ErrPricingInvalidInput)
	}
	tax := calculateTax(subtotal, rate)
	if subtotal > math.MaxInt64-tax {
		return PricingBreakdown{}, fmt.Errorf("%w: order total overflow", ErrPricingInvalidInput)
	}

	return PricingBreakdown{
		Subtotal:   subtotal,
		Tax:        tax,
		Total:      subtotal + tax,
		TaxRateBps: rate,
		Lines:      linePricings,
	}, nil
}

func (e *StandardPricingEngine) taxRate(ctx context.Context) (int64, error) {
	settings, err := e.settings.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("pricing: load tax settings: %w", err)
	}
	if settings.TaxRateBps < 0 {
		e.logger(ctx, "pricing.tax_rate.negative", map[string]any{"taxRateBps": settings.TaxRateBps})
		return 0, nil
	}
	return settings.TaxRateBps, nil
}

// calculateTax rounds half up on the basis-point product so an 1800 bps rate
// turns a 125 subtotal into 23 rather than 22.
func calculateTax(subtotal, rateBps int64) int64 {
	if subtotal <= 0 || rateBps <= 0 {
		return 0
	}
	product := subtotal * rateBps
	return (product + taxRateDivisor/2) / taxRateDivisor
}
