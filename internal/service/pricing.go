package service

import (
	"github.com/shopspring/decimal"

	"github.com/safar/go-rental-store/internal/models"
)

// quoteUnitPrice resolves the price of one unit for the rental period from
// the product's pricing rows. The lookup order is the variant's rate for the
// period unit, the product-wide rate for that unit, then the daily rate
// (variant, then product-wide) charged per started day.
func quoteUnitPrice(rules []models.Pricing, variantID int64, period models.RentalPeriod) (decimal.Decimal, bool) {
	if rate, ok := findRate(rules, variantID, period.DurationUnit); ok {
		return rate.Mul(decimal.NewFromInt(int64(period.DurationValue))), true
	}
	if period.DurationUnit != models.DurationDaily {
		if rate, ok := findRate(rules, variantID, models.DurationDaily); ok {
			return rate.Mul(decimal.NewFromInt(int64(period.Days()))), true
		}
	}
	return decimal.Zero, false
}

func findRate(rules []models.Pricing, variantID int64, unit models.DurationUnit) (decimal.Decimal, bool) {
	var productWide *models.Pricing
	for i := range rules {
		r := &rules[i]
		if r.DurationUnit != unit {
			continue
		}
		if r.VariantID != nil && *r.VariantID == variantID {
			return r.Rate, true
		}
		if r.VariantID == nil && productWide == nil {
			productWide = r
		}
	}
	if productWide != nil {
		return productWide.Rate, true
	}
	return decimal.Zero, false
}
