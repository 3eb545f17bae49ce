// Package pricing derives delivery fee, delivery time and cart totals.
//
// Monetary values are float64 at the API boundary and rounded to two decimals,
// half away from zero, using decimal arithmetic so that repeated calls agree to
// the cent regardless of binary floating point error.
package pricing

import (
	"math"

	"github.com/shopspring/decimal"

	"delivery-cart/internal/geo"
	"delivery-cart/internal/models"
)

const (
	// BaseDeliveryFee is charged for any delivery within the free radius, or when either location is unknown
	BaseDeliveryFee = 2.50
	// FreeRadiusKm is the distance covered by the base fee and base time
	FreeRadiusKm = 2.0
	// PerKmRate is charged per kilometer beyond the free radius
	PerKmRate = 0.50
	// MinutesPerKm is added to the ETA per kilometer beyond the free radius
	MinutesPerKm = 3.0
	// DefaultBaseMinutes is used when a restaurant does not advertise its own delivery time
	DefaultBaseMinutes = 25
	// TaxRate is applied to the subtotal
	TaxRate = 0.08

	timeStepMinutes = 5
)

var taxRate = decimal.NewFromFloat(TaxRate)

// Totals holds the derived monetary fields of a cart
type Totals struct {
	Subtotal    float64
	Tax         float64
	DeliveryFee float64
	Total       float64
}

// Round2 rounds an amount to two decimals, half away from zero.
func Round2(amount float64) float64 {
	return decimal.NewFromFloat(amount).Round(2).InexactFloat64()
}

// DeliveryFee prices delivery from restaurant to user. A nil location on either side yields the base fee.
func DeliveryFee(restaurant, user *geo.Point) float64 {
	if restaurant == nil || user == nil {
		return BaseDeliveryFee
	}
	return FeeForDistance(geo.Distance(*restaurant, *user))
}

// FeeForDistance prices delivery for a distance in kilometers.
func FeeForDistance(distanceKm float64) float64 {
	if distanceKm <= FreeRadiusKm {
		return BaseDeliveryFee
	}
	return Round2(BaseDeliveryFee + (distanceKm-FreeRadiusKm)*PerKmRate)
}

// DeliveryTime estimates delivery minutes from restaurant to user. baseMinutes <= 0 means DefaultBaseMinutes.
func DeliveryTime(restaurant, user *geo.Point, baseMinutes int) int {
	if baseMinutes <= 0 {
		baseMinutes = DefaultBaseMinutes
	}
	if restaurant == nil || user == nil {
		return baseMinutes
	}
	return TimeForDistance(geo.Distance(*restaurant, *user), baseMinutes)
}

// TimeForDistance estimates delivery minutes for a distance, rounded to the nearest five minutes
// once the free radius is exceeded.
func TimeForDistance(distanceKm float64, baseMinutes int) int {
	if distanceKm <= FreeRadiusKm {
		return baseMinutes
	}
	total := float64(baseMinutes) + (distanceKm-FreeRadiusKm)*MinutesPerKm
	return int(math.Round(total/timeStepMinutes)) * timeStepMinutes
}

// AggregateTotals computes subtotal, tax and total for the given items.
//
// Subtotal and tax are rounded independently and then summed with the delivery fee,
// so total may differ by a cent from rounding the unrounded sum once.
func AggregateTotals(items []models.LineItem, deliveryFee float64) Totals {
	sum := decimal.Zero
	for _, item := range items {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}

	subtotal := sum.Round(2)
	tax := sum.Mul(taxRate).Round(2)
	fee := decimal.NewFromFloat(deliveryFee).Round(2)

	return Totals{
		Subtotal:    subtotal.InexactFloat64(),
		Tax:         tax.InexactFloat64(),
		DeliveryFee: fee.InexactFloat64(),
		Total:       subtotal.Add(tax).Add(fee).InexactFloat64(),
	}
}
