package forecast

import (
	"time"

	"github.com/rl1809/restock-engine/internal/core/domain"
)

// horizonTolerance absorbs the rounding of the per-minute to per-second
// conversion, so a SKU that empties exactly at the horizon still qualifies.
const horizonTolerance = 1e-9

type RestockPolicy struct {
	// QuantityThreshold is the stock level at or below which a restock may fire.
	QuantityThreshold int
	// Horizon is the longest time-to-empty that still counts as critical.
	Horizon time.Duration
	// OrderQuantity is the amount requested from the warehouse.
	OrderQuantity int
	// Cooldown suppresses repeat requests for a SKU. Zero disables suppression.
	Cooldown time.Duration
}

func DefaultRestockPolicy() RestockPolicy {
	return RestockPolicy{
		QuantityThreshold: 30,
		Horizon:           10 * time.Minute,
		OrderQuantity:     100,
	}
}

// ShouldRestock reports whether a SKU holding quantity and selling at v needs
// an emergency restock. Both the low-stock and the time-to-empty conditions
// must hold.
func (p RestockPolicy) ShouldRestock(quantity int, v domain.Velocity) bool {
	if quantity <= 0 || v <= 0 {
		return false
	}

	// quantity/v <= horizon, rearranged to avoid dividing by a rounded rate
	sellable := p.Horizon.Seconds() * float64(v)
	return float64(quantity) <= sellable*(1+horizonTolerance) && quantity <= p.QuantityThreshold
}
