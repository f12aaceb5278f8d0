package forecast

import "github.com/rl1809/restock-engine/internal/core/domain"

// EstimateVelocity returns items per second over history, which must be
// ascending by SoldAt. Fewer than two samples yield 0. Elapsed time is taken
// in whole seconds and never less than one.
func EstimateVelocity(history []domain.SaleEvent) domain.Velocity {
	if len(history) < 2 {
		return 0
	}

	total := 0
	for _, sale := range history {
		total += sale.Quantity
	}

	first := history[0]
	last := history[len(history)-1]

	elapsed := int64(last.SoldAt.Sub(first.SoldAt).Seconds())
	if elapsed < 1 {
		elapsed = 1
	}

	return domain.Velocity(float64(total) / float64(elapsed))
}
