package forecast

import (
	"fmt"
	"math"

	"github.com/rl1809/restock-engine/internal/core/domain"
)

const (
	secondsPerHour   = 3600
	secondsPerMinute = 60

	StableLabel = "stable"
)

type Depletion struct {
	Seconds  int64  `json:"seconds_to_empty"`
	Infinite bool   `json:"infinite"`
	Label    string `json:"label"`
}

// Forecast projects when quantity runs out at velocity v.
func Forecast(quantity int, v domain.Velocity) Depletion {
	if v <= 0 || quantity <= 0 {
		return Depletion{Infinite: true, Label: StableLabel}
	}

	seconds := int64(math.Floor(float64(quantity) / float64(v)))
	return Depletion{Seconds: seconds, Label: formatRemaining(seconds)}
}

func formatRemaining(seconds int64) string {
	switch {
	case seconds > secondsPerHour:
		return fmt.Sprintf("%d hours left", seconds/secondsPerHour)
	case seconds > secondsPerMinute:
		return fmt.Sprintf("%d mins left", seconds/secondsPerMinute)
	default:
		return fmt.Sprintf("%d seconds left", seconds)
	}
}
