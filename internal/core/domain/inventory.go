package domain

import "time"

// Velocity is a sales rate in items per second.
type Velocity float64

func VelocityFromPerMinute(perMinute float64) Velocity {
	return Velocity(perMinute / 60)
}

func (v Velocity) PerMinute() float64 {
	return float64(v) * 60
}

type InventoryRecord struct {
	SKU       string    `json:"sku"`
	Quantity  int       `json:"quantity"`
	Velocity  Velocity  `json:"velocity"` // items per second
	Version   int64     `json:"version"`  // bumped by every field update
	UpdatedAt time.Time `json:"updated_at"`
}

type SaleEvent struct {
	ID       int64     `json:"id"`
	SKU      string    `json:"sku"`
	Quantity int       `json:"quantity"`
	SoldAt   time.Time `json:"sold_at"`
}
