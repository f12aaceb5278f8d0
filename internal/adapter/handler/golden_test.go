package handler

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/restock-engine/internal/adapter/broadcast"
	"github.com/rl1809/restock-engine/internal/core/domain"
)

var goldenTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestWirePayloads(t *testing.T) {
	g := goldie.New(t)

	req := domain.RestockRequest{
		RequestID:   uuid.MustParse("0b7e7c1e-5d0c-4a55-9f67-21c7d0f0a001"),
		SKU:         "SKU-1",
		Quantity:    100,
		RequestedAt: goldenTime,
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	g.Assert(t, "restock_request", body)

	body, err = json.Marshal(domain.NewVelocityUpdate("SKU-1", domain.VelocityFromPerMinute(3)))
	require.NoError(t, err)
	g.Assert(t, "velocity_update", body)
}

func TestSSEFrame(t *testing.T) {
	g := goldie.New(t)

	data, err := json.Marshal(domain.InventoryRecord{SKU: "SKU-1", Quantity: 70, Version: 2, UpdatedAt: goldenTime})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeEvent(&buf, broadcast.Message{Event: broadcast.EventInventory, Data: data}))
	g.Assert(t, "sse_inventory", buf.Bytes())
}
