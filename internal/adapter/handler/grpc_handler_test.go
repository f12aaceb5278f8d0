package handler

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/restock-engine/internal/adapter/storage"
	"github.com/rl1809/restock-engine/internal/core/domain"
	"github.com/rl1809/restock-engine/internal/core/service"
)

func newGRPCClient(t *testing.T) (*InventoryQueryClient, *storage.MemoryAdapter, *captureBus) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	db := storage.NewMemoryAdapter()
	bus := &captureBus{}
	query := service.NewQueryService(db, storage.NewMemoryCache(), service.DefaultConfig(), logger)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterInventoryQueryServer(srv, NewGRPCHandler(query, bus, "order-events", logger))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewInventoryQueryClient(conn), db, bus
}

func TestGRPC_ListInventory(t *testing.T) {
	client, db, _ := newGRPCClient(t)
	ctx := context.Background()
	_, err := db.SetQuantity(ctx, "a", 12)
	require.NoError(t, err)

	items, err := client.ListInventory(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].SKU)
	assert.Equal(t, 12, items[0].Quantity)
}

func TestGRPC_GetForecast(t *testing.T) {
	client, db, _ := newGRPCClient(t)
	ctx := context.Background()
	_, err := db.SetQuantity(ctx, "a", 120)
	require.NoError(t, err)
	_, err = db.SetVelocity(ctx, "a", domain.Velocity(1.0/30))
	require.NoError(t, err)

	fc, err := client.GetForecast(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(3600), fc.Predicted.Seconds)
	assert.Equal(t, "60 mins left", fc.Predicted.Label)
	assert.False(t, fc.RestockDue)

	_, err = client.GetForecast(ctx, "ghost")
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.GetForecast(ctx, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPC_RecentSales(t *testing.T) {
	client, db, _ := newGRPCClient(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := db.AppendSale(ctx, domain.SaleEvent{SKU: "a", Quantity: 1})
		require.NoError(t, err)
	}

	sales, err := client.RecentSales(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, sales, 3)
}

func TestGRPC_PlaceOrder(t *testing.T) {
	client, _, bus := newGRPCClient(t)
	ctx := context.Background()

	resp, err := client.PlaceOrder(ctx, "a", 2)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.Len(t, bus.sent, 1)
	assert.Equal(t, domain.OrderEvent{SKU: "a", Quantity: 2}, bus.sent[0].payload)

	resp, err = client.PlaceOrder(ctx, "", 2)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Len(t, bus.sent, 1)
}
