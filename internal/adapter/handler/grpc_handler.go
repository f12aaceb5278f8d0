package handler

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/restock-engine/internal/core/domain"
	"github.com/rl1809/restock-engine/internal/core/service"
	"github.com/rl1809/restock-engine/internal/port"
)

const inventoryQueryService = "restock.v1.InventoryQuery"

type ListInventoryRequest struct{}

type ListInventoryResponse struct {
	Items []domain.InventoryRecord `json:"items"`
}

type GetForecastRequest struct {
	SKU string `json:"sku"`
}

type RecentSalesRequest struct {
	Limit int `json:"limit"`
}

type RecentSalesResponse struct {
	Sales []domain.SaleEvent `json:"sales"`
}

type PlaceOrderRequest struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type PlaceOrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type InventoryQueryServer interface {
	ListInventory(context.Context, *ListInventoryRequest) (*ListInventoryResponse, error)
	GetForecast(context.Context, *GetForecastRequest) (*service.SKUForecast, error)
	RecentSales(context.Context, *RecentSalesRequest) (*RecentSalesResponse, error)
	PlaceOrder(context.Context, *PlaceOrderRequest) (*PlaceOrderResponse, error)
}

func RegisterInventoryQueryServer(s grpc.ServiceRegistrar, srv InventoryQueryServer) {
	s.RegisterService(&inventoryQueryDesc, srv)
}

var inventoryQueryDesc = grpc.ServiceDesc{
	ServiceName: inventoryQueryService,
	HandlerType: (*InventoryQueryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListInventory", Handler: unary("ListInventory", InventoryQueryServer.ListInventory)},
		{MethodName: "GetForecast", Handler: unary("GetForecast", InventoryQueryServer.GetForecast)},
		{MethodName: "RecentSales", Handler: unary("RecentSales", InventoryQueryServer.RecentSales)},
		{MethodName: "PlaceOrder", Handler: unary("PlaceOrder", InventoryQueryServer.PlaceOrder)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "restock/v1/inventory_query",
}

func unary[Req, Resp any](method string, call func(InventoryQueryServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + inventoryQueryService + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InventoryQueryServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(InventoryQueryServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type GRPCHandler struct {
	query  InventoryQuery
	orders orderIntake
	logger *zap.Logger
}

func NewGRPCHandler(query InventoryQuery, bus port.EventPublisher, orderChannel string, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{
		query:  query,
		orders: orderIntake{bus: bus, channel: orderChannel},
		logger: logger.With(zap.String("component", "grpc")),
	}
}

func (h *GRPCHandler) ListInventory(ctx context.Context, req *ListInventoryRequest) (*ListInventoryResponse, error) {
	records, err := h.query.ListInventory(ctx)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &ListInventoryResponse{Items: records}, nil
}

func (h *GRPCHandler) GetForecast(ctx context.Context, req *GetForecastRequest) (*service.SKUForecast, error) {
	if req.SKU == "" {
		return nil, status.Error(codes.InvalidArgument, "sku is required")
	}
	fc, err := h.query.Forecast(ctx, req.SKU)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &fc, nil
}

func (h *GRPCHandler) RecentSales(ctx context.Context, req *RecentSalesRequest) (*RecentSalesResponse, error) {
	if req.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit must not be negative")
	}
	sales, err := h.query.RecentSales(ctx, req.Limit)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &RecentSalesResponse{Sales: sales}, nil
}

func (h *GRPCHandler) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	err := h.orders.place(ctx, domain.OrderEvent{SKU: req.SKU, Quantity: req.Quantity})
	if errors.Is(err, domain.ErrInvalidEvent) {
		return &PlaceOrderResponse{Message: "missing required fields"}, nil
	}
	if err != nil {
		h.logger.Error("Failed to enqueue order", zap.String("sku", req.SKU), zap.Error(err))
		return &PlaceOrderResponse{Message: "order channel unavailable"}, nil
	}
	return &PlaceOrderResponse{Success: true, Message: "order accepted"}, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	if errors.Is(err, port.ErrNotFound) {
		return status.Error(codes.NotFound, "sku not found")
	}
	h.logger.Error("Request failed", zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}

// InventoryQueryClient calls the service with the JSON codec.
type InventoryQueryClient struct {
	cc grpc.ClientConnInterface
}

func NewInventoryQueryClient(cc grpc.ClientConnInterface) *InventoryQueryClient {
	return &InventoryQueryClient{cc: cc}
}

func (c *InventoryQueryClient) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, "/"+inventoryQueryService+"/"+method, in, out, grpc.CallContentSubtype(CodecName))
}

func (c *InventoryQueryClient) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	out := new(ListInventoryResponse)
	if err := c.invoke(ctx, "ListInventory", &ListInventoryRequest{}, out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *InventoryQueryClient) GetForecast(ctx context.Context, sku string) (*service.SKUForecast, error) {
	out := new(service.SKUForecast)
	if err := c.invoke(ctx, "GetForecast", &GetForecastRequest{SKU: sku}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryQueryClient) RecentSales(ctx context.Context, limit int) ([]domain.SaleEvent, error) {
	out := new(RecentSalesResponse)
	if err := c.invoke(ctx, "RecentSales", &RecentSalesRequest{Limit: limit}, out); err != nil {
		return nil, err
	}
	return out.Sales, nil
}

func (c *InventoryQueryClient) PlaceOrder(ctx context.Context, sku string, quantity int) (*PlaceOrderResponse, error) {
	out := new(PlaceOrderResponse)
	if err := c.invoke(ctx, "PlaceOrder", &PlaceOrderRequest{SKU: sku, Quantity: quantity}, out); err != nil {
		return nil, err
	}
	return out, nil
}
