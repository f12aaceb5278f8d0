package handler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/rl1809/restock-engine/internal/adapter/broadcast"
	"github.com/rl1809/restock-engine/internal/core/domain"
	"github.com/rl1809/restock-engine/internal/core/service"
	"github.com/rl1809/restock-engine/internal/port"
)

// InventoryQuery is the read side the API serves.
type InventoryQuery interface {
	ListInventory(ctx context.Context) ([]domain.InventoryRecord, error)
	GetInventory(ctx context.Context, sku string) (domain.InventoryRecord, error)
	RecentSales(ctx context.Context, limit int) ([]domain.SaleEvent, error)
	Forecast(ctx context.Context, sku string) (service.SKUForecast, error)
}

// HealthCheck reports one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

type HTTPHandler struct {
	query     InventoryQuery
	orders    orderIntake
	hub       *broadcast.Hub
	checks    map[string]HealthCheck
	keepAlive time.Duration
	done      chan struct{}
	logger    *zap.Logger
}

type PlaceOrderHTTPRequest struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type PlaceOrderHTTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(
	query InventoryQuery,
	bus port.EventPublisher,
	orderChannel string,
	hub *broadcast.Hub,
	checks map[string]HealthCheck,
	logger *zap.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		query:     query,
		orders:    orderIntake{bus: bus, channel: orderChannel},
		hub:       hub,
		checks:    checks,
		keepAlive: 15 * time.Second,
		done:      make(chan struct{}),
		logger:    logger.With(zap.String("component", "http")),
	}
}

func (h *HTTPHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)

	api := app.Group("/api")
	api.Get("/inventory", h.ListInventory)
	api.Get("/inventory/:sku", h.GetInventory)
	api.Get("/inventory/:sku/forecast", h.Forecast)
	api.Get("/sales/recent", h.RecentSales)
	api.Post("/orders", h.PlaceOrder)
	api.Get("/stream", h.Stream)
}

// Close ends open event streams so the server can shut down.
func (h *HTTPHandler) Close() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

func (h *HTTPHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	services := make(map[string]string, len(h.checks))
	status := "healthy"
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			services[name] = "unhealthy: " + err.Error()
			status = "unhealthy"
			continue
		}
		services[name] = "healthy"
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	}
	if status == "unhealthy" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(response)
	}
	return c.JSON(response)
}

func (h *HTTPHandler) ListInventory(c *fiber.Ctx) error {
	records, err := h.query.ListInventory(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	if records == nil {
		records = []domain.InventoryRecord{}
	}
	return c.JSON(records)
}

func (h *HTTPHandler) GetInventory(c *fiber.Ctx) error {
	record, err := h.query.GetInventory(c.UserContext(), c.Params("sku"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(record)
}

func (h *HTTPHandler) Forecast(c *fiber.Ctx) error {
	fc, err := h.query.Forecast(c.UserContext(), c.Params("sku"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fc)
}

func (h *HTTPHandler) RecentSales(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "limit must not be negative"})
	}

	sales, err := h.query.RecentSales(c.UserContext(), limit)
	if err != nil {
		return h.fail(c, err)
	}
	if sales == nil {
		sales = []domain.SaleEvent{}
	}
	return c.JSON(sales)
}

func (h *HTTPHandler) PlaceOrder(c *fiber.Ctx) error {
	var req PlaceOrderHTTPRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(PlaceOrderHTTPResponse{
			Message: "invalid request body",
		})
	}

	err := h.orders.place(c.UserContext(), domain.OrderEvent{SKU: req.SKU, Quantity: req.Quantity})
	if errors.Is(err, domain.ErrInvalidEvent) {
		return c.Status(fiber.StatusBadRequest).JSON(PlaceOrderHTTPResponse{
			Message: "missing required fields",
		})
	}
	if err != nil {
		h.logger.Error("Failed to enqueue order", zap.String("sku", req.SKU), zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(PlaceOrderHTTPResponse{
			Message: "order channel unavailable",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(PlaceOrderHTTPResponse{
		Success: true,
		Message: "order accepted",
	})
}

// Stream relays every broadcast as a server-sent event until the client goes
// away or the handler is closed.
func (h *HTTPHandler) Stream(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	messages, stop := h.hub.Subscribe()
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer stop()

		ticker := time.NewTicker(h.keepAlive)
		defer ticker.Stop()

		if _, err := io.WriteString(w, ": connected\n\n"); err != nil || w.Flush() != nil {
			return
		}
		for {
			select {
			case <-h.done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				if err := writeEvent(w, msg); err != nil || w.Flush() != nil {
					return
				}
			case <-ticker.C:
				if _, err := io.WriteString(w, ": ping\n\n"); err != nil || w.Flush() != nil {
					return
				}
			}
		}
	}))
	return nil
}

func writeEvent(w io.Writer, msg broadcast.Message) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, msg.Data)
	return err
}

func (h *HTTPHandler) fail(c *fiber.Ctx, err error) error {
	if errors.Is(err, port.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: "sku not found"})
	}
	h.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "internal error"})
}
