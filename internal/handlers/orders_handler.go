package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AkasshP/Deliops-Backend/internal/lifecycle"
	"github.com/AkasshP/Deliops-Backend/internal/orders"
	"github.com/AkasshP/Deliops-Backend/internal/payments"
	"github.com/AkasshP/Deliops-Backend/internal/pricing"
	"github.com/AkasshP/Deliops-Backend/internal/validation"
)

// OrderService is the slice of the lifecycle manager the HTTP surface uses.
type OrderService interface {
	CreateOrder(ctx context.Context, customer lifecycle.CustomerInfo, lines []orders.OrderLine) (*lifecycle.CreateResult, error)
	Finalize(ctx context.Context, orderID, intentID string) error
}

// OrderReader is the read-only ledger access for the admin endpoints.
type OrderReader interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	List(ctx context.Context, limit int) ([]*orders.Order, error)
}

// OrdersConfig groups dependencies for the orders routes.
type OrdersConfig struct {
	Service OrderService
	Reader  OrderReader
	Logger  *zap.Logger
}

const listLimit = 200

// RegisterOrdersRoutes registers the order API.
func RegisterOrdersRoutes(r *gin.Engine, cfg OrdersConfig) {
	v := validation.New()
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r.POST("/orders/intent", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		lines := make([]orders.OrderLine, 0, len(req.Lines))
		for _, l := range req.Lines {
			lines = append(lines, orders.OrderLine{ItemID: l.ItemID, Qty: l.Qty})
		}

		res, err := cfg.Service.CreateOrder(ctx, lifecycle.CustomerInfo{
			Name:  req.CustomerName,
			Email: req.CustomerEmail,
		}, lines)
		if err != nil {
			writeOrderError(c, log, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"orderId":      res.OrderID,
			"clientSecret": res.ClientSecret,
			"total":        res.Total.InexactFloat64(),
		})
	})

	r.POST("/orders/:id/finalize", func(c *gin.Context) {
		ctx := c.Request.Context()
		orderID := c.Param("id")

		var req validation.FinalizeRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		if err := cfg.Service.Finalize(ctx, orderID, req.PaymentIntentID); err != nil {
			writeOrderError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "orderId": orderID})
	})

	r.GET("/orders", func(c *gin.Context) {
		list, err := cfg.Reader.List(c.Request.Context(), listLimit)
		if err != nil {
			log.Error("list orders failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		out := make([]gin.H, 0, len(list))
		for _, o := range list {
			out = append(out, orderJSON(o))
		}
		c.JSON(http.StatusOK, out)
	})

	r.GET("/orders/:id", func(c *gin.Context) {
		o, err := cfg.Reader.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			log.Error("get order failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		if o == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			return
		}
		c.JSON(http.StatusOK, orderJSON(o))
	})
}

// writeOrderError maps business failures to readable 4xx responses and
// everything else to a generic server error that leaks nothing.
func writeOrderError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, pricing.ErrNoLines),
		errors.Is(err, pricing.ErrInvalidQuantity),
		errors.Is(err, pricing.ErrItemUnavailable),
		errors.Is(err, pricing.ErrItemNotPriced),
		errors.Is(err, lifecycle.ErrOrderNotFound),
		errors.Is(err, lifecycle.ErrIntentOrderMismatch),
		errors.Is(err, lifecycle.ErrPaymentNotSucceeded),
		errors.Is(err, lifecycle.ErrInsufficientStock):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, payments.ErrGatewayUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payments_unavailable"})
	default:
		log.Error("order operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

// orderJSON renders the nested order shape the admin UI expects.
func orderJSON(o *orders.Order) gin.H {
	lines := make([]gin.H, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, gin.H{
			"itemId":    l.ItemID,
			"name":      l.Name,
			"unitPrice": l.UnitPrice.InexactFloat64(),
			"qty":       l.Qty,
			"lineTotal": l.LineTotal.InexactFloat64(),
		})
	}
	return gin.H{
		"id":     o.ID,
		"status": o.Status,
		"customer": gin.H{
			"name":  o.CustomerName,
			"email": o.CustomerEmail,
		},
		"lines": lines,
		"amounts": gin.H{
			"subtotal": o.Amounts.Subtotal.InexactFloat64(),
			"tax":      o.Amounts.Tax.InexactFloat64(),
			"total":    o.Amounts.Total.InexactFloat64(),
			"currency": o.Amounts.Currency,
		},
		"payment": gin.H{
			"provider": o.PaymentProvider,
			"intentId": o.PaymentIntentID,
		},
		"createdAt": o.CreatedAt.Format(time.RFC3339),
		"updatedAt": o.UpdatedAt.Format(time.RFC3339),
	}
}
