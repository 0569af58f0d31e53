package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/service/checkout"
	"github.com/vladislavdragonenkov/commerce/internal/service/reconcile"
)

// Handlers — HTTP-обработчики API платформы.
type Handlers struct {
	carts        domain.CartRepository
	orders       domain.OrderRepository
	orchestrator *checkout.Orchestrator
	reconciler   *reconcile.Service
	logger       *log.Entry
	now          func() time.Time
}

// NewHandlers создаёт набор обработчиков API.
func NewHandlers(
	carts domain.CartRepository,
	orders domain.OrderRepository,
	orchestrator *checkout.Orchestrator,
	reconciler *reconcile.Service,
	logger *log.Entry,
) *Handlers {
	if logger == nil {
		logger = log.WithField("component", "http-handlers")
	}
	return &Handlers{
		carts:        carts,
		orders:       orders,
		orchestrator: orchestrator,
		reconciler:   reconciler,
		logger:       logger,
		now:          time.Now,
	}
}

func requestContext(c *gin.Context, currency string) domain.RequestContext {
	return domain.RequestContext{
		TenantID: c.GetHeader(HeaderTenantID),
		Currency: currency,
		ActorID:  c.GetHeader(HeaderActorID),
	}
}

type cartItemRequest struct {
	ProductID      string `json:"product_id" binding:"required"`
	Description    string `json:"description"`
	Qty            int32  `json:"qty" binding:"required"`
	UnitPriceMinor int64  `json:"unit_price_cents"`
}

type createCartRequest struct {
	CustomerID    string            `json:"customer_id" binding:"required"`
	CustomerEmail string            `json:"customer_email" binding:"required"`
	Currency      string            `json:"currency" binding:"required"`
	Items         []cartItemRequest `json:"items" binding:"required"`
}

// CreateCart обрабатывает POST /api/v1/carts.
func (h *Handlers) CreateCart(c *gin.Context) {
	var req createCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	now := h.now().UTC()
	cart := domain.Cart{
		ID:            uuid.New().String(),
		TenantID:      c.GetHeader(HeaderTenantID),
		CustomerID:    req.CustomerID,
		CustomerEmail: req.CustomerEmail,
		Currency:      req.Currency,
		Status:        domain.CartStatusActive,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, item := range req.Items {
		if item.Qty <= 0 {
			writeError(c, domain.ErrItemQtyInvalid)
			return
		}
		if item.UnitPriceMinor < 0 {
			writeError(c, domain.ErrItemPriceInvalid)
			return
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ID:             uuid.New().String(),
			ProductID:      item.ProductID,
			Description:    item.Description,
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
			TotalMinor:     item.UnitPriceMinor * int64(item.Qty),
			CreatedAt:      now,
		})
	}

	if err := h.carts.Create(c.Request.Context(), cart); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"cart_id":        cart.ID,
		"subtotal_cents": cart.SubtotalMinor(),
		"currency":       cart.Currency,
	})
}

// GetCart обрабатывает GET /api/v1/carts/:id.
func (h *Handlers) GetCart(c *gin.Context) {
	cart, err := h.carts.Get(c.Request.Context(), c.GetHeader(HeaderTenantID), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

type checkoutRequest struct {
	CartID      string   `json:"cart_id" binding:"required"`
	Provider    string   `json:"provider"`
	CouponCodes []string `json:"coupon_codes"`
}

// Checkout обрабатывает POST /api/v1/checkout. Маршрут обёрнут в
// idempotency middleware: повтор с тем же ключом получает сохранённый
// ответ, а не второй заказ.
func (h *Handlers) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	tenantID := c.GetHeader(HeaderTenantID)
	cart, err := h.carts.Get(c.Request.Context(), tenantID, req.CartID)
	if err != nil {
		writeError(c, err)
		return
	}

	rctx := requestContext(c, cart.Currency)
	result, err := h.orchestrator.Checkout(c.Request.Context(), rctx, req.CartID, req.Provider, req.CouponCodes)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order_id":      result.OrderID,
		"payment_id":    result.PaymentID,
		"client_secret": result.ClientSecret,
		"amount_cents":  result.AmountMinor,
		"currency":      result.Currency,
	})
}

// GetOrder обрабатывает GET /api/v1/orders/:id.
func (h *Handlers) GetOrder(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), c.GetHeader(HeaderTenantID), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type refundRequest struct {
	AmountMinor int64  `json:"amount_cents" binding:"required"`
	Reason      string `json:"reason"`
}

// Refund обрабатывает POST /api/v1/orders/:id/refund. Тоже за idempotency
// middleware.
func (h *Handlers) Refund(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	orderID := c.Param("id")
	tenantID := c.GetHeader(HeaderTenantID)
	order, err := h.orders.Get(c.Request.Context(), tenantID, orderID)
	if err != nil {
		writeError(c, err)
		return
	}

	rctx := requestContext(c, order.Currency)
	if err := h.orchestrator.Refund(c.Request.Context(), rctx, orderID, req.AmountMinor, req.Reason); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":        orderID,
		"refunded_cents":  req.AmountMinor,
		"refunded_reason": req.Reason,
	})
}

// Reconcile обрабатывает GET /api/v1/reconciliation: прогоняет проверки
// по тенанту и возвращает найденные расхождения. Состояние не меняется.
func (h *Handlers) Reconcile(c *gin.Context) {
	issues, err := h.reconciler.Reconcile(c.Request.Context(), c.GetHeader(HeaderTenantID))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"issues": issues,
		"count":  len(issues),
	})
}
