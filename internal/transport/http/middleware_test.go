package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	idemsvc "github.com/vladislavdragonenkov/commerce/internal/service/idempotency"
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
)

type idempotencyRouter struct {
	engine       *gin.Engine
	handlerCalls int
}

// newIdempotencyRouter собирает маршрут за idempotency middleware. Handler
// каждый раз отвечает разным телом, чтобы replay был отличим от
// повторного исполнения.
func newIdempotencyRouter(t *testing.T, handler gin.HandlerFunc) *idempotencyRouter {
	t.Helper()

	gin.SetMode(gin.TestMode)
	svc := idemsvc.NewService(memory.NewIdempotencyRepository(), nil, time.Hour)

	router := &idempotencyRouter{engine: gin.New()}
	middleware := Idempotency(svc, log.WithField("test", "idempotency"))
	router.engine.POST("/api/v1/checkout", middleware, func(c *gin.Context) {
		router.handlerCalls++
		handler(c)
	})
	return router
}

func (r *idempotencyRouter) post(body, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString(body))
	req.Header.Set(HeaderTenantID, "tenant-1")
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	recorder := httptest.NewRecorder()
	r.engine.ServeHTTP(recorder, req)
	return recorder
}

func TestIdempotencyMissingKeyRejected(t *testing.T) {
	router := newIdempotencyRouter(t, func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	resp := router.post(`{"cart_id":"cart-1"}`, "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	if router.handlerCalls != 0 {
		t.Fatalf("handler must not run without idempotency key, got %d calls", router.handlerCalls)
	}
}

func TestIdempotencyReplaysVerbatimResponse(t *testing.T) {
	calls := 0
	router := newIdempotencyRouter(t, func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"order_id": "order-1", "attempt": calls})
	})

	first := router.post(`{"cart_id":"cart-1"}`, "key-1")
	if first.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", first.Code)
	}

	second := router.post(`{"cart_id":"cart-1"}`, "key-1")
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed status 201, got %d", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replay body differs: first %s, second %s", first.Body.String(), second.Body.String())
	}
	if router.handlerCalls != 1 {
		t.Fatalf("expected single handler execution, got %d", router.handlerCalls)
	}
}

func TestIdempotencyHashMismatchConflicts(t *testing.T) {
	router := newIdempotencyRouter(t, func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	if resp := router.post(`{"cart_id":"cart-1"}`, "key-1"); resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}

	// Тот же ключ, другое тело.
	resp := router.post(`{"cart_id":"cart-2"}`, "key-1")
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409 on hash mismatch, got %d", resp.Code)
	}
	if router.handlerCalls != 1 {
		t.Fatalf("expected single handler execution, got %d", router.handlerCalls)
	}
}

func TestIdempotencyCachesBusinessFailure(t *testing.T) {
	router := newIdempotencyRouter(t, func(c *gin.Context) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "cart is empty"})
	})

	first := router.post(`{"cart_id":"cart-1"}`, "key-1")
	if first.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", first.Code)
	}

	second := router.post(`{"cart_id":"cart-1"}`, "key-1")
	if second.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected replayed status 422, got %d", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replay body differs: first %s, second %s", first.Body.String(), second.Body.String())
	}
	if router.handlerCalls != 1 {
		t.Fatalf("business failure must be cached, got %d handler calls", router.handlerCalls)
	}
}

func TestIdempotencyServerErrorNotCached(t *testing.T) {
	router := newIdempotencyRouter(t, func(c *gin.Context) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment provider unreachable"})
	})

	first := router.post(`{"cart_id":"cart-1"}`, "key-1")
	if first.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", first.Code)
	}

	// 5xx не кешируется: ключ остаётся в processing, повтор получает 409
	// до истечения TTL.
	second := router.post(`{"cart_id":"cart-1"}`, "key-1")
	if second.Code != http.StatusConflict {
		t.Fatalf("expected status 409 for in-flight key, got %d", second.Code)
	}
	if router.handlerCalls != 1 {
		t.Fatalf("expected single handler execution, got %d", router.handlerCalls)
	}
}

func TestRequireTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/api/v1/orders/:id", RequireTenant(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/order-1", nil)
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 without tenant header, got %d", recorder.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders/order-1", nil)
	req.Header.Set(HeaderTenantID, "tenant-1")
	recorder = httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200 with tenant header, got %d", recorder.Code)
	}
}
