package http

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	idemsvc "github.com/vladislavdragonenkov/commerce/internal/service/idempotency"
)

// Заголовки API.
const (
	HeaderTenantID       = "X-Tenant-ID"
	HeaderActorID        = "X-Actor-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
)

var httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "commerce_http_requests_total",
	Help: "Total number of HTTP requests grouped by method, path and status.",
}, []string{"method", "path", "status"})

var httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "commerce_http_request_duration_seconds",
	Help:    "HTTP request latency.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "path"})

// RequestLogger логирует каждый запрос и обновляет HTTP-метрики.
func RequestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(elapsed.Seconds())

		logger.WithFields(log.Fields{
			"method":      c.Request.Method,
			"path":        path,
			"status":      c.Writer.Status(),
			"duration_ms": elapsed.Milliseconds(),
			"tenant_id":   c.GetHeader(HeaderTenantID),
		}).Info("http request")
	}
}

// RequireTenant проверяет наличие заголовка X-Tenant-ID на API-маршрутах.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(HeaderTenantID) == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: domain.ErrTenantRequired.Error()})
			return
		}
		c.Next()
	}
}

// bodyCaptureWriter перехватывает тело ответа, чтобы middleware мог
// сохранить его под idempotency ключом.
type bodyCaptureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency реализует клиентскую идемпотентность для мутирующих
// маршрутов. Первый запрос с ключом исполняется и его ответ сохраняется;
// повтор с тем же телом получает сохранённый ответ verbatim, повтор с
// другим телом — 409, конкурентный повтор — 409. Ответы 5xx не кешируются:
// ключ остаётся в processing до истечения TTL.
func Idempotency(svc *idemsvc.Service, logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			writeError(c, domain.ErrIdempotencyKeyRequired)
			return
		}
		tenantID := c.GetHeader(HeaderTenantID)
		path := c.FullPath()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		decision, err := svc.Begin(c.Request.Context(), tenantID, key, path, idemsvc.RequestHash(body))
		if err != nil {
			writeError(c, err)
			return
		}

		switch decision.Outcome {
		case idemsvc.OutcomeReplay:
			logger.WithFields(log.Fields{
				"idempotency_key": key,
				"path":            path,
			}).Debug("idempotent replay")
			c.Data(decision.HTTPStatus, "application/json", decision.ResponseBody)
			c.Abort()
			return
		case idemsvc.OutcomeInFlight:
			c.AbortWithStatusJSON(http.StatusConflict, errorResponse{Error: "request with this idempotency key is in flight"})
			return
		}

		writer := &bodyCaptureWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		status := writer.Status()
		switch {
		case status >= 200 && status < 300:
			if err := svc.Complete(c.Request.Context(), tenantID, key, path, writer.body.Bytes(), status); err != nil {
				logger.WithError(err).Warn("failed to cache idempotent response")
			}
		case status >= 400 && status < 500:
			// Детерминированный бизнес-отказ: повтор вернёт тот же ответ.
			if err := svc.Fail(c.Request.Context(), tenantID, key, path, writer.body.Bytes(), status); err != nil {
				logger.WithError(err).Warn("failed to cache idempotent error response")
			}
		}
	}
}
