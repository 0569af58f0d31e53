package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/service/webhook"
)

// HeaderProviderSignature несёт hex-кодированный HMAC-SHA256 от сырого
// тела запроса.
const HeaderProviderSignature = "X-Provider-Signature"

// SecretSource отдаёт webhook-секрет тенанта.
type SecretSource func(tenantID string) (string, bool)

// WebhookHandler принимает события платёжного провайдера: проверяет
// подпись, дедуплицирует и передаёт событие процессору.
type WebhookHandler struct {
	processor *webhook.Processor
	secrets   SecretSource
	logger    *log.Entry
}

// NewWebhookHandler создаёт обработчик webhook-эндпоинта.
func NewWebhookHandler(processor *webhook.Processor, secrets SecretSource, logger *log.Entry) *WebhookHandler {
	if logger == nil {
		logger = log.WithField("component", "webhook-handler")
	}
	return &WebhookHandler{
		processor: processor,
		secrets:   secrets,
		logger:    logger,
	}
}

// Handle обрабатывает POST /webhooks/:provider. Повторная доставка уже
// обработанного события подтверждается 200 без повторной обработки;
// неизвестный тип события — 200 no-op, чтобы провайдер перестал ретраить.
func (h *WebhookHandler) Handle(c *gin.Context) {
	provider := c.Param("provider")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return
	}

	var event webhook.Event
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed event payload"})
		return
	}

	secret, ok := h.secrets(event.TenantID)
	if !ok || secret == "" {
		// Отсутствие секрета — ошибка конфигурации, а не клиента.
		h.logger.WithField("tenant_id", event.TenantID).Error("webhook secret is not configured")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: domain.ErrWebhookSecretMissing.Error()})
		return
	}

	if !verifySignature(body, c.GetHeader(HeaderProviderSignature), secret) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: domain.ErrWebhookSignatureInvalid.Error()})
		return
	}

	if err := h.processor.Process(c.Request.Context(), provider, event); err != nil {
		h.logger.WithError(err).WithFields(log.Fields{
			"provider": provider,
			"event_id": event.ID,
		}).Error("webhook processing failed")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "event processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// verifySignature сравнивает подпись запроса с HMAC-SHA256 от тела в
// константное время.
func verifySignature(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
