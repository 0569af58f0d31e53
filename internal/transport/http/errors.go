package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// errorResponse — единый формат ошибки API.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError переводит доменную ошибку в HTTP-статус: not found → 404,
// нарушение бизнес-правила → 422, ошибка валидации → 400, конфликт
// версий или конкурентная обработка → 409, остальное → 500.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case domain.IsNotFound(err):
		status = http.StatusNotFound
	case domain.IsBusinessRuleViolation(err):
		status = http.StatusUnprocessableEntity
	case domain.IsValidation(err):
		status = http.StatusBadRequest
	case domain.IsVersionConflict(err),
		errors.Is(err, domain.ErrIdempotencyHashMismatch),
		errors.Is(err, domain.ErrPromotionUsageExists):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrWebhookSignatureInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrIdempotencyKeyRequired):
		status = http.StatusBadRequest
	}

	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}
