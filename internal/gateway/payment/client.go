package payment

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

const (
	defaultTimeout    = 5 * time.Second
	defaultRetryCount = 2
)

// ClientConfig — параметры HTTP-клиента платёжного провайдера.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
}

// HTTPGateway — клиент платёжного провайдера поверх REST API. Вызовы идут
// через circuit breaker: при серии отказов провайдера breaker размыкается и
// чекаут получает быстрый отказ вместо зависания на таймаутах.
type HTTPGateway struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker[*resty.Response]
	logger  *log.Entry
}

type intentRequest struct {
	PaymentID   string            `json:"payment_id"`
	OrderID     string            `json:"order_id"`
	AmountMinor int64             `json:"amount_cents"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type intentResponse struct {
	ProviderPaymentID string `json:"provider_payment_id"`
	ClientSecret      string `json:"client_secret"`
}

type refundRequest struct {
	ProviderRef string `json:"provider_ref"`
	AmountMinor int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type refundResponse struct {
	RefundRef string `json:"refund_ref"`
}

// NewHTTPGateway создаёт клиент провайдера.
func NewHTTPGateway(cfg ClientConfig, logger *log.Entry) *HTTPGateway {
	if logger == nil {
		logger = log.WithField("component", "payment-gateway")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = defaultRetryCount
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	breaker := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:    "payment-provider",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("payment circuit breaker state changed")
		},
	})

	return &HTTPGateway{client: client, breaker: breaker, logger: logger}
}

// execute прогоняет запрос через breaker. Ответы 5xx считаются отказом
// провайдера и двигают breaker к размыканию; 4xx — ошибка клиента и
// отказом не является.
func (g *HTTPGateway) execute(fn func() (*resty.Response, error)) (*resty.Response, error) {
	return g.breaker.Execute(func() (*resty.Response, error) {
		resp, err := fn()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return resp, fmt.Errorf("payment provider status %d", resp.StatusCode())
		}
		return resp, nil
	})
}

// CreateIntent создаёт intent на списание у провайдера.
func (g *HTTPGateway) CreateIntent(ctx context.Context, payment domain.Payment, metadata map[string]string) (domain.PaymentIntent, error) {
	var out intentResponse
	req := intentRequest{
		PaymentID:   payment.ID,
		OrderID:     payment.OrderID,
		AmountMinor: payment.AmountMinor,
		Currency:    payment.Currency,
		Metadata:    metadata,
	}

	resp, err := g.execute(func() (*resty.Response, error) {
		return g.client.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&out).
			Post("/v1/payment_intents")
	})
	if err := g.checkResponse(resp, err, "create intent"); err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("%w: %v", domain.ErrPaymentInitFailed, err)
	}

	return domain.PaymentIntent{
		ProviderPaymentID: out.ProviderPaymentID,
		ClientSecret:      out.ClientSecret,
	}, nil
}

// Confirm подтверждает платёж у провайдера.
func (g *HTTPGateway) Confirm(ctx context.Context, payment domain.Payment) error {
	resp, err := g.execute(func() (*resty.Response, error) {
		return g.client.R().
			SetContext(ctx).
			Post("/v1/payment_intents/" + payment.ProviderRef + "/confirm")
	})
	return g.checkResponse(resp, err, "confirm")
}

// Refund инициирует возврат и возвращает ссылку провайдера на refund.
// idempotencyKey уходит провайдеру заголовком: повтор того же возврата
// после сбоя локальной транзакции дедуплицируется на его стороне.
func (g *HTTPGateway) Refund(ctx context.Context, payment domain.Payment, amountMinor int64, idempotencyKey string) (string, error) {
	var out refundResponse
	req := refundRequest{
		ProviderRef: payment.ProviderRef,
		AmountMinor: amountMinor,
		Currency:    payment.Currency,
	}

	resp, err := g.execute(func() (*resty.Response, error) {
		return g.client.R().
			SetContext(ctx).
			SetHeader("Idempotency-Key", idempotencyKey).
			SetBody(req).
			SetResult(&out).
			Post("/v1/refunds")
	})
	if err := g.checkResponse(resp, err, "refund"); err != nil {
		return "", err
	}
	return out.RefundRef, nil
}

// Cancel отменяет незавершённый платёж.
func (g *HTTPGateway) Cancel(ctx context.Context, payment domain.Payment) error {
	resp, err := g.execute(func() (*resty.Response, error) {
		return g.client.R().
			SetContext(ctx).
			Post("/v1/payment_intents/" + payment.ProviderRef + "/cancel")
	})
	return g.checkResponse(resp, err, "cancel")
}

func (g *HTTPGateway) checkResponse(resp *resty.Response, err error, op string) error {
	if err != nil {
		g.logger.WithError(err).WithField("op", op).Warn("payment provider request failed")
		return err
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		g.logger.WithFields(log.Fields{
			"op":     op,
			"status": resp.StatusCode(),
		}).Warn("payment provider returned error status")
		return fmt.Errorf("payment provider %s: status %d", op, resp.StatusCode())
	}
	return nil
}

var _ domain.PaymentGateway = (*HTTPGateway)(nil)
