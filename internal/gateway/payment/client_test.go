package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// fakeProvider эмулирует REST API платёжного провайдера.
type fakeProvider struct {
	server        *httptest.Server
	intentCalls   int
	refundCalls   int
	failWith      int
	lastAuth      string
	lastRefundKey string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	p := &fakeProvider{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/payment_intents", func(w http.ResponseWriter, r *http.Request) {
		p.intentCalls++
		p.lastAuth = r.Header.Get("Authorization")
		if p.failWith != 0 {
			w.WriteHeader(p.failWith)
			return
		}
		var req intentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(intentResponse{
			ProviderPaymentID: "pi_" + req.PaymentID,
			ClientSecret:      "pi_" + req.PaymentID + "_secret",
		})
	})
	mux.HandleFunc("/v1/payment_intents/pi_payment-1/confirm", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/payment_intents/pi_payment-1/cancel", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/refunds", func(w http.ResponseWriter, r *http.Request) {
		p.refundCalls++
		p.lastRefundKey = r.Header.Get("Idempotency-Key")
		if p.failWith != 0 {
			w.WriteHeader(p.failWith)
			return
		}
		var req refundRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(refundResponse{RefundRef: "re_" + req.ProviderRef})
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func newTestClient(p *fakeProvider) *HTTPGateway {
	return NewHTTPGateway(ClientConfig{
		BaseURL:    p.server.URL,
		APIKey:     "sk_test",
		Timeout:    time.Second,
		RetryCount: 0,
	}, nil)
}

func testPayment() domain.Payment {
	return domain.Payment{
		ID:          "payment-1",
		TenantID:    "tenant-1",
		OrderID:     "order-1",
		Provider:    "stripe",
		AmountMinor: 10000,
		Currency:    "EUR",
		ProviderRef: "pi_payment-1",
	}
}

func TestHTTPGatewayCreateIntent(t *testing.T) {
	provider := newFakeProvider(t)
	gateway := newTestClient(provider)

	intent, err := gateway.CreateIntent(context.Background(), testPayment(), map[string]string{"order_id": "order-1"})
	require.NoError(t, err)
	require.Equal(t, "pi_payment-1", intent.ProviderPaymentID)
	require.Equal(t, "pi_payment-1_secret", intent.ClientSecret)
	require.Equal(t, "Bearer sk_test", provider.lastAuth)
	require.Equal(t, 1, provider.intentCalls)
}

func TestHTTPGatewayCreateIntentProviderError(t *testing.T) {
	provider := newFakeProvider(t)
	provider.failWith = http.StatusPaymentRequired
	gateway := newTestClient(provider)

	_, err := gateway.CreateIntent(context.Background(), testPayment(), nil)
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrPaymentInitFailed)
}

func TestHTTPGatewayConfirmAndCancel(t *testing.T) {
	provider := newFakeProvider(t)
	gateway := newTestClient(provider)

	require.NoError(t, gateway.Confirm(context.Background(), testPayment()))
	require.NoError(t, gateway.Cancel(context.Background(), testPayment()))
}

func TestHTTPGatewayRefund(t *testing.T) {
	provider := newFakeProvider(t)
	gateway := newTestClient(provider)

	ref, err := gateway.Refund(context.Background(), testPayment(), 4000, "refund-order-1-4000")
	require.NoError(t, err)
	require.Equal(t, "re_pi_payment-1", ref)
	require.Equal(t, 1, provider.refundCalls)
	require.Equal(t, "refund-order-1-4000", provider.lastRefundKey)
}

func TestHTTPGatewayCircuitBreakerOpens(t *testing.T) {
	provider := newFakeProvider(t)
	provider.failWith = http.StatusInternalServerError
	gateway := newTestClient(provider)

	// Пять последовательных отказов размыкают breaker.
	for i := 0; i < 5; i++ {
		_, err := gateway.CreateIntent(context.Background(), testPayment(), nil)
		require.Error(t, err)
	}
	callsBeforeOpen := provider.intentCalls

	_, err := gateway.CreateIntent(context.Background(), testPayment(), nil)
	require.Error(t, err)
	require.Equal(t, callsBeforeOpen, provider.intentCalls, "open breaker must fail fast without hitting provider")
}
