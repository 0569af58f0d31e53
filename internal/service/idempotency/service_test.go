package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
)

func newTestService() (*Service, domain.IdempotencyRepository) {
	repo := memory.NewIdempotencyRepository()
	return NewService(repo, nil, time.Hour), repo
}

func TestBeginFirstCallProceeds(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	decision, err := svc.Begin(ctx, "tenant-1", "key-1", "/api/v1/checkout", RequestHash([]byte(`{"cart":"a"}`)))
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if decision.Outcome != OutcomeProceed {
		t.Fatalf("expected OutcomeProceed, got %d", decision.Outcome)
	}
}

func TestBeginReplaysCompletedResponse(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	hash := RequestHash([]byte(`{"cart":"a"}`))

	if _, err := svc.Begin(ctx, "tenant-1", "key-1", "/api/v1/checkout", hash); err != nil {
		t.Fatalf("begin: %v", err)
	}
	body := []byte(`{"order_id":"order-1"}`)
	if err := svc.Complete(ctx, "tenant-1", "key-1", "/api/v1/checkout", body, 201); err != nil {
		t.Fatalf("complete: %v", err)
	}

	decision, err := svc.Begin(ctx, "tenant-1", "key-1", "/api/v1/checkout", hash)
	if err != nil {
		t.Fatalf("replay begin: %v", err)
	}
	if decision.Outcome != OutcomeReplay {
		t.Fatalf("expected OutcomeReplay, got %d", decision.Outcome)
	}
	if string(decision.ResponseBody) != string(body) {
		t.Fatalf("response body must be replayed verbatim: %s", decision.ResponseBody)
	}
	if decision.HTTPStatus != 201 {
		t.Fatalf("expected status 201, got %d", decision.HTTPStatus)
	}
}

func TestBeginReplaysFailedResponse(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	hash := RequestHash([]byte(`{"cart":"empty"}`))

	if _, err := svc.Begin(ctx, "tenant-1", "key-1", "/api/v1/checkout", hash); err != nil {
		t.Fatalf("begin: %v", err)
	}
	body := []byte(`{"error":"cart is empty"}`)
	if err := svc.Fail(ctx, "tenant-1", "key-1", "/api/v1/checkout", body, 422); err != nil {
		t.Fatalf("fail: %v", err)
	}

	decision, err := svc.Begin(ctx, "tenant-1", "key-1", "/api/v1/checkout", hash)
	if err != nil {
		t.Fatalf("replay begin: %v", err)
	}
	if decision.Outcome != OutcomeReplay || decision.HTTPStatus != 422 {
		t.Fatalf("business failure must be replayed: outcome=%d status=%d", decision.Outcome, decision.HTTPStatus)
	}
}

func TestBeginExpiredKeyProceeds(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	// Завершённая запись с истёкшим ttl не должна реплеиться до прихода
	// фоновой очистки: ключ свободен сразу после истечения.
	expired := time.Now().UTC().Add(-time.Minute)
	if _, err := repo.CreateProcessing(ctx, "tenant-1", "key-1", "/api/v1/checkout", RequestHash([]byte(`{"cart":"old"}`)), expired); err != nil {
		t.Fatalf("seed expired record: %v", err)
	}
	if err := repo.MarkDone(ctx, "tenant-1", "key-1", "/api/v1/checkout", []byte(`{"order_id":"stale"}`), 201); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	decision, err := svc.Begin(ctx, "tenant-1", "key-1", "/api/v1/checkout", RequestHash([]byte(`{"cart":"new"}`)))
	if err != nil {
		t.Fatalf("begin after expiry: %v", err)
	}
	if decision.Outcome != OutcomeProceed {
		t.Fatalf("expected OutcomeProceed for expired key, got %d", decision.Outcome)
	}
	if len(decision.ResponseBody) != 0 {
		t.Fatalf("stale response must not be replayed: %s", decision.ResponseBody)
	}
}

func TestBeginConcurrentRequestInFlight(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	hash := RequestHash([]byte(`{"cart":"a"}`))

	if _, err := svc.Begin(ctx, "tenant-1", "key-1", "/api/v1/checkout", hash); err != nil {
		t.Fatalf("begin: %v", err)
	}

	decision, err := svc.Begin(ctx, "tenant-1", "key-1", "/api/v1/checkout", hash)
	if err != nil {
		t.Fatalf("second begin: %v", err)
	}
	if decision.Outcome != OutcomeInFlight {
		t.Fatalf("expected OutcomeInFlight, got %d", decision.Outcome)
	}
}

func TestBeginRejectsHashMismatch(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Begin(ctx, "tenant-1", "key-1", "/api/v1/checkout", RequestHash([]byte(`{"cart":"a"}`))); err != nil {
		t.Fatalf("begin: %v", err)
	}

	_, err := svc.Begin(ctx, "tenant-1", "key-1", "/api/v1/checkout", RequestHash([]byte(`{"cart":"b"}`)))
	if !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("expected ErrIdempotencyHashMismatch, got %v", err)
	}
}

func TestBeginScopedByPath(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	hash := RequestHash([]byte(`{}`))

	if _, err := svc.Begin(ctx, "tenant-1", "key-1", "/api/v1/checkout", hash); err != nil {
		t.Fatalf("begin: %v", err)
	}

	decision, err := svc.Begin(ctx, "tenant-1", "key-1", "/api/v1/orders/order-1/refund", hash)
	if err != nil {
		t.Fatalf("begin other path: %v", err)
	}
	if decision.Outcome != OutcomeProceed {
		t.Fatalf("same key on another path is an independent record, got %d", decision.Outcome)
	}
}

func TestBeginValidatesInput(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Begin(ctx, "tenant-1", "", "/p", "hash"); !errors.Is(err, domain.ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
	if _, err := svc.Begin(ctx, "tenant-1", "key-1", "/p", ""); !errors.Is(err, domain.ErrIdempotencyRequestHashRequired) {
		t.Fatalf("expected ErrIdempotencyRequestHashRequired, got %v", err)
	}
}

func TestCleanupDeletesOnlyExpired(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := repo.CreateProcessing(ctx, "tenant-1", "expired", "/p", "h1", now.Add(-time.Minute)); err != nil {
		t.Fatalf("seed expired: %v", err)
	}
	if _, err := repo.CreateProcessing(ctx, "tenant-1", "alive", "/p", "h2", now.Add(time.Hour)); err != nil {
		t.Fatalf("seed alive: %v", err)
	}

	worker := NewCleanupWorker(repo, WithBatchSize(1))
	deleted, err := worker.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected one deletion, got %d", deleted)
	}

	if _, err := repo.Get(ctx, "tenant-1", "expired", "/p"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expired record must be gone, got %v", err)
	}
	if _, err := repo.Get(ctx, "tenant-1", "alive", "/p"); err != nil {
		t.Fatalf("live record must survive: %v", err)
	}
}

func TestRequestHashDeterministic(t *testing.T) {
	if RequestHash([]byte("abc")) != RequestHash([]byte("abc")) {
		t.Fatal("hash must be deterministic")
	}
	if RequestHash([]byte("abc")) == RequestHash([]byte("abd")) {
		t.Fatal("different bodies must produce different hashes")
	}
}
