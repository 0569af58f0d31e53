package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/service/snapshot"
	"github.com/vladislavdragonenkov/commerce/internal/storage/postgres"
)

const defaultTimeout = 5 * time.Minute

// Инструмент контроля целостности snapshot: пересчитывает хеш каждого
// замороженного финансового заказа и сообщает о расхождениях с
// зафиксированным значением.
func main() {
	var (
		dsn      string
		tenantID string
	)

	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: COMMERCE_DATABASE_DSN)")
	flag.StringVar(&tenantID, "tenant", "", "tenant to check (empty = all tenants)")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv("COMMERCE_DATABASE_DSN"))
	}
	if dsn == "" {
		fail("COMMERCE_DATABASE_DSN (or -dsn) is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	financial := postgres.NewFinancialOrderRepository(store)
	locker := snapshot.NewLocker(nil, log.WithField("component", "integrity-check"))

	orders, err := financial.ListByTenant(ctx, tenantID)
	if err != nil {
		fail("list financial orders: %v", err)
	}

	var checked, tampered, skipped int
	for i := range orders {
		fo := &orders[i]
		ok, err := locker.VerifyIntegrity(fo)
		if err != nil {
			if errors.Is(err, domain.ErrNotLocked) {
				skipped++
				continue
			}
			fail("verify %s: %v", fo.ID, err)
		}
		checked++
		if !ok {
			tampered++
			fmt.Printf("TAMPERED tenant=%s financial_order=%s order=%s\n", fo.TenantID, fo.ID, fo.OrderID)
		}
	}

	fmt.Printf("integrity check finished: checked=%d tampered=%d skipped=%d\n", checked, tampered, skipped)
	if tampered > 0 {
		os.Exit(2)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
