package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/service/reconcile"
	"github.com/vladislavdragonenkov/commerce/internal/storage/postgres"
)

const defaultTimeout = 5 * time.Minute

// Инструмент сверки: прогоняет проверки согласованности по финансовым
// заказам и печатает найденные расхождения. Данные не изменяются; выход
// ненулевой, если расхождения найдены и установлен -strict.
func main() {
	var (
		dsn      string
		tenantID string
		strict   bool
		asJSON   bool
	)

	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: COMMERCE_DATABASE_DSN)")
	flag.StringVar(&tenantID, "tenant", "", "tenant to reconcile (empty = all tenants)")
	flag.BoolVar(&strict, "strict", false, "exit with non-zero status when issues are found")
	flag.BoolVar(&asJSON, "json", false, "print issues as JSON")
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

	service := reconcile.NewService(
		postgres.NewFinancialOrderRepository(store),
		postgres.NewLedgerRepository(store),
		postgres.NewInvoiceRepository(store),
		log.WithField("component", "reconcile-cli"),
	)

	issues, err := service.Reconcile(ctx, tenantID)
	if err != nil {
		fail("reconcile failed: %v", err)
	}

	if asJSON {
		encoded, err := json.MarshalIndent(issues, "", "  ")
		if err != nil {
			fail("encode issues: %v", err)
		}
		fmt.Println(string(encoded))
	} else {
		for _, issue := range issues {
			fmt.Printf("%s tenant=%s financial_order=%s tx=%s expected=%d actual=%d %s\n",
				issue.Type, issue.TenantID, issue.FinancialOrderID, issue.TransactionID,
				issue.ExpectedMinor, issue.ActualMinor, issue.Detail)
		}
		fmt.Printf("reconcile finished: %d issue(s)\n", len(issues))
	}

	if strict && len(issues) > 0 {
		os.Exit(2)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
