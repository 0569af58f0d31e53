package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// TaxRate — одна налоговая ставка юрисдикции в базисных пунктах
// (1 bp = 0.01%), чтобы не держать float в денежных расчётах.
type TaxRate struct {
	Name    string
	RateBps int64
}

// TaxConfig отображает юрисдикцию на набор ставок.
type TaxConfig map[string][]TaxRate

// Locker замораживает финансовый заказ: вычисляет налоговые строки,
// сериализует полный snapshot и фиксирует его хеш. Заморозка одноразовая.
// Locker только мутирует переданный заказ; сохраняет его вызывающий одним
// Save вместе со своими изменениями, иначе optimistic lock увидит
// устаревшую версию.
type Locker struct {
	taxes  TaxConfig
	logger *log.Entry
	now    func() time.Time
}

// NewLocker создаёт сервис заморозки snapshot.
func NewLocker(taxes TaxConfig, logger *log.Entry) *Locker {
	if logger == nil {
		logger = log.New().WithField("component", "snapshot-locker")
	}
	return &Locker{
		taxes:  taxes,
		logger: logger,
		now:    time.Now,
	}
}

// Quote считает итог заказа с налогом юрисдикции, не фиксируя snapshot.
// Сага берёт из него сумму payment intent, чтобы списание совпало с итогом,
// который позже заморозит Lock по той же конфигурации ставок.
func (l *Locker) Quote(order domain.Order, jurisdiction string, discountMinor int64) (int64, error) {
	snap, err := buildSnapshot(order, l.taxes[jurisdiction], discountMinor, l.now().UTC())
	if err != nil {
		return 0, err
	}
	return snap.TotalMinor, nil
}

// Lock вычисляет итоги по позициям заказа с учётом скидки, строит snapshot,
// хеширует его и помечает финансовый заказ замороженным. Повторный вызов
// для уже замороженного заказа возвращает ErrAlreadyLocked и не ретраится.
// После Lock ни один путь кода не пишет в итоги и snapshot. Заказ в
// хранилище не трогается: вызывающий сохраняет его сам.
func (l *Locker) Lock(rctx domain.RequestContext, fo *domain.FinancialOrder, order domain.Order, jurisdiction string, discountMinor int64) error {
	if fo.Locked() {
		return domain.ErrAlreadyLocked
	}

	rates := l.taxes[jurisdiction]
	now := l.now().UTC()

	snap, err := buildSnapshot(order, rates, discountMinor, now)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	hash, err := CanonicalHash(raw)
	if err != nil {
		return err
	}

	if err := fo.ApplyLock(snap.SubtotalMinor, snap.TaxTotalMinor, snap.TotalMinor, raw, hash, now); err != nil {
		return err
	}

	l.logger.WithFields(log.Fields{
		"tenant_id":          rctx.TenantID,
		"financial_order_id": fo.ID,
		"total_minor":        fo.TotalMinor,
		"snapshot_hash":      hash,
	}).Info("financial order locked")

	return nil
}

// VerifyIntegrity пересчитывает хеш сохранённого snapshot и сравнивает с
// зафиксированным. Используется инструментом контроля целостности, а не
// обычными путями обработки запросов.
func (l *Locker) VerifyIntegrity(fo *domain.FinancialOrder) (bool, error) {
	if !fo.Locked() {
		return false, domain.ErrNotLocked
	}
	hash, err := CanonicalHash(fo.Snapshot)
	if err != nil {
		return false, err
	}
	return hash == fo.SnapshotHash, nil
}

// buildSnapshot распределяет скидку по позициям пропорционально их доле в
// subtotal (остаток округления — на первую позицию) и считает налоги от
// чистой базы каждой позиции.
func buildSnapshot(order domain.Order, rates []TaxRate, discountMinor int64, now time.Time) (domain.OrderSnapshot, error) {
	subtotal := order.SubtotalMinor
	if discountMinor > subtotal {
		discountMinor = subtotal
	}

	items := make([]domain.SnapshotItem, len(order.Items))
	taxByRate := make([]int64, len(rates))
	taxableByRate := make([]int64, len(rates))

	var allocated int64
	var netSubtotal, taxTotal int64
	for i, item := range order.Items {
		share := domain.ProportionOf(discountMinor, item.TotalMinor, subtotal)
		allocated += share
		if i == len(order.Items)-1 {
			// Остаток округления ложится на последнюю позицию, чтобы
			// сумма долей сходилась с общей скидкой.
			share += discountMinor - allocated
			allocated = discountMinor
		}

		itemNet := item.TotalMinor - share
		if itemNet < 0 {
			itemNet = 0
		}

		var itemTax int64
		for j, rate := range rates {
			tax := domain.BasisPointsOf(itemNet, rate.RateBps)
			itemTax += tax
			taxByRate[j] += tax
			taxableByRate[j] += itemNet
		}

		items[i] = domain.SnapshotItem{
			Description:    item.Description,
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
			SubtotalMinor:  itemNet,
			TaxMinor:       itemTax,
			TotalMinor:     itemNet + itemTax,
			Metadata:       map[string]string{"product_id": item.ProductID},
		}
		netSubtotal += itemNet
		taxTotal += itemTax
	}

	taxLines := make([]domain.TaxLine, len(rates))
	for j, rate := range rates {
		taxLines[j] = domain.TaxLine{
			Name:               rate.Name,
			Percentage:         float64(rate.RateBps) / 100,
			TaxableAmountMinor: taxableByRate[j],
			TaxAmountMinor:     taxByRate[j],
		}
	}

	return domain.OrderSnapshot{
		LockedAt:      now,
		Currency:      order.Currency,
		SubtotalMinor: netSubtotal,
		TaxTotalMinor: taxTotal,
		TotalMinor:    netSubtotal + taxTotal,
		TaxLines:      taxLines,
		Items:         items,
	}, nil
}

// CanonicalHash строит SHA-256 над канонизированным JSON: документ
// перечитывается в map и сериализуется заново, что даёт стабильный порядок
// ключей независимо от порядка полей исходной структуры.
func CanonicalHash(raw []byte) (string, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("canonicalize snapshot: %w", err)
	}
	canonical, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("canonicalize snapshot: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
