package promotion

import (
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// Evaluate — чистая функция расчёта скидок. Кандидаты уже отфильтрованы
// резолвером по окну действия и лимитам, но окно и порог корзины
// перепроверяются здесь ещё раз; невалидные кандидаты отбрасываются.
//
// Правило: кандидаты делятся на эксклюзивные (нестекуемые) и стекуемые.
// Из эксклюзивных выбирается один с наибольшей скидкой (при равенстве
// побеждает первый по порядку входа), стекуемые применяются все.
// Скидки начисляются против остатка subtotal, каждая ограничена остатком,
// итог — исходным subtotal: акция никогда не делает сумму отрицательной.
//
// Функция не имеет побочных эффектов и безопасна для спекулятивных
// вызовов (предпросмотр цены) без записи usage.
func Evaluate(now time.Time, subtotalMinor int64, items []domain.CartItem, candidates []domain.Promotion) ([]domain.AppliedPromotion, int64) {
	if subtotalMinor <= 0 || len(candidates) == 0 {
		return nil, 0
	}

	var exclusive []domain.Promotion
	var stackable []domain.Promotion
	for _, candidate := range candidates {
		if !candidate.ActiveAt(now) || !candidate.MeetsThreshold(subtotalMinor) {
			continue
		}
		if candidate.Stackable {
			stackable = append(stackable, candidate)
		} else {
			exclusive = append(exclusive, candidate)
		}
	}

	ordered := make([]domain.Promotion, 0, len(stackable)+1)
	if best, ok := bestExclusive(exclusive, subtotalMinor, items); ok {
		ordered = append(ordered, best)
	}
	ordered = append(ordered, stackable...)

	var applied []domain.AppliedPromotion
	remaining := subtotalMinor
	for _, promo := range ordered {
		discount := discountFor(promo, subtotalMinor, items)
		if discount <= 0 {
			continue
		}
		if discount > remaining {
			discount = remaining
		}
		applied = append(applied, domain.AppliedPromotion{
			PromotionID:   promo.ID,
			Code:          promo.Code,
			Type:          promo.Type,
			DiscountMinor: discount,
		})
		remaining -= discount
		if remaining == 0 {
			break
		}
	}

	return applied, subtotalMinor - remaining
}

// bestExclusive выбирает эксклюзивную акцию с максимальной скидкой.
// Строгое сравнение сохраняет правило "первый побеждает" при равенстве.
func bestExclusive(exclusive []domain.Promotion, subtotalMinor int64, items []domain.CartItem) (domain.Promotion, bool) {
	var best domain.Promotion
	var bestDiscount int64 = -1
	for _, promo := range exclusive {
		discount := discountFor(promo, subtotalMinor, items)
		if discount > bestDiscount {
			best = promo
			bestDiscount = discount
		}
	}
	if bestDiscount <= 0 {
		return domain.Promotion{}, false
	}
	return best, true
}

// discountFor вычисляет номинальную скидку акции по её типу.
func discountFor(promo domain.Promotion, subtotalMinor int64, items []domain.CartItem) int64 {
	switch promo.Type {
	case domain.PromotionPercentage:
		return domain.PercentOf(subtotalMinor, promo.Percent)
	case domain.PromotionFixed, domain.PromotionThreshold, domain.PromotionFreeShipping:
		if promo.ValueMinor > subtotalMinor {
			return subtotalMinor
		}
		return promo.ValueMinor
	case domain.PromotionBOGO:
		return bogoDiscount(promo, items)
	default:
		return 0
	}
}

// bogoDiscount считает скидку BOGO: за каждую полную группу (buy+get) по
// суммарному количеству даётся get бесплатных единиц по минимальной цене
// единицы в корзине — покупатель получает бесплатно наименее ценные единицы.
func bogoDiscount(promo domain.Promotion, items []domain.CartItem) int64 {
	if promo.BuyQty <= 0 || promo.GetQty <= 0 || len(items) == 0 {
		return 0
	}

	var totalQty int64
	cheapest := int64(-1)
	for _, item := range items {
		totalQty += int64(item.Qty)
		if cheapest < 0 || item.UnitPriceMinor < cheapest {
			cheapest = item.UnitPriceMinor
		}
	}
	if cheapest <= 0 {
		return 0
	}

	groupSize := int64(promo.BuyQty + promo.GetQty)
	groups := totalQty / groupSize
	if groups == 0 {
		return 0
	}

	return groups * int64(promo.GetQty) * cheapest
}
