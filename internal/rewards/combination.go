// Package rewards решает, какие скидки можно совместить в одном заказе,
// и рассчитывает итоговую сумму скидок.
package rewards

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/mmeshcher/salonhub/internal/model"
)

// ErrInvalidConfig возвращается, если настройки применения скидок противоречивы.
var ErrInvalidConfig = errors.New("invalid reward usage config")

type kindMask uint8

func maskOf(k model.DiscountKind) kindMask {
	for i, known := range model.AllDiscountKinds {
		if k == known {
			return 1 << i
		}
	}
	return 0
}

// combinationMask возвращает маску набора и признак того, что все виды в нём известны.
func combinationMask(kinds []model.DiscountKind) (kindMask, bool) {
	var m kindMask
	for _, k := range kinds {
		b := maskOf(k)
		if b == 0 {
			return m, false
		}
		m |= b
	}
	return m, true
}

// CanApply сообщает, можно ли добавить к заказу скидку вида candidate,
// если в нём уже применены скидки видов active.
//
// При стратегии single_only скидка допускается только в пустой заказ.
// При стратегии combinations_only одиночная скидка допускается, если её вид
// входит хотя бы в одну разрешённую комбинацию, а набор из нескольких видов
// должен в точности совпадать с одной из комбинаций. Ограничение
// MaxKindsPerBooking действует при любой стратегии; комбинации, превышающие
// его, не учитываются.
func CanApply(cfg model.RewardUsageConfig, active []model.DiscountKind, candidate model.DiscountKind) bool {
	cand := maskOf(candidate)
	if cand == 0 {
		return false
	}

	activeSet, ok := combinationMask(active)
	if !ok {
		return false
	}

	// Повторное применение того же вида не допускается.
	if activeSet&cand != 0 {
		return false
	}

	set := activeSet | cand
	size := bits.OnesCount8(uint8(set))

	var allowed bool
	switch cfg.Strategy {
	case model.StrategySingleOnly:
		allowed = activeSet == 0
	case model.StrategyCombinationsOnly:
		if size == 1 {
			allowed = inAnyCombination(cfg.AllowedCombinations, cand, cfg.MaxKindsPerBooking)
		} else {
			allowed = matchesCombination(cfg.AllowedCombinations, set)
		}
	}

	if size > cfg.MaxKindsPerBooking {
		return false
	}

	return allowed
}

func inAnyCombination(combinations [][]model.DiscountKind, kind kindMask, maxKinds int) bool {
	for _, combo := range combinations {
		if combinationSize(combo) > maxKinds {
			continue
		}
		for _, k := range combo {
			if maskOf(k) == kind {
				return true
			}
		}
	}
	return false
}

func combinationSize(kinds []model.DiscountKind) int {
	var m kindMask
	unknown := 0
	for _, k := range kinds {
		b := maskOf(k)
		if b == 0 {
			unknown++
			continue
		}
		m |= b
	}
	return bits.OnesCount8(uint8(m)) + unknown
}

func matchesCombination(combinations [][]model.DiscountKind, set kindMask) bool {
	for _, combo := range combinations {
		m, ok := combinationMask(combo)
		if ok && m == set {
			return true
		}
	}
	return false
}

// ValidateConfig проверяет настройки перед сохранением и возвращает все найденные проблемы.
func ValidateConfig(cfg model.RewardUsageConfig) error {
	var errs []error

	if !cfg.Strategy.Valid() {
		errs = append(errs, fmt.Errorf("unknown strategy %q", cfg.Strategy))
	}

	if cfg.MaxKindsPerBooking < 1 {
		errs = append(errs, fmt.Errorf("max_kinds_per_booking must be positive, got %d", cfg.MaxKindsPerBooking))
	}

	for k := range cfg.EnabledKinds {
		if !k.Valid() {
			errs = append(errs, fmt.Errorf("unknown discount kind %q in enabled_kinds", k))
		}
	}

	seen := make(map[kindMask]int, len(cfg.AllowedCombinations))
	for i, combo := range cfg.AllowedCombinations {
		var m kindMask
		valid := true
		for _, k := range combo {
			b := maskOf(k)
			switch {
			case b == 0:
				errs = append(errs, fmt.Errorf("combination %d: unknown discount kind %q", i, k))
				valid = false
			case m&b != 0:
				errs = append(errs, fmt.Errorf("combination %d: duplicate discount kind %q", i, k))
				valid = false
			case !cfg.IsEnabled(k):
				errs = append(errs, fmt.Errorf("combination %d: discount kind %q is disabled", i, k))
			}
			m |= b
		}

		if len(combo) < 2 {
			errs = append(errs, fmt.Errorf("combination %d: must contain at least two kinds", i))
			continue
		}

		if !valid {
			continue
		}
		if cfg.MaxKindsPerBooking >= 1 && len(combo) > cfg.MaxKindsPerBooking {
			errs = append(errs, fmt.Errorf("combination %d exceeds max_kinds_per_booking %d", i, cfg.MaxKindsPerBooking))
		}
		if prev, ok := seen[m]; ok {
			errs = append(errs, fmt.Errorf("combination %d duplicates combination %d", i, prev))
			continue
		}
		seen[m] = i
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
