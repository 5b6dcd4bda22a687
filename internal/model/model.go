// Package model содержит доменные сущности сервиса salonhub.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountKind описывает категорию скидки или вознаграждения.
type DiscountKind string

const (
	KindDiscount      DiscountKind = "discount"
	KindCoupon        DiscountKind = "coupon"
	KindMembership    DiscountKind = "membership"
	KindLoyaltyPoints DiscountKind = "loyalty_points"
	KindReferral      DiscountKind = "referral"
)

// AllDiscountKinds перечисляет все известные виды скидок в фиксированном порядке.
var AllDiscountKinds = []DiscountKind{
	KindDiscount,
	KindCoupon,
	KindMembership,
	KindLoyaltyPoints,
	KindReferral,
}

// Valid сообщает, является ли значение известным видом скидки.
func (k DiscountKind) Valid() bool {
	for _, known := range AllDiscountKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Strategy определяет политику совмещения скидок разных видов.
type Strategy string

const (
	StrategySingleOnly       Strategy = "single_only"
	StrategyCombinationsOnly Strategy = "combinations_only"
)

// Valid сообщает, является ли значение известной стратегией.
func (s Strategy) Valid() bool {
	return s == StrategySingleOnly || s == StrategyCombinationsOnly
}

// RewardUsageConfig содержит настройки применения скидок для одного филиала.
type RewardUsageConfig struct {
	LocationID          string                `json:"location_id"`
	Strategy            Strategy              `json:"strategy"`
	AllowedCombinations [][]DiscountKind      `json:"allowed_combinations"`
	MaxKindsPerBooking  int                   `json:"max_kinds_per_booking"`
	EnabledKinds        map[DiscountKind]bool `json:"enabled_kinds"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

// IsEnabled сообщает, включён ли вид скидки в настройках.
func (c RewardUsageConfig) IsEnabled(k DiscountKind) bool {
	return c.EnabledKinds[k]
}

// DefaultRewardUsageConfig возвращает настройки филиала, для которого ничего не сохранено.
func DefaultRewardUsageConfig(locationID string) RewardUsageConfig {
	enabled := make(map[DiscountKind]bool, len(AllDiscountKinds))
	for _, k := range AllDiscountKinds {
		enabled[k] = true
	}

	return RewardUsageConfig{
		LocationID:          locationID,
		Strategy:            StrategySingleOnly,
		AllowedCombinations: [][]DiscountKind{},
		MaxKindsPerBooking:  1,
		EnabledKinds:        enabled,
	}
}

// DiscountType описывает способ расчёта суммы скидки.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// Discount описывает скидку, запрошенную при оформлении заказа.
type Discount struct {
	Kind  DiscountKind    `json:"kind"`
	Type  DiscountType    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// AppliedDiscount описывает принятую скидку и фактически списанную сумму.
type AppliedDiscount struct {
	Discount
	Amount decimal.Decimal `json:"amount"`
}

// RejectedDiscount описывает скидку, которую нельзя совместить с уже применёнными.
type RejectedDiscount struct {
	Kind   DiscountKind `json:"kind"`
	Reason string       `json:"reason"`
}

// Quote содержит результат расчёта стоимости заказа со скидками.
type Quote struct {
	Subtotal      decimal.Decimal    `json:"subtotal"`
	TotalDiscount decimal.Decimal    `json:"total_discount"`
	Total         decimal.Decimal    `json:"total"`
	Applied       []AppliedDiscount  `json:"applied"`
	Rejected      []RejectedDiscount `json:"rejected"`
}

// ShiftEntry описывает одну смену внутри дня шаблона.
type ShiftEntry struct {
	Start TimeOfDay `json:"start_time"`
	End   TimeOfDay `json:"end_time"`
}

// DayConfig описывает настройки одного дня недели в шаблоне ротации.
type DayConfig struct {
	Enabled bool         `json:"enabled"`
	Shifts  []ShiftEntry `json:"shifts"`
}

// ShiftTemplate отображает номер недели ротации на настройки дней недели.
type ShiftTemplate map[int]map[time.Weekday]DayConfig

// Day возвращает настройки дня; отсутствующий день считается выключенным.
func (t ShiftTemplate) Day(week int, day time.Weekday) DayConfig {
	days, ok := t[week]
	if !ok {
		return DayConfig{}
	}
	return days[day]
}

// ShiftStatus описывает статус смены.
type ShiftStatus string

const ShiftStatusPending ShiftStatus = "pending"

// GeneratedShift описывает конкретную смену сотрудника, полученную из шаблона ротации.
type GeneratedShift struct {
	ID           uuid.UUID   `json:"id"`
	EmployeeID   string      `json:"employee_id"`
	StartTime    time.Time   `json:"start_time"`
	EndTime      time.Time   `json:"end_time"`
	Status       ShiftStatus `json:"status"`
	GenerationID uuid.UUID   `json:"generation_id"`
}

// NotificationStatus описывает статус исходящего уведомления.
type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// Notification описывает сообщение, ожидающее отправки через шлюз сообщений.
type Notification struct {
	ID          uuid.UUID
	PhoneNumber string
	Body        string
	Status      NotificationStatus
	MessageID   string
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	SentAt      *time.Time
}
