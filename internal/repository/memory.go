package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/salonhub/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Используется без DATABASE_URI и в тестах.
type MemoryRepository struct {
	mu            sync.RWMutex
	configs       map[string]model.RewardUsageConfig
	shifts        map[string][]model.GeneratedShift
	notifications []model.Notification
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		configs: make(map[string]model.RewardUsageConfig),
		shifts:  make(map[string][]model.GeneratedShift),
	}
}

// Close ничего не делает: хранилищу в памяти нечего освобождать.
func (m *MemoryRepository) Close() error { return nil }

// GetRewardUsageConfig возвращает копию сохранённых настроек филиала или ErrConfigNotFound.
func (m *MemoryRepository) GetRewardUsageConfig(_ context.Context, locationID string) (*model.RewardUsageConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.configs[locationID]
	if !ok {
		return nil, ErrConfigNotFound
	}
	cfg = cloneConfig(cfg)
	return &cfg, nil
}

// SaveRewardUsageConfig сохраняет копию настроек филиала, заменяя прежние.
func (m *MemoryRepository) SaveRewardUsageConfig(_ context.Context, cfg model.RewardUsageConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.configs[cfg.LocationID] = cloneConfig(cfg)
	return nil
}

// ReplaceShifts атомарно заменяет смены сотрудника, начинающиеся в [from, to).
func (m *MemoryRepository) ReplaceShifts(_ context.Context, employeeID string, from, to time.Time, shifts []model.GeneratedShift) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make([]model.GeneratedShift, 0, len(m.shifts[employeeID])+len(shifts))
	for _, s := range m.shifts[employeeID] {
		if inRange(s.StartTime, from, to) {
			continue
		}
		kept = append(kept, s)
	}
	kept = append(kept, shifts...)

	m.shifts[employeeID] = kept
	return nil
}

// ListShifts возвращает смены сотрудника, начинающиеся в [from, to), по возрастанию времени начала.
func (m *MemoryRepository) ListShifts(_ context.Context, employeeID string, from, to time.Time) ([]model.GeneratedShift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []model.GeneratedShift
	for _, s := range m.shifts[employeeID] {
		if inRange(s.StartTime, from, to) {
			res = append(res, s)
		}
	}

	sort.SliceStable(res, func(i, j int) bool {
		if res[i].StartTime.Equal(res[j].StartTime) {
			return res[i].EndTime.Before(res[j].EndTime)
		}
		return res[i].StartTime.Before(res[j].StartTime)
	})
	return res, nil
}

// EnqueueNotification ставит уведомление в очередь со статусом pending.
func (m *MemoryRepository) EnqueueNotification(_ context.Context, n model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n.Status = model.NotificationStatusPending
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	m.notifications = append(m.notifications, n)
	return nil
}

// GetPendingNotifications возвращает не более limit ожидающих уведомлений в порядке постановки.
func (m *MemoryRepository) GetPendingNotifications(_ context.Context, limit int) ([]model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []model.Notification
	for _, n := range m.notifications {
		if len(res) >= limit {
			break
		}
		if n.Status == model.NotificationStatusPending {
			res = append(res, n)
		}
	}
	return res, nil
}

// MarkNotificationSent отмечает уведомление отправленным.
func (m *MemoryRepository) MarkNotificationSent(_ context.Context, id uuid.UUID, messageID string) error {
	return m.updateNotification(id, func(n *model.Notification) {
		now := time.Now()
		n.Status = model.NotificationStatusSent
		n.MessageID = messageID
		n.Attempts++
		n.SentAt = &now
	})
}

// MarkNotificationFailed фиксирует неудачную попытку. При giveUp уведомление больше не отправляется.
func (m *MemoryRepository) MarkNotificationFailed(_ context.Context, id uuid.UUID, reason string, giveUp bool) error {
	return m.updateNotification(id, func(n *model.Notification) {
		n.Attempts++
		n.LastError = reason
		if giveUp {
			n.Status = model.NotificationStatusFailed
		}
	})
}

// Notifications возвращает копию всех уведомлений.
func (m *MemoryRepository) Notifications() []model.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make([]model.Notification, len(m.notifications))
	copy(res, m.notifications)
	return res
}

func (m *MemoryRepository) updateNotification(id uuid.UUID, fn func(n *model.Notification)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.notifications {
		if m.notifications[i].ID == id {
			fn(&m.notifications[i])
			return nil
		}
	}
	return ErrNotificationNotFound
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func cloneConfig(cfg model.RewardUsageConfig) model.RewardUsageConfig {
	if cfg.EnabledKinds != nil {
		enabled := make(map[model.DiscountKind]bool, len(cfg.EnabledKinds))
		for k, v := range cfg.EnabledKinds {
			enabled[k] = v
		}
		cfg.EnabledKinds = enabled
	}

	if cfg.AllowedCombinations != nil {
		combos := make([][]model.DiscountKind, len(cfg.AllowedCombinations))
		for i, combo := range cfg.AllowedCombinations {
			combos[i] = append([]model.DiscountKind(nil), combo...)
		}
		cfg.AllowedCombinations = combos
	}
	return cfg
}
