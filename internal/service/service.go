// Package service реализует бизнес-логику сервиса salonhub.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/salonhub/internal/messaging"
	"github.com/mmeshcher/salonhub/internal/metrics"
	"github.com/mmeshcher/salonhub/internal/model"
	"github.com/mmeshcher/salonhub/internal/repository"
	"github.com/mmeshcher/salonhub/internal/rewards"
	"github.com/mmeshcher/salonhub/internal/rotation"
)

const (
	// MaxHorizonWeeks ограничивает горизонт планирования двумя годами.
	MaxHorizonWeeks = 104

	notificationBatchSize   = 50
	maxNotificationAttempts = 5
)

var (
	// ErrInvalidRotation возвращается при некорректном запросе на генерацию смен.
	ErrInvalidRotation = errors.New("invalid rotation request")
	// ErrInvalidRange возвращается, если конец интервала не позже его начала.
	ErrInvalidRange = errors.New("invalid time range")
	// ErrInvalidCredentials возвращается при неверном логине или пароле администратора.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Причины отказа в применении скидки.
const (
	ReasonUnknownKind   = "unknown discount kind"
	ReasonKindDisabled  = "discount kind disabled"
	ReasonNotCombinable = "combination not allowed"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetRewardUsageConfig(ctx context.Context, locationID string) (*model.RewardUsageConfig, error)
	SaveRewardUsageConfig(ctx context.Context, cfg model.RewardUsageConfig) error
	ReplaceShifts(ctx context.Context, employeeID string, from, to time.Time, shifts []model.GeneratedShift) error
	ListShifts(ctx context.Context, employeeID string, from, to time.Time) ([]model.GeneratedShift, error)
	EnqueueNotification(ctx context.Context, n model.Notification) error
	GetPendingNotifications(ctx context.Context, limit int) ([]model.Notification, error)
	MarkNotificationSent(ctx context.Context, id uuid.UUID, messageID string) error
	MarkNotificationFailed(ctx context.Context, id uuid.UUID, reason string, giveUp bool) error
}

// Messenger отправляет сообщения через внешний шлюз.
type Messenger interface {
	SendMessage(ctx context.Context, phoneNumber, body string) (string, error)
}

// Service содержит бизнес-логику сервиса salonhub.
type Service struct {
	repo      Repository
	messenger Messenger
	logger    *zap.Logger
	location  *time.Location

	adminLogin        string
	adminPasswordHash []byte
}

// NewService создаёт новый сервис. messenger может быть nil, тогда уведомления остаются в очереди.
func NewService(repo Repository, messenger Messenger, logger *zap.Logger, location *time.Location) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}

	return &Service{
		repo:      repo,
		messenger: messenger,
		logger:    logger,
		location:  location,
	}
}

// Location возвращает часовой пояс, в котором интерпретируются даты расписания.
func (s *Service) Location() *time.Location {
	return s.location
}

// SetAdminCredentials задаёт логин и bcrypt-хеш пароля администратора.
func (s *Service) SetAdminCredentials(login, passwordHash string) {
	s.adminLogin = login
	s.adminPasswordHash = []byte(passwordHash)
}

// AuthenticateAdmin проверяет логин и пароль администратора.
func (s *Service) AuthenticateAdmin(_ context.Context, login, password string) error {
	if s.adminLogin == "" || len(s.adminPasswordHash) == 0 || login != s.adminLogin {
		return ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(s.adminPasswordHash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Decision описывает результат проверки совместимости скидки.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// GetRewardUsageConfig возвращает настройки скидок филиала или настройки по умолчанию.
func (s *Service) GetRewardUsageConfig(ctx context.Context, locationID string) (*model.RewardUsageConfig, error) {
	cfg, err := s.repo.GetRewardUsageConfig(ctx, locationID)
	if err != nil {
		if errors.Is(err, repository.ErrConfigNotFound) {
			def := model.DefaultRewardUsageConfig(locationID)
			return &def, nil
		}
		return nil, err
	}
	return cfg, nil
}

// UpdateRewardUsageConfig проверяет и сохраняет настройки скидок филиала.
func (s *Service) UpdateRewardUsageConfig(ctx context.Context, cfg model.RewardUsageConfig) (*model.RewardUsageConfig, error) {
	if err := rewards.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	if cfg.AllowedCombinations == nil {
		cfg.AllowedCombinations = [][]model.DiscountKind{}
	}
	cfg.UpdatedAt = time.Now().UTC()

	if err := s.repo.SaveRewardUsageConfig(ctx, cfg); err != nil {
		return nil, err
	}

	s.logger.Info("reward usage config updated",
		zap.String("location", cfg.LocationID), zap.String("strategy", string(cfg.Strategy)))
	return &cfg, nil
}

// CheckDiscount проверяет, можно ли добавить скидку вида candidate к уже применённым.
func (s *Service) CheckDiscount(ctx context.Context, locationID string, active []model.DiscountKind, candidate model.DiscountKind) (Decision, error) {
	cfg, err := s.GetRewardUsageConfig(ctx, locationID)
	if err != nil {
		return Decision{}, err
	}
	return decide(*cfg, active, candidate), nil
}

func decide(cfg model.RewardUsageConfig, active []model.DiscountKind, candidate model.DiscountKind) Decision {
	var d Decision
	switch {
	case !candidate.Valid():
		d = Decision{Reason: ReasonUnknownKind}
	case !cfg.IsEnabled(candidate):
		d = Decision{Reason: ReasonKindDisabled}
	case !rewards.CanApply(cfg, active, candidate):
		d = Decision{Reason: ReasonNotCombinable}
	default:
		d = Decision{Allowed: true}
	}

	kindLabel := "unknown"
	if candidate.Valid() {
		kindLabel = string(candidate)
	}
	metrics.DiscountDecisionsTotal.WithLabelValues(kindLabel, strconv.FormatBool(d.Allowed)).Inc()
	return d
}

// Quote рассчитывает стоимость заказа. Скидки рассматриваются в порядке запроса,
// каждая принимается, только если совместима с уже принятыми.
func (s *Service) Quote(ctx context.Context, locationID string, subtotal decimal.Decimal, discounts []model.Discount) (*model.Quote, error) {
	cfg, err := s.GetRewardUsageConfig(ctx, locationID)
	if err != nil {
		return nil, err
	}

	accepted := make([]model.Discount, 0, len(discounts))
	active := make([]model.DiscountKind, 0, len(discounts))
	rejected := []model.RejectedDiscount{}

	for _, d := range discounts {
		decision := decide(*cfg, active, d.Kind)
		if !decision.Allowed {
			rejected = append(rejected, model.RejectedDiscount{Kind: d.Kind, Reason: decision.Reason})
			continue
		}
		accepted = append(accepted, d)
		active = append(active, d.Kind)
	}

	q := rewards.ApplyDiscounts(subtotal, accepted)
	q.Rejected = rejected
	return &q, nil
}

// RotationRequest описывает запрос на генерацию смен сотрудника по шаблону ротации.
type RotationRequest struct {
	EmployeeID   string
	Template     model.ShiftTemplate
	TotalWeeks   int
	HorizonWeeks int
	AnchorDate   time.Time
	NotifyPhone  string
}

func (r RotationRequest) validate() error {
	var errs []error

	if r.EmployeeID == "" {
		errs = append(errs, errors.New("employee id is required"))
	}
	if r.TotalWeeks < 1 || r.TotalWeeks > MaxHorizonWeeks {
		errs = append(errs, fmt.Errorf("total weeks must be within 1..%d, got %d", MaxHorizonWeeks, r.TotalWeeks))
	}
	if r.HorizonWeeks < 1 || r.HorizonWeeks > MaxHorizonWeeks {
		errs = append(errs, fmt.Errorf("horizon weeks must be within 1..%d, got %d", MaxHorizonWeeks, r.HorizonWeeks))
	}
	for week, days := range r.Template {
		if week < 0 || week >= r.TotalWeeks {
			errs = append(errs, fmt.Errorf("template week %d out of range", week))
		}
		for day := range days {
			if day < time.Sunday || day > time.Saturday {
				errs = append(errs, fmt.Errorf("template week %d: day %d out of range", week, day))
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidRotation, errors.Join(errs...))
}

// GenerateRotation разворачивает шаблон в смены и заменяет ими ранее созданные смены
// сотрудника на покрываемом интервале. При указанном телефоне ставит уведомление в очередь.
func (s *Service) GenerateRotation(ctx context.Context, req RotationRequest) ([]model.GeneratedShift, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	shifts := rotation.Generate(req.EmployeeID, req.Template, req.TotalWeeks, req.HorizonWeeks, req.AnchorDate)

	generationID := uuid.New()
	for i := range shifts {
		shifts[i].ID = uuid.New()
		shifts[i].GenerationID = generationID
	}

	from, to := rotation.CoveredRange(req.TotalWeeks, req.HorizonWeeks, req.AnchorDate)
	if err := s.repo.ReplaceShifts(ctx, req.EmployeeID, from, to, shifts); err != nil {
		return nil, err
	}

	metrics.GeneratedShiftsTotal.Add(float64(len(shifts)))
	s.logger.Info("rotation generated",
		zap.String("employee", req.EmployeeID),
		zap.String("generation", generationID.String()),
		zap.Int("shifts", len(shifts)),
		zap.Time("from", from),
		zap.Time("to", to),
	)

	if req.NotifyPhone != "" {
		n := model.Notification{
			ID:          uuid.New(),
			PhoneNumber: req.NotifyPhone,
			Body: fmt.Sprintf("Your schedule has been updated: %d shifts between %s and %s.",
				len(shifts), from.Format("2006-01-02"), to.AddDate(0, 0, -1).Format("2006-01-02")),
		}
		if err := s.repo.EnqueueNotification(ctx, n); err != nil {
			s.logger.Warn("enqueue rotation notification failed",
				zap.Error(err), zap.String("employee", req.EmployeeID))
		}
	}

	return shifts, nil
}

// ListShifts возвращает смены сотрудника, начинающиеся в [from, to).
func (s *Service) ListShifts(ctx context.Context, employeeID string, from, to time.Time) ([]model.GeneratedShift, error) {
	if !to.After(from) {
		return nil, ErrInvalidRange
	}
	return s.repo.ListShifts(ctx, employeeID, from, to)
}

// StartNotificationDispatch запускает фоновую отправку уведомлений из очереди.
func (s *Service) StartNotificationDispatch(ctx context.Context) {
	if s.messenger == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processNotificationBatch(ctx)
			}
		}
	}()
}

func (s *Service) processNotificationBatch(ctx context.Context) {
	pending, err := s.repo.GetPendingNotifications(ctx, notificationBatchSize)
	if err != nil {
		s.logger.Error("load pending notifications", zap.Error(err))
		return
	}

	for _, n := range pending {
		messageID, err := s.messenger.SendMessage(ctx, n.PhoneNumber, n.Body)
		if err == nil {
			metrics.NotificationsTotal.WithLabelValues("sent").Inc()
			if err := s.repo.MarkNotificationSent(ctx, n.ID, messageID); err != nil {
				s.logger.Error("mark notification sent", zap.Error(err), zap.String("id", n.ID.String()))
			}
			continue
		}

		var rl *messaging.RateLimitError
		if errors.As(err, &rl) {
			metrics.NotificationsTotal.WithLabelValues("rate_limited").Inc()
			if rl.RetryAfter > 0 {
				timer := time.NewTimer(rl.RetryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
				case <-timer.C:
				}
			}
			return
		}

		if errors.Is(err, messaging.ErrGatewayUnavailable) {
			metrics.NotificationsTotal.WithLabelValues("unavailable").Inc()
			return
		}

		giveUp := n.Attempts+1 >= maxNotificationAttempts
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("send notification failed",
			zap.Error(err), zap.String("id", n.ID.String()), zap.Int("attempt", n.Attempts+1), zap.Bool("give_up", giveUp))

		if err := s.repo.MarkNotificationFailed(ctx, n.ID, err.Error(), giveUp); err != nil {
			s.logger.Error("mark notification failed", zap.Error(err), zap.String("id", n.ID.String()))
		}
	}
}
