// Package handler содержит HTTP-обработчики API сервиса salonhub.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/salonhub/internal/middleware"
	"github.com/mmeshcher/salonhub/internal/model"
	"github.com/mmeshcher/salonhub/internal/rewards"
	"github.com/mmeshcher/salonhub/internal/service"
	"github.com/mmeshcher/salonhub/internal/validation"
)

const dateLayout = "2006-01-02"

// defaultShiftsWindow используется, когда в запросе смен не указан конец интервала.
const defaultShiftsWindow = 28 * 24 * time.Hour

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	AuthenticateAdmin(ctx context.Context, login, password string) error
	GetRewardUsageConfig(ctx context.Context, locationID string) (*model.RewardUsageConfig, error)
	UpdateRewardUsageConfig(ctx context.Context, cfg model.RewardUsageConfig) (*model.RewardUsageConfig, error)
	CheckDiscount(ctx context.Context, locationID string, active []model.DiscountKind, candidate model.DiscountKind) (service.Decision, error)
	Quote(ctx context.Context, locationID string, subtotal decimal.Decimal, discounts []model.Discount) (*model.Quote, error)
	GenerateRotation(ctx context.Context, req service.RotationRequest) ([]model.GeneratedShift, error)
	ListShifts(ctx context.Context, employeeID string, from, to time.Time) ([]model.GeneratedShift, error)
	Location() *time.Location
}

// Handler реализует HTTP-обработчики API сервиса salonhub.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	validate       *validator.Validate
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return validation.IsValidPhoneNumber(fl.Field().String())
	})

	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		validate:       v,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decode разбирает тело запроса и проверяет его теги validate.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				if fe.Tag() == "required" {
					msgs = append(msgs, fe.Field()+" is required")
				} else {
					msgs = append(msgs, fe.Field()+" is invalid")
				}
			}
			writeError(w, http.StatusBadRequest, errors.New(strings.Join(msgs, "; ")))
			return false
		}
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}

	return true
}

type loginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login выполняет аутентификацию администратора и выдаёт токен.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.AuthenticateAdmin(r.Context(), req.Login, req.Password); err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login admin error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token, err := h.authMiddleware.IssueToken(req.Login)
	if err != nil {
		h.logger.Error("issue token error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

// GetRewardUsage возвращает настройки применения скидок филиала.
func (h *Handler) GetRewardUsage(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "locationID")

	cfg, err := h.service.GetRewardUsageConfig(r.Context(), locationID)
	if err != nil {
		h.logger.Error("get reward usage config error", zap.Error(err), zap.String("location", locationID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

type rewardUsageRequest struct {
	Strategy            model.Strategy              `json:"strategy" validate:"required"`
	AllowedCombinations [][]model.DiscountKind      `json:"allowed_combinations"`
	MaxKindsPerBooking  int                         `json:"max_kinds_per_booking"`
	EnabledKinds        map[model.DiscountKind]bool `json:"enabled_kinds" validate:"required"`
}

// UpdateRewardUsage сохраняет настройки применения скидок филиала.
func (h *Handler) UpdateRewardUsage(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "locationID")

	var req rewardUsageRequest
	if !h.decode(w, r, &req) {
		return
	}

	cfg, err := h.service.UpdateRewardUsageConfig(r.Context(), model.RewardUsageConfig{
		LocationID:          locationID,
		Strategy:            req.Strategy,
		AllowedCombinations: req.AllowedCombinations,
		MaxKindsPerBooking:  req.MaxKindsPerBooking,
		EnabledKinds:        req.EnabledKinds,
	})
	if err != nil {
		if errors.Is(err, rewards.ErrInvalidConfig) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		h.logger.Error("update reward usage config error", zap.Error(err), zap.String("location", locationID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	admin, _ := middleware.GetAdminFromContext(r.Context())
	h.logger.Info("reward usage config changed",
		zap.String("admin", admin), zap.String("location", locationID), zap.String("strategy", string(cfg.Strategy)))

	writeJSON(w, http.StatusOK, cfg)
}

type checkDiscountRequest struct {
	LocationID    string               `json:"location_id" validate:"required"`
	ActiveKinds   []model.DiscountKind `json:"active_kinds"`
	CandidateKind model.DiscountKind   `json:"candidate_kind" validate:"required"`
}

// CheckDiscount сообщает, можно ли добавить скидку к уже применённым в заказе.
func (h *Handler) CheckDiscount(w http.ResponseWriter, r *http.Request) {
	var req checkDiscountRequest
	if !h.decode(w, r, &req) {
		return
	}

	decision, err := h.service.CheckDiscount(r.Context(), req.LocationID, req.ActiveKinds, req.CandidateKind)
	if err != nil {
		h.logger.Error("check discount error", zap.Error(err), zap.String("location", req.LocationID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

type discountRequest struct {
	Kind  model.DiscountKind `json:"kind" validate:"required"`
	Type  model.DiscountType `json:"type" validate:"required,oneof=percentage fixed"`
	Value decimal.Decimal    `json:"value"`
}

type quoteRequest struct {
	LocationID string            `json:"location_id" validate:"required"`
	Subtotal   decimal.Decimal   `json:"subtotal"`
	Discounts  []discountRequest `json:"discounts" validate:"dive"`
}

// Quote рассчитывает стоимость заказа с учётом совместимых скидок.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.Subtotal.IsNegative() {
		writeError(w, http.StatusBadRequest, errors.New("subtotal must not be negative"))
		return
	}

	discounts := make([]model.Discount, 0, len(req.Discounts))
	for _, d := range req.Discounts {
		if d.Value.IsNegative() {
			writeError(w, http.StatusBadRequest, errors.New("discount value must not be negative"))
			return
		}
		discounts = append(discounts, model.Discount{Kind: d.Kind, Type: d.Type, Value: d.Value})
	}

	quote, err := h.service.Quote(r.Context(), req.LocationID, req.Subtotal, discounts)
	if err != nil {
		h.logger.Error("quote error", zap.Error(err), zap.String("location", req.LocationID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

type rotationRequest struct {
	TotalWeeks   int                 `json:"total_weeks" validate:"required,min=1"`
	HorizonWeeks int                 `json:"horizon_weeks" validate:"required,min=1"`
	AnchorDate   string              `json:"anchor_date" validate:"required,datetime=2006-01-02"`
	Template     model.ShiftTemplate `json:"template" validate:"required"`
	NotifyPhone  string              `json:"notify_phone" validate:"omitempty,phone"`
}

// GenerateRotation создаёт смены сотрудника по шаблону ротации, заменяя прежние на горизонте.
func (h *Handler) GenerateRotation(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")

	var req rotationRequest
	if !h.decode(w, r, &req) {
		return
	}

	anchor, err := time.ParseInLocation(dateLayout, req.AnchorDate, h.service.Location())
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	shifts, err := h.service.GenerateRotation(r.Context(), service.RotationRequest{
		EmployeeID:   employeeID,
		Template:     req.Template,
		TotalWeeks:   req.TotalWeeks,
		HorizonWeeks: req.HorizonWeeks,
		AnchorDate:   anchor,
		NotifyPhone:  req.NotifyPhone,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidRotation) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		h.logger.Error("generate rotation error", zap.Error(err), zap.String("employee", employeeID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	admin, _ := middleware.GetAdminFromContext(r.Context())
	h.logger.Info("rotation regenerated",
		zap.String("admin", admin), zap.String("employee", employeeID), zap.Int("shifts", len(shifts)))

	writeJSON(w, http.StatusCreated, shifts)
}

// GetShifts возвращает смены сотрудника за интервал [from, to).
func (h *Handler) GetShifts(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")
	loc := h.service.Location()

	now := time.Now().In(loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.ParseInLocation(dateLayout, v, loc)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		from = parsed
	}

	to := from.Add(defaultShiftsWindow)
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.ParseInLocation(dateLayout, v, loc)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		to = parsed
	}

	shifts, err := h.service.ListShifts(r.Context(), employeeID, from, to)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRange) {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		h.logger.Error("list shifts error", zap.Error(err), zap.String("employee", employeeID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(shifts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, shifts)
}
