package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mmeshcher/salonhub/internal/middleware"
	"github.com/mmeshcher/salonhub/internal/model"
	"github.com/mmeshcher/salonhub/internal/rewards"
	"github.com/mmeshcher/salonhub/internal/service"
)

type stubService struct {
	authErr error

	configResp *model.RewardUsageConfig
	configErr  error

	updateErr error
	updated   model.RewardUsageConfig

	decision    service.Decision
	decisionErr error

	quoteResp *model.Quote
	quoteErr  error

	rotationReq  service.RotationRequest
	rotationResp []model.GeneratedShift
	rotationErr  error

	shiftsFrom time.Time
	shiftsTo   time.Time
	shiftsResp []model.GeneratedShift
	shiftsErr  error
}

func (s *stubService) AuthenticateAdmin(ctx context.Context, login, password string) error {
	return s.authErr
}

func (s *stubService) GetRewardUsageConfig(ctx context.Context, locationID string) (*model.RewardUsageConfig, error) {
	return s.configResp, s.configErr
}

func (s *stubService) UpdateRewardUsageConfig(ctx context.Context, cfg model.RewardUsageConfig) (*model.RewardUsageConfig, error) {
	s.updated = cfg
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return &cfg, nil
}

func (s *stubService) CheckDiscount(ctx context.Context, locationID string, active []model.DiscountKind, candidate model.DiscountKind) (service.Decision, error) {
	return s.decision, s.decisionErr
}

func (s *stubService) Quote(ctx context.Context, locationID string, subtotal decimal.Decimal, discounts []model.Discount) (*model.Quote, error) {
	return s.quoteResp, s.quoteErr
}

func (s *stubService) GenerateRotation(ctx context.Context, req service.RotationRequest) ([]model.GeneratedShift, error) {
	s.rotationReq = req
	return s.rotationResp, s.rotationErr
}

func (s *stubService) ListShifts(ctx context.Context, employeeID string, from, to time.Time) ([]model.GeneratedShift, error) {
	s.shiftsFrom, s.shiftsTo = from, to
	return s.shiftsResp, s.shiftsErr
}

func (s *stubService) Location() *time.Location {
	return time.UTC
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

func adminToken(t *testing.T, h *Handler) string {
	t.Helper()

	token, err := h.authMiddleware.IssueToken("admin")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, h *Handler, method, path string, body any, token string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.SetupRouter(nil).ServeHTTP(rec, req)
	return rec.Result()
}

func TestLogin_Success(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	res := doRequest(t, h, http.MethodPost, "/api/admin/login", loginRequest{Login: "admin", Password: "pass"}, "")
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp loginResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("empty token")
	}
}

func TestLogin_UnauthorizedOnInvalidCredentials(t *testing.T) {
	h := newTestHandler(t, &stubService{authErr: service.ErrInvalidCredentials})

	res := doRequest(t, h, http.MethodPost, "/api/admin/login", loginRequest{Login: "admin", Password: "bad"}, "")
	defer res.Body.Close()

	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestLogin_BadRequestOnMissingPassword(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	res := doRequest(t, h, http.MethodPost, "/api/admin/login", loginRequest{Login: "admin"}, "")
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestAdminRoutes_RequireToken(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	res := doRequest(t, h, http.MethodGet, "/api/admin/locations/loc-1/reward-usage", nil, "")
	defer res.Body.Close()

	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestGetRewardUsage_JSONResponse(t *testing.T) {
	cfg := model.DefaultRewardUsageConfig("loc-1")
	h := newTestHandler(t, &stubService{configResp: &cfg})

	res := doRequest(t, h, http.MethodGet, "/api/admin/locations/loc-1/reward-usage", nil, adminToken(t, h))
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var got model.RewardUsageConfig
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Strategy != model.StrategySingleOnly {
		t.Fatalf("strategy = %q, want %q", got.Strategy, model.StrategySingleOnly)
	}
}

func TestUpdateRewardUsage(t *testing.T) {
	body := rewardUsageRequest{
		Strategy:            model.StrategyCombinationsOnly,
		AllowedCombinations: [][]model.DiscountKind{{model.KindDiscount, model.KindCoupon}},
		MaxKindsPerBooking:  2,
		EnabledKinds:        map[model.DiscountKind]bool{model.KindDiscount: true, model.KindCoupon: true},
	}

	t.Run("saved with location from path", func(t *testing.T) {
		svc := &stubService{}
		h := newTestHandler(t, svc)

		res := doRequest(t, h, http.MethodPut, "/api/admin/locations/loc-7/reward-usage", body, adminToken(t, h))
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
		}
		if svc.updated.LocationID != "loc-7" {
			t.Fatalf("location = %q, want loc-7", svc.updated.LocationID)
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		svc := &stubService{updateErr: errors.Join(rewards.ErrInvalidConfig, errors.New("bad"))}
		h := newTestHandler(t, svc)

		res := doRequest(t, h, http.MethodPut, "/api/admin/locations/loc-7/reward-usage", body, adminToken(t, h))
		defer res.Body.Close()

		if res.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
		}
	})
}

func TestCheckDiscount(t *testing.T) {
	h := newTestHandler(t, &stubService{decision: service.Decision{Allowed: false, Reason: service.ReasonNotCombinable}})

	res := doRequest(t, h, http.MethodPost, "/api/checkout/discounts/check", checkDiscountRequest{
		LocationID:    "loc-1",
		ActiveKinds:   []model.DiscountKind{model.KindDiscount},
		CandidateKind: model.KindCoupon,
	}, "")
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var got service.Decision
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Allowed || got.Reason != service.ReasonNotCombinable {
		t.Fatalf("decision = %+v", got)
	}
}

func TestQuote_NegativeSubtotal(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	res := doRequest(t, h, http.MethodPost, "/api/checkout/quote", quoteRequest{
		LocationID: "loc-1",
		Subtotal:   decimal.NewFromInt(-1),
	}, "")
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestQuote_InvalidDiscountType(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	res := doRequest(t, h, http.MethodPost, "/api/checkout/quote", quoteRequest{
		LocationID: "loc-1",
		Subtotal:   decimal.NewFromInt(100),
		Discounts: []discountRequest{
			{Kind: model.KindCoupon, Type: "bogus", Value: decimal.NewFromInt(10)},
		},
	}, "")
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestGenerateRotation(t *testing.T) {
	template := model.ShiftTemplate{
		0: {time.Monday: {Enabled: true, Shifts: []model.ShiftEntry{
			{Start: model.NewTimeOfDay(9, 0), End: model.NewTimeOfDay(17, 0)},
		}}},
	}

	t.Run("created", func(t *testing.T) {
		svc := &stubService{rotationResp: []model.GeneratedShift{{ID: uuid.New(), EmployeeID: "emp-1"}}}
		h := newTestHandler(t, svc)

		res := doRequest(t, h, http.MethodPost, "/api/admin/employees/emp-1/rotation", rotationRequest{
			TotalWeeks:   1,
			HorizonWeeks: 4,
			AnchorDate:   "2024-01-10",
			Template:     template,
		}, adminToken(t, h))
		defer res.Body.Close()

		if res.StatusCode != http.StatusCreated {
			t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
		}
		if svc.rotationReq.EmployeeID != "emp-1" {
			t.Fatalf("employee = %q, want emp-1", svc.rotationReq.EmployeeID)
		}
		want := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
		if !svc.rotationReq.AnchorDate.Equal(want) {
			t.Fatalf("anchor = %v, want %v", svc.rotationReq.AnchorDate, want)
		}
	})

	t.Run("invalid phone", func(t *testing.T) {
		h := newTestHandler(t, &stubService{})

		res := doRequest(t, h, http.MethodPost, "/api/admin/employees/emp-1/rotation", rotationRequest{
			TotalWeeks:   1,
			HorizonWeeks: 4,
			AnchorDate:   "2024-01-10",
			Template:     template,
			NotifyPhone:  "12345",
		}, adminToken(t, h))
		defer res.Body.Close()

		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("rejected by service", func(t *testing.T) {
		h := newTestHandler(t, &stubService{rotationErr: service.ErrInvalidRotation})

		res := doRequest(t, h, http.MethodPost, "/api/admin/employees/emp-1/rotation", rotationRequest{
			TotalWeeks:   1,
			HorizonWeeks: 500,
			AnchorDate:   "2024-01-10",
			Template:     template,
		}, adminToken(t, h))
		defer res.Body.Close()

		if res.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
		}
	})
}

func TestGetShifts(t *testing.T) {
	t.Run("no content", func(t *testing.T) {
		h := newTestHandler(t, &stubService{shiftsResp: []model.GeneratedShift{}})

		res := doRequest(t, h, http.MethodGet, "/api/admin/employees/emp-1/shifts?from=2024-01-01&to=2024-02-01", nil, adminToken(t, h))
		defer res.Body.Close()

		if res.StatusCode != http.StatusNoContent {
			t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNoContent)
		}
	})

	t.Run("range parsed", func(t *testing.T) {
		svc := &stubService{shiftsResp: []model.GeneratedShift{{ID: uuid.New(), EmployeeID: "emp-1"}}}
		h := newTestHandler(t, svc)

		res := doRequest(t, h, http.MethodGet, "/api/admin/employees/emp-1/shifts?from=2024-01-01&to=2024-02-01", nil, adminToken(t, h))
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
		}
		if !svc.shiftsFrom.Equal(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)) {
			t.Fatalf("from = %v", svc.shiftsFrom)
		}
		if !svc.shiftsTo.Equal(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)) {
			t.Fatalf("to = %v", svc.shiftsTo)
		}
	})

	t.Run("bad date", func(t *testing.T) {
		h := newTestHandler(t, &stubService{})

		res := doRequest(t, h, http.MethodGet, "/api/admin/employees/emp-1/shifts?from=yesterday", nil, adminToken(t, h))
		defer res.Body.Close()

		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("invalid range", func(t *testing.T) {
		h := newTestHandler(t, &stubService{shiftsErr: service.ErrInvalidRange})

		res := doRequest(t, h, http.MethodGet, "/api/admin/employees/emp-1/shifts?from=2024-02-01&to=2024-01-01", nil, adminToken(t, h))
		defer res.Body.Close()

		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
		}
	})
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	res := doRequest(t, h, http.MethodGet, "/health", nil, "")
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
}

func TestAdminChanges_LogAdminLogin(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	auth := middleware.NewAuthMiddleware("test-secret")
	svc := &stubService{rotationResp: []model.GeneratedShift{{ID: uuid.New(), EmployeeID: "emp-1"}}}
	h := NewHandler(svc, zap.New(core), auth)

	token, err := auth.IssueToken("manager")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	res := doRequest(t, h, http.MethodPut, "/api/admin/locations/loc-1/reward-usage", rewardUsageRequest{
		Strategy:           model.StrategySingleOnly,
		MaxKindsPerBooking: 1,
		EnabledKinds:       map[model.DiscountKind]bool{model.KindCoupon: true},
	}, token)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	res = doRequest(t, h, http.MethodPost, "/api/admin/employees/emp-1/rotation", rotationRequest{
		TotalWeeks:   1,
		HorizonWeeks: 1,
		AnchorDate:   "2024-01-10",
		Template:     model.ShiftTemplate{0: {time.Monday: {Enabled: true}}},
	}, token)
	res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	for _, msg := range []string{"reward usage config changed", "rotation regenerated"} {
		entries := logs.FilterMessage(msg).All()
		if len(entries) != 1 {
			t.Fatalf("%q logged %d times, want 1", msg, len(entries))
		}
		if got := entries[0].ContextMap()["admin"]; got != "manager" {
			t.Fatalf("%q admin = %v, want manager", msg, got)
		}
	}
}
