package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ds124wfegd/ems-booking/internal/database/memory"
	"github.com/ds124wfegd/ems-booking/internal/entity"
	"github.com/ds124wfegd/ems-booking/internal/service"
	"github.com/ds124wfegd/ems-booking/internal/transport/middleware"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type apiResponse struct {
	Success bool                   `json:"success"`
	Data    json.RawMessage        `json:"data"`
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details"`
}

type testServer struct {
	router *gin.Engine
}

func newTestServer(t *testing.T, configure ...func(*service.Settings)) *testServer {
	t.Helper()
	return newTestServerWithRouter(t, RouterConfig{JWTSecret: testSecret, RequestTimeout: 5 * time.Second}, configure...)
}

func newTestServerWithRouter(t *testing.T, rc RouterConfig, configure ...func(*service.Settings)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	store.AddEvent(entity.Event{
		ID:          "evt-1",
		Title:       "Jazz Night",
		Date:        time.Now().Add(30 * 24 * time.Hour),
		OrganizerID: "org-1",
		Categories: []entity.TicketCategory{
			{ID: "vip", Name: "VIP", Price: decimal.RequireFromString("100.00"), Total: 10},
		},
		PromoCodes: []entity.PromoCode{
			{Code: "EARLY", DiscountPercentage: 20, ExpiryDate: time.Now().Add(24 * time.Hour), MaxUsage: 5},
		},
	})

	settings := service.DefaultSettings()
	for _, c := range configure {
		c(&settings)
	}
	svc := service.NewServices(service.Dependencies{UoW: store}, settings)

	router := InitRoutes(Handlers{
		Event:    NewEventHandler(svc.Event),
		Booking:  NewBookingHandler(svc.Booking, svc.Payment),
		Payment:  NewPaymentHandler(svc.Payment),
		Waitlist: NewWaitlistHandler(svc.Waitlist),
	}, rc)

	return &testServer{router: router}
}

func token(t *testing.T, userID string, role entity.Role) string {
	t.Helper()
	claims := middleware.Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body interface{}) (int, apiResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func (s *testServer) createBooking(t *testing.T, bearer string, qty int) string {
	t.Helper()
	code, resp := s.do(t, http.MethodPost, "/api/v1/bookings", bearer, gin.H{
		"eventId": "evt-1", "ticketCategoryId": "vip", "quantity": qty,
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)

	var result struct {
		Booking entity.Booking `json:"booking"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	return result.Booking.ID
}

func TestHealthAndAuth(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, resp := s.do(t, http.MethodGet, "/api/v1/bookings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", resp.Code)

	code, _ = s.do(t, http.MethodGet, "/api/v1/bookings", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestCreateBookingFlow(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, "alice", entity.RoleUser)
	bob := token(t, "bob", entity.RoleUser)

	code, resp := s.do(t, http.MethodPost, "/api/v1/bookings", alice, gin.H{
		"eventId": "evt-1", "ticketCategoryId": "vip", "quantity": 2,
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)

	var result service.BookingResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, 8, result.Remaining)
	id := result.Booking.ID

	code, _ = s.do(t, http.MethodGet, "/api/v1/bookings/"+id, alice, nil)
	assert.Equal(t, http.StatusOK, code)

	code, resp = s.do(t, http.MethodGet, "/api/v1/bookings/"+id, bob, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", resp.Code)

	code, resp = s.do(t, http.MethodGet, "/api/v1/bookings", alice, nil)
	require.Equal(t, http.StatusOK, code)
	var list []entity.Booking
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	assert.Len(t, list, 1)

	code, _ = s.do(t, http.MethodGet, "/api/v1/bookings/missing", alice, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateBookingRejections(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, "alice", entity.RoleUser)

	tests := []struct {
		name string
		body gin.H
		code int
	}{
		{"missing category", gin.H{"eventId": "evt-1", "quantity": 1}, http.StatusBadRequest},
		{"unknown event", gin.H{"eventId": "nope", "ticketCategoryId": "vip", "quantity": 1}, http.StatusNotFound},
		{"unknown category", gin.H{"eventId": "evt-1", "ticketCategoryId": "nope", "quantity": 1}, http.StatusNotFound},
		{"over capacity", gin.H{"eventId": "evt-1", "ticketCategoryId": "vip", "quantity": 11}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := s.do(t, http.MethodPost, "/api/v1/bookings", alice, tt.body)
			assert.Equal(t, tt.code, code)
		})
	}

	s.createBooking(t, alice, 8)
	code, resp := s.do(t, http.MethodPost, "/api/v1/bookings", alice, gin.H{
		"eventId": "evt-1", "ticketCategoryId": "vip", "quantity": 3,
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INSUFFICIENT_CAPACITY", resp.Code)
	assert.EqualValues(t, 2, resp.Details["remaining"])
}

func TestCancelReportsCurrentStatus(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, "alice", entity.RoleUser)
	id := s.createBooking(t, alice, 1)

	code, _ := s.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/cancel", alice, gin.H{"reason": "plans changed"})
	require.Equal(t, http.StatusOK, code)

	code, resp := s.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/cancel", alice, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, string(entity.BookingStatusCancelled), resp.Details["currentStatus"])
}

func TestPaymentAndCheckIn(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, "alice", entity.RoleUser)
	org := token(t, "org-1", entity.RoleOrganizer)
	id := s.createBooking(t, alice, 2)

	code, resp := s.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/check-in", alice, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, resp = s.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/check-in", org, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "WRONG_STATUS", resp.Code)

	code, resp = s.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/payment", alice, nil)
	require.Equal(t, http.StatusCreated, code, resp.Error)
	var payment PaymentInitiatedResponse
	require.NoError(t, json.Unmarshal(resp.Data, &payment))
	assert.True(t, payment.GrossAmount.Equal(decimal.RequireFromString("200")))

	code, resp = s.do(t, http.MethodPost, "/api/v1/payments/"+payment.OrderID+"/mock-complete", alice, nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	var result service.ReconcileResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, service.OutcomeConfirmed, result.Outcome)

	code, _ = s.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/check-in", org, nil)
	assert.Equal(t, http.StatusOK, code)

	code, resp = s.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/check-in", org, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, true, resp.Details["alreadyCheckedIn"])
	assert.NotNil(t, resp.Details["booking"])
}

func TestWebhook(t *testing.T) {
	t.Run("unknown order is acknowledged", func(t *testing.T) {
		s := newTestServer(t)
		code, resp := s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", gin.H{
			"order_id": "EMS-missing", "transaction_status": "settlement",
		})
		assert.Equal(t, http.StatusOK, code)
		assert.Contains(t, string(resp.Data), string(service.OutcomeIgnored))
	})

	t.Run("settlement confirms booking", func(t *testing.T) {
		s := newTestServer(t)
		alice := token(t, "alice", entity.RoleUser)
		id := s.createBooking(t, alice, 1)

		_, resp := s.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/payment", alice, nil)
		var payment PaymentInitiatedResponse
		require.NoError(t, json.Unmarshal(resp.Data, &payment))

		code, resp := s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", gin.H{
			"order_id": payment.OrderID, "transaction_status": "settlement", "fraud_status": "accept",
		})
		require.Equal(t, http.StatusOK, code, resp.Error)

		_, resp = s.do(t, http.MethodGet, "/api/v1/bookings/"+id, alice, nil)
		var b entity.Booking
		require.NoError(t, json.Unmarshal(resp.Data, &b))
		assert.Equal(t, entity.BookingStatusConfirmed, b.Status)
	})

	t.Run("bad signature", func(t *testing.T) {
		s := newTestServer(t, func(st *service.Settings) {
			st.VerifySignature = true
			st.ServerKey = "server-key"
		})
		code, _ := s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", gin.H{
			"order_id": "EMS-1", "transaction_status": "settlement", "signature_key": "forged",
		})
		assert.Equal(t, http.StatusUnauthorized, code)
	})
}

func TestMockCompleteDisabled(t *testing.T) {
	s := newTestServer(t, func(st *service.Settings) { st.MockPaymentsEnabled = false })
	alice := token(t, "alice", entity.RoleUser)

	code, _ := s.do(t, http.MethodPost, "/api/v1/payments/EMS-1/mock-complete", alice, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestWaitlistAndCatalogue(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, "alice", entity.RoleUser)
	bob := token(t, "bob", entity.RoleUser)

	code, resp := s.do(t, http.MethodPost, "/api/v1/waitlist", bob, gin.H{
		"eventId": "evt-1", "ticketCategoryId": "vip", "quantity": 1,
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "TICKETS_AVAILABLE", resp.Code)

	s.createBooking(t, alice, 10)

	code, resp = s.do(t, http.MethodGet, "/api/v1/events/evt-1/categories/vip/availability", "", nil)
	require.Equal(t, http.StatusOK, code)
	var availability entity.CategoryAvailability
	require.NoError(t, json.Unmarshal(resp.Data, &availability))
	assert.Equal(t, 0, availability.Remaining)

	code, resp = s.do(t, http.MethodPost, "/api/v1/waitlist", bob, gin.H{
		"eventId": "evt-1", "ticketCategoryId": "vip", "quantity": 1,
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	var joined service.WaitlistResult
	require.NoError(t, json.Unmarshal(resp.Data, &joined))
	assert.Equal(t, 1, joined.Position)

	path := fmt.Sprintf("/api/v1/waitlist/%s/position", joined.Entry.ID)
	code, _ = s.do(t, http.MethodGet, path, alice, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, http.MethodDelete, "/api/v1/waitlist/"+joined.Entry.ID, bob, nil)
	assert.Equal(t, http.StatusOK, code)

	code, resp = s.do(t, http.MethodPost, "/api/v1/events/evt-1/promo/validate", "", gin.H{"code": "early"})
	require.Equal(t, http.StatusOK, code)
	var promo service.PromoResult
	require.NoError(t, json.Unmarshal(resp.Data, &promo))
	assert.True(t, promo.Valid)
	assert.Equal(t, 20, promo.DiscountPercentage)
}

func TestErrorResponseMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"sold out", &entity.CapacityError{Requested: 1, Remaining: 0}, http.StatusConflict, "SOLD_OUT"},
		{"too late", &entity.TransitionError{Op: "cancel", Current: entity.BookingStatusConfirmed, Err: entity.ErrTooLateToCancel}, http.StatusUnprocessableEntity, "TOO_LATE_TO_CANCEL"},
		{"wrapped not found", fmt.Errorf("load: %w", entity.ErrBookingNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"conflict", entity.ErrTransactionConflict, http.StatusServiceUnavailable, "CONFLICT_RETRY"},
		{"gateway", entity.ErrGatewayUnavailable, http.StatusBadGateway, "GATEWAY_UNAVAILABLE"},
		{"past event", entity.ErrEventDatePast, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := errorResponse(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Code)
			assert.False(t, body.Success)
		})
	}
}

func TestHealthReportsComponents(t *testing.T) {
	s := newTestServerWithRouter(t, RouterConfig{
		JWTSecret: testSecret,
		HealthChecks: []HealthCheck{
			{Name: "postgres", Check: func(context.Context) error { return nil }},
			{Name: "rabbitmq", Check: func(context.Context) error { return errors.New("connection is closed") }},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Components["postgres"])
	assert.Equal(t, "connection is closed", body.Components["rabbitmq"])
}

func TestWebhookIsNotRateLimited(t *testing.T) {
	s := newTestServerWithRouter(t, RouterConfig{
		JWTSecret:      testSecret,
		RateLimitRPS:   0.001,
		RateLimitBurst: 1,
	})

	for i := 0; i < 5; i++ {
		code, _ := s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", gin.H{
			"order_id": "EMS-missing", "transaction_status": "settlement",
		})
		assert.Equal(t, http.StatusOK, code)
	}

	code, _ := s.do(t, http.MethodGet, "/api/v1/events/evt-1/availability", "", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodGet, "/api/v1/events/evt-1/availability", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
}
