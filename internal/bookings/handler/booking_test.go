package handler

import (
	"context"
	"encoding/json"
	apperrors "fleetrent/pkg/errors"
	httputil "fleetrent/pkg/http"
	"fleetrent/pkg/logger"
	"fleetrent/pkg/middleware"
	"fleetrent/pkg/model"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ────────────────────────────────────────────────
// Mock service for testing
// ────────────────────────────────────────────────

type mockBookingService struct {
	createFunc     func(ctx context.Context, actor model.Identity, req *model.CreateBookingRequest) (*model.BookingView, error)
	transitionFunc func(ctx context.Context, id string, actor model.Identity, target string) (*model.BookingView, error)
	getByIDFunc    func(ctx context.Context, id string, actor model.Identity) (*model.BookingView, error)
	listFunc       func(ctx context.Context, actor model.Identity, limit int, offset int64) ([]*model.BookingView, int64, error)
}

func (m *mockBookingService) Create(ctx context.Context, actor model.Identity, req *model.CreateBookingRequest) (*model.BookingView, error) {
	return m.createFunc(ctx, actor, req)
}

func (m *mockBookingService) Admit(context.Context, string, string, time.Time, time.Time) (*model.BookingView, error) {
	return nil, nil
}

func (m *mockBookingService) Transition(ctx context.Context, id string, actor model.Identity, target string) (*model.BookingView, error) {
	return m.transitionFunc(ctx, id, actor, target)
}

func (m *mockBookingService) GetByID(ctx context.Context, id string, actor model.Identity) (*model.BookingView, error) {
	return m.getByIDFunc(ctx, id, actor)
}

func (m *mockBookingService) List(ctx context.Context, actor model.Identity, limit int, offset int64) ([]*model.BookingView, int64, error) {
	return m.listFunc(ctx, actor, limit, offset)
}

// ────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────

var (
	customer = model.Identity{UserID: "65f000000000000000000001", Role: model.RoleCustomer}
	admin    = model.Identity{UserID: "65f000000000000000000002", Role: model.RoleAdmin}
)

func newRouter(t *testing.T, svc *mockBookingService) (*httprouter.Router, *middleware.Authenticator) {
	t.Helper()
	auth := middleware.NewAuthenticator("test-secret", logger.Discard())
	router := httprouter.New()
	NewBookingHandler(svc, auth, logger.Discard()).RegisterRoutes(router)
	return router, auth
}

func do(t *testing.T, router http.Handler, auth *middleware.Authenticator, actor *model.Identity, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if actor != nil {
		token, err := auth.IssueToken(*actor, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// ────────────────────────────────────────────────
// Tests
// ────────────────────────────────────────────────

func TestCreate_PassesIdentityAndRequest(t *testing.T) {
	var gotActor model.Identity
	var gotReq *model.CreateBookingRequest
	svc := &mockBookingService{
		createFunc: func(_ context.Context, actor model.Identity, req *model.CreateBookingRequest) (*model.BookingView, error) {
			gotActor, gotReq = actor, req
			return &model.BookingView{ID: "b1", Status: model.BookingActive, TotalPrice: 150}, nil
		},
	}
	router, auth := newRouter(t, svc)

	rec := do(t, router, auth, &customer, http.MethodPost, "/api/v1/bookings",
		`{"customer_id":"65f000000000000000000001","vehicle_id":"65f000000000000000000003","rent_start_date":"2024-06-01","rent_end_date":"2024-06-04"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, customer, gotActor)
	assert.Equal(t, "2024-06-01", gotReq.RentStartDate)

	var body struct {
		Success bool              `json:"success"`
		Message string            `json:"message"`
		Data    model.BookingView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "Booking created successfully", body.Message)
	assert.Equal(t, int64(150), body.Data.TotalPrice)
}

func TestCreate_RequiresToken(t *testing.T) {
	router, auth := newRouter(t, &mockBookingService{})
	rec := do(t, router, auth, nil, http.MethodPost, "/api/v1/bookings", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreate_MalformedBody(t *testing.T) {
	router, auth := newRouter(t, &mockBookingService{})
	rec := do(t, router, auth, &customer, http.MethodPost, "/api/v1/bookings", `{"customer_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdate_MapsRejections(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", apperrors.NotFoundWithID("Booking", "x"), http.StatusNotFound},
		{"forbidden", apperrors.Forbidden("You can only update your own bookings"), http.StatusForbidden},
		{"invalid state", apperrors.InvalidState("Cannot cancel booking on or after start date"), http.StatusBadRequest},
		{"storage fault", apperrors.StorageFault("Failed to access Booking", nil), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockBookingService{
				transitionFunc: func(context.Context, string, model.Identity, string) (*model.BookingView, error) {
					return nil, tt.err
				},
			}
			router, auth := newRouter(t, svc)

			rec := do(t, router, auth, &customer, http.MethodPut, "/api/v1/bookings/id/65f000000000000000000009", `{"status":"cancelled"}`)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body httputil.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, apperrors.AsAppError(tt.err).Message, body.Message)
		})
	}
}

func TestUpdate_ReturnedMessage(t *testing.T) {
	var gotID, gotTarget string
	svc := &mockBookingService{
		transitionFunc: func(_ context.Context, id string, _ model.Identity, target string) (*model.BookingView, error) {
			gotID, gotTarget = id, target
			return &model.BookingView{
				ID:      id,
				Status:  model.BookingReturned,
				Vehicle: &model.VehicleSummary{AvailabilityStatus: model.Available},
			}, nil
		},
	}
	router, auth := newRouter(t, svc)

	rec := do(t, router, auth, &admin, http.MethodPut, "/api/v1/bookings/id/65f000000000000000000009", `{"status":"returned"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "65f000000000000000000009", gotID)
	assert.Equal(t, "returned", gotTarget)
	assert.Contains(t, rec.Body.String(), "Vehicle is now available")
}

func TestUpdate_RejectsExtraFields(t *testing.T) {
	router, auth := newRouter(t, &mockBookingService{})
	rec := do(t, router, auth, &admin, http.MethodPut, "/api/v1/bookings/id/65f000000000000000000009",
		`{"status":"returned","total_price":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdate_EmptyBodyLooksUpBookingFirst(t *testing.T) {
	var gotTarget *string
	svc := &mockBookingService{
		transitionFunc: func(_ context.Context, id string, _ model.Identity, target string) (*model.BookingView, error) {
			gotTarget = &target
			if id == "65f000000000000000000009" {
				return nil, apperrors.NotFoundWithID("Booking", id)
			}
			return nil, apperrors.InvalidInput("Status must be 'cancelled' or 'returned'")
		},
	}
	router, auth := newRouter(t, svc)

	rec := do(t, router, auth, &admin, http.MethodPut, "/api/v1/bookings/id/65f000000000000000000009", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, gotTarget)
	assert.Empty(t, *gotTarget)

	rec = do(t, router, auth, &admin, http.MethodPut, "/api/v1/bookings/id/65f000000000000000000008", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Status must be")
}

func TestGetAll_Pagination(t *testing.T) {
	var gotLimit int
	var gotOffset int64
	svc := &mockBookingService{
		listFunc: func(_ context.Context, actor model.Identity, limit int, offset int64) ([]*model.BookingView, int64, error) {
			gotLimit, gotOffset = limit, offset
			return []*model.BookingView{{ID: "b1"}}, 42, nil
		},
	}
	router, auth := newRouter(t, svc)

	rec := do(t, router, auth, &admin, http.MethodGet, "/api/v1/bookings?limit=5&offset=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, gotLimit)
	assert.Equal(t, int64(10), gotOffset)

	var body httputil.PaginatedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(42), body.TotalCount)
	assert.Equal(t, "Bookings retrieved successfully", body.Message)

	rec = do(t, router, auth, &admin, http.MethodGet, "/api/v1/bookings?limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetByID_PassesIdentity(t *testing.T) {
	svc := &mockBookingService{
		getByIDFunc: func(_ context.Context, id string, actor model.Identity) (*model.BookingView, error) {
			if actor.UserID != customer.UserID {
				return nil, apperrors.Forbidden("You can only view your own bookings")
			}
			return &model.BookingView{ID: id}, nil
		},
	}
	router, auth := newRouter(t, svc)

	rec := do(t, router, auth, &customer, http.MethodGet, "/api/v1/bookings/id/b1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, auth, &admin, http.MethodGet, "/api/v1/bookings/id/b1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
