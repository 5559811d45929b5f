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

const callerID = "65f000000000000000000001"

type mockUserService struct {
	getAllFunc func(ctx context.Context, limit int, offset int64) ([]*model.User, int64, error)
	updateFunc func(ctx context.Context, actor model.Identity, id string, update *model.UserUpdate) (*model.User, error)
	deleteFunc func(ctx context.Context, id string) error
}

func (m *mockUserService) Create(_ context.Context, req *model.UserCreate) (*model.User, error) {
	return &model.User{ID: "u1", Name: req.Name, Email: req.Email, Role: model.Role(req.Role)}, nil
}

func (m *mockUserService) GetByID(_ context.Context, actor model.Identity, id string) (*model.User, error) {
	return &model.User{ID: id, Role: actor.Role}, nil
}

func (m *mockUserService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.User, int64, error) {
	return m.getAllFunc(ctx, limit, offset)
}

func (m *mockUserService) Update(ctx context.Context, actor model.Identity, id string, update *model.UserUpdate) (*model.User, error) {
	return m.updateFunc(ctx, actor, id, update)
}

func (m *mockUserService) Delete(ctx context.Context, id string) error {
	return m.deleteFunc(ctx, id)
}

func setup(svc *mockUserService) (*httprouter.Router, *middleware.Authenticator) {
	auth := middleware.NewAuthenticator("test-secret", logger.Discard())
	router := httprouter.New()
	NewUserHandler(svc, auth, logger.Discard()).RegisterRoutes(router)
	return router, auth
}

func do(t *testing.T, router http.Handler, auth *middleware.Authenticator, role model.Role, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if role != "" {
		token, err := auth.IssueToken(model.Identity{UserID: callerID, Role: role}, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetAll_AdminOnly(t *testing.T) {
	svc := &mockUserService{
		getAllFunc: func(context.Context, int, int64) ([]*model.User, int64, error) {
			return []*model.User{{ID: "u1"}}, 1, nil
		},
	}
	router, auth := setup(svc)

	tests := []struct {
		role model.Role
		want int
	}{
		{"", http.StatusUnauthorized},
		{model.RoleCustomer, http.StatusForbidden},
		{model.RoleAdmin, http.StatusOK},
	}
	for _, tt := range tests {
		rec := do(t, router, auth, tt.role, http.MethodGet, "/api/v1/users", "")
		assert.Equal(t, tt.want, rec.Code, "role %q", tt.role)
	}

	rec := do(t, router, auth, model.RoleAdmin, http.MethodGet, "/api/v1/users?limit=5", "")
	var body httputil.PaginatedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Users retrieved successfully", body.Message)
	assert.Equal(t, int64(1), body.TotalCount)
}

func TestUpdate_PassesCallerAndBody(t *testing.T) {
	var gotActor model.Identity
	var gotUpdate *model.UserUpdate
	svc := &mockUserService{
		updateFunc: func(_ context.Context, actor model.Identity, id string, update *model.UserUpdate) (*model.User, error) {
			gotActor, gotUpdate = actor, update
			return &model.User{ID: id, Name: *update.Name}, nil
		},
	}
	router, auth := setup(svc)

	rec := do(t, router, auth, model.RoleCustomer, http.MethodPut, "/api/v1/users/id/"+callerID, `{"name":"Rahim"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, callerID, gotActor.UserID)
	assert.Equal(t, model.RoleCustomer, gotActor.Role)
	require.NotNil(t, gotUpdate.Name)
	assert.Nil(t, gotUpdate.Email)
	assert.Contains(t, rec.Body.String(), "User updated successfully")
}

func TestUpdate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"other profile", apperrors.Forbidden("You can only update your own profile"), http.StatusForbidden},
		{"taken email", apperrors.Conflict("Email already exists"), http.StatusBadRequest},
		{"missing user", apperrors.NotFoundWithID("User", "x"), http.StatusNotFound},
		{"storage", apperrors.StorageFault("Failed to access User", nil), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockUserService{
				updateFunc: func(context.Context, model.Identity, string, *model.UserUpdate) (*model.User, error) {
					return nil, tt.err
				},
			}
			router, auth := setup(svc)
			rec := do(t, router, auth, model.RoleCustomer, http.MethodPut, "/api/v1/users/id/65f000000000000000000002", `{"name":"Rahim"}`)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestUpdate_RejectsUnknownFields(t *testing.T) {
	router, auth := setup(&mockUserService{})
	rec := do(t, router, auth, model.RoleCustomer, http.MethodPut, "/api/v1/users/id/"+callerID, `{"name":"Rahim","password":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDelete(t *testing.T) {
	svc := &mockUserService{
		deleteFunc: func(_ context.Context, id string) error {
			if id == "busy" {
				return apperrors.InvalidState("Cannot delete user with active bookings")
			}
			return nil
		},
	}
	router, auth := setup(svc)

	rec := do(t, router, auth, model.RoleCustomer, http.MethodDelete, "/api/v1/users/id/u1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, auth, model.RoleAdmin, http.MethodDelete, "/api/v1/users/id/busy", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "active bookings")

	rec = do(t, router, auth, model.RoleAdmin, http.MethodDelete, "/api/v1/users/id/u1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "User deleted successfully")
}
