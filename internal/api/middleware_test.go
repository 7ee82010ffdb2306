package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/safar/go-grocery-store/internal/database"
	"github.com/safar/go-grocery-store/internal/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(users ...*models.User) UserLookup {
	return func(_ context.Context, id int64) (*models.User, error) {
		for _, u := range users {
			if u.ID == id {
				return u, nil
			}
		}
		return nil, database.ErrUserNotFound
	}
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body MessageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Message
}

func TestIdentify(t *testing.T) {
	log, _ := test.NewNullLogger()
	alice := &models.User{ID: 7, Name: "Alice", Role: models.RoleUser}

	var seen *models.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = userFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := identify(lookupFrom(alice), log)(next)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   *models.User
		wantMsg    string
	}{
		{name: "anonymous", header: "", wantStatus: http.StatusNoContent},
		{name: "known user", header: "7", wantStatus: http.StatusNoContent, wantUser: alice},
		{name: "malformed id", header: "abc", wantStatus: http.StatusUnauthorized, wantMsg: "Invalid user id"},
		{name: "negative id", header: "-3", wantStatus: http.StatusUnauthorized, wantMsg: "Invalid user id"},
		{name: "unknown user", header: "99", wantStatus: http.StatusUnauthorized, wantMsg: "Unknown user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(userIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantUser, seen)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, decodeMessage(t, rec))
			}
		})
	}
}

func TestIdentifyLookupFailure(t *testing.T) {
	log, hook := test.NewNullLogger()
	lookup := func(context.Context, int64) (*models.User, error) {
		return nil, errors.New("connection refused")
	}
	handler := identify(lookup, log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(userIDHeader, "1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Server Error", decodeMessage(t, rec))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "request failed", hook.LastEntry().Message)
}

func TestRequireUserAndAdmin(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name      string
		user      *models.User
		userCode  int
		adminCode int
	}{
		{name: "anonymous", user: nil, userCode: http.StatusUnauthorized, adminCode: http.StatusUnauthorized},
		{name: "customer", user: &models.User{ID: 1, Role: models.RoleUser}, userCode: http.StatusOK, adminCode: http.StatusForbidden},
		{name: "admin", user: &models.User{ID: 2, Role: models.RoleAdmin}, userCode: http.StatusOK, adminCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.user != nil {
				req = req.WithContext(withUser(req.Context(), tt.user))
			}

			rec := httptest.NewRecorder()
			requireUser(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.userCode, rec.Code)

			rec = httptest.NewRecorder()
			requireAdmin(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.adminCode, rec.Code)
			if tt.adminCode == http.StatusForbidden {
				assert.Equal(t, "Access denied. Admin only.", decodeMessage(t, rec))
			}
		})
	}
}

func TestCacheControl(t *testing.T) {
	handler := cacheControl(time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("get is cacheable", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))

		assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
		expires, err := http.ParseTime(rec.Header().Get("Expires"))
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)
	})

	t.Run("mutations are not cacheable", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/products", nil))

		assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
		assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
		assert.Equal(t, "0", rec.Header().Get("Expires"))
	})
}

func TestRequestLogger(t *testing.T) {
	log, hook := test.NewNullLogger()
	handler := requestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "request handled", entry.Message)
	assert.Equal(t, http.StatusTeapot, entry.Data["status"])
	assert.Equal(t, "/teapot", entry.Data["path"])
	assert.Equal(t, 15, entry.Data["bytes"])
}
