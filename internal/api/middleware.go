package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/go-grocery-store/internal/database"
	"github.com/safar/go-grocery-store/internal/models"
	"github.com/sirupsen/logrus"
)

const userIDHeader = "X-User-ID"

type ctxKey int

const userKey ctxKey = iota

// UserLookup resolves the caller named in the identity header.
type UserLookup func(ctx context.Context, id int64) (*models.User, error)

func userFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

func withUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
				"remote_addr": r.RemoteAddr,
			}).Info("request handled")
		})
	}
}

// identify attaches the caller named by X-User-ID. Requests without the
// header pass through anonymously; a malformed or unknown id is rejected.
func identify(lookup UserLookup, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(userIDHeader))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				respondMessage(w, http.StatusUnauthorized, "Invalid user id")
				return
			}

			user, err := lookup(r.Context(), id)
			if err != nil {
				if errors.Is(err, database.ErrUserNotFound) {
					respondMessage(w, http.StatusUnauthorized, "Unknown user")
					return
				}
				respondServiceError(w, r, log, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userFromContext(r.Context()) == nil {
			respondMessage(w, http.StatusUnauthorized, "No user, authorization denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return requireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !userFromContext(r.Context()).IsAdmin() {
			respondMessage(w, http.StatusForbidden, "Access denied. Admin only.")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// cacheControl marks GET responses cacheable for maxAge and everything else
// as uncacheable.
func cacheControl(maxAge time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if r.Method == http.MethodGet {
				h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())))
				h.Set("Expires", time.Now().Add(maxAge).UTC().Format(http.TimeFormat))
			} else {
				h.Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
				h.Set("Pragma", "no-cache")
				h.Set("Expires", "0")
			}
			next.ServeHTTP(w, r)
		})
	}
}
