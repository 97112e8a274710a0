package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// getParam returns a path or query parameter value regardless of whether
// the router stores it with a leading colon or not. It also supports the
// standard net/http PathValue API available in recent Go versions.
func getParam(r *http.Request, name string) string {
	if r == nil {
		return ""
	}

	if val := r.URL.Query().Get(":" + name); val != "" {
		return val
	}

	if val := r.URL.Query().Get(name); val != "" {
		return val
	}

	return r.PathValue(name)
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	raw := getParam(r, name)
	if raw == "" {
		return 0, fmt.Errorf("missing %s", name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// parseDateRange reads optional from/to query parameters as YYYY-MM-DD.
// The to date is widened to the end of its day so the range is inclusive.
func parseDateRange(r *http.Request) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid from date %q", raw)
		}
		from = &t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid to date %q", raw)
		}
		end := t.Add(24*time.Hour - time.Nanosecond)
		to = &end
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, fmt.Errorf("date range is inverted")
	}
	return from, to, nil
}

type contextKey string

const userIDContextKey contextKey = "user_id"

// WithUserID stores the authenticated user id for downstream handlers.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserIDFromContext returns the id set by the auth middleware.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDContextKey).(int64)
	return id, ok
}

func authedUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
	}
	return id, ok
}
