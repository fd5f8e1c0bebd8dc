package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stemsi/exstem-session/internal/identity"
	"github.com/stemsi/exstem-session/internal/model"
)

func TestRateLimiterRefillsWholeIntervals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(ctx, clock, 2, time.Minute)

	if !rl.Allow("user:a") || !rl.Allow("user:a") {
		t.Fatal("expected the first two requests to pass")
	}
	if rl.Allow("user:a") {
		t.Fatal("expected the third request to be limited")
	}
	if !rl.Allow("user:b") {
		t.Fatal("buckets must be per key")
	}

	clock.Advance(30 * time.Second)
	if rl.Allow("user:a") {
		t.Fatal("a partial interval must not refill")
	}
	clock.Advance(30 * time.Second)
	if !rl.Allow("user:a") {
		t.Fatal("expected a refill after a full interval")
	}
}

func newEngine(authority *identity.Authority, roles ...model.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", RequireJWT(authority), RequireRole(roles...), func(c *gin.Context) {
		c.String(http.StatusOK, GetClaims(c).UserID)
	})
	return r
}

func serve(r *gin.Engine, target, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAndRoleChecks(t *testing.T) {
	authority := identity.NewAuthority("test-secret", time.Hour)
	r := newEngine(authority, model.RoleProctor, model.RoleAdmin)

	student, err := authority.Issue(model.Identity{UserID: "stu-1", Role: model.RoleStudent})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	proctor, err := authority.Issue(model.Identity{UserID: "pr-1", Role: model.RoleProctor})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"missing token", "/x", "", http.StatusUnauthorized},
		{"garbage token", "/x", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "/x", "Bearer " + student, http.StatusForbidden},
		{"header token", "/x", "Bearer " + proctor, http.StatusOK},
		{"query token", "/x?token=" + proctor, "", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(r, tc.target, tc.header)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}
