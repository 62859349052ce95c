package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimitAllowsWithinBurst(t *testing.T) {
	limiter := NewRateLimiter(func() time.Time { return time.Unix(0, 0) })
	rule := RateLimitRule{Rate: 1, Burst: 2}

	if ok, _ := limiter.Allow("obs|STATUS_POLL", rule); !ok {
		t.Fatalf("first request should pass")
	}
	if ok, _ := limiter.Allow("obs|STATUS_POLL", rule); !ok {
		t.Fatalf("second request within burst should pass")
	}
	if ok, retryAfter := limiter.Allow("obs|STATUS_POLL", rule); ok {
		t.Fatalf("third request should be limited")
	} else if retryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %s", retryAfter)
	}
}

func TestRateLimitRefillsOverTime(t *testing.T) {
	now := time.Unix(0, 0)
	limiter := NewRateLimiter(func() time.Time { return now })
	rule := RateLimitRule{Rate: 2, Burst: 1}

	if ok, _ := limiter.Allow("obs|STREAM_OPEN", rule); !ok {
		t.Fatalf("first request should pass")
	}
	if ok, _ := limiter.Allow("obs|STREAM_OPEN", rule); ok {
		t.Fatalf("second immediate request should be limited")
	}

	now = now.Add(time.Second)
	if ok, _ := limiter.Allow("obs|STREAM_OPEN", rule); !ok {
		t.Fatalf("request after refill should pass")
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimit(RateLimitConfig{
		Rules: map[string]RateLimitRule{
			RateLimitGroupStatusPoll: {Rate: 0.001, Burst: 1},
		},
		GroupFor: func(*gin.Context) string { return RateLimitGroupStatusPoll },
	}))
	router.GET("/api/v1/analyses/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/v1/analyses/j1", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/v1/analyses/j1", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestRateLimitSkipsUnknownGroup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimit(RateLimitConfig{
		Rules: map[string]RateLimitRule{
			RateLimitGroupStatusPoll: {Rate: 0.001, Burst: 1},
		},
		GroupFor: func(*gin.Context) string { return "OTHER" },
	}))
	router.GET("/api/v1/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	for i := 0; i < 5; i++ {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.Code)
		}
	}
}
