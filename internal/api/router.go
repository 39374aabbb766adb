// Package api wires the gin HTTP surface onto the decisioning pipeline: the
// hot decision endpoint, health checks, admin-guarded policy mutation and
// replay, and chargeback ingestion. Request-ID tagging, structured request
// logging, permissive CORS and a per-IP token-bucket limiter mirror the
// engine's original router setup.
package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/riskcore/fraudengine/internal/auth"
	"github.com/riskcore/fraudengine/internal/evidence"
	"github.com/riskcore/fraudengine/internal/pipeline"
	"github.com/riskcore/fraudengine/internal/pipeline/replay"
	"github.com/riskcore/fraudengine/internal/policyversion"
	"github.com/riskcore/fraudengine/internal/repositories"
	"github.com/riskcore/fraudengine/internal/store"
)

// Dependencies bundles everything the router needs to build routes.
type Dependencies struct {
	DB            *repositories.Database
	Pipeline      *pipeline.Pipeline
	PolicyStore   *policyversion.Store
	EvidenceStore *evidence.Store
	ProfileStore  *store.ProfileStore
	ReplayRunner  *replay.Runner
	AuthService   *auth.Service
	JWTManager    *auth.JWTManager
}

// NewRouter builds the fully configured gin engine.
func NewRouter(deps Dependencies, environment string) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware())
	router.Use(corsMiddleware())

	limiter := NewRateLimiter(200, time.Minute)
	router.Use(rateLimitMiddleware(limiter))

	router.GET("/health", HealthHandler(deps.DB))

	v1 := router.Group("/api/v1")

	v1.POST("/auth/login", LoginHandler(deps.AuthService))

	v1.POST("/decisions", DecisionHandler(deps.Pipeline))

	v1.POST("/chargebacks", RecordChargebackHandler(deps.EvidenceStore, deps.ProfileStore))
	v1.POST("/refunds", RecordRefundHandler(deps.EvidenceStore, deps.ProfileStore))

	admin := v1.Group("/admin")
	admin.Use(auth.AuthMiddleware(deps.JWTManager))
	admin.Use(auth.RoleMiddleware("admin"))
	{
		admin.GET("/policy", GetActivePolicyHandler(deps.PolicyStore))
		admin.POST("/policy", PublishPolicyHandler(deps.PolicyStore))
		admin.POST("/policy/rollback", RollbackPolicyHandler(deps.PolicyStore))
		admin.GET("/policy/history", PolicyHistoryHandler(deps.PolicyStore))
		admin.POST("/replay", RunReplayHandler(deps.ReplayRunner))
	}

	return router
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("%d", time.Now().UnixNano())
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("request_id", c.GetString("request_id")).
			Str("client_ip", c.ClientIP()).
			Msg("request completed")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimiter is a per-IP token bucket, refilled lazily on each check.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	now := time.Now()

	if !exists {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastSeen: now}
		return true
	}

	elapsed := now.Sub(v.lastSeen)
	refill := int(elapsed / (rl.window / time.Duration(rl.rate)))
	v.tokens += refill
	if v.tokens > rl.rate {
		v.tokens = rl.rate
	}
	v.lastSeen = now

	if v.tokens > 0 {
		v.tokens--
		return true
	}
	return false
}

func rateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.Header("Retry-After", "60")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": 60,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
