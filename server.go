package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/heraerp/universal_backend/config"
	"github.com/heraerp/universal_backend/middlewares"
	"github.com/heraerp/universal_backend/models"
	"github.com/heraerp/universal_backend/utils"
	"github.com/heraerp/universal_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("universal-backend")

type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := "ratelimit:" + c.ClientIP()
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		// Redis unavailable: let the request through rather than failing closed.
		c.Next()
		return
	}
	if count == 1 {
		rl.client.Expire(c.Request.Context(), key, rl.window)
	}
	if count > rl.limit {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		c.Abort()
		return
	}
	c.Next()
}

func httpStatusFor(code models.ErrorCode) int {
	switch code {
	case models.ErrCodeValidation, models.ErrCodeGovernance, models.ErrCodeInvalidSmartCode, models.ErrCodeOrgRequired:
		return http.StatusBadRequest
	case models.ErrCodeAuthorization, models.ErrCodeNotAuthorized:
		return http.StatusForbidden
	case models.ErrCodeNotFound, models.ErrCodeEntityNotFound, models.ErrCodeTransactionNotFound:
		return http.StatusNotFound
	case models.ErrCodeConflict, models.ErrCodeDuplicateCode:
		return http.StatusConflict
	case models.ErrCodeBalance:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeApiResponse(c *gin.Context, resp *models.ApiResponse) {
	if resp.Success {
		c.JSON(http.StatusOK, resp)
		return
	}
	c.JSON(httpStatusFor(resp.Error), resp)
}

// actorFromRequest prefers the envelope's actor_user_id, falling back to the
// authenticated session user.
func actorFromRequest(c *gin.Context, envelopeActor int) int {
	if envelopeActor > 0 {
		return envelopeActor
	}
	if userId, ok := utils.GetUserIdFromContext(c.Request.Context()); ok {
		return userId
	}
	return 0
}

func entityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.EntityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, &models.ApiResponse{
				Success: false, Error: models.ErrCodeValidation, Message: "invalid request body",
			})
			return
		}
		req.ActorUserId = actorFromRequest(c, req.ActorUserId)
		ctx, span := tracer.Start(c.Request.Context(), "entity."+string(req.Action))
		defer span.End()
		writeApiResponse(c, models.DispatchEntityRequest(ctx, &req))
	}
}

func transactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.TransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, &models.ApiResponse{
				Success: false, Error: models.ErrCodeValidation, Message: "invalid request body",
			})
			return
		}
		req.ActorUserId = actorFromRequest(c, req.ActorUserId)
		ctx, span := tracer.Start(c.Request.Context(), "transaction."+string(req.Action))
		defer span.End()
		writeApiResponse(c, models.DispatchTransactionRequest(ctx, &req))
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			return
		}
		user, token, err := models.AuthenticateUser(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	}
}

func signupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewUser
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		user, err := models.CreateUser(c.Request.Context(), &req)
		if err != nil {
			apiErr := models.AsApiError(err)
			c.JSON(httpStatusFor(apiErr.Code), gin.H{"error": apiErr.Message})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

type createOrganizationRequest struct {
	ActorUserId int                    `json:"actor_user_id"`
	Name        string                 `json:"name"`
	Code        string                 `json:"code"`
	Settings    models.JSONMap         `json:"settings"`
}

func createOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrganizationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		actor := actorFromRequest(c, req.ActorUserId)
		org, err := models.CreateOrganization(c.Request.Context(), actor, &models.NewOrganization{
			Name:     req.Name,
			Code:     req.Code,
			Settings: req.Settings,
		})
		if err != nil {
			apiErr := models.AsApiError(err)
			c.JSON(httpStatusFor(apiErr.Code), gin.H{"error": apiErr.Message})
			return
		}
		c.JSON(http.StatusOK, gin.H{"organization": org})
	}
}

func exportTransactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		organizationId := c.Query("organization_id")
		actorUserId := actorFromRequest(c, 0)
		filter := models.TransactionFilter{
			IncludeDeleted: c.Query("include_deleted") == "true",
		}
		if v := c.Query("transaction_type"); v != "" {
			filter.TransactionTypes = []string{v}
		}

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=transactions.xlsx")
		if err := models.ExportTransactionsExcel(c.Request.Context(), organizationId, actorUserId, filter, c.Writer); err != nil {
			apiErr := models.AsApiError(err)
			c.JSON(httpStatusFor(apiErr.Code), gin.H{"error": apiErr.Message})
		}
	}
}

func exportEntitiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		organizationId := c.Query("organization_id")
		actorUserId := actorFromRequest(c, 0)
		filter := models.EntityFilter{}
		if v := c.Query("entity_type"); v != "" {
			filter.EntityTypes = []string{v}
		}

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=entities.xlsx")
		if err := models.ExportEntitiesExcel(c.Request.Context(), organizationId, actorUserId, filter, c.Writer); err != nil {
			apiErr := models.AsApiError(err)
			c.JSON(httpStatusFor(apiErr.Code), gin.H{"error": apiErr.Message})
		}
	}
}

type outboxReplayRequest struct {
	OrganizationId string `json:"organization_id"`
	RecordId       int    `json:"record_id"`
}

func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.OrganizationId == "" || req.RecordId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "organization_id and record_id are required"})
			return
		}

		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}
		now := time.Now().UTC()
		if err := db.WithContext(c.Request.Context()).
			Model(&models.AuditOutboxRecord{}).
			Where("id = ? AND organization_id = ?", req.RecordId, req.OrganizationId).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusFailed,
				"is_processed":       false,
				"next_attempt_at":    &now,
				"locked_at":          nil,
				"locked_by":          nil,
				"last_publish_error": nil,
			}).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"organization_id": req.OrganizationId,
			"record_id":       req.RecordId,
			"publish_status":  models.OutboxPublishStatusFailed,
			"next_attempt_at": now.Format(time.RFC3339Nano),
		})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// customErrorLogger logs only requests that recorded errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require an explicit allowlist via CORS_ALLOWED_ORIGINS.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting.
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := redis.NewClient(&redis.Options{Addr: os.Getenv("REDIS_ADDRESS")})
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/signup", signupHandler())
	r.POST("/login", loginHandler())

	r.POST("/api/v1/universal/entity", entityHandler())
	r.POST("/api/v1/universal/transaction", transactionHandler())
	r.POST("/api/v1/organizations", createOrganizationHandler())
	r.GET("/api/v1/export/transactions", exportTransactionsHandler())
	r.GET("/api/v1/export/entities", exportEntitiesHandler())

	// Ops tooling: replay outbox messages that were marked DEAD/FAILED.
	r.POST("/internal/ops/outbox/replay", outboxReplayHandler())

	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running migrations as
	// a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Start outbox dispatcher (publishes AFTER commit).
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go workflow.NewOutboxDispatcher(db, logger).Run(dispatcherCtx)

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<minAttempt(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info(fmt.Sprintf("listening on http://localhost:%s/", port))
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelDispatcher()

	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func minAttempt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
