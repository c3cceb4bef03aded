package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
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
	"github.com/redis/go-redis/v9"
	"github.com/sharmarakshya7/financial-rating-platform/config"
	"github.com/sharmarakshya7/financial-rating-platform/middlewares"
	"github.com/sharmarakshya7/financial-rating-platform/models"
	"github.com/sharmarakshya7/financial-rating-platform/utils"
	"github.com/sharmarakshya7/financial-rating-platform/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

const defaultPort = "8080"

var tracer = otel.Tracer("financial-rating-platform")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// PubSubMessage is the push subscription envelope.
type PubSubMessage struct {
	Message struct {
		Data       []byte            `json:"data,omitempty"`
		ID         string            `json:"id"`
		Attributes map[string]string `json:"attributes,omitempty"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func ingestionPubSubHandler(processor *workflow.DatasetProcessor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var msg PubSubMessage
		logger := processor.Logger

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "server.go", "ingestionPubSubHandler", "io.ReadAll", nil, err)
			// Malformed request body: ack/drop to avoid infinite retries.
			c.Status(http.StatusNoContent)
			return
		}

		// byte slice unmarshalling handles base64 decoding.
		if err := json.Unmarshal(body, &msg); err != nil {
			config.LogError(logger, "server.go", "ingestionPubSubHandler", "Unmarshal body", string(body), err)
			c.Status(http.StatusNoContent)
			return
		}

		if !handleIngestionMessage(c.Request.Context(), processor, msg.Message.Data, msg.Message.Attributes, msg.Message.ID) {
			// Non-2xx tells Pub/Sub to retry (and potentially route to DLQ).
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// respondError maps domain errors onto status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrUnauthorizedDataset):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case utils.IsValidationError(err), errors.Is(err, utils.ErrUnsupportedFileType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func correlationIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Writer.Header().Set("x-correlation-id", cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}

func readinessMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Redis is optional; the database is not.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if config.IsProduction() {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "x-correlation-id")
	// AllowAllOrigins cannot be combined with credentials.
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	return cors.New(corsConfig)
}

// setupRouter builds the HTTP surface. Files backs uploads and deletes; processor
// serves push deliveries.
func setupRouter(logger *logrus.Logger, files utils.FileStore, processor *workflow.DatasetProcessor) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(correlationIdMiddleware())
	r.Use(otelgin.Middleware("financial-rating-platform", otelgin.WithFilter(func(req *http.Request) bool {
		return req.URL.Path != "/healthz"
	})))
	r.Use(readinessMiddleware())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Use(corsMiddleware())

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		if client := config.GetRedisDB(); client != nil {
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
			r.Use(NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second).RateLimitMiddleware)
		} else {
			logger.WithFields(logrus.Fields{"field": "rateLimiter"}).Warn("RATE_LIMIT_ENABLED without redis; rate limiting disabled")
		}
	}

	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	// Push deliveries are authenticated by the subscription endpoint itself.
	r.POST("/pubsub", ingestionPubSubHandler(processor))

	api := r.Group("/api", middlewares.AuthMiddleware())
	{
		api.POST("/datasets/upload", uploadDatasetHandler(files))
		api.GET("/datasets", listDatasetsHandler())
		api.GET("/datasets/:id", getDatasetHandler())
		api.DELETE("/datasets/:id", deleteDatasetHandler(files))

		api.GET("/dashboard/summary", dashboardSummaryHandler())
		api.GET("/dashboard/records", listRecordsHandler())
		api.POST("/dashboard/filter", filterRecordsHandler())
	}
	r.NoRoute(customNotFoundHandler)
	return r
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
	decimal.MarshalJSONWithoutQuotes = true
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	shutdownTracing := config.InitTracing(sigCtx, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.WithFields(logrus.Fields{"field": "otel"}).Warn("tracer shutdown: " + err.Error())
		}
	}()

	files, err := utils.NewFileStore(sigCtx, config.UploadDir())
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "storage"}).Fatal("file store: " + err.Error())
	}
	processor := workflow.NewDatasetProcessor(nil, logger, files)

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until the DB is ready, app endpoints return 503.
	r := setupRouter(logger, files, processor)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry(sigCtx)

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running it as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Background workers: outbox dispatcher (publishes AFTER commit) and the pull consumer.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	workers, workerCtx := errgroup.WithContext(workerCtx)
	workers.Go(func() error {
		workflow.NewOutboxDispatcher(db, logger).Run(workerCtx)
		return nil
	})
	workers.Go(func() error {
		if err := RunIngestionWorkflow(workerCtx, processor); err != nil {
			config.LogError(logger, "server.go", "main", "ingestion workflow stopped", nil, err)
		}
		return nil
	})
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = workers.Wait()
	}()

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on port ", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.WithFields(logrus.Fields{"field": "ingestion"}).Warn("ingestion workers did not stop before shutdown timeout")
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{
				"path":           c.FullPath(),
				"correlation_id": cid,
			}).Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := "ratelimit:" + c.ClientIP()

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if count == 1 {
		if err := rl.client.Expire(c.Request.Context(), key, rl.window).Err(); err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}
