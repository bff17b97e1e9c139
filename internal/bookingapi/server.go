// Package bookingapi exposes registration, train administration and seat
// booking over HTTP.
package bookingapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/seatledger/internal/auth"
	"github.com/MarkoPoloResearchLab/seatledger/internal/oplog"
	"github.com/MarkoPoloResearchLab/seatledger/pkg/seats"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	headerAPIKey        = "X-API-KEY"
	headerAuthorization = "Authorization"
	headerRequestID     = "X-Request-ID"
	bearerPrefix        = "Bearer "
	contextKeyUserID    = "user_id"
)

// SeatService is the booking core used by the handlers. *seats.Service satisfies it.
type SeatService interface {
	Reserve(ctx context.Context, trainID seats.TrainID, userID seats.UserID, metadata seats.MetadataJSON) (seats.BookingID, error)
	FindAvailableTrains(ctx context.Context, route seats.Route) ([]seats.TrainSummary, error)
	GetBooking(ctx context.Context, bookingID seats.BookingID) (seats.BookingDetail, error)
	AddTrain(ctx context.Context, input seats.TrainInput) (seats.Train, error)
}

// Authenticator registers users and verifies tokens. *auth.Service satisfies it.
type Authenticator interface {
	Register(ctx context.Context, name string, email string, password string) (auth.User, error)
	Login(ctx context.Context, email string, password string) (string, auth.User, error)
	ParseToken(raw string) (int64, error)
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg Config, seatService SeatService, authenticator Authenticator, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	router, err := NewRouter(cfg, seatService, authenticator, logger)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("booking api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter builds the gin engine with every route mounted under /api/v1.
func NewRouter(cfg Config, seatService SeatService, authenticator Authenticator, logger *zap.Logger) (*gin.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if seatService == nil || authenticator == nil {
		return nil, fmt.Errorf("booking api: seat service and authenticator are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	configureGin()

	handler := &httpHandler{
		logger: logger,
		seats:  seatService,
		auth:   authenticator,
		cfg:    cfg,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(requestLogMiddleware(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", headerAuthorization, headerAPIKey},
		ExposeHeaders:    []string{headerRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")

	authRoutes := api.Group("/auth")
	authRoutes.POST("/register", handler.handleRegister)
	authRoutes.POST("/login", handler.handleLogin)

	adminRoutes := api.Group("/admin")
	adminRoutes.Use(adminKeyMiddleware(cfg.AdminAPIKey))
	adminRoutes.POST("/addTrain", handler.handleAddTrain)

	bookingRoutes := api.Group("/booking")
	bookingRoutes.Use(bearerMiddleware(authenticator))
	bookingRoutes.GET("/getSeatAvailability", handler.handleSeatAvailability)
	bookingRoutes.POST("/bookSeat", handler.handleBookSeat)
	bookingRoutes.GET("/getBooking/:id", handler.handleGetBooking)
	bookingRoutes.GET("/:id", handler.handleGetBooking)

	return router, nil
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestID := strings.TrimSpace(ctx.GetHeader(headerRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx.Header(headerRequestID, requestID)
		ctx.Request = ctx.Request.WithContext(oplog.WithRequestID(ctx.Request.Context(), requestID))
		ctx.Next()
	}
}

func requestLogMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		started := time.Now()
		ctx.Next()
		logger.Info("http request",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.Int("status", ctx.Writer.Status()),
			zap.Duration("latency", time.Since(started)),
			zap.String("request_id", oplog.RequestID(ctx.Request.Context())),
		)
	}
}

func adminKeyMiddleware(apiKey string) gin.HandlerFunc {
	expected := []byte(apiKey)
	return func(ctx *gin.Context) {
		provided := []byte(ctx.GetHeader(headerAPIKey))
		if len(provided) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "Unauthorized"))
			return
		}
		ctx.Next()
	}
}

func bearerMiddleware(authenticator Authenticator) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader(headerAuthorization)
		if !strings.HasPrefix(header, bearerPrefix) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "Unauthorized"))
			return
		}
		userID, err := authenticator.ParseToken(strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)))
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("invalid_token", "Invalid token"))
			return
		}
		ctx.Set(contextKeyUserID, userID)
		ctx.Next()
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": message,
		"code":  code,
	}
}
