package bookingapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/seatledger/internal/auth"
	"github.com/MarkoPoloResearchLab/seatledger/pkg/seats"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	messageUserCreated   = "User created successfully"
	messageLoginOK       = "Login successful"
	messageTrainAdded    = "Train added successfully"
	messageSeatBooked    = "Seat booked successfully"
	messageUserExists    = "User already exists"
	messageUserNotFound  = "User not found"
	messageInvalidLogin  = "Invalid credentials"
	messageNoSeats       = "No seats available"
	messageTrainMissing  = "Train not found"
	messageBookingAbsent = "Booking not found"
	messageUnavailable   = "Service temporarily unavailable, please retry"
	messageInternal      = "Internal server error"
)

type httpHandler struct {
	logger *zap.Logger
	seats  SeatService
	auth   Authenticator
	cfg    Config
}

func (handler *httpHandler) handleRegister(ctx *gin.Context) {
	var request registerRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", bindingErrorMessage(err)))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	user, err := handler.auth.Register(requestCtx, request.Name, request.Email, request.Password)
	switch {
	case err == nil:
		ctx.JSON(http.StatusCreated, gin.H{
			"message": messageUserCreated,
			"data":    userPayload{ID: user.ID, Name: user.Name, Email: user.Email},
		})
	case errors.Is(err, auth.ErrUserExists):
		ctx.JSON(http.StatusConflict, errorResponse("user_exists", messageUserExists))
	case errors.Is(err, auth.ErrInvalidUserInput):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", err.Error()))
	default:
		handler.respondServerError(ctx, "register failed", err)
	}
}

func (handler *httpHandler) handleLogin(ctx *gin.Context) {
	var request loginRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", bindingErrorMessage(err)))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	token, _, err := handler.auth.Login(requestCtx, request.Email, request.Password)
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, gin.H{"message": messageLoginOK, "token": token})
	case errors.Is(err, auth.ErrUserNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse("user_not_found", messageUserNotFound))
	case errors.Is(err, auth.ErrInvalidCredentials):
		ctx.JSON(http.StatusUnauthorized, errorResponse("invalid_credentials", messageInvalidLogin))
	case errors.Is(err, auth.ErrInvalidUserInput):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", err.Error()))
	default:
		handler.respondServerError(ctx, "login failed", err)
	}
}

func (handler *httpHandler) handleAddTrain(ctx *gin.Context) {
	var request addTrainRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", bindingErrorMessage(err)))
		return
	}
	input, err := seats.NewTrainInput(request.Name, request.Source, request.Destination, request.TotalSeats)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", err.Error()))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	train, err := handler.seats.AddTrain(requestCtx, input)
	if err != nil {
		handler.respondSeatError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"message": messageTrainAdded, "train": newTrainPayload(train)})
}

func (handler *httpHandler) handleSeatAvailability(ctx *gin.Context) {
	var request availabilityRequest
	if err := ctx.ShouldBindQuery(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_query", bindingErrorMessage(err)))
		return
	}
	route, err := seats.NewRoute(request.Source, request.Destination)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_query", err.Error()))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	trains, err := handler.seats.FindAvailableTrains(requestCtx, route)
	if err != nil {
		handler.respondSeatError(ctx, err)
		return
	}
	payload := make([]trainSummaryPayload, 0, len(trains))
	for _, train := range trains {
		payload = append(payload, trainSummaryPayload{
			ID:             train.ID.Int64(),
			Name:           train.Name,
			AvailableSeats: train.AvailableSeats.Int64(),
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"trains": payload})
}

// handleBookSeat always books for the token's user; a userId in the body is ignored.
func (handler *httpHandler) handleBookSeat(ctx *gin.Context) {
	var request bookSeatRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", bindingErrorMessage(err)))
		return
	}
	trainID, err := seats.NewTrainID(request.TrainID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", err.Error()))
		return
	}
	userID, err := seats.NewUserID(ctx.GetInt64(contextKeyUserID))
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "Unauthorized"))
		return
	}
	metadata, err := seats.NewMetadataJSON(string(request.Metadata))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", err.Error()))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	bookingID, err := handler.seats.Reserve(requestCtx, trainID, userID, metadata)
	if err != nil {
		handler.respondSeatError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": messageSeatBooked, "bookingId": bookingID.Int64()})
}

func (handler *httpHandler) handleGetBooking(ctx *gin.Context) {
	rawID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_booking_id", "Expected number: id"))
		return
	}
	bookingID, err := seats.NewBookingID(rawID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_booking_id", err.Error()))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	detail, err := handler.seats.GetBooking(requestCtx, bookingID)
	if err != nil {
		handler.respondSeatError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"bookings": newBookingPayload(detail)})
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

// respondSeatError maps the seat error taxonomy onto HTTP statuses. Unknown
// failures are logged and answered without internal detail.
func (handler *httpHandler) respondSeatError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, seats.ErrNoSeatsAvailable):
		ctx.JSON(http.StatusConflict, errorResponse("no_seats_available", messageNoSeats))
	case errors.Is(err, seats.ErrTrainNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse("train_not_found", messageTrainMissing))
	case errors.Is(err, seats.ErrBookingNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse("booking_not_found", messageBookingAbsent))
	case errors.Is(err, seats.ErrNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", "Not found"))
	case errors.Is(err, seats.ErrStorageUnavailable), errors.Is(err, context.DeadlineExceeded):
		handler.logger.Warn("storage unavailable", zap.Error(err))
		ctx.JSON(http.StatusServiceUnavailable, errorResponse("storage_unavailable", messageUnavailable))
	case isValidationError(err):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", err.Error()))
	default:
		handler.respondServerError(ctx, "seat operation failed", err)
	}
}

func (handler *httpHandler) respondServerError(ctx *gin.Context, message string, err error) {
	handler.logger.Error(message, zap.Error(err), zap.String("path", ctx.FullPath()))
	ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", messageInternal))
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		seats.ErrInvalidTrainID,
		seats.ErrInvalidUserID,
		seats.ErrInvalidBookingID,
		seats.ErrInvalidSeatCount,
		seats.ErrInvalidRoute,
		seats.ErrInvalidTrainName,
		seats.ErrInvalidMetadataJSON,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,min=2"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type addTrainRequest struct {
	Name           string `json:"name" binding:"required,min=2"`
	Source         string `json:"source" binding:"required,min=2"`
	Destination    string `json:"destination" binding:"required,min=2"`
	TotalSeats     int64  `json:"totalSeats" binding:"required,gt=0"`
	AvailableSeats *int64 `json:"availableSeats" binding:"omitempty,gte=0"`
}

type availabilityRequest struct {
	Source      string `form:"source" binding:"required"`
	Destination string `form:"destination" binding:"required"`
}

type bookSeatRequest struct {
	TrainID  int64           `json:"trainId" binding:"required,gt=0"`
	UserID   *int64          `json:"userId"`
	Metadata json.RawMessage `json:"metadata"`
}

type userPayload struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type trainPayload struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Source         string `json:"source"`
	Destination    string `json:"destination"`
	TotalSeats     int64  `json:"totalSeats"`
	AvailableSeats int64  `json:"availableSeats"`
	CreatedAt      string `json:"createdAt"`
}

type trainSummaryPayload struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	AvailableSeats int64  `json:"availableSeats"`
}

type bookingPayload struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"userId"`
	TrainID   int64           `json:"trainId"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt string          `json:"createdAt"`
	Train     trainPayload    `json:"train"`
}

func newTrainPayload(train seats.Train) trainPayload {
	return trainPayload{
		ID:             train.ID.Int64(),
		Name:           train.Name,
		Source:         train.Route.Source(),
		Destination:    train.Route.Destination(),
		TotalSeats:     train.TotalSeats.Int64(),
		AvailableSeats: train.AvailableSeats.Int64(),
		CreatedAt:      formatUnix(train.CreatedUnixUTC),
	}
}

func newBookingPayload(detail seats.BookingDetail) bookingPayload {
	return bookingPayload{
		ID:        detail.Booking.ID.Int64(),
		UserID:    detail.Booking.UserID.Int64(),
		TrainID:   detail.Booking.TrainID.Int64(),
		Metadata:  json.RawMessage(detail.Booking.Metadata.String()),
		CreatedAt: formatUnix(detail.Booking.CreatedUnixUTC),
		Train:     newTrainPayload(detail.Train),
	}
}

func formatUnix(unixUTC int64) string {
	return time.Unix(unixUTC, 0).UTC().Format(time.RFC3339)
}
