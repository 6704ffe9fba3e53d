package httpgin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kirinyoku/spacebook/internal/domain"
	redisrepo "github.com/kirinyoku/spacebook/internal/repository/redis"
	"github.com/kirinyoku/spacebook/internal/service"
	"github.com/kirinyoku/spacebook/internal/service/booking"
)

// IdempotencyStore is implemented by redisrepo.IdempotencyStore.
type IdempotencyStore interface {
	AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	SaveResult(ctx context.Context, key string, status int, jsonPayload string) error
	GetResult(ctx context.Context, key string) (int, string, bool, error)
	Release(ctx context.Context, key string) error
}

type Options struct {
	// Idem is optional; without it Idempotency-Key headers are ignored.
	Idem IdempotencyStore
	// ReconcileSecret, when set, must match the X-Cron-Secret header.
	ReconcileSecret string
}

func NewRouter(
	svcs *service.Services,
	opts Options,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/areas/:id/bookings", handleCreateBooking(svcs, opts.Idem))
	r.GET("/areas/:id/occupancy", handleOccupancy(svcs))

	r.GET("/bookings/:id", handleGetBooking(svcs))
	r.POST("/bookings/reject", handleRejectMany(svcs))
	r.POST("/bookings/:id/cancel", handleTransition(svcs.Booking.Cancel))
	r.POST("/bookings/:id/payment-confirmed", handleTransition(svcs.Booking.ConfirmPayment))
	r.POST("/bookings/:id/approve", handleTransition(svcs.Booking.Approve))
	r.POST("/bookings/:id/reject", handleTransition(svcs.Booking.Reject))
	r.POST("/bookings/:id/checkin", handleTransition(svcs.Booking.CheckIn))
	r.POST("/bookings/:id/complete", handleTransition(svcs.Booking.Complete))
	r.POST("/bookings/:id/noshow", handleTransition(svcs.Booking.MarkNoShow))

	internal := r.Group("/internal")
	{
		internal.POST("/reconcile", requireCronSecret(opts.ReconcileSecret), handleReconcile(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Create booking (idempotent)
// @Param    id  path  string  true  "Area ID (uuid)"
// @Param    req body  CreateBookingRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} domain.Booking "confirmed or pending"
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse "area not found"
// @Failure  409 {object} ErrorResponse "area full / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /areas/{id}/bookings [post]
func handleCreateBooking(svcs *service.Services, idem IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		areaID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		start, err := parseRFC3339(req.StartAt)
		if err != nil {
			badRequest(c, "invalid start_at (RFC3339)")
			return
		}
		end, err := parseRFC3339(req.ExpiresAt)
		if err != nil {
			badRequest(c, "invalid expires_at (RFC3339)")
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(areaID, idemKey)

			if replayIdem(c, idem, idemStorageKey, idemKey) {
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if replayIdem(c, idem, idemStorageKey, idemKey) {
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		b, err := svcs.Booking.Create(c.Request.Context(), booking.CreateParams{
			AreaID:     areaID,
			CustomerID: uuid.MustParse(req.CustomerID),
			Window:     domain.Window{Start: start, End: end},
			GuestCount: req.GuestCount,
			RateKey:    "ip:" + c.ClientIP(),
		})
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" {
			payload, _ := json.Marshal(b)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, http.StatusCreated, string(payload))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, b)
	}
}

// @Summary  Occupancy of an area for a window
// @Param    id     path   string  true  "Area ID (uuid)"
// @Param    start  query  string  true  "window start (RFC3339)"
// @Param    end    query  string  true  "window end, exclusive (RFC3339)"
// @Success  200 {object} OccupancyResponse
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /areas/{id}/occupancy [get]
func handleOccupancy(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		areaID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		start, err := parseRFC3339(c.Query("start"))
		if err != nil {
			badRequest(c, "invalid start (RFC3339)")
			return
		}
		end, err := parseRFC3339(c.Query("end"))
		if err != nil {
			badRequest(c, "invalid end (RFC3339)")
			return
		}

		w := domain.Window{Start: start, End: end}
		n, err := svcs.Booking.Occupancy(c.Request.Context(), areaID, w)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeCachedJSON(c, http.StatusOK, OccupancyResponse{
			AreaID:    areaID,
			StartAt:   start,
			ExpiresAt: end,
			Guests:    n,
		}, shortLived)
	}
}

// @Summary  Get booking
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} domain.Booking
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/{id} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Booking.Get(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeCachedJSON(c, http.StatusOK, b, revalidate)
	}
}

// @Summary  Change booking status
// @Description  One of cancel, payment-confirmed, approve, reject, checkin, complete, noshow.
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} domain.Booking
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "current status in body"
// @Router   /bookings/{id}/cancel [post]
// @Router   /bookings/{id}/payment-confirmed [post]
// @Router   /bookings/{id}/approve [post]
// @Router   /bookings/{id}/reject [post]
// @Router   /bookings/{id}/checkin [post]
// @Router   /bookings/{id}/complete [post]
// @Router   /bookings/{id}/noshow [post]
func handleTransition(
	fn func(ctx context.Context, id uuid.UUID) (*domain.Booking, error),
) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := fn(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Reject pending bookings in bulk
// @Param    req body  RejectManyRequest true "payload"
// @Success  200 {object} RejectManyResponse
// @Failure  400 {object} ErrorResponse
// @Router   /bookings/reject [post]
func handleRejectMany(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RejectManyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		ids := make([]uuid.UUID, 0, len(req.IDs))
		for _, s := range req.IDs {
			ids = append(ids, uuid.MustParse(s))
		}
		n, err := svcs.Booking.RejectMany(c.Request.Context(), ids)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, RejectManyResponse{Rejected: n})
	}
}

// @Summary  Run one reconciliation cycle
// @Param    X-Cron-Secret  header  string  false  "shared secret"
// @Success  200 {object} reconcile.Result
// @Failure  401 {object} ErrorResponse
// @Router   /internal/reconcile [post]
func handleReconcile(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svcs.Reconcile.Reconcile(c.Request.Context(), time.Now())
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":  "reconcile incomplete",
				"result": res,
			})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// --- Helpers ---

func requireCronSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-Cron-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}
		c.Next()
	}
}

func replayIdem(c *gin.Context, idem IdempotencyStore, storageKey, idemKey string) bool {
	status, payload, ok, _ := idem.GetResult(c.Request.Context(), storageKey)
	if !ok {
		return false
	}
	c.Header("Idempotency-Key", idemKey)
	c.Data(status, "application/json; charset=utf-8", []byte(payload))
	return true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var (
		notCancellable booking.NotCancellableError
		lost           booking.PreconditionLostError
		limited        booking.RateLimitedError
	)

	switch {
	// validation
	case errors.Is(err, booking.ErrInvalidWindow),
		errors.Is(err, booking.ErrInvalidGuests),
		errors.Is(err, booking.ErrWindowStarted):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: rootMessage(err)})
		return
	// lookups
	case errors.Is(err, booking.ErrAreaNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "area not found"})
		return
	case errors.Is(err, booking.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
		return
	// admission and transitions
	case errors.Is(err, booking.ErrAreaFull):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "area is at capacity"})
		return
	case errors.As(err, &notCancellable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "booking is not cancellable", Status: string(notCancellable.Status)})
		return
	case errors.As(err, &lost):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "booking is in a different state", Status: string(lost.Status)})
		return
	case errors.Is(err, booking.ErrPaymentNotCaptured):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "payment not captured"})
		return
	case errors.As(err, &limited):
		c.Header("Retry-After", strconv.Itoa(max(1, int(limited.RetryAfter.Seconds()))))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
		return
	}

	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

// rootMessage strips the op prefixes added on the way up.
func rootMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ":"); i >= 0 && i+1 < len(msg) {
		return strings.TrimSpace(msg[i+1:])
	}
	return msg
}
