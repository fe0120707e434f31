package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/ds124wfegd/ems-booking/internal/transport/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Event    *EventHandler
	Booking  *BookingHandler
	Payment  *PaymentHandler
	Waitlist *WaitlistHandler
}

// HealthCheck reports on one backing dependency for /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type RouterConfig struct {
	JWTSecret      string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	HealthChecks   []HealthCheck
}

func healthHandler(checks []HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		components := gin.H{}
		for _, hc := range checks {
			if err := hc.Check(c.Request.Context()); err != nil {
				status = http.StatusServiceUnavailable
				components[hc.Name] = err.Error()
				continue
			}
			components[hc.Name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(status, gin.H{
			"status":     overall,
			"components": components,
			"timestamp":  time.Now().UTC(),
		})
	}
}

func InitRoutes(h Handlers, cfg RouterConfig) *gin.Engine {
	router := gin.New()

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.Timeout(cfg.RequestTimeout))

	router.GET("/health", healthHandler(cfg.HealthChecks))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	auth := middleware.Auth(cfg.JWTSecret)

	// Provider callbacks are not rate limited.
	router.POST("/api/v1/payments/webhook", h.Payment.Webhook)

	// API routes
	api := router.Group("/api/v1", limiter.Middleware())
	{
		// Public catalogue reads
		api.GET("/events/:id/availability", h.Event.ListAvailability)
		api.GET("/events/:id/categories/:categoryId/availability", h.Event.GetAvailability)
		api.POST("/events/:id/promo/validate", h.Event.ValidatePromo)

		secured := api.Group("", auth)

		bookings := secured.Group("/bookings")
		{
			bookings.POST("", h.Booking.CreateBooking)
			bookings.GET("", h.Booking.ListBookings)
			bookings.GET("/:id", h.Booking.GetBooking)
			bookings.POST("/:id/cancel", h.Booking.CancelBooking)
			bookings.POST("/:id/check-in", h.Booking.CheckIn)
			bookings.POST("/:id/payment", h.Booking.InitiatePayment)
		}

		payments := secured.Group("/payments")
		{
			payments.GET("/:orderId/status", h.Payment.PollStatus)
			payments.POST("/:orderId/mock-complete", h.Payment.MockComplete)
		}

		waitlist := secured.Group("/waitlist")
		{
			waitlist.POST("", h.Waitlist.Join)
			waitlist.DELETE("/:id", h.Waitlist.Leave)
			waitlist.GET("/:id/position", h.Waitlist.Position)
		}
	}

	return router
}
