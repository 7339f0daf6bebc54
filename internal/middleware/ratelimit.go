package middleware

import (
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"dispatch-proxy-go/internal/config"
	"dispatch-proxy-go/internal/model"
)

const rateLimitExpiry = 3 * time.Minute

// RateLimiter returns a per-client-IP rate limiting middleware. Liveness
// checks are never limited. Rejections use the dispatcher's JSON error shape.
func RateLimiter(cfg config.RateLimitConfig) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RequestsPerSecond),
		Burst:     int(math.Ceil(cfg.RequestsPerSecond)),
		ExpiresIn: rateLimitExpiry,
	})

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/healthz"
		},
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, _ error) error {
			return writeError(c, http.StatusForbidden, "Unable to identify client.")
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return writeError(c, http.StatusTooManyRequests, "Too many requests.")
		},
	})
}

func writeError(c echo.Context, status int, msg string) error {
	resp := model.ErrorResponse(status, msg, "")
	return c.Blob(resp.StatusCode, resp.Header.Get(echo.HeaderContentType), resp.Body)
}
