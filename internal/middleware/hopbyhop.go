package middleware

import (
	"net/http"

	"github.com/golang/gddo/httputil/header"
	"github.com/labstack/echo/v4"
)

// hopByHopHeaders apply to a single transport-level connection and are never
// forwarded in either direction.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// StripHopByHop returns an Echo middleware that removes hop-by-hop headers
// from the inbound request, including any named in its Connection header,
// and from the response before it is written.
func StripHopByHop() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			removeHopByHop(c.Request().Header)

			res := c.Response()
			res.Before(func() {
				removeHopByHop(res.Header())
			})

			return next(c)
		}
	}
}

func removeHopByHop(h http.Header) {
	for _, name := range header.ParseList(h, "Connection") {
		h.Del(name)
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}
