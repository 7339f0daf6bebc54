package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const originalMethodKey = "dispatch.original_method"

// routedMethod carries requests whose method the router cannot register to
// the catch-all. It must be one of the methods Any registers.
const routedMethod = http.MethodPost

// routerMethods are the methods echo's Any registers.
var routerMethods = map[string]bool{
	http.MethodConnect: true,
	http.MethodDelete:  true,
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodPatch:   true,
	http.MethodPost:    true,
	echo.PROPFIND:      true,
	http.MethodPut:     true,
	http.MethodTrace:   true,
	echo.REPORT:        true,
}

// passthroughMethods is a pre-routing middleware that lets extension methods
// such as MKCOL or LOCK reach the dispatcher. The method is swapped for one
// the router knows and restored by restoreMethod before dispatch.
func passthroughMethods() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !routerMethods[req.Method] {
				c.Set(originalMethodKey, req.Method)
				req.Method = routedMethod
			}
			return next(c)
		}
	}
}

func restoreMethod(c echo.Context) {
	if m, ok := c.Get(originalMethodKey).(string); ok {
		c.Request().Method = m
	}
}
