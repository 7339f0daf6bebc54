package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"dispatch-proxy-go/internal/model"
	"dispatch-proxy-go/internal/route"
	"dispatch-proxy-go/internal/service"
)

// ProxyHandler adapts Echo requests to the dispatcher.
type ProxyHandler struct {
	dispatcher *service.Dispatcher
	logger     *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(d *service.Dispatcher, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		dispatcher: d,
		logger:     logger.With("component", "proxy_handler"),
	}
}

// Handle normalizes the request, dispatches it, and writes the full response.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()
	restoreMethod(c)

	body, err := io.ReadAll(req.Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he // body limit exceeded
		}
		h.logger.Error("reading request body", "err", err, "path", req.URL.Path)
		return writeResponse(c, model.ErrorResponse(http.StatusBadGateway, service.MsgUpstreamError, err.Error()))
	}
	if len(body) == 0 {
		body = nil
	}

	nr := &model.Request{
		Method: req.Method,
		Path:   route.NormalizePath(req.URL.EscapedPath()),
		Query:  model.ParseQuery(req.URL.RawQuery),
		Header: req.Header.Clone(),
		Body:   body,
	}

	return writeResponse(c, h.dispatcher.Dispatch(req.Context(), nr))
}

// writeResponse copies a normalized response to the client. Content-Length
// is recomputed from the buffered body.
func writeResponse(c echo.Context, resp *model.Response) error {
	header := c.Response().Header()
	for key, vals := range resp.Header {
		for _, v := range vals {
			header.Add(key, v)
		}
	}

	// A missing Content-Type stays missing instead of being sniffed.
	if _, ok := resp.Header[echo.HeaderContentType]; !ok {
		header[echo.HeaderContentType] = nil
	}

	head := c.Request().Method == http.MethodHead
	if !head && bodyAllowed(resp.StatusCode) {
		header.Set(echo.HeaderContentLength, strconv.Itoa(len(resp.Body)))
	}

	c.Response().WriteHeader(resp.StatusCode)
	if head || len(resp.Body) == 0 || !bodyAllowed(resp.StatusCode) {
		return nil
	}
	_, err := c.Response().Write(resp.Body)
	return err
}

func bodyAllowed(status int) bool {
	return status >= 200 && status != http.StatusNoContent && status != http.StatusNotModified
}
