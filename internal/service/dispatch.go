// Package service implements route dispatch: redirecting or forwarding a
// normalized request to its resolved upstream.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"dispatch-proxy-go/internal/client"
	"dispatch-proxy-go/internal/config"
	"dispatch-proxy-go/internal/metrics"
	"dispatch-proxy-go/internal/model"
	"dispatch-proxy-go/internal/route"
)

// Error messages returned to clients.
const (
	MsgMissingTarget = "Configuration Error: Missing target server URL."
	MsgUpstreamError = "Proxy failed to connect."
)

const redirectCacheControl = "no-cache, no-store, must-revalidate"

// ErrMissingTarget is reported when the resolved route has no upstream URL.
var ErrMissingTarget = errors.New("resolved route has no target URL")

// Upstream performs a single buffered upstream call.
type Upstream interface {
	Do(ctx context.Context, method, url string, header http.Header, body []byte) (*model.Response, error)
}

// Dispatcher resolves requests against the route table and dispatches them.
// It holds no per-request state and is safe for concurrent use.
type Dispatcher struct {
	table    *route.Table
	upstream Upstream
	strip    []string
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher.
// The metrics parameter is optional; pass nil to disable resolution metrics.
func NewDispatcher(table *route.Table, up *client.UpstreamClient, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return newDispatcher(table, up, cfg.Upstream.StripHeaders, m, logger)
}

func newDispatcher(table *route.Table, up Upstream, extraStrip []string, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		table:    table,
		upstream: up,
		strip:    stripSet(extraStrip),
		metrics:  m,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Dispatch resolves req and forwards it. It always returns a complete
// response; panics below this point are turned into a 502.
func (d *Dispatcher) Dispatch(ctx context.Context, req *model.Request) (resp *model.Response) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch panic", "panic", r, "path", req.Path)
			resp = model.ErrorResponse(http.StatusBadGateway, MsgUpstreamError, fmt.Sprint(r))
		}
	}()

	res := d.table.Resolve(req.Path)
	d.logger.Debug("resolved",
		"path", req.Path,
		"route", res.Name,
		"mode", res.Mode,
		"strip", res.StripPrefix,
	)
	if d.metrics != nil {
		d.metrics.Resolutions.WithLabelValues(res.Name, string(res.Mode)).Inc()
	}

	return d.Forward(ctx, req, res)
}

// Forward carries out a resolution: a configuration error when the target is
// missing, a 302 in redirect mode, or a single upstream call in proxy mode.
func (d *Dispatcher) Forward(ctx context.Context, req *model.Request, res route.Resolution) *model.Response {
	if res.Target == "" {
		d.logger.Error("missing target configuration",
			"err", ErrMissingTarget,
			"route", res.Name,
			"path", req.Path,
		)
		return model.ErrorResponse(http.StatusInternalServerError, MsgMissingTarget, "")
	}

	targetURL := res.TargetURL(req.Path, req.Query)

	if res.Mode == model.ModeRedirect {
		d.logger.Info("redirecting", "route", res.Name, "location", targetURL)
		return redirect(targetURL)
	}

	d.logger.Info("proxying", "method", req.Method, "route", res.Name, "target", targetURL)

	body := req.Body
	if !allowsBody(req.Method) {
		body = nil
	}

	resp, err := d.upstream.Do(ctx, req.Method, targetURL, d.outboundHeader(req.Header), body)
	if err != nil {
		d.logger.Error("proxy error",
			"err", err,
			"route", res.Name,
			"path", req.Path,
		)
		return model.ErrorResponse(http.StatusBadGateway, MsgUpstreamError, err.Error())
	}

	return &model.Response{
		StatusCode: resp.StatusCode,
		Header:     inboundHeader(resp.Header),
		Body:       resp.Body,
	}
}

func redirect(location string) *model.Response {
	h := make(http.Header)
	h.Set("Location", location)
	h.Set("Cache-Control", redirectCacheControl)
	return &model.Response{StatusCode: http.StatusFound, Header: h, Body: []byte{}}
}

// allowsBody reports whether a request body may be sent with method.
func allowsBody(method string) bool {
	return method != http.MethodGet && method != http.MethodHead
}
