package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"go.uber.org/multierr"
)

func (c *Config) validate() error {
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
	c.Log.Output = strings.ToLower(c.Log.Output)

	return multierr.Combine(
		section("server", validation.ValidateStruct(&c.Server,
			validation.Field(&c.Server.Port, validation.Min(0), validation.Max(65535)),
			validation.Field(&c.Server.BodyMaxBytes, validation.Min(0)),
		)),
		section("server.rate_limit", validation.ValidateStruct(&c.Server.RateLimit,
			validation.Field(&c.Server.RateLimit.RequestsPerSecond,
				validation.When(c.Server.RateLimit.Enabled,
					validation.Required.Error("must be > 0 when rate limiting is enabled"),
					validation.Min(0.0).Exclusive(),
				),
			),
		)),
		section("api", c.API.validate()),
		section("fallback", c.Fallback.validate()),
		section("routes", validation.Validate(c.activeRoutes())),
		section("upstream", validation.ValidateStruct(&c.Upstream,
			validation.Field(&c.Upstream.TimeoutSeconds, validation.Min(0)),
			validation.Field(&c.Upstream.IdleConnections, validation.Min(0)),
		)),
		section("log", validation.ValidateStruct(&c.Log,
			validation.Field(&c.Log.Level, validation.In("debug", "info", "warn", "error").
				Error("must be one of: debug, info, warn, error")),
			validation.Field(&c.Log.Format, validation.In("json", "text").
				Error("must be one of: json, text")),
			validation.Field(&c.Log.Output, validation.In("stdout", "stderr").
				Error("must be one of: stdout, stderr")),
		)),
		section("metrics", validation.ValidateStruct(&c.Metrics,
			validation.Field(&c.Metrics.Path, validation.When(c.Metrics.Enabled, validation.By(metricsPath))),
		)),
		section("event", validation.ValidateStruct(&c.Event,
			validation.Field(&c.Event.FunctionPrefix, validation.By(leadingSlash)),
		)),
	)
}

// An empty target URL is allowed; requests reaching it get a configuration error.
func (t TargetConfig) validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.TargetURL, is.RequestURL, validation.By(httpURL)),
	)
}

// Validate implements validation.Validatable. Only entries before the first
// gap are validated.
func (r RouteConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TargetURL, is.RequestURL, validation.By(httpURL)),
	)
}

func section(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func httpURL(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https; got %q", s)
	}
	if u.Host == "" {
		return errors.New("must include a host")
	}
	return nil
}

func leadingSlash(value interface{}) error {
	s, _ := value.(string)
	if s != "" && s[0] != '/' {
		return fmt.Errorf("must start with '/'; got %q", s)
	}
	return nil
}

func metricsPath(value interface{}) error {
	p, _ := value.(string)
	if p == "" {
		return nil
	}
	if err := leadingSlash(p); err != nil {
		return err
	}
	if isReserved(p) {
		return fmt.Errorf("%q %w", p, errMetricsPathReserved)
	}
	return nil
}
