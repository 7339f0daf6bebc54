// Package event adapts serverless function events to dispatcher requests and
// dispatcher responses back to function replies.
package event

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"dispatch-proxy-go/internal/model"
	"dispatch-proxy-go/internal/route"
)

// Request is an inbound function event.
type Request struct {
	Path                  string              `json:"path"`
	HTTPMethod            string              `json:"httpMethod"`
	Headers               map[string]string   `json:"headers,omitempty"`
	MultiValueHeaders     map[string][]string `json:"multiValueHeaders,omitempty"`
	QueryStringParameters map[string]string   `json:"queryStringParameters,omitempty"`
	Body                  string              `json:"body,omitempty"`
	IsBase64Encoded       bool                `json:"isBase64Encoded"`
}

// Response is the reply returned to the function runtime.
type Response struct {
	StatusCode        int                 `json:"statusCode"`
	Headers           map[string]string   `json:"headers"`
	MultiValueHeaders map[string][]string `json:"multiValueHeaders,omitempty"`
	Body              string              `json:"body"`
	IsBase64Encoded   bool                `json:"isBase64Encoded"`
}

// Adapter converts between function events and dispatcher types.
type Adapter struct {
	// FunctionPrefix is the mount path of the function, removed from event
	// paths before resolution.
	FunctionPrefix string
}

// Normalize converts ev into a dispatcher request.
func (a Adapter) Normalize(ev Request) (*model.Request, error) {
	path := ev.Path
	if a.FunctionPrefix != "" {
		path = strings.TrimPrefix(path, a.FunctionPrefix)
	}
	if path == "" {
		path = "/"
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	method := strings.ToUpper(ev.HTTPMethod)
	if method == "" {
		method = http.MethodGet
	}

	var body []byte
	if ev.Body != "" {
		if ev.IsBase64Encoded {
			b, err := base64.StdEncoding.DecodeString(ev.Body)
			if err != nil {
				return nil, fmt.Errorf("decode event body: %w", err)
			}
			body = b
		} else {
			body = []byte(ev.Body)
		}
	}
	if len(body) == 0 {
		body = nil
	}

	return &model.Request{
		Method: method,
		Path:   route.NormalizePath(path),
		Query:  queryFromMap(ev.QueryStringParameters),
		Header: headerFromEvent(ev.Headers, ev.MultiValueHeaders),
		Body:   body,
	}, nil
}

// Reply converts a dispatcher response into a function reply. The body is
// always base64 encoded so binary payloads survive the JSON envelope.
func (a Adapter) Reply(resp *model.Response) Response {
	out := Response{
		StatusCode:      resp.StatusCode,
		Headers:         make(map[string]string, len(resp.Header)),
		Body:            base64.StdEncoding.EncodeToString(resp.Body),
		IsBase64Encoded: true,
	}
	for name, vals := range resp.Header {
		switch len(vals) {
		case 0:
		case 1:
			out.Headers[name] = vals[0]
		default:
			if out.MultiValueHeaders == nil {
				out.MultiValueHeaders = make(map[string][]string)
			}
			out.MultiValueHeaders[name] = slices.Clone(vals)
		}
	}
	return out
}

// headerFromEvent merges single and multi-value headers. Multi-value entries
// win for names that appear in both.
func headerFromEvent(single map[string]string, multi map[string][]string) http.Header {
	h := make(http.Header, len(single)+len(multi))
	for name, v := range single {
		if _, ok := multi[name]; ok {
			continue
		}
		h.Set(name, v)
	}
	for name, vals := range multi {
		for _, v := range vals {
			h.Add(name, v)
		}
	}
	return h
}

// queryFromMap builds a Query in sorted key order.
func queryFromMap(params map[string]string) model.Query {
	if len(params) == 0 {
		return nil
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var q model.Query
	for _, k := range keys {
		q = q.Set(k, params[k])
	}
	return q
}
