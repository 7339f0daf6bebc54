// Package model defines the normalized request and response shapes the
// dispatcher core works on, independent of the hosting platform.
package model

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Mode selects how a resolved request is dispatched.
type Mode string

const (
	// ModeProxy forwards the request upstream and relays the response.
	ModeProxy Mode = "PROXY"
	// ModeRedirect answers with a 302 pointing at the target.
	ModeRedirect Mode = "REDIRECT"
)

// ParseMode case-folds s and returns ModeRedirect for "REDIRECT".
// Every other value, including the empty string, yields ModeProxy.
func ParseMode(s string) Mode {
	if Mode(strings.ToUpper(strings.TrimSpace(s))) == ModeRedirect {
		return ModeRedirect
	}
	return ModeProxy
}

// QueryParam is a single query string pair.
type QueryParam struct {
	Key   string
	Value string
}

// Query is an ordered set of query parameters with unique keys.
type Query []QueryParam

// ParseQuery parses a raw query string. A repeated key keeps the position of
// its first occurrence and the value of its last one. Malformed escapes are
// kept as literal text.
func ParseQuery(raw string) Query {
	var q Query
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		q = q.Set(formUnescape(k), formUnescape(v))
	}
	return q
}

// Set returns q with key bound to value, replacing an existing binding in place.
func (q Query) Set(key, value string) Query {
	for i := range q {
		if q[i].Key == key {
			q[i].Value = value
			return q
		}
	}
	return append(q, QueryParam{Key: key, Value: value})
}

// Get returns the value bound to key and whether it was present.
func (q Query) Get(key string) (string, bool) {
	for _, p := range q {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Encode serializes q in form-urlencoded order-preserving form.
func (q Query) Encode() string {
	if len(q) == 0 {
		return ""
	}
	var b strings.Builder
	for i, p := range q {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(formEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(formEscape(p.Value))
	}
	return b.String()
}

// Request is a platform-agnostic inbound request.
type Request struct {
	Method string
	Path   string
	Query  Query
	Header http.Header
	Body   []byte // nil means no body
}

// Response is a platform-agnostic outbound response. Body always holds the
// exact identity-encoded bytes.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ErrorResponse builds a JSON error response. Details is omitted when empty.
func ErrorResponse(status int, message, details string) *Response {
	body, err := json.Marshal(errorBody{Error: message, Details: details})
	if err != nil {
		body = []byte(`{"error":"internal error"}`)
	}
	h := make(http.Header)
	h.Set("Content-Type", "application/json; charset=utf-8")
	return &Response{StatusCode: status, Header: h, Body: body}
}
