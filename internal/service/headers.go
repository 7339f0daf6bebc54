package service

import "net/http"

// platformHeaders identify the proxy or its hosting platform and are never
// forwarded upstream. Accept-Encoding is dropped so the client only
// advertises codings it can decode.
var platformHeaders = []string{
	"Host",
	"X-Forwarded-For",
	"X-Forwarded-Host",
	"X-Forwarded-Proto",
	"X-Vercel-Forwarded-For",
	"X-Netlify-Original-Pathname",
	"Accept-Encoding",
}

// droppedResponseHeaders no longer describe the buffered body. The client
// already removed Content-Encoding for every coding it decoded.
var droppedResponseHeaders = []string{
	"Content-Length",
}

func stripSet(extra []string) []string {
	out := make([]string, 0, len(platformHeaders)+len(extra))
	out = append(out, platformHeaders...)
	for _, h := range extra {
		out = append(out, http.CanonicalHeaderKey(h))
	}
	return out
}

// outboundHeader clones src without the strip set.
func (d *Dispatcher) outboundHeader(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	for _, key := range d.strip {
		dst.Del(key)
	}
	return dst
}

// inboundHeader clones the upstream response headers without the stale
// Content-Length.
func inboundHeader(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	for _, key := range droppedResponseHeaders {
		dst.Del(key)
	}
	return dst
}
