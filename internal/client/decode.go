package client

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/golang/gddo/httputil/header"
)

// acceptEncoding lists the content codings decodeBody understands.
const acceptEncoding = "gzip, deflate, br"

var decoders = map[string]func([]byte) (io.Reader, error){
	"gzip":    newGzipReader,
	"x-gzip":  newGzipReader,
	"deflate": newDeflateReader,
	"br":      newBrotliReader,
}

// decodeBody undoes the content codings listed in h, last applied first, and
// removes Content-Encoding once the body is identity encoded. A body using a
// coding without a decoder is returned untouched with its header kept.
func decodeBody(h http.Header, body []byte) ([]byte, error) {
	codings := header.ParseList(h, "Content-Encoding")
	if len(codings) == 0 {
		return body, nil
	}
	if len(body) == 0 {
		h.Del("Content-Encoding")
		return body, nil
	}
	for _, c := range codings {
		c = strings.ToLower(c)
		if _, ok := decoders[c]; !ok && c != "identity" {
			return body, nil
		}
	}

	for i := len(codings) - 1; i >= 0; i-- {
		c := strings.ToLower(codings[i])
		if c == "identity" {
			continue
		}
		r, err := decoders[c](body)
		if err != nil {
			return nil, fmt.Errorf("decode %s body: %w", c, err)
		}
		if body, err = io.ReadAll(r); err != nil {
			return nil, fmt.Errorf("decode %s body: %w", c, err)
		}
	}
	h.Del("Content-Encoding")
	h.Del("Content-Length")
	return body, nil
}

// newDeflateReader accepts both zlib-wrapped and raw deflate streams, since
// servers send either under the "deflate" coding.
func newDeflateReader(b []byte) (io.Reader, error) {
	if len(b) >= 2 && b[0]&0x0f == 8 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0 {
		return zlib.NewReader(bytes.NewReader(b))
	}
	return flate.NewReader(bytes.NewReader(b)), nil
}

func newGzipReader(b []byte) (io.Reader, error) {
	return gzip.NewReader(bytes.NewReader(b))
}

func newBrotliReader(b []byte) (io.Reader, error) {
	return brotli.NewReader(bytes.NewReader(b)), nil
}
