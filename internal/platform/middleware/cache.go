package middleware

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CacheConfig controls CacheControl.
type CacheConfig struct {
	// MaxAge in seconds for catalog reads.
	MaxAge int
	// CatalogPrefixes are path prefixes whose GET responses may be cached by
	// the client: care plans, rooms, registration packages.
	CatalogPrefixes []string
	VaryHeaders     []string
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxAge: 300,
		CatalogPrefixes: []string{
			"/api/v1/care-plans",
			"/api/v1/rooms",
			"/api/v1/registration-packages",
		},
		VaryHeaders: []string{"Accept", "Authorization"},
	}
}

// bufferedResponseWriter holds the body back so the ETag can be computed
// before anything is sent.
type bufferedResponseWriter struct {
	writer     http.ResponseWriter
	buf        *bytes.Buffer
	statusCode int
}

func newBufferedResponseWriter(w http.ResponseWriter) *bufferedResponseWriter {
	return &bufferedResponseWriter{writer: w, buf: &bytes.Buffer{}, statusCode: http.StatusOK}
}

func (w *bufferedResponseWriter) Header() http.Header         { return w.writer.Header() }
func (w *bufferedResponseWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }
func (w *bufferedResponseWriter) WriteHeader(code int)        { w.statusCode = code }
func (w *bufferedResponseWriter) Flush()                      {}

func (w *bufferedResponseWriter) flushTo() error {
	w.writer.WriteHeader(w.statusCode)
	if w.buf.Len() > 0 {
		_, err := w.writer.Write(w.buf.Bytes())
		return err
	}
	return nil
}

// CacheControl marks everything no-store except successful GETs under a
// catalog prefix, which get "private, max-age=N", a weak ETag and 304
// handling for If-None-Match.
func CacheControl(cfg CacheConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()

			if req.Method != http.MethodGet || !isCatalogPath(req.URL.Path, cfg.CatalogPrefixes) {
				res.Header().Set("Cache-Control", "no-store")
				return next(c)
			}

			origWriter := res.Writer
			buf := newBufferedResponseWriter(origWriter)
			res.Writer = buf

			err := next(c)
			res.Writer = origWriter
			if err != nil {
				res.Header().Set("Cache-Control", "no-store")
				return err
			}

			if buf.statusCode >= 400 {
				res.Header().Set("Cache-Control", "no-store")
				return buf.flushTo()
			}

			res.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", cfg.MaxAge))
			if len(cfg.VaryHeaders) > 0 {
				res.Header().Set("Vary", strings.Join(cfg.VaryHeaders, ", "))
			}

			etag := computeETag(buf.buf.Bytes())
			res.Header().Set("ETag", etag)
			if inm := req.Header.Get("If-None-Match"); inm != "" && etagMatch(inm, etag) {
				origWriter.WriteHeader(http.StatusNotModified)
				return nil
			}

			return buf.flushTo()
		}
	}
}

func isCatalogPath(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func computeETag(body []byte) string {
	return fmt.Sprintf(`W/"%x"`, sha1.Sum(body))
}

// etagMatch compares an If-None-Match value against etag using weak
// comparison. Supports lists and "*".
func etagMatch(headerVal, etag string) bool {
	headerVal = strings.TrimSpace(headerVal)
	if headerVal == "*" {
		return true
	}
	for _, candidate := range strings.Split(headerVal, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == strings.TrimPrefix(etag, "W/") {
			return true
		}
	}
	return false
}
