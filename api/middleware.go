package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const userContextKey = "user"

// Authenticator resolves the user behind an Authorization header value.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// RequireUser rejects requests without a valid session and stores the user
// id in the echo context.
func RequireUser(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m := metricsFrom(c)
			start := m.now()
			userID, err := auth.UserIDFromAuthHeader(authorizationFromRequest(c.Request()))
			m.ObserveStage("auth", m.now().Sub(start))
			if err != nil {
				m.SetErrorStage("auth")
				return wrapError(http.StatusUnauthorized, msgUnauthorized, err)
			}
			c.Set(userContextKey, userID)
			m.SetUser(userID)
			return next(c)
		}
	}
}

func userFrom(c echo.Context) string {
	user, _ := c.Get(userContextKey).(string)
	return user
}

// RequestMetrics records one observability event per request. Errors are
// rendered here so the logged status is the one the client receives.
func RequestMetrics(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			m, spanCtx := newRequestMetrics(c.Request().Context(), logger, c.Request().Method, route)
			if spanCtx != nil {
				c.SetRequest(c.Request().WithContext(spanCtx))
			}
			c.Set(metricsContextKey, m)

			err := next(c)
			if err != nil {
				c.Error(err)
				if c.Response().Status < http.StatusInternalServerError {
					m.SetRejection(err)
					err = nil
				}
			}
			m.Log(c.Response().Status, err)
			return nil
		}
	}
}

// GzipRequestMiddleware decompresses gzip-encoded request bodies so handlers can
// work with plain JSON payloads. Requests with invalid gzip payloads are
// rejected with a 400 response.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !hasGzipEncoding(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			body := req.Body
			gr, err := gzip.NewReader(body)
			if err != nil {
				_ = body.Close()
				return newError(http.StatusBadRequest, msgInvalidBody)
			}

			req.Body = &gzipReadCloser{Reader: gr, body: body}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)

			return next(c)
		}
	}
}

func hasGzipEncoding(header string) bool {
	if header == "" {
		return false
	}
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type gzipReadCloser struct {
	*gzip.Reader
	body io.Closer
}

func (g *gzipReadCloser) Close() error {
	var err error
	if g.Reader != nil {
		err = g.Reader.Close()
	}
	if g.body != nil {
		if cerr := g.body.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
