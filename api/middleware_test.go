package api

import (
	"bytes"
	"compress/gzip"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/mizuki-commits/dashboard-template/domain"
)

func gzipBody(t *testing.T, s string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return &buf
}

func TestGzipRequestBodyIsDecoded(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPut, "/api/mode", gzipBody(t, `{"mode":"recruitment"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderContentEncoding, "identity, gzip")
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+testToken)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[modeResponse](t, rec); got.Mode != domain.ModeRecruitment {
		t.Fatalf("unexpected mode: %s", got.Mode)
	}
}

func TestGzipRequestInvalidPayload(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPut, "/api/mode", bytes.NewBufferString("plain"))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+testToken)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	expectStatus(t, rec, http.StatusBadRequest)
	if body := decodeBody[errorBody](t, rec); body.Error != msgInvalidBody {
		t.Fatalf("unexpected error: %q", body.Error)
	}
}

func TestHasGzipEncoding(t *testing.T) {
	tests := map[string]bool{
		"":              false,
		"gzip":          true,
		"GZIP":          true,
		"br, gzip":      true,
		"deflate":       false,
		"x-gzip-ish, b": false,
	}
	for header, want := range tests {
		if got := hasGzipEncoding(header); got != want {
			t.Errorf("hasGzipEncoding(%q) = %v, want %v", header, got, want)
		}
	}
}

func TestRequireUserStoresUser(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+testToken)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	h := RequireUser(fakeAuth{})(func(c echo.Context) error {
		seen = userFrom(c)
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != "admin" {
		t.Fatalf("unexpected user: %q", seen)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	err := RequireUser(fakeAuth{})(func(echo.Context) error { return nil })(c)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 error, got %v", err)
	}
}
