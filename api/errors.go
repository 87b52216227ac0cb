package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/mizuki-commits/dashboard-template/domain"
)

// Error is a request failure with a user facing Japanese message.
type Error struct {
	Status  int
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

func wrapError(status int, message string, err error) *Error {
	e := &Error{Status: status, Message: message, Err: err}
	if err != nil {
		e.Detail = err.Error()
	}
	return e
}

type errorBody struct {
	Error  string            `json:"error"`
	Detail string            `json:"detail,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

const (
	msgUnauthorized  = "ログインが必要です。"
	msgInvalidBody   = "リクエストボディが不正です。"
	msgInvalidJSON   = "リクエストのJSONが不正です。"
	msgNotFound      = "対象が見つかりません。"
	msgInvalidInput  = "入力内容に誤りがあります。"
	msgStorageFailed = "データの保存に失敗しました。"
	msgInternal      = "予期しないエラーが発生しました。"
)

// domainStatus maps domain sentinels onto statuses and messages.
func domainStatus(err error) (int, string, bool) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, msgNotFound, true
	case errors.Is(err, domain.ErrInvalidMode):
		return http.StatusBadRequest, "不正なモードです。", true
	case errors.Is(err, domain.ErrInvalidPeriod):
		return http.StatusBadRequest, "不正な期間です。", true
	case errors.Is(err, domain.ErrInvalidColumn):
		return http.StatusBadRequest, "不正なカラムです。", true
	case errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusBadRequest, "不正なステータスです。", true
	case errors.Is(err, domain.ErrMissingField):
		return http.StatusBadRequest, "必須項目が入力されていません。", true
	case errors.Is(err, domain.ErrInvalidRemind):
		return http.StatusBadRequest, "リマインド日数は 1, 2, 3, 5, 7 のいずれかを指定してください。", true
	case errors.Is(err, domain.ErrUnknownEntries):
		return http.StatusBadRequest, "チェックリストの項目を選択してください。", true
	}
	return 0, "", false
}

// HTTPErrorHandler renders every error as {error, detail?, fields?}.
func HTTPErrorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		body := errorBody{Error: msgInternal}

		var apiErr *Error
		var httpErr *echo.HTTPError
		var vErrs validator.ValidationErrors
		switch {
		case errors.As(err, &apiErr):
			code = apiErr.Status
			body.Error = apiErr.Message
			body.Detail = apiErr.Detail
		case errors.As(err, &vErrs):
			code = http.StatusBadRequest
			body.Error = msgInvalidInput
			body.Fields = make(map[string]string, len(vErrs))
			for _, fe := range vErrs {
				body.Fields[fe.Field()] = fe.Translate(translator)
			}
		case errors.As(err, &httpErr):
			if httpErr.Internal != nil {
				if inner, ok := httpErr.Internal.(*echo.HTTPError); ok {
					httpErr = inner
				}
			}
			code = httpErr.Code
			if msg, ok := httpErr.Message.(string); ok {
				body.Error = msg
			} else {
				body.Error = http.StatusText(code)
			}
		default:
			if status, msg, ok := domainStatus(err); ok {
				code = status
				body.Error = msg
				body.Detail = err.Error()
			}
		}

		entry := logger.WithFields(log.Fields{
			"route":  c.Path(),
			"method": c.Request().Method,
			"status": code,
		})
		if user, ok := c.Get(userContextKey).(string); ok {
			entry = entry.WithField("user", user)
		}
		if code >= http.StatusInternalServerError {
			entry.WithError(err).Error("request.failed")
		} else {
			entry.WithError(err).Debug("request.rejected")
		}

		if c.Echo().Debug && body.Detail == "" {
			body.Detail = err.Error()
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, body)
		}
		if err != nil {
			logger.WithError(err).Error("request.write_error")
		}
	}
}
