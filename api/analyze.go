package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"github.com/mizuki-commits/dashboard-template/analyzer"
)

const (
	msgNoOpenAIKey  = "OPENAI_API_KEYが設定されていません。.env.localにOPENAI_API_KEYを追加するか、CLOSED_AI_MODE=true でクローズド運用にしてください。"
	msgNoLocalAI    = "ローカルAI（Ollama）に接続できません。ターミナルで「ollama serve」を起動してから再度お試しください。"
	msgAICallFailed = "AIの呼び出しに失敗しました。"
	msgAIBadOutput  = "AIの応答の解析に失敗しました。"
)

func analyzeMethodNotAllowed(echo.Context) error {
	return newError(http.StatusMethodNotAllowed, "このAPIはPOSTのみ対応しています。")
}

type analyzeRequest struct {
	Text *string `json:"text"`
}

// analyze extracts action items from pasted text or uploaded PDFs and images.
func (s *Server) analyze(c echo.Context) error {
	if s.Analyzer == nil {
		return newError(http.StatusInternalServerError, msgNoOpenAIKey)
	}
	if err := s.Analyzer.Ready(); err != nil {
		analyzerRequests.WithLabelValues("not_configured").Inc()
		return wrapError(http.StatusInternalServerError, msgNoOpenAIKey, err)
	}

	in, err := readAnalyzeInput(c)
	if err != nil {
		analyzerRequests.WithLabelValues("bad_input").Inc()
		return err
	}

	var res analyzer.Result
	err = metricsFrom(c).Time("upstream", func() error {
		var err error
		res, err = s.Analyzer.Analyze(c.Request().Context(), in)
		return err
	})
	if err != nil {
		analyzerRequests.WithLabelValues("failed").Inc()
		return analyzeError(err)
	}
	analyzerRequests.WithLabelValues("ok").Inc()
	metricsFrom(c).SetCount("tasks_extracted", len(res.Tasks))
	return c.JSON(http.StatusOK, res)
}

func readAnalyzeInput(c echo.Context) (analyzer.Input, error) {
	req := c.Request()
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		req.Body = http.MaxBytesReader(c.Response(), req.Body, maxUploadBody)
		form, err := c.MultipartForm()
		if err != nil {
			return analyzer.Input{}, wrapError(http.StatusBadRequest, msgInvalidBody, err)
		}
		in, err := analyzer.FromForm(firstValue(form.Value["text"]), form.File["files"])
		if err != nil {
			var inputErr *analyzer.InputError
			if errors.As(err, &inputErr) {
				return analyzer.Input{}, newError(http.StatusBadRequest, inputErr.Message)
			}
			return analyzer.Input{}, wrapError(http.StatusBadRequest, msgInvalidBody, err)
		}
		if in.Empty() {
			return analyzer.Input{}, newError(http.StatusBadRequest, "テキストを入力するか、PDF・画像ファイルをアップロードしてください。")
		}
		return in, nil
	}

	var body analyzeRequest
	if err := sonic.ConfigStd.NewDecoder(io.LimitReader(req.Body, maxJSONBody)).Decode(&body); err != nil {
		return analyzer.Input{}, wrapError(http.StatusBadRequest, msgInvalidJSON, err)
	}
	if body.Text == nil || strings.TrimSpace(*body.Text) == "" {
		return analyzer.Input{}, newError(http.StatusBadRequest, "解析するテキストを入力してください。")
	}
	return analyzer.Input{Text: strings.TrimSpace(*body.Text)}, nil
}

func analyzeError(err error) error {
	var upstream *analyzer.UpstreamError
	switch {
	case errors.Is(err, analyzer.ErrLocalUnavailable):
		return wrapError(http.StatusBadGateway, msgNoLocalAI, err)
	case errors.As(err, &upstream):
		if upstream.Local {
			return wrapError(http.StatusBadGateway, msgNoLocalAI, err)
		}
		return wrapError(http.StatusBadGateway, msgAICallFailed, err)
	case errors.Is(err, analyzer.ErrBadModelOutput):
		return wrapError(http.StatusInternalServerError, msgAIBadOutput, err)
	case errors.Is(err, analyzer.ErrNoAPIKey):
		return wrapError(http.StatusInternalServerError, msgNoOpenAIKey, err)
	}
	return wrapError(http.StatusInternalServerError, msgInternal, err)
}

func firstValue(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}
