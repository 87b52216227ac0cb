package analyzer

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/mizuki-commits/dashboard-template/config"
)

type stubCompleter struct {
	mu       sync.Mutex
	requests []openai.ChatCompletionRequest
	fn       func(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func (s *stubCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.fn(req)
}

func answer(content string) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}}}, nil
}

func newLogger() *log.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func TestAnalyzeMergesTextAndImages(t *testing.T) {
	stub := &stubCompleter{fn: func(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		if req.Messages[1].Content != "" {
			return answer(`{"tasks":[{"title":"見積作成","deadline":"金曜","sentiment":"neutral"}],"advice":["早めに共有する"]}`)
		}
		return answer(`{"tasks":[{"title":" 見積作成 "},{"title":"日程調整","sentiment":"negative"}],"advice":["早めに共有する","優先度を決める"]}`)
	}}
	a := New(config.AIConfig{OpenAIKey: "sk-test"}, newLogger()).WithCompleter(stub)

	res, err := a.Analyze(context.Background(), Input{
		Text:   "  来週までに見積  ",
		Images: []Image{{Data: []byte("png"), MimeType: "image/png"}},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(res.Tasks) != 2 || res.Tasks[0].Title != "見積作成" || res.Tasks[1].Title != "日程調整" {
		t.Fatalf("unexpected tasks %#v", res.Tasks)
	}
	if len(res.Advice) != 2 {
		t.Fatalf("unexpected advice %#v", res.Advice)
	}

	if len(stub.requests) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(stub.requests))
	}
	textReq := stub.requests[0]
	if textReq.Model != DefaultModel || textReq.Temperature != temperature {
		t.Fatalf("unexpected request settings %#v", textReq)
	}
	if textReq.ResponseFormat == nil || textReq.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Fatal("expected json_object response format")
	}
	if textReq.Messages[0].Content != SystemPrompt {
		t.Fatal("expected system prompt first")
	}
	if textReq.Messages[1].Content != textPrompt+"来週までに見積" {
		t.Fatalf("unexpected user text %q", textReq.Messages[1].Content)
	}
	img := stub.requests[1].Messages[1].MultiContent
	if len(img) != 2 || img[1].ImageURL == nil || img[1].ImageURL.URL != "data:image/png;base64,cG5n" {
		t.Fatalf("unexpected image message %#v", img)
	}
}

func TestAnalyzeClosedMode(t *testing.T) {
	stub := &stubCompleter{fn: func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		t.Fatal("closed mode must not call the model")
		return openai.ChatCompletionResponse{}, nil
	}}
	a := New(config.AIConfig{ClosedMode: true, LocalBaseURL: "http://localhost:11434/v1"}, newLogger()).WithCompleter(stub)
	res, err := a.Analyze(context.Background(), Input{Text: "議事録"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !res.ClosedMode || res.ExtractedText != "議事録" || res.Message != ClosedModeMessage {
		t.Fatalf("unexpected closed result %#v", res)
	}
	if res.Tasks == nil || res.Advice == nil {
		t.Fatal("closed result should carry empty slices")
	}
}

func TestAnalyzeWithoutKey(t *testing.T) {
	a := New(config.AIConfig{}, newLogger())
	if _, err := a.Analyze(context.Background(), Input{Text: "x"}); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestAnalyzeUpstreamAndParseErrors(t *testing.T) {
	boom := errors.New("rate limited")
	a := New(config.AIConfig{OpenAIKey: "k"}, newLogger()).WithCompleter(&stubCompleter{fn: func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, boom
	}})
	_, err := a.Analyze(context.Background(), Input{Text: "x"})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || !errors.Is(err, boom) || upstream.Local {
		t.Fatalf("expected upstream error, got %v", err)
	}

	a = a.WithCompleter(&stubCompleter{fn: func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return answer("了解しました")
	}})
	if _, err := a.Analyze(context.Background(), Input{Text: "x"}); !errors.Is(err, ErrBadModelOutput) {
		t.Fatalf("expected ErrBadModelOutput, got %v", err)
	}
}

func TestLocalModeUsesLocalModelAndProbes(t *testing.T) {
	var probed bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			probed = true
			_, _ = w.Write([]byte(`{"models":[]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	stub := &stubCompleter{fn: func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return answer(`{"tasks":[],"advice":[]}`)
	}}
	a := New(config.AIConfig{LocalBaseURL: srv.URL + "/v1", LocalModel: "llama3.2"}, newLogger()).WithCompleter(stub)
	if a.Model() != "llama3.2" {
		t.Fatalf("unexpected model %s", a.Model())
	}
	if _, err := a.Analyze(context.Background(), Input{Text: "x"}); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !probed {
		t.Fatal("expected /api/tags probe")
	}
	if stub.requests[0].Model != "llama3.2" {
		t.Fatalf("unexpected request model %s", stub.requests[0].Model)
	}
}

func TestLocalProbeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	a := New(config.AIConfig{LocalBaseURL: srv.URL}, newLogger()).WithCompleter(&stubCompleter{fn: func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		t.Fatal("must not call the model when the probe fails")
		return openai.ChatCompletionResponse{}, nil
	}})
	if _, err := a.Analyze(context.Background(), Input{Text: "x"}); !errors.Is(err, ErrLocalUnavailable) {
		t.Fatalf("expected ErrLocalUnavailable, got %v", err)
	}
}

func TestMergeEmpty(t *testing.T) {
	res := Merge()
	if res.Tasks == nil || res.Advice == nil || len(res.Tasks) != 0 {
		t.Fatalf("unexpected %#v", res)
	}
}

func formFiles(t *testing.T, parts map[string]struct {
	mime string
	data []byte
}) []*multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		h.Set("Content-Type", p.mime)
		pw, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = pw.Write(p.data)
	}
	_ = w.Close()
	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(32 << 20)
	if err != nil {
		t.Fatalf("read form: %v", err)
	}
	return form.File["files"]
}

func TestFromFormImagesAndRejections(t *testing.T) {
	files := formFiles(t, map[string]struct {
		mime string
		data []byte
	}{"shot.png": {"image/png", []byte("png-bytes")}})
	in, err := FromForm("  メモ ", files)
	if err != nil {
		t.Fatalf("from form: %v", err)
	}
	if in.Text != "メモ" || len(in.Images) != 1 || in.Images[0].MimeType != "image/png" {
		t.Fatalf("unexpected input %#v", in)
	}

	files = formFiles(t, map[string]struct {
		mime string
		data []byte
	}{"notes.docx": {"application/msword", []byte("x")}})
	_, err = FromForm("", files)
	var inputErr *InputError
	if !errors.As(err, &inputErr) || !strings.Contains(inputErr.Message, "未対応のファイル形式です: notes.docx") {
		t.Fatalf("expected unsupported type error, got %v", err)
	}

	files = formFiles(t, map[string]struct {
		mime string
		data []byte
	}{"broken.pdf": {"application/pdf", []byte("not a pdf")}})
	_, err = FromForm("", files)
	if !errors.As(err, &inputErr) || inputErr.Message != "PDFの読み取りに失敗しました: broken.pdf" {
		t.Fatalf("expected pdf error, got %v", err)
	}
}

func TestFromFormTooLarge(t *testing.T) {
	fh := &multipart.FileHeader{Filename: "big.png", Size: MaxFileBytes + 1, Header: textproto.MIMEHeader{"Content-Type": {"image/png"}}}
	_, err := FromForm("", []*multipart.FileHeader{fh})
	var inputErr *InputError
	if !errors.As(err, &inputErr) || inputErr.Message != "ファイルサイズは10MB以下にしてください: big.png" {
		t.Fatalf("expected size error, got %v", err)
	}
}
