// Package analyzer extracts action items and advice from free text, PDFs and
// screenshots using an OpenAI compatible chat completion endpoint.
package analyzer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	openai "github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mizuki-commits/dashboard-template/config"
)

const (
	DefaultModel = "gpt-4o-mini"
	temperature  = 0.3
	tracerName   = "dashboard/analyzer"

	textPrompt  = "以下のテキストを分析してください：\n\n"
	imagePrompt = "この画像（スクリーンショット・資料・企画書の写真など）に写っている内容を分析し、タスクとアドバイスを抽出してください。"

	ClosedModeMessage = "クローズドモードのため外部AIは使用していません。テキスト・PDFの抽出結果のみ返しています。画像のAI解析は行っていません。"
)

const SystemPrompt = `あなたはプロジェクトの優秀なプロジェクトマネージャーです。
貼り付けられたテキスト（チャットログ・企画書・メモなど）や画像から、ユーザーが次に行うべき具体的なアクションアイテムを抽出し、ToDoリスト形式で提案してください。

また、以下の点も分析してください：
- 具体的なタスク、期限、重要な決定事項を抽出する
- 目標に対してポジティブな要素かネガティブな要素（遅延リスクなど）かを判定する
- 個人の行動指針となるアドバイスを提示する

必ず以下のJSON形式で回答してください。それ以外のテキストは含めないでください。

{
  "tasks": [
    {
      "title": "タスクの内容",
      "deadline": "期限（分かれば）",
      "sentiment": "positive" または "negative" または "neutral"
    }
  ],
  "advice": [
    "アドバイス1",
    "アドバイス2"
  ]
}`

var (
	// ErrNoAPIKey means neither closed mode, a local endpoint nor an OpenAI key is configured.
	ErrNoAPIKey = errors.New("openai api key not configured")
	// ErrLocalUnavailable means the local Ollama endpoint did not answer.
	ErrLocalUnavailable = errors.New("local ai endpoint unavailable")
	// ErrBadModelOutput means the model did not answer with the expected JSON.
	ErrBadModelOutput = errors.New("model output is not valid json")
)

// UpstreamError wraps a failed completion call.
type UpstreamError struct {
	Local bool
	Err   error
}

func (e *UpstreamError) Error() string { return "ai call failed: " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

var localHostPattern = regexp.MustCompile(`(?i)^https?://(localhost|127\.0\.0\.1)(:\d+)?/?`)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

type Task struct {
	Title     string    `json:"title"`
	Deadline  string    `json:"deadline,omitempty"`
	Sentiment Sentiment `json:"sentiment,omitempty"`
}

type Result struct {
	Tasks         []Task   `json:"tasks"`
	Advice        []string `json:"advice"`
	ClosedMode    bool     `json:"closedMode,omitempty"`
	ExtractedText string   `json:"extractedText,omitempty"`
	Message       string   `json:"message,omitempty"`
}

type Image struct {
	Data     []byte
	MimeType string
}

// Input is what one analysis request carries.
type Input struct {
	Text   string
	Images []Image
}

func (in Input) Empty() bool {
	return strings.TrimSpace(in.Text) == "" && len(in.Images) == 0
}

// Completer is the subset of the go-openai client the analyzer needs.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Analyzer struct {
	cfg    config.AIConfig
	client Completer
	model  string
	probe  *http.Client
	logger *log.Logger
	tracer trace.Tracer
}

// New builds an analyzer for cfg. In closed mode no client is created.
func New(cfg config.AIConfig, logger *log.Logger) *Analyzer {
	a := &Analyzer{
		cfg:    cfg,
		model:  DefaultModel,
		probe:  &http.Client{Timeout: 5 * time.Second},
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
	switch {
	case cfg.ClosedMode:
	case cfg.UseLocalAI():
		key := firstNonEmpty(cfg.LocalAPIKey, cfg.OpenAIKey, "dummy")
		oc := openai.DefaultConfig(key)
		oc.BaseURL = strings.TrimRight(cfg.LocalBaseURL, "/")
		a.client = openai.NewClientWithConfig(oc)
		a.model = cfg.LocalModel
	case cfg.OpenAIKey != "":
		a.client = openai.NewClient(cfg.OpenAIKey)
	}
	return a
}

// WithCompleter swaps the completion backend.
func (a *Analyzer) WithCompleter(c Completer) *Analyzer {
	cp := *a
	cp.client = c
	return &cp
}

func (a *Analyzer) Model() string { return a.model }

// Ready reports ErrNoAPIKey before any input is read.
func (a *Analyzer) Ready() error {
	if a.cfg.ClosedMode || a.client != nil {
		return nil
	}
	return ErrNoAPIKey
}

// Analyze runs text and every image through the model and merges the answers.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (res Result, err error) {
	if err := a.Ready(); err != nil {
		return Result{}, err
	}
	text := strings.TrimSpace(in.Text)
	if a.cfg.ClosedMode {
		return Result{
			Tasks:         []Task{},
			Advice:        []string{},
			ClosedMode:    true,
			ExtractedText: text,
			Message:       ClosedModeMessage,
		}, nil
	}

	ctx, span := a.tracer.Start(ctx, "analyzer.Analyze", trace.WithAttributes(
		attribute.String("ai.model", a.model),
		attribute.Int("ai.images", len(in.Images)),
		attribute.Bool("ai.local", a.cfg.UseLocalAI()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if a.cfg.UseLocalAI() {
		if err := a.probeLocal(ctx); err != nil {
			return Result{}, err
		}
	}

	var parts []Result
	if text != "" {
		r, err := a.complete(ctx, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: textPrompt + text,
		})
		if err != nil {
			return Result{}, err
		}
		parts = append(parts, r)
	}
	for _, img := range in.Images {
		r, err := a.complete(ctx, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: imagePrompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL(img)}},
			},
		})
		if err != nil {
			return Result{}, err
		}
		parts = append(parts, r)
	}
	return Merge(parts...), nil
}

func (a *Analyzer) complete(ctx context.Context, msg openai.ChatCompletionMessage) (Result, error) {
	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			msg,
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    temperature,
	})
	if err != nil {
		if a.logger != nil {
			a.logger.WithError(err).WithField("model", a.model).Warn("analyzer.completion.failed")
		}
		return Result{}, &UpstreamError{Local: a.cfg.UseLocalAI(), Err: err}
	}
	if a.logger != nil {
		a.logger.WithFields(log.Fields{
			"model":       a.model,
			"duration_ms": time.Since(start).Milliseconds(),
			"tokens":      resp.Usage.TotalTokens,
		}).Debug("analyzer.completion")
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Result{}, nil
	}
	return parseOutput(resp.Choices[0].Message.Content)
}

func parseOutput(content string) (Result, error) {
	var out struct {
		Tasks  []Task   `json:"tasks"`
		Advice []string `json:"advice"`
	}
	if err := sonic.UnmarshalString(content, &out); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBadModelOutput, err)
	}
	return Result{Tasks: out.Tasks, Advice: out.Advice}, nil
}

// Merge concatenates results, dropping tasks whose trimmed title was already
// seen and repeated advice.
func Merge(parts ...Result) Result {
	out := Result{Tasks: []Task{}, Advice: []string{}}
	seenTitle := make(map[string]struct{})
	seenAdvice := make(map[string]struct{})
	for _, p := range parts {
		for _, t := range p.Tasks {
			key := strings.TrimSpace(t.Title)
			if _, ok := seenTitle[key]; ok {
				continue
			}
			seenTitle[key] = struct{}{}
			out.Tasks = append(out.Tasks, t)
		}
		for _, adv := range p.Advice {
			if _, ok := seenAdvice[adv]; ok {
				continue
			}
			seenAdvice[adv] = struct{}{}
			out.Advice = append(out.Advice, adv)
		}
	}
	return out
}

// probeLocal checks a localhost Ollama at <base>/api/tags before any completion.
// Remote compatible endpoints are not probed.
func (a *Analyzer) probeLocal(ctx context.Context) error {
	base := strings.TrimRight(a.cfg.LocalBaseURL, "/")
	if !localHostPattern.MatchString(base) {
		return nil
	}
	base = strings.TrimSuffix(base, "/v1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLocalUnavailable, err)
	}
	resp, err := a.probe.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLocalUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrLocalUnavailable, resp.StatusCode)
	}
	return nil
}

func dataURL(img Image) string {
	return "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
