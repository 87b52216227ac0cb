package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/mizuki-commits/dashboard-template/domain"
	"github.com/mizuki-commits/dashboard-template/todoist"
)

const (
	msgNoTodoistToken   = "TODOIST_API_TOKEN が設定されていません。"
	deliveryIDHeader    = "X-Todoist-Delivery-ID"
	webhookEndpointPath = "/api/todoist/webhook"
)

// todoistFor resolves the token for one call: the token sent with the
// request, then the one stored for the user, then the server token.
func (s *Server) todoistFor(userToken string, d *domain.Dashboard) *todoist.Client {
	token := strings.TrimSpace(userToken)
	if token == "" && d != nil {
		token = d.Todoist.Token
	}
	return s.Todoist.WithToken(token)
}

// todoistError maps a failed Todoist call: 401 from Todoist stays 401,
// anything else is a bad gateway.
func todoistError(err error, message string) error {
	if errors.Is(err, todoist.ErrNoToken) {
		return wrapError(http.StatusUnauthorized, msgNoTodoistToken, err)
	}
	if todoist.StatusOf(err) == http.StatusUnauthorized {
		return wrapError(http.StatusUnauthorized, message, err)
	}
	return wrapError(http.StatusBadGateway, message, err)
}

func (s *Server) todoistProjects(c echo.Context) error {
	d, err := s.load(c)
	if err != nil {
		return err
	}
	client := s.todoistFor(c.QueryParam("userToken"), &d)
	if !client.HasToken() {
		return newError(http.StatusServiceUnavailable, msgNoTodoistToken+".env.local に追加するか、ユーザートークンを設定してください。")
	}
	var projects []todoist.Project
	err = metricsFrom(c).Time("upstream", func() error {
		var err error
		projects, err = client.GetProjects(c.Request().Context())
		return err
	})
	if err != nil {
		return todoistError(err, "Todoist からプロジェクトを取得できませんでした。")
	}
	if projects == nil {
		projects = []todoist.Project{}
	}
	return c.JSON(http.StatusOK, projects)
}

type createTaskRequest struct {
	Content     string `json:"content"`
	ProjectID   string `json:"projectId"`
	Description string `json:"description"`
	DueString   string `json:"dueString"`
	Priority    int    `json:"priority"`
	AssigneeID  string `json:"assigneeId"`
	UserToken   string `json:"userToken"`
}

func (s *Server) todoistCreateTask(c echo.Context) error {
	var req createTaskRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	d, err := s.load(c)
	if err != nil {
		return err
	}
	client := s.todoistFor(req.UserToken, &d)
	if !client.HasToken() {
		return newError(http.StatusUnauthorized, msgNoTodoistToken)
	}
	if strings.TrimSpace(req.Content) == "" {
		return newError(http.StatusBadRequest, "content は必須です。")
	}
	projectID := req.ProjectID
	if projectID == "" {
		projectID = d.Todoist.DefaultProjectID
	}
	var task todoist.Task
	err = metricsFrom(c).Time("upstream", func() error {
		var err error
		task, err = client.CreateTask(c.Request().Context(), todoist.CreateTaskParams{
			Content:     req.Content,
			ProjectID:   projectID,
			Description: req.Description,
			DueString:   req.DueString,
			Priority:    req.Priority,
			AssigneeID:  req.AssigneeID,
		})
		return err
	})
	if err != nil {
		return todoistError(err, "タスク作成に失敗しました。")
	}
	return c.JSON(http.StatusOK, echo.Map{"taskId": task.ID})
}

type todoistSyncRequest struct {
	ProjectID string `json:"projectId"`
	UserToken string `json:"userToken"`
}

type todoistSyncResponse struct {
	Tasks []domain.RemoteTask `json:"tasks"`
	domain.MergeResult
}

// todoistSync imports the open tasks of a project into the kanban.
func (s *Server) todoistSync(c echo.Context) error {
	var req todoistSyncRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		return newError(http.StatusBadRequest, "projectId は必須です。")
	}
	d, err := s.load(c)
	if err != nil {
		return err
	}
	client := s.todoistFor(req.UserToken, &d)
	if !client.HasToken() {
		return newError(http.StatusServiceUnavailable, msgNoTodoistToken+".env.local に追加し、サーバーを再起動してください。")
	}
	var remote []domain.RemoteTask
	err = metricsFrom(c).Time("upstream", func() error {
		var err error
		remote, err = client.OpenTasks(c.Request().Context(), projectID)
		return err
	})
	if err != nil {
		return todoistError(err, "Todoist からタスクを取得できませんでした。")
	}

	var res domain.MergeResult
	_, err = s.mutate(c, func(d *domain.Dashboard) error {
		res = d.Kanban.MergeRemoteTasks(remote, s.Now())
		return nil
	})
	if err != nil {
		return err
	}
	metricsFrom(c).SetCount("tasks_added", res.Added)
	metricsFrom(c).SetCount("tasks_updated", res.Updated)
	return c.JSON(http.StatusOK, todoistSyncResponse{Tasks: remote, MergeResult: res})
}

type syncStatusRequest struct {
	ProjectID string   `json:"projectId"`
	TaskIDs   []string `json:"taskIds"`
	UserToken string   `json:"userToken"`
}

func (s *Server) todoistSyncStatus(c echo.Context) error {
	var req syncStatusRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	d, err := s.load(c)
	if err != nil {
		return err
	}
	client := s.todoistFor(req.UserToken, &d)
	if !client.HasToken() {
		return newError(http.StatusUnauthorized, msgNoTodoistToken+"リクエストに userToken を含めるか、サーバーの環境変数を設定してください。")
	}
	if req.ProjectID == "" && len(req.TaskIDs) == 0 {
		return newError(http.StatusBadRequest, "projectId または taskIds を指定してください。")
	}
	status, err := s.fetchStatus(c, client, req.ProjectID, req.TaskIDs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"tasks": status.Tasks})
}

type userTokenResponse struct {
	HasToken         bool   `json:"hasToken"`
	Masked           string `json:"masked,omitempty"`
	DefaultProjectID string `json:"defaultProjectId,omitempty"`
}

func (s *Server) getUserToken(c echo.Context) error {
	d, err := s.load(c)
	if err != nil {
		return err
	}
	resp := userTokenResponse{HasToken: d.Todoist.Token != "", DefaultProjectID: d.Todoist.DefaultProjectID}
	if resp.HasToken {
		resp.Masked = "***"
	}
	return c.JSON(http.StatusOK, resp)
}

type userTokenRequest struct {
	Token            string  `json:"token"`
	DefaultProjectID *string `json:"defaultProjectId"`
}

func (s *Server) postUserToken(c echo.Context) error {
	var req userTokenRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return newError(http.StatusBadRequest, "トークンが指定されていません")
	}
	_, err := s.mutate(c, func(d *domain.Dashboard) error {
		d.Todoist.Token = token
		if req.DefaultProjectID != nil {
			d.Todoist.DefaultProjectID = strings.TrimSpace(*req.DefaultProjectID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func (s *Server) webhookInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"message":  "Todoist Webhook endpoint is active",
		"endpoint": webhookEndpointPath,
		"events":   todoist.HandledEvents,
	})
}

// webhook verifies a Todoist delivery and queues it for the owner's
// dashboard. Only a bad signature is refused; every other failure answers
// 200 so Todoist does not resend.
func (s *Server) webhook(c echo.Context) error {
	ctx := c.Request().Context()
	entry := s.Logger.WithField("delivery_id", c.Request().Header.Get(deliveryIDHeader))

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return s.webhookFailed(c, entry, "read", err)
	}
	if s.WebhookSecret == "" {
		return s.webhookFailed(c, entry, "config", errors.New("TODOIST_WEBHOOK_SECRET が設定されていません"))
	}
	if !todoist.VerifySignature(s.WebhookSecret, body, c.Request().Header.Get(todoist.SignatureHeader)) {
		webhookDeliveries.WithLabelValues("invalid_signature").Inc()
		entry.Warn("todoist.webhook.invalid_signature")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid signature"})
	}

	var payload todoist.WebhookPayload
	if err := sonic.Unmarshal(body, &payload); err != nil {
		return s.webhookFailed(c, entry, "decode", err)
	}
	entry = entry.WithFields(log.Fields{"event_name": payload.EventName, "task_id": payload.EventData.ID})

	ev, ok := payload.Event(s.Owner, s.Now())
	if !ok {
		webhookDeliveries.WithLabelValues("ignored").Inc()
		entry.Debug("todoist.webhook.ignored")
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	}

	deliveryID := c.Request().Header.Get(deliveryIDHeader)
	if deliveryID != "" && s.Deduper != nil {
		added, err := s.Deduper.Add(ctx, deliveryID)
		if err != nil {
			entry.WithError(err).Warn("todoist.webhook.dedupe_unavailable")
		} else if !added {
			webhookDeliveries.WithLabelValues("duplicate").Inc()
			entry.Info("todoist.webhook.duplicate")
			return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
		}
	}

	if s.Queue == nil {
		return s.webhookFailed(c, entry, "enqueue", errors.New("event queue not configured"))
	}
	if err := metricsFrom(c).Time("enqueue", func() error { return s.Queue.Enqueue(ctx, ev) }); err != nil {
		if deliveryID != "" && s.Deduper != nil {
			_ = s.Deduper.Remove(ctx, deliveryID)
		}
		return s.webhookFailed(c, entry, "enqueue", err)
	}
	webhookDeliveries.WithLabelValues("accepted").Inc()
	entry.WithField("event_id", ev.ID).Info("todoist.webhook.accepted")
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (s *Server) webhookFailed(c echo.Context, entry *log.Entry, stage string, err error) error {
	webhookDeliveries.WithLabelValues("error").Inc()
	metricsFrom(c).SetErrorStage(stage)
	entry.WithError(err).WithField("stage", stage).Error("todoist.webhook.failed")
	return c.JSON(http.StatusOK, echo.Map{"error": err.Error()})
}
