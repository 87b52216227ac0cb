// Package api is the HTTP surface of the dashboard: sessions, per-mode
// boards, the kanban, Todoist integration, the tasks log and the analyzer.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/mizuki-commits/dashboard-template/analyzer"
	"github.com/mizuki-commits/dashboard-template/domain"
	"github.com/mizuki-commits/dashboard-template/storage"
	"github.com/mizuki-commits/dashboard-template/todoist"
)

const (
	maxJSONBody    = 1 << 20
	maxWebhookBody = 1 << 20
	maxUploadBody  = 64 << 20
)

type LoginAuthenticator interface {
	Authenticator
	Login(username, password string) (Session, error)
}

type EventQueue interface {
	Enqueue(ctx context.Context, ev domain.TodoistEvent) error
}

type Deduper interface {
	Add(ctx context.Context, key string) (bool, error)
	Remove(ctx context.Context, key string) error
}

type Publisher interface {
	Publish(ctx context.Context, u storage.Update) error
}

type TaskLog interface {
	EnsureSchema(ctx context.Context) error
	Insert(ctx context.Context, tasks []domain.LoggedTask, autoRemind bool, now time.Time) ([]string, error)
	List(ctx context.Context, limit int) ([]domain.LoggedTask, error)
}

type Analyzer interface {
	Ready() error
	Analyze(ctx context.Context, in analyzer.Input) (analyzer.Result, error)
}

// Deps are the collaborators of the HTTP handlers. Queue, Deduper, TaskLog,
// Publisher and Broker may be nil; the matching features answer 503 or are
// skipped.
type Deps struct {
	Store     storage.DashboardStore
	Auth      LoginAuthenticator
	Todoist   *todoist.Client
	Queue     EventQueue
	Deduper   Deduper
	TaskLog   TaskLog
	Analyzer  Analyzer
	Publisher Publisher
	Broker    *Broker
	// Owner receives the Todoist webhook events.
	Owner         string
	WebhookSecret string
	Logger        *log.Logger
	Now           func() time.Time
}

type Server struct {
	Deps
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Todoist == nil {
		d.Todoist = todoist.NewClient("", "", 0)
	}
	return &Server{Deps: d}
}

// Register wires up all API routes on the provided Echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.Validator = Validator{}
	e.JSONSerializer = JSONSerializer{}
	e.HTTPErrorHandler = HTTPErrorHandler(s.Logger)

	e.GET("/healthz", healthz(s.Store))

	pub := e.Group("/api", RequestMetrics(s.Logger), GzipRequestMiddleware())
	pub.POST("/auth/login", s.login)
	pub.GET("/todoist/webhook", s.webhookInfo)
	pub.POST("/todoist/webhook", s.webhook)
	pub.GET("/slack-analyze", analyzeMethodNotAllowed)

	g := pub.Group("", RequireUser(s.Auth))
	g.GET("/auth/session", s.session)
	g.GET("/mode", s.getMode)
	g.PUT("/mode", s.putMode)
	g.GET("/stream", s.stream)

	m := g.Group("/modes/:mode")
	m.GET("", s.getModeBoard)
	m.GET("/progress", s.getProgress)
	m.GET("/alerts", s.getAlerts)
	m.GET("/calendar", s.getCalendar)
	m.PUT("/kpi/:period", s.putKpi)

	m.POST("/checklist/categories", s.addCategory)
	m.PATCH("/checklist/categories/:category", s.updateCategory)
	m.DELETE("/checklist/categories/:category", s.removeCategory)
	m.POST("/checklist/categories/:category/items", s.addItem)
	m.PATCH("/checklist/categories/:category/items/:item", s.updateItem)
	m.POST("/checklist/categories/:category/items/:item/toggle", s.toggleItem)
	m.DELETE("/checklist/categories/:category/items/:item", s.removeItem)
	m.POST("/checklist/categories/:category/items/:item/subitems", s.addSubItem)
	m.PATCH("/checklist/categories/:category/items/:item/subitems/:sub", s.updateSubItem)
	m.POST("/checklist/categories/:category/items/:item/subitems/:sub/toggle", s.toggleSubItem)
	m.DELETE("/checklist/categories/:category/items/:item/subitems/:sub", s.removeSubItem)
	m.POST("/checklist/kanban", s.checklistToKanban)
	m.POST("/checklist/sync", s.syncChecklist)
	m.GET("/checklist/export.csv", s.exportChecklist)

	m.POST("/roadmap/goals", s.addGoal)
	m.PATCH("/roadmap/goals/:id", s.updateGoal)
	m.DELETE("/roadmap/goals/:id", s.removeGoal)
	m.POST("/roadmap/milestones", s.addMilestone)
	m.PATCH("/roadmap/milestones/:id", s.updateMilestone)
	m.DELETE("/roadmap/milestones/:id", s.removeMilestone)
	m.POST("/resources", s.addResource)
	m.PATCH("/resources/:id", s.updateResource)
	m.DELETE("/resources/:id", s.removeResource)

	g.GET("/kanban", s.getKanban)
	g.POST("/kanban/tasks", s.addKanbanTask)
	g.PATCH("/kanban/tasks/:id", s.updateKanbanTask)
	g.DELETE("/kanban/tasks/:id", s.removeKanbanTask)
	g.POST("/kanban/tasks/:id/move", s.moveKanbanTask)
	g.GET("/kanban/export.csv", s.exportKanban)

	g.GET("/tasks", s.listTasks)
	g.POST("/tasks", s.insertTasks)
	g.GET("/setup-db", s.setupDB)

	g.GET("/todoist/projects", s.todoistProjects)
	g.POST("/todoist/create-task", s.todoistCreateTask)
	g.POST("/todoist/sync", s.todoistSync)
	g.POST("/todoist/sync-status", s.todoistSyncStatus)
	g.GET("/todoist/user-token", s.getUserToken)
	g.POST("/todoist/user-token", s.postUserToken)

	g.POST("/slack-analyze", s.analyze)
}

func healthz(store storage.DashboardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		if store == nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	}
}

// decode reads a JSON body into v and validates it. Unknown fields are rejected.
func decode(c echo.Context, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return wrapError(http.StatusBadRequest, msgInvalidBody, err)
	}
	return c.Validate(v)
}

// load returns the caller's dashboard, seeding a fresh one on first use.
func (s *Server) load(c echo.Context) (domain.Dashboard, error) {
	var d domain.Dashboard
	err := metricsFrom(c).Time("load", func() error {
		var err error
		d, err = storage.LoadOrSeed(c.Request().Context(), s.Store, userFrom(c), s.Now())
		return err
	})
	if err != nil {
		return d, wrapError(http.StatusServiceUnavailable, "データの読み込みに失敗しました。", err)
	}
	return d, nil
}

// mutate is the read-modify-write cycle of every dashboard change. The last
// write wins when two requests overlap. Subscribers are notified after the
// save.
func (s *Server) mutate(c echo.Context, fn func(d *domain.Dashboard) error) (domain.Dashboard, error) {
	d, err := s.load(c)
	if err != nil {
		return d, err
	}
	if err := fn(&d); err != nil {
		return d, err
	}
	d.Touch(s.Now())
	ctx := c.Request().Context()
	if err := metricsFrom(c).Time("save", func() error { return s.Store.SaveDashboard(ctx, d) }); err != nil {
		return d, wrapError(http.StatusServiceUnavailable, msgStorageFailed, err)
	}
	dashboardWrites.WithLabelValues("api").Inc()
	s.publish(ctx, d.UserID, "api")
	return d, nil
}

// mutateBoard runs fn on the board of the :mode path parameter.
func (s *Server) mutateBoard(c echo.Context, fn func(d *domain.Dashboard, b *domain.ModeBoard) error) (domain.Dashboard, error) {
	mode, err := domain.ParseMode(c.Param("mode"))
	if err != nil {
		return domain.Dashboard{}, err
	}
	return s.mutate(c, func(d *domain.Dashboard) error {
		b, err := d.Board(mode)
		if err != nil {
			return err
		}
		if err := fn(d, b); err != nil {
			return err
		}
		d.SetBoard(b)
		return nil
	})
}

// board loads the dashboard and the board of the :mode path parameter.
func (s *Server) board(c echo.Context) (domain.Dashboard, *domain.ModeBoard, error) {
	mode, err := domain.ParseMode(c.Param("mode"))
	if err != nil {
		return domain.Dashboard{}, nil, err
	}
	d, err := s.load(c)
	if err != nil {
		return d, nil, err
	}
	b, err := d.Board(mode)
	return d, b, err
}

func (s *Server) publish(ctx context.Context, userID, source string) {
	if s.Publisher == nil {
		return
	}
	u := storage.Update{UserID: userID, Source: source, At: s.Now().UnixMilli()}
	if err := s.Publisher.Publish(ctx, u); err != nil {
		s.Logger.WithError(err).WithField("user", userID).Error("updates.publish_failed")
	}
}

// JSONSerializer encodes responses and decodes bodies with sonic.
type JSONSerializer struct{}

func (JSONSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (JSONSerializer) Deserialize(c echo.Context, i any) error {
	err := sonic.ConfigStd.NewDecoder(c.Request().Body).Decode(i)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, msgInvalidJSON).SetInternal(err)
	}
	return nil
}
