package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mizuki-commits/dashboard-template/domain"
	"github.com/mizuki-commits/dashboard-template/storage"
)

const (
	defaultTaskListLimit = 100
	maxTaskListLimit     = 1000

	msgTaskSaveFailed = "タスクの保存に失敗しました。DBが未初期化の場合は GET /api/setup-db を実行してください。"
	msgTaskListFailed = "タスクの取得に失敗しました。"
	msgSetupFailed    = "DBの初期化に失敗しました。POSTGRES_URL 等の環境変数を確認してください。"
)

type insertTasksRequest struct {
	Tasks      []domain.LoggedTask `json:"tasks"`
	AutoRemind bool                `json:"autoRemind"`
}

func (s *Server) insertTasks(c echo.Context) error {
	var req insertTasksRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	if len(req.Tasks) == 0 {
		return newError(http.StatusBadRequest, "tasks 配列が必要です。")
	}
	if s.TaskLog == nil {
		return newError(http.StatusServiceUnavailable, msgTaskSaveFailed)
	}
	var ids []string
	err := metricsFrom(c).Time("insert", func() error {
		var err error
		ids, err = s.TaskLog.Insert(c.Request().Context(), req.Tasks, req.AutoRemind, s.Now())
		return err
	})
	if err != nil {
		return wrapError(http.StatusServiceUnavailable, msgTaskSaveFailed, err)
	}
	if ids == nil {
		ids = []string{}
	}
	metricsFrom(c).SetCount("tasks_inserted", len(ids))
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "ids": ids})
}

func (s *Server) listTasks(c echo.Context) error {
	limit := defaultTaskListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return newError(http.StatusBadRequest, "limit は正の整数で指定してください。")
		}
		limit = min(n, maxTaskListLimit)
	}
	if s.TaskLog == nil {
		return newError(http.StatusServiceUnavailable, msgTaskListFailed)
	}
	var tasks []domain.LoggedTask
	err := metricsFrom(c).Time("fetch", func() error {
		var err error
		tasks, err = s.TaskLog.List(c.Request().Context(), limit)
		return err
	})
	if err != nil {
		e := wrapError(http.StatusServiceUnavailable, msgTaskListFailed, err)
		if errors.Is(err, storage.ErrSchemaMissing) {
			e.Message = msgTaskSaveFailed
		}
		return e
	}
	if tasks == nil {
		tasks = []domain.LoggedTask{}
	}
	metricsFrom(c).SetCount("tasks_returned", len(tasks))
	return c.JSON(http.StatusOK, echo.Map{"tasks": tasks})
}

func (s *Server) setupDB(c echo.Context) error {
	if s.TaskLog == nil {
		return newError(http.StatusServiceUnavailable, msgSetupFailed)
	}
	if err := metricsFrom(c).Time("schema", func() error { return s.TaskLog.EnsureSchema(c.Request().Context()) }); err != nil {
		return wrapError(http.StatusServiceUnavailable, msgSetupFailed, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "message": "tasks テーブルを用意しました。"})
}
