package api

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"github.com/mizuki-commits/dashboard-template/domain"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	sess, err := s.Auth.Login(req.Username, req.Password)
	if errors.Is(err, errInvalidCredentials) {
		return wrapError(http.StatusUnauthorized, "ユーザー名またはパスワードが正しくありません。", err)
	}
	if err != nil {
		return wrapError(http.StatusInternalServerError, "ログインに失敗しました。", err)
	}
	s.Logger.WithField("user", sess.User).Info("auth.login")
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) session(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"user": userFrom(c)})
}

type modeInfo struct {
	Mode  domain.Mode `json:"mode"`
	Label string      `json:"label"`
}

type modeResponse struct {
	modeInfo
	Modes []modeInfo `json:"modes"`
}

func allModes() []modeInfo {
	out := make([]modeInfo, 0, len(domain.Modes))
	for _, m := range domain.Modes {
		out = append(out, modeInfo{Mode: m, Label: m.Label()})
	}
	return out
}

func (s *Server) getMode(c echo.Context) error {
	d, err := s.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, modeResponse{modeInfo{d.Mode, d.Mode.Label()}, allModes()})
}

type putModeRequest struct {
	Mode string `json:"mode" validate:"required"`
}

func (s *Server) putMode(c echo.Context) error {
	var req putModeRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		return err
	}
	d, err := s.mutate(c, func(d *domain.Dashboard) error {
		d.Mode = mode
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, modeResponse{modeInfo{d.Mode, d.Mode.Label()}, allModes()})
}

type kpiView struct {
	domain.KpiValues
	Achievement int `json:"achievement"`
}

func kpiViews(k domain.KpiData) map[domain.Period]kpiView {
	out := make(map[domain.Period]kpiView, len(domain.Periods))
	for _, p := range domain.Periods {
		v := k[p]
		out[p] = kpiView{KpiValues: v, Achievement: v.Achievement()}
	}
	return out
}

type boardResponse struct {
	Mode       domain.Mode               `json:"mode"`
	Label      string                    `json:"label"`
	Kpi        map[domain.Period]kpiView `json:"kpi"`
	Checklist  domain.Checklist          `json:"checklist"`
	Goals      []domain.RoadmapGoal      `json:"goals"`
	Milestones []domain.RoadmapMilestone `json:"milestones"`
	Resources  []domain.ResourceItem     `json:"resources"`
	Progress   domain.Progress           `json:"progress"`
}

func (s *Server) getModeBoard(c echo.Context) error {
	d, b, err := s.board(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, boardResponse{
		Mode:       b.Mode,
		Label:      b.Mode.Label(),
		Kpi:        kpiViews(b.Kpi),
		Checklist:  b.Checklist,
		Goals:      b.Goals,
		Milestones: b.Milestones,
		Resources:  b.Resources,
		Progress:   domain.ComputeProgress(b.Checklist, d.Kanban),
	})
}

func (s *Server) getProgress(c echo.Context) error {
	d, b, err := s.board(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, domain.ComputeProgress(b.Checklist, d.Kanban))
}

func (s *Server) getAlerts(c echo.Context) error {
	d, b, err := s.board(c)
	if err != nil {
		return err
	}
	alerts := domain.Alerts(b.Checklist, d.Kanban, s.Now())
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	metricsFrom(c).SetCount("alerts", len(alerts))
	return c.JSON(http.StatusOK, echo.Map{"alerts": alerts})
}

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

func (s *Server) getCalendar(c echo.Context) error {
	month := c.QueryParam("month")
	if month != "" && !monthPattern.MatchString(month) {
		return newError(http.StatusBadRequest, "month は YYYY-MM 形式で指定してください。")
	}
	_, b, err := s.board(c)
	if err != nil {
		return err
	}
	events := domain.CalendarEvents(b.Checklist, month)
	if events == nil {
		events = []domain.CalendarEvent{}
	}
	return c.JSON(http.StatusOK, echo.Map{"events": events})
}

func (s *Server) putKpi(c echo.Context) error {
	period, err := domain.ParsePeriod(c.Param("period"))
	if err != nil {
		return err
	}
	var patch domain.KpiPatch
	if err := decode(c, &patch); err != nil {
		return err
	}
	var v domain.KpiValues
	_, err = s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		v = b.Kpi.Apply(period, patch)
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, kpiView{KpiValues: v, Achievement: v.Achievement()})
}
