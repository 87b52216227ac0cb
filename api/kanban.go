package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mizuki-commits/dashboard-template/domain"
	"github.com/mizuki-commits/dashboard-template/todoist"
)

type kanbanTaskRequest struct {
	Title        string               `json:"title" validate:"notblank"`
	Column       string               `json:"column" validate:"omitempty,oneof=todo in_progress done"`
	Deadline     string               `json:"deadline" validate:"date_ymd"`
	Description  string               `json:"description"`
	LinkedEntity *domain.LinkedEntity `json:"linkedEntity"`
	Assignee     string               `json:"assignee" validate:"omitempty,oneof=MIZUKI NISHIKATA"`
	Source       string               `json:"source" validate:"omitempty,oneof=manual checklist slack todoist"`
	TodoistID    string               `json:"todoistId"`
}

type kanbanPatchRequest struct {
	Title        *string              `json:"title" validate:"omitempty,notblank"`
	Column       *string              `json:"column" validate:"omitempty,oneof=todo in_progress done"`
	Deadline     *string              `json:"deadline" validate:"omitempty,date_ymd"`
	Description  *string              `json:"description"`
	LinkedEntity *domain.LinkedEntity `json:"linkedEntity"`
	Assignee     *string              `json:"assignee" validate:"omitempty,oneof=MIZUKI NISHIKATA"`
	TodoistID    *string              `json:"todoistId"`
}

func (r kanbanPatchRequest) patch() domain.KanbanPatch {
	p := domain.KanbanPatch{
		Title:        r.Title,
		Deadline:     r.Deadline,
		Description:  r.Description,
		LinkedEntity: r.LinkedEntity,
		TodoistID:    r.TodoistID,
	}
	if r.Column != nil {
		col := domain.Column(*r.Column)
		p.Column = &col
	}
	if r.Assignee != nil {
		a := domain.Assignee(*r.Assignee)
		p.Assignee = &a
	}
	return p
}

type kanbanResponse struct {
	Tasks    domain.Board    `json:"tasks"`
	Progress domain.Progress `json:"progress"`
}

func (s *Server) getKanban(c echo.Context) error {
	d, err := s.load(c)
	if err != nil {
		return err
	}
	board := d.Kanban
	if col := c.QueryParam("column"); col != "" {
		column, err := domain.ParseColumn(col)
		if err != nil {
			return err
		}
		filtered := domain.Board{}
		for _, t := range board {
			if t.Column == column {
				filtered = append(filtered, t)
			}
		}
		board = filtered
	}
	if board == nil {
		board = domain.Board{}
	}
	metricsFrom(c).SetCount("tasks_returned", len(board))
	return c.JSON(http.StatusOK, kanbanResponse{Tasks: board, Progress: domain.ComputeProgress(nil, d.Kanban)})
}

func (s *Server) addKanbanTask(c echo.Context) error {
	var req kanbanTaskRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	source := req.Source
	if source == "" {
		source = domain.SourceManual
	}
	var task domain.KanbanTask
	_, err := s.mutate(c, func(d *domain.Dashboard) error {
		task = d.Kanban.AddTask(domain.KanbanTask{
			Title:        req.Title,
			Column:       domain.Column(req.Column),
			Deadline:     domain.NormalizeDate(req.Deadline),
			Description:  req.Description,
			LinkedEntity: req.LinkedEntity,
			Assignee:     domain.Assignee(req.Assignee),
			Source:       source,
			TodoistID:    req.TodoistID,
		}, s.Now())
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, task)
}

func (s *Server) updateKanbanTask(c echo.Context) error {
	var req kanbanPatchRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	var task domain.KanbanTask
	_, err := s.mutate(c, func(d *domain.Dashboard) error {
		var err error
		task, err = d.Kanban.UpdateTask(c.Param("id"), req.patch())
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}

type moveRequest struct {
	Column string `json:"column" validate:"required"`
}

func (s *Server) moveKanbanTask(c echo.Context) error {
	var req moveRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	col, err := domain.ParseColumn(req.Column)
	if err != nil {
		return err
	}
	var task domain.KanbanTask
	_, err = s.mutate(c, func(d *domain.Dashboard) error {
		var err error
		task, err = d.Kanban.MoveTask(c.Param("id"), col)
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}

func (s *Server) removeKanbanTask(c echo.Context) error {
	_, err := s.mutate(c, func(d *domain.Dashboard) error {
		return d.Kanban.RemoveTask(c.Param("id"))
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) exportKanban(c echo.Context) error {
	d, err := s.load(c)
	if err != nil {
		return err
	}
	return writeCSV(c, "kanban.csv", todoist.KanbanRows(d.Kanban))
}
