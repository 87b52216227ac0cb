package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mizuki-commits/dashboard-template/domain"
)

type goalRequest struct {
	Title      string `json:"title"`
	TargetDate string `json:"targetDate" validate:"date_ymd"`
	Status     string `json:"status" validate:"omitempty,oneof=not_started in_progress achieved"`
	Note       string `json:"note"`
}

type goalPatchRequest struct {
	Title      *string `json:"title" validate:"omitempty,notblank"`
	TargetDate *string `json:"targetDate" validate:"omitempty,date_ymd"`
	Status     *string `json:"status"`
	Note       *string `json:"note"`
}

type milestoneRequest struct {
	Title  string `json:"title" validate:"notblank"`
	Date   string `json:"date" validate:"date_ymd"`
	Status string `json:"status" validate:"omitempty,oneof=pending completed"`
	Note   string `json:"note"`
}

type milestonePatchRequest struct {
	Title  *string `json:"title" validate:"omitempty,notblank"`
	Date   *string `json:"date" validate:"omitempty,date_ymd"`
	Status *string `json:"status"`
	Note   *string `json:"note"`
}

type resourceRequest struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Type        string `json:"type" validate:"omitempty,oneof=document link file"`
	Description string `json:"description"`
}

func (s *Server) addGoal(c echo.Context) error {
	var req goalRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	var g domain.RoadmapGoal
	_, err := s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		g = domain.NewGoal(domain.RoadmapGoal{
			Title:      req.Title,
			TargetDate: req.TargetDate,
			Status:     domain.GoalStatus(req.Status),
			Note:       req.Note,
		}, s.Now())
		b.Goals = append(b.Goals, g)
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, g)
}

func (s *Server) updateGoal(c echo.Context) error {
	var req goalPatchRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	patch := domain.GoalPatch{Title: req.Title, TargetDate: req.TargetDate, Note: req.Note}
	if req.Status != nil {
		st := domain.GoalStatus(*req.Status)
		if !domain.ValidGoalStatus(st) {
			return domain.ErrInvalidStatus
		}
		patch.Status = &st
	}
	var g domain.RoadmapGoal
	_, err := s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		var err error
		g, err = b.UpdateGoal(c.Param("id"), patch)
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, g)
}

func (s *Server) removeGoal(c echo.Context) error {
	_, err := s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		return b.RemoveGoal(c.Param("id"))
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) addMilestone(c echo.Context) error {
	var req milestoneRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	var m domain.RoadmapMilestone
	_, err := s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		m = domain.NewMilestone(domain.RoadmapMilestone{
			Title:  req.Title,
			Date:   req.Date,
			Status: domain.MilestoneStatus(req.Status),
			Note:   req.Note,
		}, s.Now())
		b.Milestones = append(b.Milestones, m)
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func (s *Server) updateMilestone(c echo.Context) error {
	var req milestonePatchRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	patch := domain.MilestonePatch{Title: req.Title, Date: req.Date, Note: req.Note}
	if req.Status != nil {
		st := domain.MilestoneStatus(*req.Status)
		if !domain.ValidMilestoneStatus(st) {
			return domain.ErrInvalidStatus
		}
		patch.Status = &st
	}
	var m domain.RoadmapMilestone
	_, err := s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		var err error
		m, err = b.UpdateMilestone(c.Param("id"), patch)
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (s *Server) removeMilestone(c echo.Context) error {
	_, err := s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		return b.RemoveMilestone(c.Param("id"))
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (r resourceRequest) item() domain.ResourceItem {
	return domain.ResourceItem{
		Title:       r.Title,
		URL:         r.URL,
		Type:        domain.ResourceType(r.Type),
		Description: r.Description,
	}
}

func (s *Server) addResource(c echo.Context) error {
	var req resourceRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	res, err := domain.NewResource(req.item())
	if err != nil {
		return wrapError(http.StatusBadRequest, "タイトルとURLは必須です。", err)
	}
	_, err = s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		b.Resources = append(b.Resources, res)
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

func (s *Server) updateResource(c echo.Context) error {
	var req resourceRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	var res domain.ResourceItem
	_, err := s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		var err error
		res, err = b.UpdateResource(c.Param("id"), req.item())
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) removeResource(c echo.Context) error {
	_, err := s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		return b.RemoveResource(c.Param("id"))
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
