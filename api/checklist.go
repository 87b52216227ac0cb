package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/mizuki-commits/dashboard-template/domain"
	"github.com/mizuki-commits/dashboard-template/todoist"
)

type categoryRequest struct {
	Title  string `json:"title"`
	IconID string `json:"iconId"`
}

type categoryPatchRequest struct {
	Title  *string `json:"title"`
	IconID *string `json:"iconId"`
}

type entryRequest struct {
	Label     string `json:"label"`
	Deadline  string `json:"deadline" validate:"date_ymd"`
	StartDate string `json:"startDate" validate:"date_ymd"`
	Assignee  string `json:"assignee" validate:"omitempty,oneof=MIZUKI NISHIKATA"`
	// Remind without RemindDays uses domain.DefaultRemindDays; RemindDays
	// alone also enables it.
	Remind     bool `json:"remind"`
	RemindDays int  `json:"remindDays" validate:"remind_days"`
}

func (r entryRequest) entry() domain.NewEntry {
	days := r.RemindDays
	if r.Remind && days == 0 {
		days = domain.DefaultRemindDays
	}
	return domain.NewEntry{
		Label:      r.Label,
		Deadline:   r.Deadline,
		StartDate:  r.StartDate,
		Assignee:   domain.Assignee(r.Assignee),
		RemindDays: days,
	}
}

type entryPatchRequest struct {
	Label     *string `json:"label" validate:"omitempty,notblank"`
	Completed *bool   `json:"completed"`
	Deadline  *string `json:"deadline" validate:"omitempty,date_ymd"`
	StartDate *string `json:"startDate" validate:"omitempty,date_ymd"`
	Assignee  *string `json:"assignee" validate:"omitempty,oneof=MIZUKI NISHIKATA"`
}

func (r entryPatchRequest) patch() domain.EntryPatch {
	p := domain.EntryPatch{
		Label:     r.Label,
		Completed: r.Completed,
		Deadline:  r.Deadline,
		StartDate: r.StartDate,
	}
	if r.Assignee != nil {
		a := domain.Assignee(*r.Assignee)
		p.Assignee = &a
	}
	return p
}

func (s *Server) addCategory(c echo.Context) error {
	var req categoryRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	var cat domain.ChecklistCategory
	_, err := s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		iconID := req.IconID
		if iconID == "" {
			iconID = b.Mode.DefaultIcon()
		}
		cat = b.Checklist.AddCategory(req.Title, iconID)
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cat)
}

func (s *Server) updateCategory(c echo.Context) error {
	var req categoryPatchRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	var cat domain.ChecklistCategory
	_, err := s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		var err error
		cat, err = b.Checklist.UpdateCategory(c.Param("category"), req.Title, req.IconID)
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cat)
}

func (s *Server) removeCategory(c echo.Context) error {
	_, err := s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		return b.Checklist.RemoveCategory(c.Param("category"))
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) addItem(c echo.Context) error {
	var req entryRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	catID := c.Param("category")
	var item domain.ChecklistItem
	_, err := s.mutateBoard(c, func(d *domain.Dashboard, b *domain.ModeBoard) error {
		var err error
		item, err = b.Checklist.AddItem(catID, req.entry(), s.Now())
		if err != nil {
			return err
		}
		cat, _ := b.Checklist.Category(catID)
		if id := s.createOnAdd(c, d, item.Label, cat.Title+" - "+item.Label, item.Deadline); id != "" {
			item, _ = b.Checklist.UpdateItem(catID, item.ID, domain.EntryPatch{TodoistID: &id})
		}
		for _, sub := range item.SubItems {
			desc := fmt.Sprintf("%s - %s - %s", cat.Title, item.Label, sub.Label)
			if id := s.createOnAdd(c, d, sub.Label, desc, sub.Deadline); id != "" {
				_, _ = b.Checklist.UpdateSubItem(catID, item.ID, sub.ID, domain.EntryPatch{TodoistID: &id})
			}
		}
		_, item, err = b.Checklist.Item(catID, item.ID)
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, item)
}

func (s *Server) updateItem(c echo.Context) error {
	var req entryPatchRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	var item domain.ChecklistItem
	_, err := s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		var err error
		item, err = b.Checklist.UpdateItem(c.Param("category"), c.Param("item"), req.patch())
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

func (s *Server) toggleItem(c echo.Context) error {
	var item domain.ChecklistItem
	_, err := s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		var err error
		item, err = b.Checklist.ToggleItem(c.Param("category"), c.Param("item"))
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

func (s *Server) removeItem(c echo.Context) error {
	_, err := s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		return b.Checklist.RemoveItem(c.Param("category"), c.Param("item"))
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) addSubItem(c echo.Context) error {
	var req entryRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	catID, itemID := c.Param("category"), c.Param("item")
	var added []domain.ChecklistSubItem
	_, err := s.mutateBoard(c, func(d *domain.Dashboard, b *domain.ModeBoard) error {
		var err error
		added, err = b.Checklist.AddSubItem(catID, itemID, req.entry(), s.Now())
		if err != nil {
			return err
		}
		cat, item, _ := b.Checklist.Item(catID, itemID)
		for i, sub := range added {
			desc := fmt.Sprintf("%s - %s - %s", cat.Title, item.Label, sub.Label)
			if id := s.createOnAdd(c, d, sub.Label, desc, sub.Deadline); id != "" {
				added[i], _ = b.Checklist.UpdateSubItem(catID, itemID, sub.ID, domain.EntryPatch{TodoistID: &id})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"subItems": added})
}

func (s *Server) updateSubItem(c echo.Context) error {
	var req entryPatchRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	var sub domain.ChecklistSubItem
	_, err := s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		var err error
		sub, err = b.Checklist.UpdateSubItem(c.Param("category"), c.Param("item"), c.Param("sub"), req.patch())
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sub)
}

func (s *Server) toggleSubItem(c echo.Context) error {
	var sub domain.ChecklistSubItem
	_, err := s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		var err error
		sub, err = b.Checklist.ToggleSubItem(c.Param("category"), c.Param("item"), c.Param("sub"))
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sub)
}

func (s *Server) removeSubItem(c echo.Context) error {
	_, err := s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		return b.Checklist.RemoveSubItem(c.Param("category"), c.Param("item"), c.Param("sub"))
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// createOnAdd mirrors a new checklist entry into the user's default Todoist
// project. It returns the Todoist id, or "" when nothing was created. A
// failed call only logs; the checklist change goes through.
func (s *Server) createOnAdd(c echo.Context, d *domain.Dashboard, content, description, deadline string) string {
	projectID := d.Todoist.DefaultProjectID
	if projectID == "" {
		return ""
	}
	client := s.todoistFor("", d)
	if !client.HasToken() {
		return ""
	}
	var task todoist.Task
	err := metricsFrom(c).Time("upstream", func() error {
		var err error
		task, err = client.CreateTask(c.Request().Context(), todoist.CreateTaskParams{
			Content:     content,
			ProjectID:   projectID,
			Description: description,
			DueString:   deadline,
		})
		return err
	})
	if err != nil {
		s.Logger.WithError(err).WithFields(log.Fields{
			"user":    d.UserID,
			"project": projectID,
		}).Warn("todoist.create_on_add_failed")
		return ""
	}
	return task.ID
}

type checklistToKanbanRequest struct {
	Selections []domain.ChecklistSelection `json:"selections" validate:"required,min=1,dive"`
}

func (s *Server) checklistToKanban(c echo.Context) error {
	var req checklistToKanbanRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	var added []domain.KanbanTask
	_, err := s.mutateBoard(c, func(d *domain.Dashboard, b *domain.ModeBoard) error {
		tasks := domain.TasksFromChecklist(b.Checklist, b.Mode, req.Selections)
		if len(tasks) == 0 {
			return domain.ErrUnknownEntries
		}
		added = d.Kanban.AddTasks(tasks, s.Now())
		return nil
	})
	if err != nil {
		return err
	}
	metricsFrom(c).SetCount("tasks_added", len(added))
	return c.JSON(http.StatusCreated, echo.Map{"tasks": added})
}

type syncChecklistRequest struct {
	ProjectID string `json:"projectId"`
	UserToken string `json:"userToken"`
}

type syncChecklistResponse struct {
	Changed   int                  `json:"changed"`
	Tasks     []todoist.TaskStatus `json:"tasks"`
	Checklist domain.Checklist     `json:"checklist"`
}

// syncChecklist pulls completion of linked entries from Todoist. Linked ids
// are looked up one by one; the project listing is only used when nothing is
// linked, since it holds open tasks only.
func (s *Server) syncChecklist(c echo.Context) error {
	var req syncChecklistRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	d, b, err := s.board(c)
	if err != nil {
		return err
	}
	ids := b.Checklist.TodoistIDs()
	if req.ProjectID == "" && len(ids) == 0 {
		return c.JSON(http.StatusOK, syncChecklistResponse{Tasks: []todoist.TaskStatus{}, Checklist: b.Checklist})
	}
	client := s.todoistFor(req.UserToken, &d)
	if !client.HasToken() {
		return newError(http.StatusUnauthorized, msgNoTodoistToken)
	}
	projectID := req.ProjectID
	if len(ids) > 0 {
		projectID = ""
	}
	status, err := s.fetchStatus(c, client, projectID, ids)
	if err != nil {
		return err
	}

	var changed int
	var checklist domain.Checklist
	_, err = s.mutateBoard(c, func(_ *domain.Dashboard, b *domain.ModeBoard) error {
		changed = b.Checklist.ApplyRemoteStatus(status.Map())
		checklist = b.Checklist
		return nil
	})
	if err != nil {
		return err
	}
	metricsFrom(c).SetCount("entries_changed", changed)
	return c.JSON(http.StatusOK, syncChecklistResponse{Changed: changed, Tasks: status.Tasks, Checklist: checklist})
}

func (s *Server) fetchStatus(c echo.Context, client *todoist.Client, projectID string, ids []string) (todoist.StatusResult, error) {
	var status todoist.StatusResult
	err := metricsFrom(c).Time("upstream", func() error {
		var err error
		status, err = client.FetchStatus(c.Request().Context(), projectID, ids)
		return err
	})
	if err != nil {
		return status, todoistError(err, "Todoist からタスクの状態を取得できませんでした。")
	}
	if status.Tasks == nil {
		status.Tasks = []todoist.TaskStatus{}
	}
	return status, nil
}

func (s *Server) exportChecklist(c echo.Context) error {
	_, b, err := s.board(c)
	if err != nil {
		return err
	}
	return writeCSV(c, "checklist-"+string(b.Mode)+".csv", todoist.ChecklistRows(b.Checklist))
}

// writeCSV sends rows as a Todoist import file with a UTF-8 BOM so
// spreadsheet tools detect the encoding.
func writeCSV(c echo.Context, filename string, rows []todoist.CSVRow) error {
	var buf bytes.Buffer
	buf.WriteString(todoist.BOM)
	if err := todoist.WriteCSV(&buf, rows); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
