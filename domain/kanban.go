package domain

import (
	"fmt"
	"strings"
	"time"
)

// Column is a kanban lane.
type Column string

const (
	ColumnTodo       Column = "todo"
	ColumnInProgress Column = "in_progress"
	ColumnDone       Column = "done"
)

func ParseColumn(s string) (Column, error) {
	switch Column(s) {
	case ColumnTodo, ColumnInProgress, ColumnDone:
		return Column(s), nil
	}
	return "", ErrInvalidColumn
}

type LinkedEntityType string

const (
	EntitySchool   LinkedEntityType = "school"
	EntityCompany  LinkedEntityType = "company"
	EntitySales    LinkedEntityType = "sales"
	EntityProject  LinkedEntityType = "project"
	EntityAIClient LinkedEntityType = "ai_client"
)

type LinkedEntity struct {
	Type LinkedEntityType `json:"type"`
	Name string           `json:"name"`
}

// Task sources.
const (
	SourceManual    = "manual"
	SourceChecklist = "checklist"
	SourceSlack     = "slack"
	SourceTodoist   = "todoist"
)

type KanbanTask struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Column       Column        `json:"column"`
	Deadline     string        `json:"deadline,omitempty"`
	Description  string        `json:"description,omitempty"`
	LinkedEntity *LinkedEntity `json:"linkedEntity,omitempty"`
	Assignee     Assignee      `json:"assignee,omitempty"`
	Source       string        `json:"source,omitempty"`
	TodoistID    string        `json:"todoistId,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// KanbanPatch carries a partial task update.
type KanbanPatch struct {
	Title        *string
	Column       *Column
	Deadline     *string
	Description  *string
	LinkedEntity *LinkedEntity
	Assignee     *Assignee
	TodoistID    *string
}

// Board is the user's kanban, shared by every mode.
type Board []KanbanTask

// AddTasks assigns ids and creation times and appends the tasks.
func (b *Board) AddTasks(tasks []KanbanTask, now time.Time) []KanbanTask {
	added := make([]KanbanTask, 0, len(tasks))
	for _, t := range tasks {
		t.ID = NewID(PrefixKanban)
		t.CreatedAt = now.UTC()
		if t.Column == "" {
			t.Column = ColumnTodo
		}
		t.Title = strings.TrimSpace(t.Title)
		added = append(added, t)
	}
	*b = append(*b, added...)
	return added
}

func (b *Board) AddTask(t KanbanTask, now time.Time) KanbanTask {
	return b.AddTasks([]KanbanTask{t}, now)[0]
}

func (b Board) index(id string) (int, error) {
	for i := range b {
		if b[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("task %s: %w", id, ErrNotFound)
}

func (b Board) UpdateTask(id string, p KanbanPatch) (KanbanTask, error) {
	i, err := b.index(id)
	if err != nil {
		return KanbanTask{}, err
	}
	t := &b[i]
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Column != nil {
		t.Column = *p.Column
	}
	if p.Deadline != nil {
		t.Deadline = *p.Deadline
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.LinkedEntity != nil {
		if p.LinkedEntity.Type == "" {
			t.LinkedEntity = nil
		} else {
			le := *p.LinkedEntity
			t.LinkedEntity = &le
		}
	}
	if p.Assignee != nil {
		t.Assignee = *p.Assignee
	}
	if p.TodoistID != nil {
		t.TodoistID = *p.TodoistID
	}
	return *t, nil
}

func (b Board) MoveTask(id string, col Column) (KanbanTask, error) {
	return b.UpdateTask(id, KanbanPatch{Column: &col})
}

func (b *Board) RemoveTask(id string) error {
	i, err := b.index(id)
	if err != nil {
		return err
	}
	*b = append((*b)[:i], (*b)[i+1:]...)
	return nil
}

// FindByTodoistID returns the index of the task linked to the external id.
func (b Board) FindByTodoistID(todoistID string) int {
	if todoistID == "" {
		return -1
	}
	for i := range b {
		if b[i].TodoistID == todoistID {
			return i
		}
	}
	return -1
}

// ChecklistSelection identifies one checklist entry. An empty SubItemID
// selects the item itself.
type ChecklistSelection struct {
	CategoryID string `json:"categoryId" validate:"required"`
	ItemID     string `json:"itemId" validate:"required"`
	SubItemID  string `json:"subItemId,omitempty"`
}

// TasksFromChecklist builds todo cards for the selected entries, walking the
// checklist in order. Each card links to its category using the mode's entity type.
func TasksFromChecklist(c Checklist, mode Mode, selected []ChecklistSelection) []KanbanTask {
	want := make(map[ChecklistSelection]struct{}, len(selected))
	for _, s := range selected {
		want[s] = struct{}{}
	}
	var out []KanbanTask
	for _, cat := range c {
		link := &LinkedEntity{Type: mode.LinkedEntityType(), Name: cat.Title}
		for _, it := range cat.Items {
			if _, ok := want[ChecklistSelection{CategoryID: cat.ID, ItemID: it.ID}]; ok {
				out = append(out, KanbanTask{
					Title:        it.Label,
					Column:       ColumnTodo,
					Deadline:     it.Deadline,
					LinkedEntity: link,
					Source:       SourceChecklist,
				})
			}
			for _, s := range it.SubItems {
				if _, ok := want[ChecklistSelection{CategoryID: cat.ID, ItemID: it.ID, SubItemID: s.ID}]; ok {
					out = append(out, KanbanTask{
						Title:        s.Label,
						Column:       ColumnTodo,
						Deadline:     s.Deadline,
						LinkedEntity: link,
						Assignee:     s.Assignee,
						Source:       SourceChecklist,
					})
				}
			}
		}
	}
	return out
}
