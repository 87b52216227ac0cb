package domain

import (
	"strings"
	"time"
)

// LoggedTask is a row of the Postgres tasks log.
type LoggedTask struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Description string    `json:"description,omitempty"`
	Priority    int       `json:"priority"`
	Indent      int       `json:"indent"`
	Author      string    `json:"author,omitempty"`
	Responsible string    `json:"responsible,omitempty"`
	Date        string    `json:"date,omitempty"`
	ParentID    string    `json:"parent_id,omitempty"`
	IsRemind    bool      `json:"is_remind"`
	CreatedAt   time.Time `json:"created_at"`
}

// ClampPriority keeps a Todoist priority within 1..4.
func ClampPriority(p int) int {
	return min(4, max(1, p))
}

// Normalize applies the insert defaults: trimmed content, priority within
// 1..4, indent 1.
func (t LoggedTask) Normalize() LoggedTask {
	t.Content = strings.TrimSpace(t.Content)
	t.Priority = ClampPriority(t.Priority)
	if t.Indent <= 0 {
		t.Indent = 1
	}
	t.Date = NormalizeDate(t.Date)
	return t
}

// InsertableTasks normalizes tasks and drops the ones whose content is blank.
func InsertableTasks(tasks []LoggedTask) []LoggedTask {
	out := make([]LoggedTask, 0, len(tasks))
	for _, t := range tasks {
		t = t.Normalize()
		if t.Content == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

// RemindFor builds the follow-up row for a logged task, or false when the
// content has no remind keyword.
func RemindFor(parent LoggedTask, days int, now time.Time) (LoggedTask, bool) {
	s, ok := SuggestRemind(parent.Content)
	if !ok {
		return LoggedTask{}, false
	}
	if days <= 0 {
		days = s.DaysAfter
	}
	return LoggedTask{
		Content:     s.Label,
		Description: parent.Description,
		Priority:    parent.Priority,
		Indent:      2,
		Author:      parent.Author,
		Responsible: parent.Responsible,
		Date:        AddDays(parent.Date, days, now),
		ParentID:    parent.ID,
		IsRemind:    true,
	}, true
}
