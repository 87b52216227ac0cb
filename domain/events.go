package domain

// Todoist webhook event names handled by the processor.
const (
	EventItemCompleted = "item:completed"
	EventItemUpdated   = "item:updated"
	EventItemDeleted   = "item:deleted"
)

// TodoistEvent is the queued form of an accepted webhook delivery.
type TodoistEvent struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	EventName   string `json:"eventName"`
	TaskID      string `json:"taskId"`
	Completed   bool   `json:"completed"`
	Content     string `json:"content,omitempty"`
	Description string `json:"description,omitempty"`
	Due         string `json:"due,omitempty"`
	ReceivedAt  int64  `json:"receivedAt"`
}

// ApplyTodoistEvent updates every kanban card and checklist entry linked to
// the event's task. It reports whether anything changed.
func (d *Dashboard) ApplyTodoistEvent(ev TodoistEvent) bool {
	if ev.TaskID == "" {
		return false
	}
	changed := false
	for i := range d.Kanban {
		t := &d.Kanban[i]
		if t.TodoistID != ev.TaskID {
			continue
		}
		switch ev.EventName {
		case EventItemCompleted:
			if t.Column != ColumnDone {
				t.Column = ColumnDone
				changed = true
			}
		case EventItemUpdated:
			if ev.Content != "" && t.Title != ev.Content {
				t.Title = ev.Content
				changed = true
			}
			if t.Description != ev.Description {
				t.Description = ev.Description
				changed = true
			}
			if due := NormalizeDate(ev.Due); due != "" && t.Deadline != due {
				t.Deadline = due
				changed = true
			}
		case EventItemDeleted:
			t.TodoistID = ""
			changed = true
		}
	}
	for m, b := range d.Boards {
		if applyToChecklist(b.Checklist, ev) {
			d.Boards[m] = b
			changed = true
		}
	}
	return changed
}

func applyToChecklist(c Checklist, ev TodoistEvent) bool {
	changed := false
	apply := func(completed *bool, deadline, todoistID *string) {
		if *todoistID != ev.TaskID {
			return
		}
		switch ev.EventName {
		case EventItemCompleted:
			if !*completed {
				*completed = true
				changed = true
			}
		case EventItemUpdated:
			if *completed != ev.Completed {
				*completed = ev.Completed
				changed = true
			}
			if due := NormalizeDate(ev.Due); due != "" && *deadline != due {
				*deadline = due
				changed = true
			}
		case EventItemDeleted:
			*todoistID = ""
			changed = true
		}
	}
	for ci := range c {
		for ii := range c[ci].Items {
			it := &c[ci].Items[ii]
			apply(&it.Completed, &it.Deadline, &it.TodoistID)
			for si := range it.SubItems {
				s := &it.SubItems[si]
				apply(&s.Completed, &s.Deadline, &s.TodoistID)
			}
		}
	}
	return changed
}
