package domain

import "time"

// ApplyRemoteStatus copies remote completion onto linked checklist entries.
// status maps Todoist task ids to their completion. A linked entry missing
// from status keeps its local state, and entries without an external id are
// never touched. It returns the number of entries whose state changed.
func (c Checklist) ApplyRemoteStatus(status map[string]bool) int {
	changed := 0
	resolve := func(id string, cur bool) bool {
		if v, ok := status[id]; ok {
			return v
		}
		return cur
	}
	for ci := range c {
		for ii := range c[ci].Items {
			it := &c[ci].Items[ii]
			if it.TodoistID != "" {
				if v := resolve(it.TodoistID, it.Completed); v != it.Completed {
					it.Completed = v
					changed++
				}
			}
			for si := range it.SubItems {
				s := &it.SubItems[si]
				if s.TodoistID == "" {
					continue
				}
				if v := resolve(s.TodoistID, s.Completed); v != s.Completed {
					s.Completed = v
					changed++
				}
			}
		}
	}
	return changed
}

// RemoteTask is the normalised view of an open Todoist task used for import.
type RemoteTask struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	Description string `json:"description"`
	Due         string `json:"due,omitempty"`
}

// MergeResult counts the outcome of a kanban import.
type MergeResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

// MergeRemoteTasks reconciles imported tasks into the board by external id.
// A card already linked to the task gets its title, description and deadline
// refreshed; otherwise a new todo card is appended. Cards without an external
// id are left alone.
func (b *Board) MergeRemoteTasks(remote []RemoteTask, now time.Time) MergeResult {
	var res MergeResult
	var fresh []KanbanTask
	for _, r := range remote {
		deadline := NormalizeDate(r.Due)
		if i := b.FindByTodoistID(r.ID); i >= 0 {
			t := &(*b)[i]
			t.Title = r.Content
			t.Description = r.Description
			t.Deadline = deadline
			res.Updated++
			continue
		}
		fresh = append(fresh, KanbanTask{
			Title:       r.Content,
			Column:      ColumnTodo,
			Description: r.Description,
			Deadline:    deadline,
			Source:      SourceTodoist,
			TodoistID:   r.ID,
		})
	}
	res.Added = len(b.AddTasks(fresh, now))
	return res
}
