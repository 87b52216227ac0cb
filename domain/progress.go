package domain

import "math"

// Progress summarises completion of a checklist and the kanban.
type Progress struct {
	ChecklistTotal     int `json:"checklistTotal"`
	ChecklistCompleted int `json:"checklistCompleted"`
	ChecklistPercent   int `json:"checklistPercent"`
	TasksTotal         int `json:"tasksTotal"`
	TasksDone          int `json:"tasksDone"`
	TasksPercent       int `json:"tasksPercent"`
	OverallPercent     int `json:"overallPercent"`
}

// Count walks items and sub-items, both count as one entry.
func (c Checklist) Count() (completed, total int) {
	for _, cat := range c {
		for _, it := range cat.Items {
			total++
			if it.Completed {
				completed++
			}
			for _, s := range it.SubItems {
				total++
				if s.Completed {
					completed++
				}
			}
		}
	}
	return completed, total
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

// ComputeProgress combines checklist and kanban completion. The overall value
// averages both when both have entries, otherwise it is whichever has entries.
func ComputeProgress(c Checklist, b Board) Progress {
	done, total := c.Count()
	p := Progress{
		ChecklistTotal:     total,
		ChecklistCompleted: done,
		ChecklistPercent:   percent(done, total),
		TasksTotal:         len(b),
	}
	for _, t := range b {
		if t.Column == ColumnDone {
			p.TasksDone++
		}
	}
	p.TasksPercent = percent(p.TasksDone, p.TasksTotal)

	switch {
	case p.ChecklistTotal > 0 && p.TasksTotal > 0:
		p.OverallPercent = int(math.Round(float64(p.ChecklistPercent+p.TasksPercent) / 2))
	case p.ChecklistTotal > 0:
		p.OverallPercent = p.ChecklistPercent
	case p.TasksTotal > 0:
		p.OverallPercent = p.TasksPercent
	}
	return p
}
