package domain

import (
	"sort"
	"time"
)

// DueSoonDays is how far ahead an open deadline counts as due soon.
const DueSoonDays = 3

type AlertKind string

const (
	AlertOverdue AlertKind = "overdue"
	AlertDueSoon AlertKind = "due_soon"
)

type Alert struct {
	Kind     AlertKind `json:"kind"`
	Source   string    `json:"source"`
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Deadline string    `json:"deadline"`
	DaysLeft int       `json:"daysLeft"`
}

// Alerts lists open checklist entries and kanban cards whose deadline has
// passed or falls within DueSoonDays, overdue first then by deadline.
func Alerts(c Checklist, b Board, now time.Time) []Alert {
	today := truncateDay(now)
	var out []Alert
	add := func(source, id, label, deadline string) {
		d, ok := ParseDate(deadline)
		if !ok {
			return
		}
		days := int(d.Sub(today).Hours() / 24)
		switch {
		case days < 0:
			out = append(out, Alert{Kind: AlertOverdue, Source: source, ID: id, Label: label, Deadline: FormatDate(d), DaysLeft: days})
		case days <= DueSoonDays:
			out = append(out, Alert{Kind: AlertDueSoon, Source: source, ID: id, Label: label, Deadline: FormatDate(d), DaysLeft: days})
		}
	}
	for _, cat := range c {
		for _, it := range cat.Items {
			if !it.Completed {
				add(SourceChecklist, it.ID, cat.Title+" - "+it.Label, it.Deadline)
			}
			for _, s := range it.SubItems {
				if !s.Completed {
					add(SourceChecklist, s.ID, cat.Title+" - "+it.Label+" - "+s.Label, s.Deadline)
				}
			}
		}
	}
	for _, t := range b {
		if t.Column != ColumnDone {
			add("kanban", t.ID, t.Title, t.Deadline)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind == AlertOverdue
		}
		return out[i].Deadline < out[j].Deadline
	})
	return out
}
