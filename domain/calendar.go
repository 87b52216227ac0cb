package domain

import (
	"sort"
	"strings"
)

type CalendarEventKind string

const (
	EventStart    CalendarEventKind = "start"
	EventDeadline CalendarEventKind = "deadline"
)

type CalendarEvent struct {
	ID        string            `json:"id"`
	Date      string            `json:"date"`
	Kind      CalendarEventKind `json:"kind"`
	Title     string            `json:"title"`
	Category  string            `json:"category"`
	Completed bool              `json:"completed"`
}

// CalendarEvents expands checklist start dates and deadlines into events.
// A non-empty month ("YYYY-MM") keeps only events in that month.
func CalendarEvents(c Checklist, month string) []CalendarEvent {
	var out []CalendarEvent
	add := func(id, start, deadline, title, category string, completed bool) {
		if d := NormalizeDate(start); d != "" {
			out = append(out, CalendarEvent{ID: id + "-start", Date: d, Kind: EventStart, Title: title, Category: category, Completed: completed})
		}
		if d := NormalizeDate(deadline); d != "" {
			out = append(out, CalendarEvent{ID: id + "-deadline", Date: d, Kind: EventDeadline, Title: title, Category: category, Completed: completed})
		}
	}
	for _, cat := range c {
		for _, it := range cat.Items {
			add(it.ID, it.StartDate, it.Deadline, it.Label, cat.Title, it.Completed)
			for _, s := range it.SubItems {
				add(s.ID, s.StartDate, s.Deadline, s.Label, cat.Title, s.Completed)
			}
		}
	}
	if month != "" {
		filtered := out[:0]
		for _, ev := range out {
			if strings.HasPrefix(ev.Date, month+"-") {
				filtered = append(filtered, ev)
			}
		}
		out = filtered
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
