package domain

import (
	"fmt"
	"time"
)

// ModeBoard is everything one mode tracks apart from the shared kanban.
type ModeBoard struct {
	Mode       Mode               `json:"mode"`
	Kpi        KpiData            `json:"kpi"`
	Checklist  Checklist          `json:"checklist"`
	Goals      []RoadmapGoal      `json:"goals"`
	Milestones []RoadmapMilestone `json:"milestones"`
	Resources  []ResourceItem     `json:"resources"`
}

// TodoistSettings are the per-user integration settings.
type TodoistSettings struct {
	Token            string `json:"token,omitempty"`
	DefaultProjectID string `json:"defaultProjectId,omitempty"`
}

// Dashboard is the whole persisted state of one user.
type Dashboard struct {
	UserID    string             `json:"userId"`
	Mode      Mode               `json:"mode"`
	Boards    map[Mode]ModeBoard `json:"boards"`
	Kanban    Board              `json:"kanban"`
	Todoist   TodoistSettings    `json:"todoist"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Public is the dashboard as sent to clients: the stored Todoist token is
// dropped, the rest is shared with d.
func (d Dashboard) Public() Dashboard {
	d.Todoist.Token = ""
	return d
}

// NewDashboard returns the state of a user seen for the first time: default
// mode, stock KPI targets and the seeded checklist of every mode.
func NewDashboard(userID string, now time.Time) Dashboard {
	d := Dashboard{
		UserID:    userID,
		Mode:      DefaultMode,
		Boards:    make(map[Mode]ModeBoard, len(Modes)),
		Kanban:    Board{},
		UpdatedAt: now.UTC(),
	}
	for _, m := range Modes {
		d.Boards[m] = newModeBoard(m, now)
	}
	return d
}

func newModeBoard(m Mode, now time.Time) ModeBoard {
	return ModeBoard{
		Mode:       m,
		Kpi:        DefaultKpi(),
		Checklist:  SeedChecklist(m, now),
		Goals:      []RoadmapGoal{},
		Milestones: []RoadmapMilestone{},
		Resources:  []ResourceItem{},
	}
}

// Board returns the board for mode, creating it when a stored document
// predates the mode.
func (d *Dashboard) Board(m Mode) (*ModeBoard, error) {
	if _, err := ParseMode(string(m)); err != nil {
		return nil, fmt.Errorf("%q: %w", m, err)
	}
	if d.Boards == nil {
		d.Boards = make(map[Mode]ModeBoard, len(Modes))
	}
	b, ok := d.Boards[m]
	if !ok {
		b = newModeBoard(m, time.Now())
	}
	if b.Kpi == nil {
		b.Kpi = DefaultKpi()
	}
	d.Boards[m] = b
	return &b, nil
}

// SetBoard stores a modified board back into the dashboard.
func (d *Dashboard) SetBoard(b *ModeBoard) {
	d.Boards[b.Mode] = *b
}

// Touch records a modification.
func (d *Dashboard) Touch(now time.Time) {
	d.UpdatedAt = now.UTC()
}
