package domain

import (
	"fmt"
	"strings"
	"time"
)

type GoalStatus string

const (
	GoalNotStarted GoalStatus = "not_started"
	GoalInProgress GoalStatus = "in_progress"
	GoalAchieved   GoalStatus = "achieved"
)

type MilestoneStatus string

const (
	MilestonePending   MilestoneStatus = "pending"
	MilestoneCompleted MilestoneStatus = "completed"
)

const DefaultGoalTitle = "新規目標"

type RoadmapGoal struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	TargetDate string     `json:"targetDate"`
	Status     GoalStatus `json:"status"`
	Note       string     `json:"note,omitempty"`
}

type RoadmapMilestone struct {
	ID     string          `json:"id"`
	Title  string          `json:"title"`
	Date   string          `json:"date"`
	Status MilestoneStatus `json:"status"`
	Note   string          `json:"note,omitempty"`
}

type GoalPatch struct {
	Title      *string
	TargetDate *string
	Status     *GoalStatus
	Note       *string
}

type MilestonePatch struct {
	Title  *string
	Date   *string
	Status *MilestoneStatus
	Note   *string
}

func ValidGoalStatus(s GoalStatus) bool {
	return s == GoalNotStarted || s == GoalInProgress || s == GoalAchieved
}

func ValidMilestoneStatus(s MilestoneStatus) bool {
	return s == MilestonePending || s == MilestoneCompleted
}

// NewGoal fills in the defaults of a fresh goal: a placeholder title and a
// target three months out.
func NewGoal(g RoadmapGoal, now time.Time) RoadmapGoal {
	g.ID = NewID(PrefixRoadmap)
	if strings.TrimSpace(g.Title) == "" {
		g.Title = DefaultGoalTitle
	}
	if NormalizeDate(g.TargetDate) == "" {
		g.TargetDate = FormatDate(now.AddDate(0, 3, 0))
	}
	if g.Status == "" {
		g.Status = GoalNotStarted
	}
	return g
}

func NewMilestone(m RoadmapMilestone, now time.Time) RoadmapMilestone {
	m.ID = NewID(PrefixRoadmap)
	if NormalizeDate(m.Date) == "" {
		m.Date = FormatDate(now)
	}
	if m.Status == "" {
		m.Status = MilestonePending
	}
	return m
}

func (b *ModeBoard) UpdateGoal(id string, p GoalPatch) (RoadmapGoal, error) {
	for i := range b.Goals {
		if b.Goals[i].ID != id {
			continue
		}
		g := &b.Goals[i]
		if p.Title != nil {
			g.Title = *p.Title
		}
		if p.TargetDate != nil {
			g.TargetDate = *p.TargetDate
		}
		if p.Status != nil {
			g.Status = *p.Status
		}
		if p.Note != nil {
			g.Note = *p.Note
		}
		return *g, nil
	}
	return RoadmapGoal{}, fmt.Errorf("goal %s: %w", id, ErrNotFound)
}

func (b *ModeBoard) RemoveGoal(id string) error {
	for i := range b.Goals {
		if b.Goals[i].ID == id {
			b.Goals = append(b.Goals[:i], b.Goals[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("goal %s: %w", id, ErrNotFound)
}

func (b *ModeBoard) UpdateMilestone(id string, p MilestonePatch) (RoadmapMilestone, error) {
	for i := range b.Milestones {
		if b.Milestones[i].ID != id {
			continue
		}
		m := &b.Milestones[i]
		if p.Title != nil {
			m.Title = *p.Title
		}
		if p.Date != nil {
			m.Date = *p.Date
		}
		if p.Status != nil {
			m.Status = *p.Status
		}
		if p.Note != nil {
			m.Note = *p.Note
		}
		return *m, nil
	}
	return RoadmapMilestone{}, fmt.Errorf("milestone %s: %w", id, ErrNotFound)
}

func (b *ModeBoard) RemoveMilestone(id string) error {
	for i := range b.Milestones {
		if b.Milestones[i].ID == id {
			b.Milestones = append(b.Milestones[:i], b.Milestones[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("milestone %s: %w", id, ErrNotFound)
}
