package domain

import (
	"fmt"
	"strings"
	"time"
)

// Default labels for entries created without one.
const (
	DefaultCategoryTitle = "新しいカテゴリ"
	DefaultItemLabel     = "新しいタスク"
	DefaultSubItemLabel  = "新しいサブタスク"
)

// Assignee is the person responsible for a sub-item or kanban card.
type Assignee string

const (
	AssigneeMizuki    Assignee = "MIZUKI"
	AssigneeNishikata Assignee = "NISHIKATA"
)

type ChecklistSubItem struct {
	ID        string   `json:"id"`
	Label     string   `json:"label"`
	Completed bool     `json:"completed"`
	Deadline  string   `json:"deadline"`
	StartDate string   `json:"startDate,omitempty"`
	Assignee  Assignee `json:"assignee,omitempty"`
	TodoistID string   `json:"todoistId,omitempty"`
}

type ChecklistItem struct {
	ID        string             `json:"id"`
	Label     string             `json:"label"`
	Completed bool               `json:"completed"`
	Deadline  string             `json:"deadline"`
	StartDate string             `json:"startDate,omitempty"`
	SubItems  []ChecklistSubItem `json:"subItems"`
	TodoistID string             `json:"todoistId,omitempty"`
}

type ChecklistCategory struct {
	ID     string          `json:"id"`
	Title  string          `json:"title"`
	IconID string          `json:"iconId"`
	Items  []ChecklistItem `json:"items"`
}

// Checklist is the WBS tree of one mode.
type Checklist []ChecklistCategory

// NewEntry describes an item or sub-item to append.
type NewEntry struct {
	Label     string
	Deadline  string
	StartDate string
	Assignee  Assignee
	// RemindDays > 0 asks for a paired follow-up entry when the label
	// contains a remind keyword.
	RemindDays int
}

// EntryPatch carries the fields of a partial item or sub-item update.
type EntryPatch struct {
	Label     *string
	Completed *bool
	Deadline  *string
	StartDate *string
	Assignee  *Assignee
	TodoistID *string
}

func (c Checklist) categoryIndex(id string) (int, error) {
	for i := range c {
		if c[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("category %s: %w", id, ErrNotFound)
}

func (c Checklist) item(categoryID, itemID string) (*ChecklistCategory, int, error) {
	ci, err := c.categoryIndex(categoryID)
	if err != nil {
		return nil, -1, err
	}
	cat := &c[ci]
	for i := range cat.Items {
		if cat.Items[i].ID == itemID {
			return cat, i, nil
		}
	}
	return nil, -1, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
}

func (c Checklist) subItem(categoryID, itemID, subID string) (*ChecklistItem, int, error) {
	cat, ii, err := c.item(categoryID, itemID)
	if err != nil {
		return nil, -1, err
	}
	item := &cat.Items[ii]
	for i := range item.SubItems {
		if item.SubItems[i].ID == subID {
			return item, i, nil
		}
	}
	return nil, -1, fmt.Errorf("sub-item %s: %w", subID, ErrNotFound)
}

// Category returns a copy of the category with the given id.
func (c Checklist) Category(id string) (ChecklistCategory, error) {
	i, err := c.categoryIndex(id)
	if err != nil {
		return ChecklistCategory{}, err
	}
	return c[i], nil
}

// Item returns copies of the category and item.
func (c Checklist) Item(categoryID, itemID string) (ChecklistCategory, ChecklistItem, error) {
	cat, i, err := c.item(categoryID, itemID)
	if err != nil {
		return ChecklistCategory{}, ChecklistItem{}, err
	}
	return *cat, cat.Items[i], nil
}

func (c *Checklist) AddCategory(title, iconID string) ChecklistCategory {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultCategoryTitle
	}
	cat := ChecklistCategory{ID: NewID(PrefixChecklist), Title: title, IconID: iconID, Items: []ChecklistItem{}}
	*c = append(*c, cat)
	return cat
}

func (c Checklist) UpdateCategory(id string, title, iconID *string) (ChecklistCategory, error) {
	i, err := c.categoryIndex(id)
	if err != nil {
		return ChecklistCategory{}, err
	}
	if title != nil {
		if t := strings.TrimSpace(*title); t != "" {
			c[i].Title = t
		}
	}
	if iconID != nil && *iconID != "" {
		c[i].IconID = *iconID
	}
	return c[i], nil
}

func (c *Checklist) RemoveCategory(id string) error {
	i, err := c.categoryIndex(id)
	if err != nil {
		return err
	}
	*c = append((*c)[:i], (*c)[i+1:]...)
	return nil
}

// AddItem appends an item to a category. The deadline defaults to one month
// from now and the start date to today. With remind enabled, a follow-up
// sub-item is created under the new item.
func (c Checklist) AddItem(categoryID string, e NewEntry, now time.Time) (ChecklistItem, error) {
	i, err := c.categoryIndex(categoryID)
	if err != nil {
		return ChecklistItem{}, err
	}
	label := strings.TrimSpace(e.Label)
	if label == "" {
		label = DefaultItemLabel
	}
	item := ChecklistItem{
		ID:        NewID(PrefixChecklist),
		Label:     label,
		Deadline:  defaultDate(e.Deadline, now.AddDate(0, 1, 0)),
		StartDate: defaultDate(e.StartDate, now),
		SubItems:  []ChecklistSubItem{},
	}
	if e.RemindDays > 0 {
		if sub, ok := remindSubItem(label, item.Deadline, e.RemindDays, now); ok {
			item.SubItems = append(item.SubItems, sub)
		}
	}
	c[i].Items = append(c[i].Items, item)
	return item, nil
}

// AddSubItem appends a sub-item. The deadline defaults to seven days from now.
// The returned slice holds the new sub-item and, when a remind was generated,
// the follow-up sub-item.
func (c Checklist) AddSubItem(categoryID, itemID string, e NewEntry, now time.Time) ([]ChecklistSubItem, error) {
	cat, ii, err := c.item(categoryID, itemID)
	if err != nil {
		return nil, err
	}
	label := strings.TrimSpace(e.Label)
	if label == "" {
		label = DefaultSubItemLabel
	}
	sub := ChecklistSubItem{
		ID:        NewID(PrefixChecklist),
		Label:     label,
		Deadline:  defaultDate(e.Deadline, now.AddDate(0, 0, 7)),
		StartDate: defaultDate(e.StartDate, now),
		Assignee:  e.Assignee,
	}
	added := []ChecklistSubItem{sub}
	if e.RemindDays > 0 {
		if r, ok := remindSubItem(label, sub.Deadline, e.RemindDays, now); ok {
			r.Assignee = e.Assignee
			added = append(added, r)
		}
	}
	cat.Items[ii].SubItems = append(cat.Items[ii].SubItems, added...)
	return added, nil
}

func (c Checklist) UpdateItem(categoryID, itemID string, p EntryPatch) (ChecklistItem, error) {
	cat, ii, err := c.item(categoryID, itemID)
	if err != nil {
		return ChecklistItem{}, err
	}
	it := &cat.Items[ii]
	if p.Label != nil {
		it.Label = *p.Label
	}
	if p.Completed != nil {
		it.Completed = *p.Completed
	}
	if p.Deadline != nil {
		it.Deadline = *p.Deadline
	}
	if p.StartDate != nil {
		it.StartDate = *p.StartDate
	}
	if p.TodoistID != nil {
		it.TodoistID = *p.TodoistID
	}
	return *it, nil
}

func (c Checklist) UpdateSubItem(categoryID, itemID, subID string, p EntryPatch) (ChecklistSubItem, error) {
	item, si, err := c.subItem(categoryID, itemID, subID)
	if err != nil {
		return ChecklistSubItem{}, err
	}
	s := &item.SubItems[si]
	if p.Label != nil {
		s.Label = *p.Label
	}
	if p.Completed != nil {
		s.Completed = *p.Completed
	}
	if p.Deadline != nil {
		s.Deadline = *p.Deadline
	}
	if p.StartDate != nil {
		s.StartDate = *p.StartDate
	}
	if p.Assignee != nil {
		s.Assignee = *p.Assignee
	}
	if p.TodoistID != nil {
		s.TodoistID = *p.TodoistID
	}
	return *s, nil
}

func (c Checklist) ToggleItem(categoryID, itemID string) (ChecklistItem, error) {
	cat, ii, err := c.item(categoryID, itemID)
	if err != nil {
		return ChecklistItem{}, err
	}
	cat.Items[ii].Completed = !cat.Items[ii].Completed
	return cat.Items[ii], nil
}

func (c Checklist) ToggleSubItem(categoryID, itemID, subID string) (ChecklistSubItem, error) {
	item, si, err := c.subItem(categoryID, itemID, subID)
	if err != nil {
		return ChecklistSubItem{}, err
	}
	item.SubItems[si].Completed = !item.SubItems[si].Completed
	return item.SubItems[si], nil
}

func (c Checklist) RemoveItem(categoryID, itemID string) error {
	cat, ii, err := c.item(categoryID, itemID)
	if err != nil {
		return err
	}
	cat.Items = append(cat.Items[:ii], cat.Items[ii+1:]...)
	return nil
}

func (c Checklist) RemoveSubItem(categoryID, itemID, subID string) error {
	item, si, err := c.subItem(categoryID, itemID, subID)
	if err != nil {
		return err
	}
	item.SubItems = append(item.SubItems[:si], item.SubItems[si+1:]...)
	return nil
}

// TodoistIDs returns every external id referenced by items and sub-items.
func (c Checklist) TodoistIDs() []string {
	var ids []string
	for _, cat := range c {
		for _, it := range cat.Items {
			if it.TodoistID != "" {
				ids = append(ids, it.TodoistID)
			}
			for _, s := range it.SubItems {
				if s.TodoistID != "" {
					ids = append(ids, s.TodoistID)
				}
			}
		}
	}
	return ids
}

// Clone returns a deep copy.
func (c Checklist) Clone() Checklist {
	out := make(Checklist, len(c))
	for i, cat := range c {
		items := make([]ChecklistItem, len(cat.Items))
		for j, it := range cat.Items {
			it.SubItems = append([]ChecklistSubItem{}, it.SubItems...)
			items[j] = it
		}
		cat.Items = items
		out[i] = cat
	}
	return out
}

func defaultDate(value string, fallback time.Time) string {
	if d := NormalizeDate(value); d != "" {
		return d
	}
	return FormatDate(fallback)
}
