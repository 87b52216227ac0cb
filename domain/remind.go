package domain

import (
	"slices"
	"strings"
	"time"
)

// RemindKeywords trigger a reply-check follow-up when they appear in a label.
var RemindKeywords = []string{"連絡", "送信", "提出", "依頼"}

// DefaultRemindDays is the follow-up offset used when none is requested.
const DefaultRemindDays = 3

// RemindDaysOptions are the offsets a user may pick.
var RemindDaysOptions = []int{1, 2, 3, 5, 7}

// RemindSuggestion is the follow-up proposed for a task.
type RemindSuggestion struct {
	Label     string `json:"remindLabel"`
	DaysAfter int    `json:"daysAfter"`
}

// SuggestRemind returns the follow-up for content, if any keyword matches.
func SuggestRemind(content string) (RemindSuggestion, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return RemindSuggestion{}, false
	}
	for _, kw := range RemindKeywords {
		if strings.Contains(trimmed, kw) {
			return RemindSuggestion{
				Label:     "（" + trimmed + "）の返信確認・リマインド",
				DaysAfter: DefaultRemindDays,
			}, true
		}
	}
	return RemindSuggestion{}, false
}

// ValidRemindDays reports whether days is one of RemindDaysOptions.
func ValidRemindDays(days int) bool {
	return slices.Contains(RemindDaysOptions, days)
}

func remindSubItem(label, deadline string, days int, now time.Time) (ChecklistSubItem, bool) {
	s, ok := SuggestRemind(label)
	if !ok {
		return ChecklistSubItem{}, false
	}
	return ChecklistSubItem{
		ID:        NewID(PrefixChecklist),
		Label:     s.Label,
		Deadline:  AddDays(deadline, days, now),
		StartDate: FormatDate(now),
	}, true
}
