package todoist

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/mizuki-commits/dashboard-template/domain"
)

// BOM is prepended to downloads so spreadsheet apps detect UTF-8.
const BOM = "\uFEFF"

const csvHeader = "TYPE,CONTENT,DESCRIPTION,PRIORITY,INDENT,AUTHOR,RESPONSIBLE,DATE,DATE_LANG"

// CSVRow is one task line of a Todoist import file.
type CSVRow struct {
	Content     string
	Description string
	Priority    int
	Indent      int
	Author      string
	Responsible string
	Date        string
	Labels      string
}

// WriteCSV writes rows in Todoist's import layout. The LABELS column is only
// present when some row has labels. Lines are joined by "\n" with no
// trailing newline.
func WriteCSV(w io.Writer, rows []CSVRow) error {
	hasLabels := false
	for _, r := range rows {
		if r.Labels != "" {
			hasLabels = true
			break
		}
	}
	bw := bufio.NewWriter(w)
	bw.WriteString(csvHeader)
	if hasLabels {
		bw.WriteString(",LABELS")
	}
	for _, r := range rows {
		indent := r.Indent
		if indent == 0 {
			indent = 1
		}
		fields := []string{
			"task",
			escapeField(r.Content),
			escapeField(r.Description),
			strconv.Itoa(domain.ClampPriority(r.Priority)),
			strconv.Itoa(indent),
			quoteField(r.Author),
			quoteField(r.Responsible),
			r.Date,
			"",
		}
		if hasLabels {
			fields = append(fields, escapeField(r.Labels))
		}
		bw.WriteByte('\n')
		bw.WriteString(strings.Join(fields, ","))
	}
	return bw.Flush()
}

// escapeField quotes only values holding a comma, quote or newline.
func escapeField(v string) string {
	if strings.ContainsAny(v, ",\"\n") {
		return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
	}
	return v
}

// quoteField always quotes a non-empty value. Person names may contain
// parentheses that Todoist otherwise splits.
func quoteField(v string) string {
	if v == "" {
		return ""
	}
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// ChecklistRows flattens a checklist: items at indent 1 described by their
// category, sub-items at indent 2 described by "category - item".
func ChecklistRows(c domain.Checklist) []CSVRow {
	var rows []CSVRow
	for _, cat := range c {
		for _, it := range cat.Items {
			rows = append(rows, CSVRow{
				Content:     it.Label,
				Description: cat.Title,
				Priority:    1,
				Indent:      1,
				Date:        dateOnly(it.Deadline),
			})
			for _, s := range it.SubItems {
				rows = append(rows, CSVRow{
					Content:     s.Label,
					Description: cat.Title + " - " + it.Label,
					Priority:    1,
					Indent:      2,
					Responsible: string(s.Assignee),
					Date:        dateOnly(s.Deadline),
				})
			}
		}
	}
	return rows
}

// KanbanRows exports cards as top-level tasks.
func KanbanRows(b domain.Board) []CSVRow {
	rows := make([]CSVRow, 0, len(b))
	for _, t := range b {
		rows = append(rows, CSVRow{
			Content:     t.Title,
			Description: t.Description,
			Priority:    1,
			Indent:      1,
			Responsible: string(t.Assignee),
			Date:        dateOnly(t.Deadline),
		})
	}
	return rows
}

func dateOnly(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}
