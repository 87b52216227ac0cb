package todoist

import (
	"strings"
	"testing"

	"github.com/mizuki-commits/dashboard-template/domain"
)

func TestWriteCSVQuoting(t *testing.T) {
	var sb strings.Builder
	err := WriteCSV(&sb, []CSVRow{
		{Content: `見積, "至急"`, Description: "line1\nline2", Priority: 7, Author: "MIZUKI (営業)", Date: "2026-02-01"},
		{Content: "plain", Priority: 0, Indent: 2},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "TYPE,CONTENT,DESCRIPTION,PRIORITY,INDENT,AUTHOR,RESPONSIBLE,DATE,DATE_LANG\n" +
		"task,\"見積, \"\"至急\"\"\",\"line1\nline2\",4,1,\"MIZUKI (営業)\",,2026-02-01,\n" +
		"task,plain,,1,2,,,,"
	if sb.String() != want {
		t.Fatalf("unexpected csv:\n%q\nwant\n%q", sb.String(), want)
	}
}

func TestWriteCSVLabelsColumn(t *testing.T) {
	var sb strings.Builder
	if err := WriteCSV(&sb, []CSVRow{{Content: "a", Labels: "x,y"}, {Content: "b"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := strings.Split(sb.String(), "\n")
	if !strings.HasSuffix(lines[0], ",LABELS") {
		t.Fatalf("expected LABELS header, got %q", lines[0])
	}
	if lines[1] != `task,a,,1,1,,,,,"x,y"` {
		t.Fatalf("unexpected first row %q", lines[1])
	}
	if lines[2] != "task,b,,1,1,,,,," {
		t.Fatalf("unexpected second row %q", lines[2])
	}
}

func TestChecklistRows(t *testing.T) {
	c := domain.Checklist{{Title: "高専", Items: []domain.ChecklistItem{{
		Label:    "打合せ",
		Deadline: "2026-03-01T00:00:00.000Z",
		SubItems: []domain.ChecklistSubItem{{Label: "日程調整", Deadline: "2026-02-20", Assignee: domain.AssigneeNishikata}},
	}}}}
	rows := ChecklistRows(c)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Indent != 1 || rows[0].Description != "高専" || rows[0].Date != "2026-03-01" {
		t.Fatalf("unexpected item row %#v", rows[0])
	}
	if rows[1].Indent != 2 || rows[1].Description != "高専 - 打合せ" || rows[1].Responsible != "NISHIKATA" {
		t.Fatalf("unexpected sub row %#v", rows[1])
	}
}

func TestKanbanRows(t *testing.T) {
	rows := KanbanRows(domain.Board{{Title: "請求", Description: "d", Deadline: "2026-02-01", Assignee: domain.AssigneeMizuki}})
	if len(rows) != 1 || rows[0].Responsible != "MIZUKI" || rows[0].Date != "2026-02-01" {
		t.Fatalf("unexpected rows %#v", rows)
	}
}
