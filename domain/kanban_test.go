package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoardLifecycle(t *testing.T) {
	var b Board
	added := b.AddTasks([]KanbanTask{{Title: " 提案書 "}, {Title: "請求", Column: ColumnInProgress}}, fixedNow)
	require.Len(t, added, 2)
	assert.Equal(t, ColumnTodo, added[0].Column)
	assert.Equal(t, "提案書", added[0].Title)
	assert.Equal(t, ColumnInProgress, added[1].Column)
	assert.Equal(t, fixedNow, added[0].CreatedAt)
	assert.NotEqual(t, added[0].ID, added[1].ID)

	moved, err := b.MoveTask(added[0].ID, ColumnDone)
	require.NoError(t, err)
	assert.Equal(t, ColumnDone, moved.Column)

	desc := "詳細"
	upd, err := b.UpdateTask(added[1].ID, KanbanPatch{Description: &desc, LinkedEntity: &LinkedEntity{Type: EntitySales, Name: "A社"}})
	require.NoError(t, err)
	assert.Equal(t, desc, upd.Description)
	require.NotNil(t, upd.LinkedEntity)
	assert.Equal(t, EntitySales, upd.LinkedEntity.Type)

	upd, err = b.UpdateTask(added[1].ID, KanbanPatch{LinkedEntity: &LinkedEntity{}})
	require.NoError(t, err)
	assert.Nil(t, upd.LinkedEntity)

	require.NoError(t, b.RemoveTask(added[0].ID))
	assert.Len(t, b, 1)
	assert.ErrorIs(t, b.RemoveTask("missing"), ErrNotFound)
	_, err = b.MoveTask("missing", ColumnDone)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseColumn(t *testing.T) {
	c, err := ParseColumn("in_progress")
	require.NoError(t, err)
	assert.Equal(t, ColumnInProgress, c)
	_, err = ParseColumn("archived")
	assert.ErrorIs(t, err, ErrInvalidColumn)
}

func TestMergeRemoteTasks(t *testing.T) {
	b := Board{
		{ID: "local", Title: "ローカル", Column: ColumnInProgress},
		{ID: "linked", Title: "古い", Column: ColumnInProgress, TodoistID: "42"},
	}
	res := b.MergeRemoteTasks([]RemoteTask{
		{ID: "42", Content: "新しい", Description: "d", Due: "2026-02-01"},
		{ID: "43", Content: "追加", Due: "tomorrow"},
	}, fixedNow)

	assert.Equal(t, MergeResult{Added: 1, Updated: 1}, res)
	require.Len(t, b, 3)
	assert.Equal(t, "ローカル", b[0].Title)
	assert.Equal(t, "新しい", b[1].Title)
	assert.Equal(t, "2026-02-01", b[1].Deadline)
	assert.Equal(t, ColumnInProgress, b[1].Column)
	assert.Equal(t, "43", b[2].TodoistID)
	assert.Equal(t, SourceTodoist, b[2].Source)
	assert.Equal(t, ColumnTodo, b[2].Column)
	assert.Empty(t, b[2].Deadline)
}

func TestTasksFromChecklist(t *testing.T) {
	c := SeedChecklist(ModeRecruitment, fixedNow)
	c[0].Items[0].SubItems[1].Assignee = AssigneeMizuki
	tasks := TasksFromChecklist(c, ModeRecruitment, []ChecklistSelection{
		{CategoryID: "rec-company-1", ItemID: "rec-item-1-1", SubItemID: "rec-sub-1-1-2"},
		{CategoryID: "rec-company-1", ItemID: "rec-item-1-1"},
		{CategoryID: "rec-company-2", ItemID: "unknown"},
	})
	require.Len(t, tasks, 2)
	assert.Equal(t, "求人票の作成支援", tasks[0].Title)
	assert.Equal(t, "原稿作成", tasks[1].Title)
	assert.Equal(t, AssigneeMizuki, tasks[1].Assignee)
	assert.Equal(t, SourceChecklist, tasks[1].Source)
	require.NotNil(t, tasks[0].LinkedEntity)
	assert.Equal(t, LinkedEntity{Type: EntityCompany, Name: "株式会社サンプルテック"}, *tasks[0].LinkedEntity)
}
