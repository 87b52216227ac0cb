package todoist

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mizuki-commits/dashboard-template/domain"
)

// ErrNoSelector is returned when neither a project nor task ids were given.
var ErrNoSelector = errors.New("projectId or taskIds required")

// maxStatusLookups bounds the concurrent GET /tasks/{id} calls of FetchStatus.
const maxStatusLookups = 8

type TaskStatus struct {
	ID          string `json:"id"`
	IsCompleted bool   `json:"is_completed"`
}

// StatusResult is the answer of FetchStatus. A project listing only holds
// open tasks, so an id missing from it says nothing about completion.
type StatusResult struct {
	Tasks []TaskStatus `json:"tasks"`
}

// Map indexes the statuses by task id.
func (r StatusResult) Map() map[string]bool {
	m := make(map[string]bool, len(r.Tasks))
	for _, t := range r.Tasks {
		m[t.ID] = t.IsCompleted
	}
	return m
}

// FetchStatus reads completion either for every task of projectID or for the
// listed ids. Ids that cannot be fetched are skipped.
func (c *Client) FetchStatus(ctx context.Context, projectID string, taskIDs []string) (StatusResult, error) {
	if projectID != "" {
		tasks, err := c.GetTasksByProject(ctx, projectID)
		if err != nil {
			return StatusResult{}, err
		}
		out := StatusResult{Tasks: make([]TaskStatus, 0, len(tasks))}
		for _, t := range tasks {
			out.Tasks = append(out.Tasks, TaskStatus{ID: t.ID, IsCompleted: t.IsCompleted})
		}
		return out, nil
	}
	if len(taskIDs) == 0 {
		return StatusResult{}, ErrNoSelector
	}
	if !c.HasToken() {
		return StatusResult{}, ErrNoToken
	}

	results := make([]*TaskStatus, len(taskIDs))
	var g errgroup.Group
	g.SetLimit(maxStatusLookups)
	for i, id := range taskIDs {
		g.Go(func() error {
			t, err := c.GetTask(ctx, id)
			if err != nil {
				log.WithError(err).WithField("task_id", id).Debug("todoist.status.skip")
				return nil
			}
			results[i] = &TaskStatus{ID: t.ID, IsCompleted: t.IsCompleted}
			return nil
		})
	}
	_ = g.Wait()

	out := StatusResult{Tasks: make([]TaskStatus, 0, len(taskIDs))}
	for _, r := range results {
		if r != nil {
			out.Tasks = append(out.Tasks, *r)
		}
	}
	return out, nil
}

// OpenTasks lists the project's tasks that are not completed, in import form.
func (c *Client) OpenTasks(ctx context.Context, projectID string) ([]domain.RemoteTask, error) {
	tasks, err := c.GetTasksByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RemoteTask, 0, len(tasks))
	for _, t := range tasks {
		if t.IsCompleted {
			continue
		}
		out = append(out, t.Remote())
	}
	return out, nil
}
