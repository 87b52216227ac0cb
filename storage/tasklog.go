package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/mizuki-commits/dashboard-template/config"
	"github.com/mizuki-commits/dashboard-template/domain"
)

// ErrSchemaMissing means the tasks table has not been created yet.
var ErrSchemaMissing = errors.New("tasks table does not exist")

const createTasksTableQuery = `
CREATE TABLE IF NOT EXISTS tasks (
    id          uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    content     text NOT NULL,
    description text,
    priority    int DEFAULT 1,
    indent      int DEFAULT 1,
    author      text,
    responsible text,
    date        date,
    parent_id   uuid REFERENCES tasks(id),
    is_remind   boolean DEFAULT false,
    created_at  timestamptz DEFAULT now()
)
`

// TaskLog is the append-only Postgres log of exported tasks.
type TaskLog struct {
	pool *pgxpool.Pool
}

// NewTaskLog connects and pings the database.
func NewTaskLog(ctx context.Context, cfg config.PostgresConfig) (*TaskLog, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	log.WithField("host", poolCfg.ConnConfig.Host).Info("connected to postgres")
	return &TaskLog{pool: pool}, nil
}

func (l *TaskLog) Close() {
	l.pool.Close()
}

// EnsureSchema creates the tasks table when it is missing.
func (l *TaskLog) EnsureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, createTasksTableQuery)
	return err
}

const insertTaskQuery = `
INSERT INTO tasks (content,
                   description,
                   priority,
                   indent,
                   author,
                   responsible,
                   date,
                   parent_id,
                   is_remind)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id::text
`

// Insert stores tasks in one transaction and returns the new ids in order.
// Rows with blank content are skipped. With autoRemind a follow-up row is
// inserted after every task whose content asks for one.
func (l *TaskLog) Insert(ctx context.Context, tasks []domain.LoggedTask, autoRemind bool, now time.Time) ([]string, error) {
	ids := []string{}
	err := pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		for _, t := range domain.InsertableTasks(tasks) {
			id, err := insertTask(ctx, tx, t)
			if err != nil {
				return err
			}
			ids = append(ids, id)
			if !autoRemind {
				continue
			}
			t.ID = id
			remind, ok := domain.RemindFor(t, 0, now)
			if !ok {
				continue
			}
			remindID, err := insertTask(ctx, tx, remind.Normalize())
			if err != nil {
				return err
			}
			ids = append(ids, remindID)
		}
		return nil
	})
	if err != nil {
		return nil, mapPgError(err)
	}
	return ids, nil
}

func insertTask(ctx context.Context, tx pgx.Tx, t domain.LoggedTask) (string, error) {
	var id string
	err := tx.QueryRow(ctx, insertTaskQuery,
		t.Content,
		nullable(t.Description),
		t.Priority,
		t.Indent,
		nullable(t.Author),
		nullable(t.Responsible),
		nullable(t.Date),
		nullable(t.ParentID),
		t.IsRemind,
	).Scan(&id)
	return id, err
}

const selectTasksQuery = `
SELECT id::text,
       content,
       coalesce(description, ''),
       coalesce(priority, 1),
       coalesce(indent, 1),
       coalesce(author, ''),
       coalesce(responsible, ''),
       coalesce(to_char(date, 'YYYY-MM-DD'), ''),
       coalesce(parent_id::text, ''),
       coalesce(is_remind, false),
       created_at
FROM tasks
ORDER BY created_at DESC
LIMIT $1
`

// List returns the newest tasks first.
func (l *TaskLog) List(ctx context.Context, limit int) ([]domain.LoggedTask, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.pool.Query(ctx, selectTasksQuery, limit)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	tasks := make([]domain.LoggedTask, 0, limit)
	for rows.Next() {
		var t domain.LoggedTask
		if err := rows.Scan(
			&t.ID,
			&t.Content,
			&t.Description,
			&t.Priority,
			&t.Indent,
			&t.Author,
			&t.Responsible,
			&t.Date,
			&t.ParentID,
			&t.IsRemind,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return tasks, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return fmt.Errorf("%w: %s", ErrSchemaMissing, pgErr.Message)
	}
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
