package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alexedwards/argon2id"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mizuki-commits/dashboard-template/config"
	"github.com/mizuki-commits/dashboard-template/domain"
	"github.com/mizuki-commits/dashboard-template/storage"
	"github.com/mizuki-commits/dashboard-template/todoist"
)

type schemaStore interface {
	EnsureSchema(ctx context.Context) error
	Close()
}

type projectLister interface {
	GetProjects(ctx context.Context) ([]todoist.Project, error)
}

// env holds everything a command touches outside the process, so tests can
// swap in fakes.
type env struct {
	loadConfig   func() (*config.Config, error)
	openStore    func(cfg *config.Config) (storage.DashboardStore, error)
	openTaskLog  func(ctx context.Context, cfg config.PostgresConfig) (schemaStore, error)
	createTables func(ctx context.Context, connStr string, names ...string) error
	createQueues func(ctx context.Context, connStr string, names ...string) error
	todoist      func(cfg *config.Config, token string) projectLister
	now          func() time.Time
}

func defaultEnv() env {
	return env{
		loadConfig: func() (*config.Config, error) { return config.Load() },
		openStore: func(cfg *config.Config) (storage.DashboardStore, error) {
			return storage.NewTables(cfg.Storage.ConnectionString, cfg.Storage.DashboardTable)
		},
		openTaskLog: func(ctx context.Context, cfg config.PostgresConfig) (schemaStore, error) {
			return storage.NewTaskLog(ctx, cfg)
		},
		createTables: storage.CreateTables,
		createQueues: storage.CreateQueues,
		todoist: func(cfg *config.Config, token string) projectLister {
			return todoist.NewClient(cfg.Todoist.BaseURL, token, cfg.Todoist.Timeout)
		},
		now: time.Now,
	}
}

func newRootCmd(e env) *cobra.Command {
	var timeout time.Duration
	root := &cobra.Command{
		Use:   "dashctl",
		Short: "Maintenance commands for the dashboard service",
		Long: `dashctl prepares the backing stores of the dashboard API and exports data.

Settings are read from the same environment variables (and .env files) as
the server, e.g. STORAGE_CONNECTION_STRING, POSTGRES_URL, TODOIST_API_TOKEN.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "Overall command timeout")

	withTimeout := func(cmd *cobra.Command) (context.Context, context.CancelFunc) {
		return context.WithTimeout(cmd.Context(), timeout)
	}

	root.AddCommand(
		initStorageCmd(e, withTimeout),
		setupDBCmd(e, withTimeout),
		exportCSVCmd(e, withTimeout),
		projectsCmd(e, withTimeout),
		hashPasswordCmd(),
	)
	return root
}

type ctxFunc func(cmd *cobra.Command) (context.Context, context.CancelFunc)

func initStorageCmd(e env, withTimeout ctxFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "init-storage",
		Short: "Create the dashboard table and the Todoist events queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.ConnectionString == "" {
				return errors.New("missing STORAGE_CONNECTION_STRING")
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			if err := e.createTables(ctx, cfg.Storage.ConnectionString, cfg.Storage.DashboardTable); err != nil {
				return fmt.Errorf("create tables: %w", err)
			}
			if err := e.createQueues(ctx, cfg.Storage.ConnectionString, cfg.Storage.EventsQueue); err != nil {
				return fmt.Errorf("create queues: %w", err)
			}
			log.WithFields(log.Fields{
				"table": cfg.Storage.DashboardTable,
				"queue": cfg.Storage.EventsQueue,
			}).Info("storage init complete")
			fmt.Fprintln(cmd.OutOrStdout(), "storage ready")
			return nil
		},
	}
}

func setupDBCmd(e env, withTimeout ctxFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "setup-db",
		Short: "Create the tasks table in Postgres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return errors.New("missing POSTGRES_URL")
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			tl, err := e.openTaskLog(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			defer tl.Close()
			if err := tl.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "tasks table ready")
			return nil
		},
	}
}

func exportCSVCmd(e env, withTimeout ctxFunc) *cobra.Command {
	var (
		user   string
		mode   string
		kanban bool
		output string
	)
	cmd := &cobra.Command{
		Use:   "export-csv",
		Short: "Write a Todoist import CSV of a checklist or the kanban board",
		Example: `  dashctl export-csv --user admin --mode sales > sales.csv
  dashctl export-csv --user admin --kanban --output kanban.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user == "" {
				return errors.New("--user is required")
			}
			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			store, err := e.openStore(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			d, err := storage.LoadOrSeed(ctx, store, user, e.now())
			if err != nil {
				return err
			}
			var rows []todoist.CSVRow
			if kanban {
				rows = todoist.KanbanRows(d.Kanban)
			} else {
				m := d.Mode
				if mode != "" {
					if m, err = domain.ParseMode(mode); err != nil {
						return err
					}
				}
				rows = todoist.ChecklistRows(d.Boards[m].Checklist)
			}

			var buf bytes.Buffer
			buf.WriteString(todoist.BOM)
			if err := todoist.WriteCSV(&buf, rows); err != nil {
				return err
			}
			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			_, err = w.Write(buf.Bytes())
			return err
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Dashboard owner")
	cmd.Flags().StringVar(&mode, "mode", "", "Mode whose checklist is exported (default: the active mode)")
	cmd.Flags().BoolVar(&kanban, "kanban", false, "Export the kanban board instead of a checklist")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func projectsCmd(e env, withTimeout ctxFunc) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List Todoist projects visible to the API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			if token == "" {
				token = cfg.Todoist.APIToken
			}
			if token == "" {
				return errors.New("no Todoist token: set TODOIST_API_TOKEN or pass --token")
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			projects, err := e.todoist(cfg, token).GetProjects(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range projects {
				fmt.Fprintf(out, "%s\t%s\n", p.ID, p.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Todoist API token (overrides TODOIST_API_TOKEN)")
	return cmd
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print an argon2id hash for AUTH_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := argon2id.CreateHash(args[0], argon2id.DefaultParams)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
