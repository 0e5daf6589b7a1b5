package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drewdunne/releasetrain/internal/config"
	"github.com/drewdunne/releasetrain/internal/history"
	"github.com/drewdunne/releasetrain/internal/history/postgres/migrations"
)

var _ history.Store = (*Store)(nil)

const selectColumns = `
	id, repository, version, triggered_by, status, error,
	trunk_sha, tip, changelog_commit, pull_request, pull_request_url,
	merged, skipped, new_contributors, log, started_at, finished_at`

// Store keeps run records in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and applies the embedded migrations.
func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	store := &Store{pool: pool}
	if err := store.applyMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Health pings the database.
func (s *Store) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) applyMigrations(ctx context.Context) error {
	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		sqlBytes, err := fs.ReadFile(migrations.Files, entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := s.pool.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (s *Store) Save(ctx context.Context, rec history.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO train_runs (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    error = EXCLUDED.error,
		    tip = EXCLUDED.tip,
		    changelog_commit = EXCLUDED.changelog_commit,
		    pull_request = EXCLUDED.pull_request,
		    pull_request_url = EXCLUDED.pull_request_url,
		    merged = EXCLUDED.merged,
		    skipped = EXCLUDED.skipped,
		    new_contributors = EXCLUDED.new_contributors,
		    log = EXCLUDED.log,
		    finished_at = EXCLUDED.finished_at
	`,
		rec.ID, rec.Repository, rec.Version, rec.Trigger, rec.Status, rec.Error,
		rec.TrunkSHA, rec.Tip, rec.ChangelogCommit, rec.PullRequest, rec.PullRequestURL,
		nonNil(rec.Merged), nonNil(rec.Skipped), nonNil(rec.NewContributors),
		rec.Log, rec.StartedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (history.Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM train_runs WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		return history.Record{}, translateError(err)
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context, limit int) ([]history.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM train_runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	records := []history.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(row pgx.Row) (history.Record, error) {
	var rec history.Record
	err := row.Scan(
		&rec.ID, &rec.Repository, &rec.Version, &rec.Trigger, &rec.Status, &rec.Error,
		&rec.TrunkSHA, &rec.Tip, &rec.ChangelogCommit, &rec.PullRequest, &rec.PullRequestURL,
		&rec.Merged, &rec.Skipped, &rec.NewContributors, &rec.Log, &rec.StartedAt, &rec.FinishedAt,
	)
	return rec, err
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func translateError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return history.ErrNotFound
	}
	return err
}
