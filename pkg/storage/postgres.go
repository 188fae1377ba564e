package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/modelhost/pkg/types"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS deployments (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	user_id            TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL CHECK (status IN ('Creating', 'InService', 'Failed')),
	bucket_name        TEXT NOT NULL DEFAULT '',
	bucket_object_key  TEXT NOT NULL DEFAULT '',
	image_tag          TEXT NOT NULL DEFAULT '',
	registry_repo_name TEXT NOT NULL DEFAULT '',
	hosting_model_name TEXT NOT NULL DEFAULT '',
	endpoint_name      TEXT NOT NULL DEFAULT '',
	failure_reason     TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);
ALTER TABLE deployments ADD COLUMN IF NOT EXISTS hosting_model_name TEXT NOT NULL DEFAULT '';
CREATE INDEX IF NOT EXISTS deployments_user_id_idx ON deployments (user_id);
`

const deploymentColumns = `id, name, user_id, status, bucket_name, bucket_object_key,
	image_tag, registry_repo_name, hosting_model_name, endpoint_name, failure_reason,
	created_at, updated_at`

// PostgresConfig holds connection settings for the postgres driver
type PostgresConfig struct {
	URL          string        `yaml:"url"`
	PingTimeout  time.Duration `yaml:"pingTimeout"`
	MaxOpenConns int           `yaml:"maxOpenConns"`
}

// Validate checks the postgres settings
func (c PostgresConfig) Validate() error {
	if c.URL == "" {
		return errors.New("postgres url is required")
	}
	if c.PingTimeout <= 0 {
		return errors.New("postgres ping timeout must be positive")
	}
	if c.MaxOpenConns < 1 {
		return errors.New("postgres max open conns must be >= 1")
	}
	return nil
}

// PostgresStore implements Store on PostgreSQL through the pgx driver
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the database, verifies connectivity and applies the schema
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the deployments table if needed
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateDeployment(ctx context.Context, d *types.Deployment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deployments (`+deploymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		d.ID, d.Name, d.UserID, string(d.Status),
		d.BucketName, d.BucketObjectKey, d.ImageTag, d.RegistryRepoName,
		d.HostingModelName, d.EndpointName, d.FailureReason, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("deployment %s: %w", d.ID, types.ErrAlreadyExists)
		}
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDeployment(ctx context.Context, id string) (*types.Deployment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deploymentColumns+` FROM deployments WHERE id = $1`, id)
	d, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFoundf("deployment %s", id)
	}
	return d, err
}

func (s *PostgresStore) ListDeployments(ctx context.Context) ([]*types.Deployment, error) {
	return s.query(ctx, `SELECT `+deploymentColumns+` FROM deployments ORDER BY created_at`)
}

func (s *PostgresStore) ListDeploymentsByUser(ctx context.Context, userID string) ([]*types.Deployment, error) {
	return s.query(ctx, `SELECT `+deploymentColumns+` FROM deployments WHERE user_id = $1 ORDER BY created_at`, userID)
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*types.Deployment, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var deployments []*types.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, d)
	}
	return deployments, rows.Err()
}

// UpdateDeploymentFields locks the row, validates the update against the
// locked state and writes the merged record in one transaction.
func (s *PostgresStore) UpdateDeploymentFields(ctx context.Context, id string, update types.DeploymentUpdate) (*types.Deployment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+deploymentColumns+` FROM deployments WHERE id = $1 FOR UPDATE`, id)
	d, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFoundf("deployment %s", id)
	}
	if err != nil {
		return nil, err
	}
	if err := update.Validate(d); err != nil {
		return nil, err
	}
	update.Apply(d)

	_, err = tx.ExecContext(ctx,
		`UPDATE deployments SET status = $2, bucket_name = $3, bucket_object_key = $4,
			image_tag = $5, registry_repo_name = $6, hosting_model_name = $7,
			endpoint_name = $8, failure_reason = $9, updated_at = $10
		WHERE id = $1`,
		d.ID, string(d.Status), d.BucketName, d.BucketObjectKey,
		d.ImageTag, d.RegistryRepoName, d.HostingModelName, d.EndpointName,
		d.FailureReason, d.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update deployment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) DeleteDeployment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM deployments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete deployment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.NotFoundf("deployment %s", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeployment(row rowScanner) (*types.Deployment, error) {
	var (
		d      types.Deployment
		status string
	)
	err := row.Scan(
		&d.ID, &d.Name, &d.UserID, &status,
		&d.BucketName, &d.BucketObjectKey, &d.ImageTag, &d.RegistryRepoName,
		&d.HostingModelName, &d.EndpointName, &d.FailureReason, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Status = types.Status(status)
	return &d, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
