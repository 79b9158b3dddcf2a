package remote

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultTable = "app_state"

var validTableName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// PostgresClient keeps each logical key as one row of a single table:
// id (logical key), content (jsonb document) and updated_at.
type PostgresClient struct {
	pool  *pgxpool.Pool
	table string

	schemaMu    sync.Mutex
	schemaReady bool
}

func NewPostgresClient(ctx context.Context, cfg Config) (*PostgresClient, error) {
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid remote table name: %q", table)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres endpoint: %w", err)
	}
	poolCfg.ConnConfig.Password = cfg.Credential
	if poolCfg.ConnConfig.ConnectTimeout == 0 {
		poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second
	}
	poolCfg.MaxConns = 4

	// pgxpool connects lazily, so an unreachable endpoint does not fail here
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	return &PostgresClient{
		pool:  pool,
		table: pgx.Identifier{table}.Sanitize(),
	}, nil
}

func (c *PostgresClient) Driver() string {
	return DriverPostgres
}

func (c *PostgresClient) ensureSchema(ctx context.Context) error {
	c.schemaMu.Lock()
	defer c.schemaMu.Unlock()

	if c.schemaReady {
		return nil
	}

	stmt := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id         TEXT        NOT NULL PRIMARY KEY,
		content    JSONB       NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, c.table)
	if _, err := c.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create remote table: %w", err)
	}

	c.schemaReady = true
	return nil
}

func (c *PostgresClient) Get(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT content FROM %s WHERE id = $1`, c.table)

	var content []byte
	err := c.pool.QueryRow(ctx, query, key).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyPostgres(fmt.Errorf("get %s: %w", key, err))
	}
	return content, nil
}

func (c *PostgresClient) Put(ctx context.Context, key string, value []byte) error {
	if err := c.ensureSchema(ctx); err != nil {
		return classifyPostgres(err)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, content, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET
			content    = excluded.content,
			updated_at = excluded.updated_at
	`, c.table)
	if _, err := c.pool.Exec(ctx, stmt, key, value); err != nil {
		return classifyPostgres(fmt.Errorf("upsert %s: %w", key, err))
	}
	return nil
}

func (c *PostgresClient) Probe(ctx context.Context) error {
	if err := c.ensureSchema(ctx); err != nil {
		return classifyPostgres(err)
	}

	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s LIMIT 1)`, c.table)
	if err := c.pool.QueryRow(ctx, query).Scan(&exists); err != nil {
		return classifyPostgres(fmt.Errorf("probe: %w", err))
	}
	return nil
}

func (c *PostgresClient) Close() error {
	c.pool.Close()
	return nil
}

// classifyPostgres wraps err in a ProbeError. SQLSTATE class 28 is an authorization
// failure; any other server error means the query ran and failed.
func classifyPostgres(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "28") {
			return &ProbeError{Reason: ReasonRejected, Err: err}
		}
		return &ProbeError{Reason: ReasonQueryFailed, Err: err}
	}
	return &ProbeError{Reason: ReasonUnreachable, Err: err}
}
