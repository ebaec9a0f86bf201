package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	oauthmigrations "github.com/goliatone/go-oauthlink/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const defaultPingTimeout = 5 * time.Second

// DBConfig satisfies the go-persistence-bun client config.
type DBConfig struct {
	Driver         string
	DSN            string
	Debug          bool
	PingTimeout    time.Duration
	OtelIdentifier string
}

func (c DBConfig) GetDebug() bool {
	return c.Debug
}

func (c DBConfig) GetDriver() string {
	return c.Driver
}

func (c DBConfig) GetServer() string {
	return c.DSN
}

func (c DBConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return defaultPingTimeout
	}
	return c.PingTimeout
}

func (c DBConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.OtelIdentifier) == "" {
		return "oauthlink"
	}
	return c.OtelIdentifier
}

// OpenSQLite opens a sqlite database through go-persistence-bun and applies
// the flow activity migrations. A bare path gets foreign keys enabled.
func OpenSQLite(ctx context.Context, dsn string) (*persistence.Client, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: sqlite dsn is required")
	}
	if !strings.Contains(dsn, "?") {
		dsn = "file:" + strings.TrimPrefix(dsn, "file:") + "?_foreign_keys=on"
	}
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	client, err := persistence.New(DBConfig{Driver: "sqlite3", DSN: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: persistence client: %w", err)
	}
	return migrate(ctx, client, oauthmigrations.DialectSQLite)
}

// OpenPostgres opens a postgres database through go-persistence-bun and
// applies the flow activity migrations.
func OpenPostgres(ctx context.Context, dsn string) (*persistence.Client, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: postgres dsn is required")
	}
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
	}
	client, err := persistence.New(DBConfig{Driver: "postgres", DSN: dsn}, sqlDB, pgdialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: persistence client: %w", err)
	}
	return migrate(ctx, client, oauthmigrations.DialectPostgres)
}

// migrate registers the embedded migrations for one dialect and applies them.
// The client is closed on failure.
func migrate(ctx context.Context, client *persistence.Client, dialect string) (*persistence.Client, error) {
	if _, err := oauthmigrations.Register(ctx, func(_ context.Context, target string, _ string, fsys fs.FS) error {
		if target != dialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, oauthmigrations.WithValidationTargets(dialect)); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return client, nil
}
