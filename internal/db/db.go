package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"

	"smartops-chat/internal/config"
)

const sqliteScheme = "sqlite3://"

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// NewPool construye y devuelve un pool de conexiones configurado.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// OpenSQLite abre la base SQLite indicada por una URL sqlite3:// o una ruta.
// Usa una sola conexión con foreign keys y busy timeout.
func OpenSQLite(ctx context.Context, databaseURL string) (*sql.DB, error) {
	path := SQLitePath(databaseURL)
	if path == "" {
		return nil, errors.New("empty sqlite path")
	}

	conn, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return conn, nil
}

// SQLitePath quita el esquema sqlite3:// de la URL.
func SQLitePath(databaseURL string) string {
	return strings.TrimPrefix(strings.TrimSpace(databaseURL), sqliteScheme)
}

// sqliteDSN arma la URI file: con la ruta escapada.
func sqliteDSN(path string) string {
	escaped := (&url.URL{Path: path}).EscapedPath()
	return "file:" + escaped + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
}

// RunMigrations aplica las migraciones embebidas del dialecto que corresponde a la URL.
// En SQLite migrate recibe una conexión abierta con sqliteDSN.
func RunMigrations(databaseURL string) error {
	if isPostgresURL(databaseURL) {
		src, err := migrationSource("migrations/postgres")
		if err != nil {
			return err
		}
		m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
		if err != nil {
			return fmt.Errorf("create migrate instance: %w", err)
		}
		return applyMigrations(m)
	}

	path := SQLitePath(databaseURL)
	if path == "" {
		return errors.New("empty sqlite path")
	}
	conn, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(conn, &sqlitemigrate.Config{})
	if err != nil {
		conn.Close()
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	src, err := migrationSource("migrations/sqlite")
	if err != nil {
		driver.Close()
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("create migrate instance: %w", err)
	}
	return applyMigrations(m)
}

func migrationSource(dir string) (source.Driver, error) {
	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("migration dir: %w", err)
	}
	d, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	return d, nil
}

// applyMigrations corre Up y cierra m (y la conexión que tenga).
func applyMigrations(m *migrate.Migrate) error {
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Ping verifica conectividad con la base de datos.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	return pool.Ping(ctx)
}

func isPostgresURL(databaseURL string) bool {
	u := strings.ToLower(databaseURL)
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://")
}
