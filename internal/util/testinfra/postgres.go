package testinfra

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/wayposthq/waypost/internal/util/testutil"
)

var postgresOnce sync.Once

// NewPostgresURL allocates a fresh database on the shared Postgres server and
// returns its connection URL. The database is dropped on cleanup.
func NewPostgresURL(t *testing.T) string {
	baseURL := EnsurePostgres()

	dbName := "waypost_test_" + strings.ToLower(testutil.RandomString(8))
	if err := withAdminConn(baseURL, func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName))
		return err
	}); err != nil {
		t.Fatalf("failed to create test database: %s", err)
	}

	t.Cleanup(func() {
		if err := withAdminConn(baseURL, func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", dbName))
			return err
		}); err != nil {
			log.Printf("failed to drop test database %s: %s", dbName, err)
		}
	})

	return replaceDatabase(baseURL, dbName)
}

func EnsurePostgres() string {
	cfg := ReadConfig()
	if cfg.PostgresURL == "" {
		postgresOnce.Do(func() {
			startPostgresTestContainer(cfg)
		})
	}
	return cfg.PostgresURL
}

func startPostgresTestContainer(cfg *Config) {
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("postgres"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		panic(err)
	}

	url, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(err)
	}
	log.Printf("Postgres running at %s", url)
	cfg.PostgresURL = url
	cfg.cleanupFns = append(cfg.cleanupFns, func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	})
}

func withAdminConn(url string, fn func(context.Context, *pgx.Conn) error) error {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	return fn(ctx, conn)
}

// replaceDatabase swaps the database name in a postgres URL. The URL path is
// always "/<dbname>", optionally followed by query params.
func replaceDatabase(url, dbName string) string {
	base := url
	query := ""
	if idx := strings.Index(url, "?"); idx >= 0 {
		base = url[:idx]
		query = url[idx:]
	}
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[:idx]
	}
	return base + "/" + dbName + query
}
