package testutil

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"ore-autominer/internal/config"
	"ore-autominer/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testSchemaNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// OpenTestStore returns a migrated store isolated in its own schema. It uses
// TEST_POSTGRES_DSN when set, a throwaway container when
// TEST_POSTGRES_CONTAINER=true, and skips otherwise.
func OpenTestStore(t *testing.T) (*store.Store, func()) {
	t.Helper()
	dsn, stopContainer := resolveDSN(t)
	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())
	base, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		stopContainer()
		t.Fatalf("open base db: %v", err)
	}
	createSchemaSQL, err := schemaDDL("CREATE SCHEMA %s", schema)
	if err != nil {
		base.Close()
		stopContainer()
		t.Fatalf("invalid schema name: %v", err)
	}
	if _, err := base.Exec(context.Background(), createSchemaSQL); err != nil {
		base.Close()
		stopContainer()
		t.Fatalf("create schema: %v", err)
	}
	base.Close()

	st, err := store.New(withSearchPath(dsn, schema))
	if err != nil {
		stopContainer()
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		st.Close()
		stopContainer()
		t.Fatalf("migrate: %v", err)
	}

	cleanup := func() {
		st.Close()
		base, err := pgxpool.New(context.Background(), dsn)
		if err == nil {
			if dropSchemaSQL, ddlErr := schemaDDL("DROP SCHEMA %s CASCADE", schema); ddlErr == nil {
				_, _ = base.Exec(context.Background(), dropSchemaSQL)
			}
			base.Close()
		}
		stopContainer()
	}
	return st, cleanup
}

func resolveDSN(t *testing.T) (string, func()) {
	t.Helper()
	if cfg, err := config.LoadTest(); err == nil {
		return cfg.TestPostgresDSN, func() {}
	}
	ccfg, err := config.LoadTestContainer()
	if err != nil || !ccfg.Enabled {
		t.Skip("skip test db: TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, ccfg.Image,
		postgres.WithDatabase("autominer"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("container dsn: %v", err)
	}
	return dsn, func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}
}

func withSearchPath(dsn, schema string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "search_path=" + url.QueryEscape(schema)
}

func schemaDDL(format, schema string) (string, error) {
	if !testSchemaNamePattern.MatchString(schema) {
		return "", fmt.Errorf("schema %q does not match required pattern", schema)
	}
	return fmt.Sprintf(format, pgx.Identifier{schema}.Sanitize()), nil
}

// MustCreateWallet inserts a bare wallet row so sessions can reference it.
func MustCreateWallet(t *testing.T, st *store.Store, address string) {
	t.Helper()
	if _, err := st.InsertWallet(context.Background(), store.Wallet{Address: address, EncryptedKey: "k"}); err != nil {
		t.Fatalf("insert wallet: %v", err)
	}
}
