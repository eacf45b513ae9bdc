package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragos-durlut/TemporalTables/internal/querysql"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(DriverSQLite, path, testModel(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	assert.Equal(t, querysql.DialectSQLite, s.Dialect())
}

func TestOpen_Rejects(t *testing.T) {
	_, err := Open("mysql", "x", testModel(t))
	assert.Error(t, err)

	_, err = Open(DriverSQLite, ":memory:", nil)
	assert.Error(t, err)
}

func TestOpen_FilePragmas(t *testing.T) {
	s, _ := createTestStore(t)

	var mode string
	require.NoError(t, s.DB().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", strings.ToLower(mode))

	var timeout int
	require.NoError(t, s.DB().QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(DriverSQLite, ":memory:", testModel(t))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.EnsureSchema(context.Background()))
	_, err = s.Insert(context.Background(), &productType{ID: 1, Name: "Widgets"})
	require.NoError(t, err)
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	s, _ := createTestStore(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.EnsureSchema(context.Background()), "iteration %d", i)
	}

	for _, table := range []string{"Products", "ProductsHistory", "ProductTypes", "Crates"} {
		var n int
		err := s.DB().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}

	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = 'ProductTypesHistory'").Scan(&n))
	assert.Zero(t, n, "non-temporal tables have no history")
}

func TestSchemaStatements(t *testing.T) {
	s := &Store{model: testModel(t), dialect: querysql.DialectSQLite}
	stmts := s.SchemaStatements()

	assert.Equal(t, []string{
		`CREATE TABLE IF NOT EXISTS "Products" ("ID" TEXT NOT NULL, "Name" TEXT, "Price" REAL, "Tags" TEXT, "PeriodStart" TEXT, "PeriodEnd" TEXT, PRIMARY KEY ("ID"))`,
		`CREATE TABLE IF NOT EXISTS "ProductsHistory" ("ID" TEXT NOT NULL, "Name" TEXT, "Price" REAL, "Tags" TEXT, "PeriodStart" TEXT, "PeriodEnd" TEXT)`,
		`CREATE INDEX IF NOT EXISTS "ix_ProductsHistory_period" ON "ProductsHistory" ("ID", "PeriodStart")`,
		`CREATE TABLE IF NOT EXISTS "ProductTypes" ("ID" INTEGER NOT NULL, "Name" TEXT, PRIMARY KEY ("ID"))`,
		`CREATE TABLE IF NOT EXISTS "Crates" ("ID" INTEGER NOT NULL, "Size_Width" INTEGER, "Size_Height" INTEGER, PRIMARY KEY ("ID"))`,
	}, stmts)

	pg := &Store{model: testModel(t), dialect: querysql.DialectPostgres}
	assert.Contains(t, pg.SchemaStatements()[0], `"Price" DOUBLE PRECISION`)
}

func TestQuery_ReturnsValueBuffers(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, &productType{ID: 2, Name: "B"}, &productType{ID: 1, Name: "A"})
	require.NoError(t, err)

	rows, err := s.Query(ctx, `SELECT "ID", "Name" FROM "ProductTypes" WHERE "ID" > ? ORDER BY "ID"`, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0][0])
	assert.Equal(t, "A", text(rows[0][1]))
	assert.Equal(t, "B", text(rows[1][1]))
}

func TestQuery_BadSQL(t *testing.T) {
	s, _ := createTestStore(t)
	_, err := s.Query(context.Background(), "SELECT nope FROM nowhere")
	assert.Error(t, err)
}

func TestInsert_GeneratesUUIDKeys(t *testing.T) {
	s, _ := createTestStore(t)
	p := &product{Name: "DeLorean", Price: 1}

	_, err := s.Insert(context.Background(), p)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, p.ID)

	keep := uuid.New()
	p2 := &product{ID: keep, Name: "Hoverboard"}
	_, err = s.Insert(context.Background(), p2)
	require.NoError(t, err)
	assert.Equal(t, keep, p2.ID)
}
