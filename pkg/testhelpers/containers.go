package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-projections/migrations"
	"github.com/ekaya-inc/ekaya-projections/pkg/database"
)

// PostGISTestImage provides PostgreSQL with the spatial_ref_sys table populated.
const PostGISTestImage = "postgis/postgis:16-3.4"

// TestDB holds a shared test database container.
type TestDB struct {
	Container testcontainers.Container
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostGIS container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostGISTestImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "ekaya_projections_test",
			"POSTGRES_USER":     "ekaya",
			"POSTGRES_PASSWORD": "test_password",
		},
		// The postgis image restarts postgres once after init scripts run.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://ekaya:test_password@%s:%s/ekaya_projections_test?sslmode=disable",
		host, port.Port())

	return &TestDB{
		Container: container,
		ConnStr:   connStr,
	}, nil
}

// MigratedDB holds the service database connection with migrations applied.
// Use this for testing handlers, services, and repositories against a real database.
type MigratedDB struct {
	DB      *database.DB
	ConnStr string
}

var (
	sharedMigratedDB     *MigratedDB
	sharedMigratedDBOnce sync.Once
	sharedMigratedDBErr  error
)

// GetMigratedDB returns a shared database for integration tests.
// The database has migrations applied and is reused across all tests.
func GetMigratedDB(t *testing.T) *MigratedDB {
	t.Helper()

	// Ensure test container is running first
	testDB := GetTestDB(t)

	sharedMigratedDBOnce.Do(func() {
		sharedMigratedDB, sharedMigratedDBErr = setupMigratedDB(testDB)
	})

	if sharedMigratedDBErr != nil {
		t.Fatalf("Failed to setup migrated database: %v", sharedMigratedDBErr)
	}

	return sharedMigratedDB
}

func setupMigratedDB(testDB *TestDB) (*MigratedDB, error) {
	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            testDB.ConnStr,
		MaxConnections: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to migrated database: %w", err)
	}

	// Run migrations using database/sql (required by golang-migrate)
	sqlDB, err := sql.Open("pgx", testDB.ConnStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, migrations.FS, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &MigratedDB{
		DB:      db,
		ConnStr: testDB.ConnStr,
	}, nil
}

// ScopedContext returns a context carrying a pooled connection, the way the
// request middleware provides one. Call the cleanup function when done.
func (e *MigratedDB) ScopedContext(t *testing.T) (context.Context, func()) {
	t.Helper()

	ctx, cleanup, err := database.NewScopeProvider(e.DB).WithScope(context.Background())
	if err != nil {
		t.Fatalf("Failed to acquire scoped connection: %v", err)
	}
	return ctx, cleanup
}
