// Package testutil provides shared helpers for integration tests.
package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	sharedOnce sync.Once
	sharedURL  string
	sharedErr  error
)

// PostgresURL returns a connection string for an integration database.
// CI_DATABASE_URL wins when set; otherwise one container is started and
// shared by every test in the process. The test is skipped under -short
// or when no container runtime is available.
func PostgresURL(t *testing.T) string {
	t.Helper()

	if url := os.Getenv("CI_DATABASE_URL"); url != "" {
		return url
	}
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	sharedOnce.Do(func() {
		ctx := context.Background()
		container, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("kulti_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		if err != nil {
			sharedErr = err
			return
		}
		sharedURL, sharedErr = container.ConnectionString(ctx, "sslmode=disable")
	})

	if sharedErr != nil {
		t.Skipf("PostgreSQL container unavailable: %v", sharedErr)
	}
	return sharedURL
}
