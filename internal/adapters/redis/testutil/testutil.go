// Package testutil provides a redis client for adapter tests.
package testutil

import (
	"context"
	"os"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	redisadapter "github.com/dma-portal/association-api/internal/adapters/redis"
)

// OpenClient connects to TEST_REDIS_URL. The test is skipped when the variable is unset.
func OpenClient(t *testing.T) *goredis.Client {
	t.Helper()

	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set; skipping redis adapter test")
	}
	client, err := redisadapter.NewClient(context.Background(), url)
	if err != nil {
		t.Fatalf("NewClient err=%v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}
