package lecture

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// testRedisAddr returns the Redis address for integration tests or skips the
// test when LIVELEARN_TEST_REDIS_ADDR is not set.
func testRedisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("LIVELEARN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LIVELEARN_TEST_REDIS_ADDR not set; skipping Redis integration tests")
	}
	return addr
}

func TestRedisStore(t *testing.T) {
	addr := testRedisAddr(t)

	s, err := NewRedisStore(context.Background(), addr, 0, WithTTL(time.Minute))
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	runStoreContract(t, s, func() string {
		return fmt.Sprintf("test-%s", uuid.NewString())
	})
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedisStore(ctx, "127.0.0.1:1", 0); err == nil {
		t.Fatal("expected error for unreachable Redis")
	}
}
