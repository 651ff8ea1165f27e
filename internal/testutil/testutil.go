// Package testutil provides shared helpers for tests that need Redis or fixed clocks.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TestingTB is an interface that covers both *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Skip(args ...interface{})
	Skipf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	Logf(format string, args ...interface{})
}

// envBool parses common truthy values from env vars.
func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }

// FixedTimeFunc returns a function that always returns the same time.
func FixedTimeFunc(t time.Time) func() time.Time {
	return func() time.Time {
		return t
	}
}

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// ManualClock is a settable clock for cache and reaper tests.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Redis test utilities

// redisCandidates lists where a test Redis is usually found: REDIS_ADDR first (CI),
// then the compose service name, then a local instance.
func redisCandidates() []string {
	if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
		return []string{addr}
	}
	return []string{"redis:6379", "localhost:6379"}
}

// testRedisDB returns TEST_REDIS_DB, defaulting to 15 so a developer's DB 0 is left alone.
func testRedisDB() int {
	if i, err := strconv.Atoi(os.Getenv("TEST_REDIS_DB")); err == nil && i >= 0 {
		return i
	}
	return 15
}

// SetupTestRedis returns a client on an empty test database. The test is skipped when no
// Redis answers, or fails when TEST_REQUIRE_REDIS is set. The database is flushed again on cleanup.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	db := testRedisDB()
	var tried []string
	for _, addr := range redisCandidates() {
		client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := client.Ping(ctx).Err()
		if err == nil {
			err = client.FlushDB(ctx).Err()
		}
		cancel()
		if err != nil {
			_ = client.Close()
			tried = append(tried, fmt.Sprintf("%s (%v)", addr, err))
			continue
		}
		if tc, ok := t.(interface{ Cleanup(func()) }); ok {
			tc.Cleanup(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = client.FlushDB(ctx).Err()
			})
		}
		t.Logf("using redis %s db=%d", addr, db)
		return client
	}

	if requireRedis() {
		t.Fatalf("redis not available for testing: %s", strings.Join(tried, "; "))
	}
	t.Skipf("redis not available for testing: %s", strings.Join(tried, "; "))
	return nil
}
