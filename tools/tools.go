//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are run through `go run` or installed with `go install` and are not
// tracked in go.mod since they are development tools, not runtime dependencies.
package tools

// Development tools:
//
// mockgen - regenerates the gomock doubles in internal/mocks
//   Run: go generate ./internal/mocks
//   Version: go.uber.org/mock/mockgen@v0.6.0 (matches go.mod)
//
// golangci-lint - linting; honors the //nolint directives in cmd/ and internal/bootstrap
//   Install: go install github.com/golangci/golangci-lint/v2/cmd/golangci-lint@latest
//
// Redis - credential store integration tests skip unless one is reachable
//   Run: docker run --rm -p 6379:6379 redis:7
//   Env: REDIS_ADDR=localhost:6379, TEST_REQUIRE_REDIS=true to fail instead of skip
