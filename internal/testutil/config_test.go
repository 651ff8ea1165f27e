package testutil

import (
	"testing"
	"time"
)

func TestEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{value: "1", want: true},
		{value: "TRUE", want: true},
		{value: "yes", want: true},
		{value: "y", want: true},
		{value: "0", want: false},
		{value: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TESTUTIL_FLAG", tt.value)
			if got := envBool("TESTUTIL_FLAG"); got != tt.want {
				t.Errorf("envBool(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestRequireRedis(t *testing.T) {
	t.Setenv("TEST_REQUIRE_REDIS", "")
	t.Setenv("TEST_REQUIRE_INFRA", "true")
	if !requireRedis() {
		t.Errorf("TEST_REQUIRE_INFRA should require redis")
	}
}

func TestManualClock(t *testing.T) {
	clock := NewManualClock(TestTime())
	clock.Advance(90 * time.Second)
	if got, want := clock.Now(), TestTime().Add(90*time.Second); !got.Equal(want) {
		t.Errorf("Now() = %s, want %s", got, want)
	}
	if !FixedTimeFunc(TestTime())().Equal(TestTime()) {
		t.Errorf("FixedTimeFunc should return the fixed time")
	}
}

func TestIdentityBuilder(t *testing.T) {
	id := NewIdentity().WithEmail("ada@example.com").WithDisplayName("Ada").Build()
	if id.UID != "uid-ada" || id.DisplayName != "Ada" || id.Email != "ada@example.com" {
		t.Errorf("unexpected identity: %+v", id)
	}
	snap := NewIdentity().SignedIn("cred")
	if !snap.Authenticated() {
		t.Errorf("signed-in snapshot should be authenticated")
	}
	if SignedOut().Authenticated() || LoadingSnapshot().Authenticated() {
		t.Errorf("signed-out and loading snapshots should not be authenticated")
	}
}
