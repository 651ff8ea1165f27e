package auth

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{in: "admin", want: RoleAdmin},
		{in: " Admin ", want: RoleAdmin},
		{in: "customer", want: RoleCustomer},
		{in: "", want: RoleCustomer},
		{in: "superuser", want: RoleCustomer},
	}
	for _, tt := range tests {
		if got := ParseRole(tt.in); got != tt.want {
			t.Fatalf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRole_Satisfies(t *testing.T) {
	if !RoleAdmin.Satisfies(RoleCustomer) {
		t.Fatalf("admin should satisfy customer")
	}
	if RoleCustomer.Satisfies(RoleAdmin) {
		t.Fatalf("customer must not satisfy admin")
	}
	if Role("").Satisfies(RoleCustomer) {
		t.Fatalf("unknown role must not satisfy anything")
	}
}

func TestSnapshot_Authenticated(t *testing.T) {
	if (Snapshot{Loading: true, Identity: &Identity{Email: "a@b.c"}}).Authenticated() {
		t.Fatalf("loading snapshot is not authenticated")
	}
	if (Snapshot{Identity: &Identity{UID: "u"}}).Authenticated() {
		t.Fatalf("identity without email is not authenticated")
	}
	if !(Snapshot{Identity: &Identity{Email: "a@b.c"}}).Authenticated() {
		t.Fatalf("expected authenticated")
	}
}

func TestProviderErrorCode(t *testing.T) {
	err := fmt.Errorf("sign in: %w", NewProviderError(CodeInvalidCredential, "bad password"))
	if got := ProviderErrorCode(err); got != CodeInvalidCredential {
		t.Fatalf("unexpected code %q", got)
	}
	if got := ProviderErrorCode(errors.New("plain")); got != "" {
		t.Fatalf("expected empty code, got %q", got)
	}
}

func TestAsProviderError(t *testing.T) {
	if AsProviderError(nil) != nil {
		t.Fatalf("nil error should stay nil")
	}
	pe := NewProviderError(CodeWeakPassword, "too short")
	if got := AsProviderError(fmt.Errorf("register: %w", pe)); got != pe {
		t.Fatalf("expected the wrapped provider error back")
	}
	plain := errors.New("boom")
	got := AsProviderError(plain)
	if got.Code != CodeInternalError || !errors.Is(got, plain) {
		t.Fatalf("unexpected conversion: %+v", got)
	}
}

func TestRoleState_Grants(t *testing.T) {
	if (RoleState{Role: RoleAdmin}).Grants(RoleAdmin) {
		t.Fatalf("unresolved state must grant nothing")
	}
	if !(RoleState{Role: RoleAdmin, Resolved: true}).Grants(RoleCustomer) {
		t.Fatalf("admin should satisfy customer")
	}
	if (RoleState{Role: RoleCustomer, Resolved: true}).Grants(RoleAdmin) {
		t.Fatalf("customer must not satisfy admin")
	}
}
