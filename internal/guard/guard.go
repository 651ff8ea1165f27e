// Package guard decides whether a navigation to a protected page may proceed.
package guard

import (
	"context"
	"time"

	domainauth "github.com/target/tourbook/internal/domain/auth"
)

// Default destinations for denied navigations.
const (
	DefaultLoginPath        = "/login"
	DefaultUnauthorizedPath = "/unauthorized"
)

// Paths are the redirect destinations used by the decisions.
type Paths struct {
	Login        string
	Unauthorized string
}

func (p Paths) withDefaults() Paths {
	if p.Login == "" {
		p.Login = DefaultLoginPath
	}
	if p.Unauthorized == "" {
		p.Unauthorized = DefaultUnauthorizedPath
	}
	return p
}

// Evaluate decides access to an identity-protected path.
func Evaluate(snap domainauth.Snapshot, path string) domainauth.Decision {
	return Paths{}.Evaluate(snap, path)
}

// EvaluateRole decides access to a path that needs at least the required role.
func EvaluateRole(snap domainauth.Snapshot, role domainauth.RoleState, required domainauth.Role, path string) domainauth.Decision {
	return Paths{}.EvaluateRole(snap, role, required, path)
}

// Evaluate is the package-level Evaluate with custom destinations.
func (p Paths) Evaluate(snap domainauth.Snapshot, path string) domainauth.Decision {
	p = p.withDefaults()
	switch {
	case snap.Loading:
		return domainauth.Decision{Kind: domainauth.DecisionPending}
	case snap.Identity.HasEmail():
		return domainauth.Decision{Kind: domainauth.DecisionAllow}
	default:
		return domainauth.Decision{Kind: domainauth.DecisionRedirectToLogin, To: p.Login, From: path}
	}
}

// EvaluateRole is the package-level EvaluateRole with custom destinations.
// The identity check comes first; admin is never granted before the role resolves.
func (p Paths) EvaluateRole(snap domainauth.Snapshot, role domainauth.RoleState, required domainauth.Role, path string) domainauth.Decision {
	p = p.withDefaults()
	d := p.Evaluate(snap, path)
	if d.Kind != domainauth.DecisionAllow {
		return d
	}
	if !role.Resolved {
		return domainauth.Decision{Kind: domainauth.DecisionPending}
	}
	if role.Grants(required) {
		return d
	}
	return domainauth.Decision{Kind: domainauth.DecisionRedirectUnauthorized, To: p.Unauthorized, From: path}
}

// Subject is the guard's view of one browser session.
type Subject interface {
	Snapshot() domainauth.Snapshot
	// Watch streams snapshots starting with the current one.
	Watch() (<-chan domainauth.Snapshot, func())
	// Role resolves the role for snap. It must not fetch while snap is loading.
	Role(ctx context.Context, snap domainauth.Snapshot) domainauth.RoleState
}

// Settle waits up to timeout for the subject to stop loading and returns the latest snapshot.
// The returned snapshot may still be loading.
func Settle(ctx context.Context, sub Subject, timeout time.Duration) domainauth.Snapshot {
	snap := sub.Snapshot()
	if !snap.Loading || timeout <= 0 {
		return snap
	}
	ch, cancel := sub.Watch()
	defer cancel()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case next, ok := <-ch:
			if !ok {
				return snap
			}
			snap = next
			if !snap.Loading {
				return snap
			}
		case <-timer.C:
			return snap
		case <-ctx.Done():
			return snap
		}
	}
}
