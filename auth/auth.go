// Package auth implements the capability set spec §9 names for
// authentication and authorization: authenticate_token, authenticate_group,
// authenticate_collection, and role_of. JASMIN-specific auth is one
// implementation of this set; this package defines a single Authenticator
// interface and injects a concrete implementation at startup, per spec §9's
// "dynamic dispatch of authenticators" design note.
package auth

import "context"

// Principal identifies a caller who has presented a valid access token.
type Principal struct {
	Name  string
	Group string
}

// Role is a principal's standing within a group, used by catalog-del's
// permission check (spec §4.4, §9).
type Role string

const (
	RoleUser    Role = "user"
	RoleDeputy  Role = "deputy"
	RoleManager Role = "manager"
)

// Authenticator is the injected capability set spec §9 names. A default
// implementation (DefaultAuthenticator) treats every presented token as
// valid and every role as RoleUser; TokenAuthenticator backs it with a
// fernet-encrypted token table in the teacher's access-token-file style.
type Authenticator interface {
	AuthenticateToken(token string) (Principal, error)
	AuthenticateGroup(principal Principal, group string) (bool, error)
	AuthenticateCollection(principal Principal, holdingLabel string) (bool, error)
	RoleOf(principal Principal, group string) (Role, error)
}

// DefaultAuthenticator is the capability's zero-configuration fallback,
// matching spec §4.4's "the role check is an injected capability (default:
// always 'user')".
type DefaultAuthenticator struct{}

func (DefaultAuthenticator) AuthenticateToken(token string) (Principal, error) {
	return Principal{Name: token}, nil
}

func (DefaultAuthenticator) AuthenticateGroup(principal Principal, group string) (bool, error) {
	return true, nil
}

func (DefaultAuthenticator) AuthenticateCollection(principal Principal, holdingLabel string) (bool, error) {
	return true, nil
}

func (DefaultAuthenticator) RoleOf(principal Principal, group string) (Role, error) {
	return RoleUser, nil
}

// RoleChecker adapts an Authenticator to catalog.RoleChecker's narrower
// (ctx, principal, group) -> (string, error) shape, so the catalog store
// can use whichever Authenticator the service was started with without
// depending on this package's richer interface.
type RoleChecker struct {
	Authenticator Authenticator
}

func (rc RoleChecker) RoleOf(_ context.Context, principal, group string) (string, error) {
	role, err := rc.Authenticator.RoleOf(Principal{Name: principal}, group)
	return string(role), err
}
