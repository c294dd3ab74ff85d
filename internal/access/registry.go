// Package access implements the role registry guarding the vault's
// privileged operations.
//
// Roles are data, not code: membership lives in a keyed flag space of the
// record store, inside the very state the roles protect. A static
// admin-of-role relation decides who may grant or revoke each role; in this
// design the root admin role administers every role, including itself.
// Compromise of root therefore compromises everything, which is why root is
// expected to be held by a multi-party principal. That is an operational
// recommendation, not something this package can enforce.
package access

import (
	"github.com/R3E-Network/vault_layer/internal/errors"
	"github.com/R3E-Network/vault_layer/internal/record"
)

// Role names a permission class.
type Role string

const (
	// RoleAdmin is the root role. It administers all roles including itself.
	RoleAdmin Role = "admin"
	// RoleUpgrader may retarget the forwarding layer to a new logic module.
	RoleUpgrader Role = "upgrader"
	// RolePauser may pause and unpause deposits. Introduced in generation 2.
	RolePauser Role = "pauser"
)

// AdminOf returns the role that administers the given role.
func AdminOf(Role) Role { return RoleAdmin }

// Registry reads and writes role membership in a record store flag space.
type Registry struct {
	store *record.Store
	field string
}

// NewRegistry binds a registry to the store's role membership field.
func NewRegistry(store *record.Store, field string) *Registry {
	return &Registry{store: store, field: field}
}

func key(role Role, principal string) string {
	return string(role) + ":" + principal
}

// Has reports whether the principal holds the role.
func (r *Registry) Has(role Role, principal string) bool {
	if principal == "" {
		return false
	}
	return r.store.Flag(r.field, key(role, principal))
}

// Require rejects with an authorization error when the principal does not
// hold the role. Gated operations must reject, never no-op.
func (r *Registry) Require(role Role, principal string) error {
	if !r.Has(role, principal) {
		return errors.Unauthorized("%s role required", role).
			WithDetails("principal", principal)
	}
	return nil
}

// Grant gives principal the role. The caller must hold the role's admin
// role.
func (r *Registry) Grant(caller, principal string, role Role) error {
	if principal == "" {
		return errors.Validation("empty principal")
	}
	if err := r.Require(AdminOf(role), caller); err != nil {
		return err
	}
	r.store.SetFlag(r.field, key(role, principal), true)
	return nil
}

// Revoke removes the role from principal. The caller must hold the role's
// admin role. Revoking a role the principal does not hold is allowed and
// leaves no trace; revocation never disturbs any other membership.
func (r *Registry) Revoke(caller, principal string, role Role) error {
	if principal == "" {
		return errors.Validation("empty principal")
	}
	if err := r.Require(AdminOf(role), caller); err != nil {
		return err
	}
	r.store.SetFlag(r.field, key(role, principal), false)
	return nil
}

// Seed grants a role without an authorization check. Only initialization
// code paths may use it, before any admin exists to authorize grants.
func (r *Registry) Seed(role Role, principal string) {
	r.store.SetFlag(r.field, key(role, principal), true)
}
