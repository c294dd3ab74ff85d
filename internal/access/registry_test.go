package access

import (
	"testing"

	"github.com/R3E-Network/vault_layer/internal/errors"
	"github.com/R3E-Network/vault_layer/internal/record"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	schema, err := record.NewBase([]record.Field{
		{Name: "roles", Kind: record.KindFlagMap},
	}, 4)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return NewRegistry(record.New(schema), "roles")
}

func TestGrantRequiresAdminOfRole(t *testing.T) {
	r := newRegistry(t)
	r.Seed(RoleAdmin, "root")

	if err := r.Grant("root", "u1", RoleUpgrader); err != nil {
		t.Fatalf("grant by root: %v", err)
	}
	if !r.Has(RoleUpgrader, "u1") {
		t.Fatal("membership not recorded")
	}

	// Holding a role does not allow administering it; only root does.
	err := r.Grant("u1", "u2", RoleUpgrader)
	if !errors.IsClass(err, errors.ClassUnauthorized) {
		t.Fatalf("grant by non-admin must reject, got %v", err)
	}
}

func TestRootAdministersItself(t *testing.T) {
	r := newRegistry(t)
	r.Seed(RoleAdmin, "root")

	if err := r.Grant("root", "root2", RoleAdmin); err != nil {
		t.Fatalf("root granting root: %v", err)
	}
	if err := r.Revoke("root2", "root", RoleAdmin); err != nil {
		t.Fatalf("new root revoking old root: %v", err)
	}
	if r.Has(RoleAdmin, "root") {
		t.Fatal("revocation did not take effect")
	}
}

func TestRequireRejectsNotNoops(t *testing.T) {
	r := newRegistry(t)
	if err := r.Require(RolePauser, "nobody"); !errors.IsClass(err, errors.ClassUnauthorized) {
		t.Fatalf("want unauthorized, got %v", err)
	}
	if err := r.Require(RolePauser, ""); !errors.IsClass(err, errors.ClassUnauthorized) {
		t.Fatalf("empty principal must reject, got %v", err)
	}
}

func TestRevokeDoesNotDisturbOthers(t *testing.T) {
	r := newRegistry(t)
	r.Seed(RoleAdmin, "root")
	r.Seed(RoleUpgrader, "root")
	r.Seed(RolePauser, "ops")

	if err := r.Revoke("root", "ops", RolePauser); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !r.Has(RoleAdmin, "root") || !r.Has(RoleUpgrader, "root") {
		t.Fatal("unrelated memberships disturbed")
	}
}
