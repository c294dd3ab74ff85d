package vault

import (
	"context"
	"testing"

	"github.com/R3E-Network/vault_layer/internal/errors"
	"github.com/R3E-Network/vault_layer/pkg/logger"
)

func TestUpgradeRequiresRole(t *testing.T) {
	h := newHarness(t)
	v1 := h.v1(t)
	p, err := NewProxy(h.store, v1, logger.Nop())
	if err != nil {
		t.Fatalf("proxy: %v", err)
	}

	v2 := NewV2(h.config())
	err = p.UpgradeTo("nobody", v2)
	if !errors.IsClass(err, errors.ClassUnauthorized) {
		t.Fatalf("swap by non-upgrader must reject, got %v", err)
	}
	if p.Version() != "v1.0.0" {
		t.Fatalf("pointer moved on rejected swap: %s", p.Version())
	}

	if err := p.UpgradeTo(testAdmin, v2); err != nil {
		t.Fatalf("authorized swap: %v", err)
	}
	if p.Version() != "v2.0.0" {
		t.Fatalf("version after swap: %s", p.Version())
	}
}

func TestUpgradeRejectsForeignStore(t *testing.T) {
	h := newHarness(t)
	v1 := h.v1(t)
	p, err := NewProxy(h.store, v1, logger.Nop())
	if err != nil {
		t.Fatalf("proxy: %v", err)
	}

	other := newHarness(t)
	v2 := NewV2(other.config())
	if err := p.UpgradeTo(testAdmin, v2); !errors.IsClass(err, errors.ClassValidation) {
		t.Fatalf("swap to module on foreign storage must reject, got %v", err)
	}
}

func TestUpgradeRejectsDowngrade(t *testing.T) {
	h := newHarness(t)
	h.v1(t)
	v2 := NewV2(h.config())
	p, err := NewProxy(h.store, v2, logger.Nop())
	if err != nil {
		t.Fatalf("proxy: %v", err)
	}
	if err := p.UpgradeTo(testAdmin, v2); err != nil {
		t.Fatalf("upgrade to v2: %v", err)
	}

	v1 := NewV1(h.config())
	if err := p.UpgradeTo(testAdmin, v1); !errors.IsClass(err, errors.ClassPrecondition) {
		t.Fatalf("downgrade must be rejected by layout validation, got %v", err)
	}
	if p.Version() != "v2.0.0" {
		t.Fatalf("pointer moved on rejected downgrade: %s", p.Version())
	}
}

// TestFullUpgradeLifecycle drives the storage instance through all three
// generations over the proxy, the way a deployment would.
func TestFullUpgradeLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v1 := NewV1(h.config())
	p, err := NewProxy(h.store, v1, logger.Nop())
	if err != nil {
		t.Fatalf("proxy: %v", err)
	}
	if err := p.Initialize(ctx, testAdmin, testLedgerRef, 500); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	h.fund("alice", 2000)
	if err := p.Deposit(ctx, "alice", 1000); err != nil {
		t.Fatalf("v1 deposit: %v", err)
	}

	// Upgrade to generation 2 and run its transition.
	if err := p.UpgradeTo(testAdmin, NewV2(h.config())); err != nil {
		t.Fatalf("upgrade v2: %v", err)
	}
	if err := p.InitializeGen2(ctx, testAdmin); err != nil {
		t.Fatalf("gen2 init: %v", err)
	}
	if got := p.BalanceOf("alice"); got != 950 {
		t.Fatalf("balance after v2 upgrade: %d", got)
	}

	// Upgrade to generation 3 and run its transition.
	if err := p.UpgradeTo(testAdmin, NewV3(h.config())); err != nil {
		t.Fatalf("upgrade v3: %v", err)
	}
	if err := p.InitializeGen3(ctx); err != nil {
		t.Fatalf("gen3 init: %v", err)
	}

	// Skipping and replaying transitions still rejects through the proxy.
	if err := p.InitializeGen2(ctx, testAdmin); !errors.IsClass(err, errors.ClassPrecondition) {
		t.Fatalf("replayed gen2 init must reject, got %v", err)
	}

	if err := p.RequestWithdrawal("alice", 500); err != nil {
		t.Fatalf("request: %v", err)
	}
	if got := p.BalanceOf("alice"); got != 950 {
		t.Fatalf("balance after request: %d", got)
	}
	if p.Version() != "v3.0.0" || p.Generation() != 3 {
		t.Fatalf("final version %s generation %d", p.Version(), p.Generation())
	}
	checkInvariant(t, h.store)
}
