package vault

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/R3E-Network/vault_layer/internal/access"
	"github.com/R3E-Network/vault_layer/internal/errors"
)

func TestInitializeGen2Gating(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Before generation 1 has run.
	v2 := NewV2(h.config())
	if err := v2.InitializeGen2(ctx, testAdmin); !errors.IsClass(err, errors.ClassPrecondition) {
		t.Fatalf("gen2 before gen1 must reject, got %v", err)
	}

	v2 = h.v2(t)
	if err := v2.InitializeGen2(ctx, testAdmin); !errors.IsClass(err, errors.ClassPrecondition) {
		t.Fatalf("second gen2 init must reject, got %v", err)
	}
	if !v2.HasRole(access.RolePauser, testAdmin) {
		t.Fatal("gen2 init must grant the pause role")
	}
	if v2.Version() != "v2.0.0" {
		t.Fatalf("version: %s", v2.Version())
	}
}

func TestStateSurvivesGenerationTransition(t *testing.T) {
	h := newHarness(t)
	v1 := h.v1(t)
	h.fund("alice", 1000)
	if err := v1.Deposit(context.Background(), "alice", 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := h.store.Bind(SchemaV2()); err != nil {
		t.Fatalf("bind v2: %v", err)
	}
	v2 := NewV2(h.config())
	if err := v2.InitializeGen2(context.Background(), testAdmin); err != nil {
		t.Fatalf("gen2 init: %v", err)
	}

	// Every pre-transition field keeps its exact value.
	if got := v2.BalanceOf("alice"); got != 950 {
		t.Fatalf("balance after transition: %d", got)
	}
	if got := v2.TotalDeposits(); got != 950 {
		t.Fatalf("total after transition: %d", got)
	}
	if got := v2.DepositFeeBps(); got != 500 {
		t.Fatalf("fee after transition: %d", got)
	}
	if !v2.HasRole(access.RoleAdmin, testAdmin) || !v2.HasRole(access.RoleUpgrader, testAdmin) {
		t.Fatal("role memberships lost in transition")
	}
	checkInvariant(t, h.store)
}

func TestPauseUnpause(t *testing.T) {
	h := newHarness(t)
	v := h.v2(t)
	ctx := context.Background()
	h.fund("alice", 1000)

	if err := v.PauseDeposits("nobody"); !errors.IsClass(err, errors.ClassUnauthorized) {
		t.Fatalf("pause by non-pauser must reject, got %v", err)
	}
	if err := v.PauseDeposits(testAdmin); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := v.PauseDeposits(testAdmin); !errors.IsClass(err, errors.ClassPrecondition) {
		t.Fatalf("double pause must reject, got %v", err)
	}
	if err := v.Deposit(ctx, "alice", 100); !errors.IsClass(err, errors.ClassPrecondition) {
		t.Fatalf("deposit while paused must reject, got %v", err)
	}
	if paused, _ := v.DepositsPaused(); !paused {
		t.Fatal("pause flag not set")
	}

	if err := v.UnpauseDeposits(testAdmin); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if err := v.UnpauseDeposits(testAdmin); !errors.IsClass(err, errors.ClassPrecondition) {
		t.Fatalf("double unpause must reject, got %v", err)
	}
	if err := v.Deposit(ctx, "alice", 100); err != nil {
		t.Fatalf("deposit after unpause: %v", err)
	}
}

func TestYieldAccrualOverOneYear(t *testing.T) {
	h := newHarness(t)
	v := h.v2(t)
	ctx := context.Background()

	if err := v.SetDepositFee(testAdmin, 0); err != nil {
		t.Fatalf("zero fee: %v", err)
	}
	if err := v.SetYieldRate(testAdmin, 1000); err != nil { // 10%
		t.Fatalf("set rate: %v", err)
	}
	h.fund("alice", 1000)
	if err := v.Deposit(ctx, "alice", 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	h.clock.Advance(365 * 24 * time.Hour)
	got, err := v.UserYield("alice")
	if err != nil {
		t.Fatalf("user yield: %v", err)
	}
	if got != 100 {
		t.Fatalf("yield after one year at 10%%: %d, want 100", got)
	}

	// Vault liquidity covers the payout.
	h.assets.Mint(testVaultAcct, 100)
	paid, err := v.ClaimYield(ctx, "alice")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid != 100 {
		t.Fatalf("paid %d, want 100", paid)
	}
	// Claim resets accrual immediately.
	if got, _ := v.UserYield("alice"); got != 0 {
		t.Fatalf("yield after claim: %d, want 0", got)
	}
	// Yield is paid from vault liquidity, not minted into balances.
	if got := v.BalanceOf("alice"); got != 1000 {
		t.Fatalf("balance changed by claim: %d", got)
	}
	checkInvariant(t, h.store)
}

func TestYieldZeroCases(t *testing.T) {
	h := newHarness(t)
	v := h.v2(t)
	ctx := context.Background()
	h.fund("alice", 1000)

	// Unseeded timestamp: no deposit yet.
	if got, _ := v.UserYield("alice"); got != 0 {
		t.Fatalf("yield without deposit: %d", got)
	}

	// Zero rate.
	if err := v.Deposit(ctx, "alice", 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	h.clock.Advance(365 * 24 * time.Hour)
	if got, _ := v.UserYield("alice"); got != 0 {
		t.Fatalf("yield at zero rate: %d", got)
	}
}

func TestClaimYieldFirstTouchRejects(t *testing.T) {
	h := newHarness(t)
	v := h.v2(t)
	ctx := context.Background()
	h.fund("alice", 1000)

	if err := v.SetYieldRate(testAdmin, 1000); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if err := v.Deposit(ctx, "alice", 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// The deposit just seeded the accrual timestamp: nothing to claim yet.
	if _, err := v.ClaimYield(ctx, "alice"); !errors.IsClass(err, errors.ClassPrecondition) {
		t.Fatalf("first-touch claim must reject, got %v", err)
	}
}

func TestClaimYieldRollsBackOnPushFailure(t *testing.T) {
	h := newHarness(t)
	v := h.v2(t)
	ctx := context.Background()

	if err := v.SetDepositFee(testAdmin, 0); err != nil {
		t.Fatalf("zero fee: %v", err)
	}
	if err := v.SetYieldRate(testAdmin, 1000); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	h.fund("alice", 1000)
	if err := v.Deposit(ctx, "alice", 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	h.clock.Advance(365 * 24 * time.Hour)

	// The push fails: the timestamp reset must roll back so the accrual
	// is not lost.
	h.assets.PushHook = func(to string, amount int64) error {
		return fmt.Errorf("ledger down")
	}
	before := h.store.Time(FieldLastClaimTime, "alice")
	if _, err := v.ClaimYield(ctx, "alice"); !errors.IsClass(err, errors.ClassExternal) {
		t.Fatalf("want external error, got %v", err)
	}
	if got := h.store.Time(FieldLastClaimTime, "alice"); got != before {
		t.Fatal("failed claim must not reset the accrual timestamp")
	}
	if got, _ := v.UserYield("alice"); got != 100 {
		t.Fatalf("accrual lost on failed claim: %d", got)
	}
}

func TestSetYieldRateValidation(t *testing.T) {
	h := newHarness(t)
	v := h.v2(t)

	if err := v.SetYieldRate(testAdmin, 10001); !errors.IsClass(err, errors.ClassValidation) {
		t.Fatalf("out-of-range rate must reject, got %v", err)
	}
	if err := v.SetYieldRate("nobody", 100); !errors.IsClass(err, errors.ClassUnauthorized) {
		t.Fatalf("non-admin must reject, got %v", err)
	}
}
