package vault

import (
	"context"
	"fmt"
	"testing"

	"github.com/R3E-Network/vault_layer/internal/access"
	"github.com/R3E-Network/vault_layer/internal/errors"
)

func TestInitializeRunsOnce(t *testing.T) {
	h := newHarness(t)
	v := h.v1(t)

	err := v.Initialize(context.Background(), "other-admin", testLedgerRef, 0)
	if !errors.IsClass(err, errors.ClassPrecondition) {
		t.Fatalf("second initialize must reject, got %v", err)
	}
	if !v.HasRole(access.RoleAdmin, testAdmin) || !v.HasRole(access.RoleUpgrader, testAdmin) {
		t.Fatal("admin must hold root and upgrader roles")
	}
	if v.HasRole(access.RoleAdmin, "other-admin") {
		t.Fatal("failed initialize must not grant roles")
	}
}

func TestInitializeRejectsDetachedModule(t *testing.T) {
	v := NewV1(Config{Store: nil})
	err := v.Initialize(context.Background(), testAdmin, testLedgerRef, 0)
	if !errors.IsClass(err, errors.ClassPrecondition) {
		t.Fatalf("storage-less module must reject initialization, got %v", err)
	}
}

func TestInitializeValidation(t *testing.T) {
	h := newHarness(t)
	v := NewV1(h.config())
	cases := []struct {
		name      string
		admin     string
		ledgerRef string
		feeBps    uint64
	}{
		{"empty admin", "", testLedgerRef, 0},
		{"empty ledger", testAdmin, "", 0},
		{"fee too high", testAdmin, testLedgerRef, 10001},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Initialize(context.Background(), tc.admin, tc.ledgerRef, tc.feeBps)
			if !errors.IsClass(err, errors.ClassValidation) {
				t.Fatalf("want validation error, got %v", err)
			}
		})
	}
}

func TestDepositFeeMath(t *testing.T) {
	h := newHarness(t)
	v := h.v1(t) // 500 bps fee
	h.fund("alice", 1000)

	if err := v.Deposit(context.Background(), "alice", 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := v.BalanceOf("alice"); got != 950 {
		t.Fatalf("credited %d, want 950", got)
	}
	if got := v.TotalDeposits(); got != 950 {
		t.Fatalf("total %d, want 950", got)
	}
	if got := h.assets.Balance(testVaultAcct); got != 1000 {
		t.Fatalf("vault ledger balance %d, want 1000", got)
	}
	checkInvariant(t, h.store)
}

func TestDepositRejectsNonPositive(t *testing.T) {
	h := newHarness(t)
	v := h.v1(t)
	for _, amount := range []int64{0, -5} {
		if err := v.Deposit(context.Background(), "alice", amount); !errors.IsClass(err, errors.ClassValidation) {
			t.Fatalf("amount %d: want validation error, got %v", amount, err)
		}
	}
}

func TestDepositFailedPullLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	v := h.v1(t)
	// No funds minted: the pull fails.
	err := v.Deposit(context.Background(), "alice", 100)
	if !errors.IsClass(err, errors.ClassExternal) {
		t.Fatalf("want external error, got %v", err)
	}
	if v.BalanceOf("alice") != 0 || v.TotalDeposits() != 0 {
		t.Fatal("failed pull must not credit anything")
	}
	checkInvariant(t, h.store)
}

func TestWithdraw(t *testing.T) {
	h := newHarness(t)
	v := h.v1(t)
	h.fund("alice", 1000)
	if err := v.Deposit(context.Background(), "alice", 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := v.Withdraw(context.Background(), "alice", 400); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := v.BalanceOf("alice"); got != 550 {
		t.Fatalf("balance %d, want 550", got)
	}
	if got := h.assets.Balance("alice"); got != 400 {
		t.Fatalf("alice ledger balance %d, want 400", got)
	}
	checkInvariant(t, h.store)
}

func TestWithdrawRejectsOverdraft(t *testing.T) {
	h := newHarness(t)
	v := h.v1(t)
	h.fund("alice", 100)
	if err := v.Deposit(context.Background(), "alice", 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	before := v.BalanceOf("alice")

	err := v.Withdraw(context.Background(), "alice", before+1)
	if !errors.IsClass(err, errors.ClassPrecondition) {
		t.Fatalf("overdraft must reject, got %v", err)
	}
	if v.BalanceOf("alice") != before {
		t.Fatal("rejected withdraw must not change balance")
	}
	checkInvariant(t, h.store)
}

func TestWithdrawRollsBackOnPushFailure(t *testing.T) {
	h := newHarness(t)
	v := h.v1(t)
	h.fund("alice", 1000)
	if err := v.Deposit(context.Background(), "alice", 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	h.assets.PushHook = func(to string, amount int64) error {
		return fmt.Errorf("ledger down")
	}

	err := v.Withdraw(context.Background(), "alice", 500)
	if !errors.IsClass(err, errors.ClassExternal) {
		t.Fatalf("want external error, got %v", err)
	}
	if got := v.BalanceOf("alice"); got != 950 {
		t.Fatalf("debit not rolled back: %d", got)
	}
	if got := v.TotalDeposits(); got != 950 {
		t.Fatalf("total not rolled back: %d", got)
	}
	checkInvariant(t, h.store)
}

func TestReentrantPushRejected(t *testing.T) {
	h := newHarness(t)
	v := h.v1(t)
	h.fund("alice", 1000)
	if err := v.Deposit(context.Background(), "alice", 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	var nested error
	h.assets.PushHook = func(to string, amount int64) error {
		// The ledger re-enters the vault mid-withdrawal.
		nested = v.Withdraw(context.Background(), "alice", 1)
		return nil
	}
	if err := v.Withdraw(context.Background(), "alice", 500); err != nil {
		t.Fatalf("outer withdraw: %v", err)
	}
	if !errors.IsClass(nested, errors.ClassReentrancy) {
		t.Fatalf("nested call must hit the latch, got %v", nested)
	}
	if got := v.BalanceOf("alice"); got != 450 {
		t.Fatalf("balance %d, want 450", got)
	}
	checkInvariant(t, h.store)
}

func TestInvariantAcrossOperationSequence(t *testing.T) {
	h := newHarness(t)
	v := h.v1(t)
	h.fund("alice", 10_000)
	h.fund("bob", 10_000)
	ctx := context.Background()

	steps := []func() error{
		func() error { return v.Deposit(ctx, "alice", 1000) },
		func() error { return v.Deposit(ctx, "bob", 333) },
		func() error { return v.Withdraw(ctx, "alice", 200) },
		func() error { return v.Deposit(ctx, "alice", 1) },
		func() error { return v.Withdraw(ctx, "bob", 9999) }, // rejected
		func() error { return v.Withdraw(ctx, "bob", 300) },
	}
	for i, step := range steps {
		_ = step()
		t.Run(fmt.Sprintf("step_%d", i), func(t *testing.T) {
			checkInvariant(t, h.store)
		})
	}
}

func TestRoleGrantRevoke(t *testing.T) {
	h := newHarness(t)
	v := h.v1(t)

	if err := v.GrantRole(testAdmin, "upgrader-2", access.RoleUpgrader); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !v.HasRole(access.RoleUpgrader, "upgrader-2") {
		t.Fatal("grant did not take effect")
	}

	err := v.GrantRole("nobody", "m", access.RoleUpgrader)
	if !errors.IsClass(err, errors.ClassUnauthorized) {
		t.Fatalf("grant by non-admin must reject, got %v", err)
	}

	if err := v.RevokeRole(testAdmin, "upgrader-2", access.RoleUpgrader); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if v.HasRole(access.RoleUpgrader, "upgrader-2") {
		t.Fatal("revoke did not take effect")
	}
	// Revocation must not disturb other memberships.
	if !v.HasRole(access.RoleAdmin, testAdmin) || !v.HasRole(access.RoleUpgrader, testAdmin) {
		t.Fatal("admin roles corrupted by revoke")
	}
}

func TestSetDepositFee(t *testing.T) {
	h := newHarness(t)
	v := h.v1(t)

	if err := v.SetDepositFee(testAdmin, 100); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	if got := v.DepositFeeBps(); got != 100 {
		t.Fatalf("fee %d, want 100", got)
	}
	if err := v.SetDepositFee(testAdmin, 10001); !errors.IsClass(err, errors.ClassValidation) {
		t.Fatalf("out-of-range fee must reject, got %v", err)
	}
	if err := v.SetDepositFee("nobody", 100); !errors.IsClass(err, errors.ClassUnauthorized) {
		t.Fatalf("non-admin set fee must reject, got %v", err)
	}
}

func TestGenerationOneRejectsLaterOperations(t *testing.T) {
	h := newHarness(t)
	v := h.v1(t)
	ctx := context.Background()

	if _, err := v.ClaimYield(ctx, "alice"); !errors.IsClass(err, errors.ClassPrecondition) {
		t.Fatalf("claimYield on v1: %v", err)
	}
	if err := v.RequestWithdrawal("alice", 1); !errors.IsClass(err, errors.ClassPrecondition) {
		t.Fatalf("requestWithdrawal on v1: %v", err)
	}
	if err := v.InitializeGen2(ctx, testAdmin); !errors.IsClass(err, errors.ClassPrecondition) {
		t.Fatalf("initializeGen2 on v1: %v", err)
	}
	if v.Version() != "v1.0.0" {
		t.Fatalf("version: %s", v.Version())
	}
}
