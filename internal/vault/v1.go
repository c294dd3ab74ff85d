package vault

import (
	"context"
	"math/big"

	"github.com/R3E-Network/vault_layer/internal/access"
	"github.com/R3E-Network/vault_layer/internal/errors"
	"github.com/R3E-Network/vault_layer/internal/ledger"
	"github.com/R3E-Network/vault_layer/internal/record"
	"github.com/R3E-Network/vault_layer/pkg/logger"
)

// Config assembles a logic module's collaborators.
type Config struct {
	// Store is the storage instance the module operates on. A module
	// constructed without one is permanently disabled: every entry point,
	// including initialization, rejects.
	Store *record.Store

	// Assets is the external ledger used to move value in and out.
	Assets ledger.AssetLedger

	// VaultAccount is the ledger-side account custodying pulled funds.
	VaultAccount string

	// Clock defaults to SystemClock.
	Clock Clock

	// Log defaults to a logger named for the generation.
	Log *logger.Logger
}

// V1 is the first-generation vault logic: fee-bearing deposits and direct
// withdrawals over the generation-1 layout.
type V1 struct {
	store   *record.Store
	assets  ledger.AssetLedger
	reg     *access.Registry
	clock   Clock
	log     *logger.Logger
	account string
}

// NewV1 constructs the generation-1 logic module.
func NewV1(cfg Config) *V1 {
	v := &V1{
		store:   cfg.Store,
		assets:  cfg.Assets,
		clock:   cfg.Clock,
		log:     cfg.Log,
		account: cfg.VaultAccount,
	}
	if v.clock == nil {
		v.clock = SystemClock
	}
	if v.log == nil {
		v.log = logger.NewDefault("vault-v1")
	}
	if v.account == "" {
		v.account = "vault"
	}
	if v.store != nil {
		v.reg = access.NewRegistry(v.store, FieldRoles)
	}
	return v
}

var _ Logic = (*V1)(nil)

// Version implements Logic.
func (v *V1) Version() string { return "v1.0.0" }

// Generation implements Logic.
func (v *V1) Generation() uint64 { return 1 }

// Store implements Logic.
func (v *V1) Store() *record.Store { return v.store }

// begin checks the storage binding and takes the reentrancy latch. Every
// mutating entry point goes through it; the returned release must run on
// all exit paths.
func (v *V1) begin() (func(), error) {
	if v.store == nil {
		return nil, errors.Precondition("logic module is not bound to storage")
	}
	if err := v.store.Acquire(); err != nil {
		return nil, err
	}
	return v.store.Release, nil
}

// storageGeneration reads the initialization generation counter.
func (v *V1) storageGeneration() uint64 {
	return v.store.Uint(FieldGeneration)
}

// Initialize runs the one-time generation-1 setup: it binds the asset
// ledger reference, sets the deposit fee, and grants the designated admin
// the root and upgrader roles. It runs exactly once per storage instance.
func (v *V1) Initialize(ctx context.Context, admin, ledgerRef string, feeBps uint64) error {
	if admin == "" {
		return errors.Validation("empty admin principal")
	}
	if ledgerRef == "" {
		return errors.Validation("empty asset ledger reference")
	}
	if feeBps > BpsDenominator {
		return errors.Validation("deposit fee %d exceeds %d bps", feeBps, BpsDenominator)
	}
	release, err := v.begin()
	if err != nil {
		return err
	}
	defer release()

	if gen := v.storageGeneration(); gen != 0 {
		return errors.Precondition("storage already initialized at generation %d", gen)
	}
	v.store.SetString(FieldAssetLedgerRef, ledgerRef)
	v.store.SetUint(FieldDepositFeeBps, feeBps)
	v.reg.Seed(access.RoleAdmin, admin)
	v.reg.Seed(access.RoleUpgrader, admin)
	v.store.SetUint(FieldGeneration, 1)

	v.log.WithField("admin", admin).Info("storage initialized at generation 1")
	return nil
}

// InitializeGen2 implements Logic; generation 1 has no such entry point.
func (v *V1) InitializeGen2(ctx context.Context, pauser string) error {
	return errNotIntroduced("initializeGen2", 2, v.Generation())
}

// InitializeGen3 implements Logic; generation 1 has no such entry point.
func (v *V1) InitializeGen3(ctx context.Context) error {
	return errNotIntroduced("initializeGen3", 3, v.Generation())
}

// Deposit pulls amount from the caller through the asset ledger and credits
// the net of the deposit fee. The pull happens before any credit so a failed
// transfer can never mint internal balance.
func (v *V1) Deposit(ctx context.Context, caller string, amount int64) error {
	if amount <= 0 {
		return errors.Validation("deposit amount must be positive")
	}
	release, err := v.begin()
	if err != nil {
		return err
	}
	defer release()

	if err := v.assets.Pull(ctx, caller, v.account, amount); err != nil {
		return errors.External(err, "asset pull failed")
	}

	fee := mulDivFloor(amount, int64(v.store.Uint(FieldDepositFeeBps)), BpsDenominator)
	credited := amount - fee
	v.store.SetAmount(FieldBalances, caller, v.store.Amount(FieldBalances, caller)+credited)
	v.store.SetUint(FieldTotalDeposits, v.store.Uint(FieldTotalDeposits)+uint64(credited))

	v.log.WithField("caller", caller).Debugf("deposited %d, credited %d", amount, credited)
	return nil
}

// Withdraw debits the caller's balance and pushes funds out. The debit
// happens before the push, and a failed push rolls the debit back, so the
// operation is all-or-nothing and immune to double-spend under reentry.
func (v *V1) Withdraw(ctx context.Context, caller string, amount int64) error {
	if amount <= 0 {
		return errors.Validation("withdraw amount must be positive")
	}
	release, err := v.begin()
	if err != nil {
		return err
	}
	defer release()

	balance := v.store.Amount(FieldBalances, caller)
	if amount > balance {
		return errors.Precondition("insufficient balance: have %d, want %d", balance, amount)
	}

	txn := v.store.Begin()
	defer txn.Rollback()
	v.store.SetAmount(FieldBalances, caller, balance-amount)
	v.store.SetUint(FieldTotalDeposits, v.store.Uint(FieldTotalDeposits)-uint64(amount))
	if err := v.assets.Push(ctx, caller, amount); err != nil {
		return errors.External(err, "asset push failed")
	}
	txn.Commit()
	return nil
}

// ClaimYield implements Logic; yield arrives in generation 2.
func (v *V1) ClaimYield(ctx context.Context, caller string) (int64, error) {
	return 0, errNotIntroduced("claimYield", 2, v.Generation())
}

// RequestWithdrawal implements Logic; two-phase withdrawal arrives in
// generation 3.
func (v *V1) RequestWithdrawal(caller string, amount int64) error {
	return errNotIntroduced("requestWithdrawal", 3, v.Generation())
}

// ExecuteWithdrawal implements Logic.
func (v *V1) ExecuteWithdrawal(ctx context.Context, caller string) (int64, error) {
	return 0, errNotIntroduced("executeWithdrawal", 3, v.Generation())
}

// EmergencyWithdraw implements Logic.
func (v *V1) EmergencyWithdraw(ctx context.Context, caller string) (int64, error) {
	return 0, errNotIntroduced("emergencyWithdraw", 3, v.Generation())
}

// GrantRole grants a role; the caller must hold the role's admin role.
func (v *V1) GrantRole(caller, principal string, role access.Role) error {
	release, err := v.begin()
	if err != nil {
		return err
	}
	defer release()
	return v.reg.Grant(caller, principal, role)
}

// RevokeRole revokes a role; the caller must hold the role's admin role.
func (v *V1) RevokeRole(caller, principal string, role access.Role) error {
	release, err := v.begin()
	if err != nil {
		return err
	}
	defer release()
	return v.reg.Revoke(caller, principal, role)
}

// SetDepositFee updates the deposit fee rate. Admin only.
func (v *V1) SetDepositFee(caller string, bps uint64) error {
	if bps > BpsDenominator {
		return errors.Validation("fee %d exceeds %d bps", bps, BpsDenominator)
	}
	release, err := v.begin()
	if err != nil {
		return err
	}
	defer release()
	if err := v.reg.Require(access.RoleAdmin, caller); err != nil {
		return err
	}
	v.store.SetUint(FieldDepositFeeBps, bps)
	return nil
}

// SetYieldRate implements Logic; yield arrives in generation 2.
func (v *V1) SetYieldRate(caller string, bps uint64) error {
	return errNotIntroduced("setYieldRate", 2, v.Generation())
}

// PauseDeposits implements Logic.
func (v *V1) PauseDeposits(caller string) error {
	return errNotIntroduced("pauseDeposits", 2, v.Generation())
}

// UnpauseDeposits implements Logic.
func (v *V1) UnpauseDeposits(caller string) error {
	return errNotIntroduced("unpauseDeposits", 2, v.Generation())
}

// SetWithdrawalDelay implements Logic.
func (v *V1) SetWithdrawalDelay(caller string, seconds uint64) error {
	return errNotIntroduced("setWithdrawalDelay", 3, v.Generation())
}

// BalanceOf reads a principal's net credited balance.
func (v *V1) BalanceOf(principal string) int64 {
	if v.store == nil {
		return 0
	}
	return v.store.Amount(FieldBalances, principal)
}

// TotalDeposits reads the running total of all balances.
func (v *V1) TotalDeposits() int64 {
	if v.store == nil {
		return 0
	}
	return int64(v.store.Uint(FieldTotalDeposits))
}

// DepositFeeBps reads the deposit fee rate.
func (v *V1) DepositFeeBps() uint64 {
	if v.store == nil {
		return 0
	}
	return v.store.Uint(FieldDepositFeeBps)
}

// HasRole reports role membership.
func (v *V1) HasRole(role access.Role, principal string) bool {
	if v.store == nil {
		return false
	}
	return v.reg.Has(role, principal)
}

// UserYield implements Logic; yield arrives in generation 2.
func (v *V1) UserYield(principal string) (int64, error) {
	return 0, errNotIntroduced("getUserYield", 2, v.Generation())
}

// YieldRateBps implements Logic.
func (v *V1) YieldRateBps() (uint64, error) {
	return 0, errNotIntroduced("getYieldRate", 2, v.Generation())
}

// DepositsPaused implements Logic.
func (v *V1) DepositsPaused() (bool, error) {
	return false, errNotIntroduced("isDepositsPaused", 2, v.Generation())
}

// WithdrawalDelay implements Logic.
func (v *V1) WithdrawalDelay() (uint64, error) {
	return 0, errNotIntroduced("getWithdrawalDelay", 3, v.Generation())
}

// WithdrawalRequest implements Logic.
func (v *V1) WithdrawalRequest(principal string) (record.Request, error) {
	return record.Request{}, errNotIntroduced("getWithdrawalRequest", 3, v.Generation())
}

func errNotIntroduced(op string, need, have uint64) *errors.Error {
	return errors.Precondition("%s is not available before generation %d", op, need).
		WithDetails("logic_generation", have)
}

// mulDivFloor computes floor(a*b/den) without intermediate overflow.
func mulDivFloor(a, b, den int64) int64 {
	out := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	out.Quo(out, big.NewInt(den))
	return out.Int64()
}
