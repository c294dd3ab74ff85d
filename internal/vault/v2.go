package vault

import (
	"context"
	"math/big"
	"time"

	"github.com/R3E-Network/vault_layer/internal/access"
	"github.com/R3E-Network/vault_layer/internal/errors"
	"github.com/R3E-Network/vault_layer/pkg/logger"
)

// V2 is the second-generation vault logic. It keeps generation 1's deposit
// and withdrawal semantics and adds pausable deposits and linear,
// non-compounding yield accrual over the generation-2 layout.
type V2 struct {
	*V1
}

// NewV2 constructs the generation-2 logic module.
func NewV2(cfg Config) *V2 {
	if cfg.Log == nil {
		cfg.Log = logger.NewDefault("vault-v2")
	}
	return &V2{V1: NewV1(cfg)}
}

var _ Logic = (*V2)(nil)

// Version implements Logic.
func (v *V2) Version() string { return "v2.0.0" }

// Generation implements Logic.
func (v *V2) Generation() uint64 { return 2 }

// InitializeGen2 runs the generation 1 -> 2 transition: it grants the pause
// role to the given principal and advances the generation counter. It runs
// at most once, and only after generation 1 has run.
func (v *V2) InitializeGen2(ctx context.Context, pauser string) error {
	if pauser == "" {
		return errors.Validation("empty pauser principal")
	}
	release, err := v.begin()
	if err != nil {
		return err
	}
	defer release()

	switch gen := v.storageGeneration(); {
	case gen < 1:
		return errors.Precondition("generation 1 has not been initialized")
	case gen >= 2:
		return errors.Precondition("generation 2 already initialized (counter at %d)", gen)
	}
	v.reg.Seed(access.RolePauser, pauser)
	v.store.SetUint(FieldGeneration, 2)

	v.log.WithField("pauser", pauser).Info("storage advanced to generation 2")
	return nil
}

// Deposit replaces generation 1's deposit: it additionally rejects while
// deposits are paused and, on a principal's first touch, seeds the yield
// accrual timestamp. The seeding is initialization, not a claim.
func (v *V2) Deposit(ctx context.Context, caller string, amount int64) error {
	if amount <= 0 {
		return errors.Validation("deposit amount must be positive")
	}
	release, err := v.begin()
	if err != nil {
		return err
	}
	defer release()

	if v.store.Bool(FieldDepositsPaused) {
		return errors.Precondition("deposits are paused")
	}

	if err := v.assets.Pull(ctx, caller, v.account, amount); err != nil {
		return errors.External(err, "asset pull failed")
	}

	fee := mulDivFloor(amount, int64(v.store.Uint(FieldDepositFeeBps)), BpsDenominator)
	credited := amount - fee
	v.store.SetAmount(FieldBalances, caller, v.store.Amount(FieldBalances, caller)+credited)
	v.store.SetUint(FieldTotalDeposits, v.store.Uint(FieldTotalDeposits)+uint64(credited))

	if v.store.Time(FieldLastClaimTime, caller) == 0 {
		v.store.SetTime(FieldLastClaimTime, caller, v.clock.Now().Unix())
	}

	v.log.WithField("caller", caller).Debugf("deposited %d, credited %d", amount, credited)
	return nil
}

// yieldAt computes the linear accrual for a principal at the given time.
// Zero balance, zero rate, or an unseeded accrual timestamp all yield zero.
func (v *V2) yieldAt(principal string, now time.Time) int64 {
	balance := v.store.Amount(FieldBalances, principal)
	rate := v.store.Uint(FieldYieldRateBps)
	last := v.store.Time(FieldLastClaimTime, principal)
	if balance == 0 || rate == 0 || last == 0 {
		return 0
	}
	elapsed := now.Unix() - last
	if elapsed <= 0 {
		return 0
	}
	num := new(big.Int).Mul(big.NewInt(balance), big.NewInt(int64(rate)))
	num.Mul(num, big.NewInt(elapsed))
	num.Quo(num, big.NewInt(int64(SecondsPerYear)*BpsDenominator))
	return num.Int64()
}

// UserYield reports the yield a principal would receive from a claim now.
// Pure computation, no state change.
func (v *V2) UserYield(principal string) (int64, error) {
	if v.store == nil {
		return 0, errors.Precondition("logic module is not bound to storage")
	}
	return v.yieldAt(principal, v.clock.Now()), nil
}

// ClaimYield pays out the accrued yield and resets the accrual timestamp.
// A zero accrual, including the first-touch case where the timestamp was
// just seeded, rejects with nothing to claim. Yield comes out of the
// vault's own ledger liquidity; it is never minted into balances.
func (v *V2) ClaimYield(ctx context.Context, caller string) (int64, error) {
	release, err := v.begin()
	if err != nil {
		return 0, err
	}
	defer release()

	now := v.clock.Now()
	amount := v.yieldAt(caller, now)
	if amount == 0 {
		return 0, errors.Precondition("nothing to claim")
	}

	txn := v.store.Begin()
	defer txn.Rollback()
	v.store.SetTime(FieldLastClaimTime, caller, now.Unix())
	if err := v.assets.Push(ctx, caller, amount); err != nil {
		return 0, errors.External(err, "yield push failed")
	}
	txn.Commit()

	v.log.WithField("caller", caller).Debugf("claimed yield %d", amount)
	return amount, nil
}

// SetYieldRate updates the annualized yield rate. Admin only.
func (v *V2) SetYieldRate(caller string, bps uint64) error {
	if bps > BpsDenominator {
		return errors.Validation("yield rate %d exceeds %d bps", bps, BpsDenominator)
	}
	release, err := v.begin()
	if err != nil {
		return err
	}
	defer release()
	if err := v.reg.Require(access.RoleAdmin, caller); err != nil {
		return err
	}
	v.store.SetUint(FieldYieldRateBps, bps)
	return nil
}

// PauseDeposits halts deposits. Pauser only; rejects if already paused.
func (v *V2) PauseDeposits(caller string) error {
	release, err := v.begin()
	if err != nil {
		return err
	}
	defer release()
	if err := v.reg.Require(access.RolePauser, caller); err != nil {
		return err
	}
	if v.store.Bool(FieldDepositsPaused) {
		return errors.Precondition("deposits already paused")
	}
	v.store.SetBool(FieldDepositsPaused, true)
	return nil
}

// UnpauseDeposits resumes deposits. Pauser only; rejects if not paused.
func (v *V2) UnpauseDeposits(caller string) error {
	release, err := v.begin()
	if err != nil {
		return err
	}
	defer release()
	if err := v.reg.Require(access.RolePauser, caller); err != nil {
		return err
	}
	if !v.store.Bool(FieldDepositsPaused) {
		return errors.Precondition("deposits are not paused")
	}
	v.store.SetBool(FieldDepositsPaused, false)
	return nil
}

// YieldRateBps reads the annualized yield rate.
func (v *V2) YieldRateBps() (uint64, error) {
	if v.store == nil {
		return 0, errors.Precondition("logic module is not bound to storage")
	}
	return v.store.Uint(FieldYieldRateBps), nil
}

// DepositsPaused reads the pause flag.
func (v *V2) DepositsPaused() (bool, error) {
	if v.store == nil {
		return false, errors.Precondition("logic module is not bound to storage")
	}
	return v.store.Bool(FieldDepositsPaused), nil
}
