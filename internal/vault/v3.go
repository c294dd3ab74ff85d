package vault

import (
	"context"

	"github.com/R3E-Network/vault_layer/internal/access"
	"github.com/R3E-Network/vault_layer/internal/errors"
	"github.com/R3E-Network/vault_layer/internal/record"
	"github.com/R3E-Network/vault_layer/pkg/logger"
)

// V3 is the third-generation vault logic. It keeps generation 2's behavior
// and adds two-phase delayed withdrawals with an emergency bypass over the
// generation-3 layout.
type V3 struct {
	*V2
}

// NewV3 constructs the generation-3 logic module.
func NewV3(cfg Config) *V3 {
	if cfg.Log == nil {
		cfg.Log = logger.NewDefault("vault-v3")
	}
	return &V3{V2: NewV2(cfg)}
}

var _ Logic = (*V3)(nil)

// Version implements Logic.
func (v *V3) Version() string { return "v3.0.0" }

// Generation implements Logic.
func (v *V3) Generation() uint64 { return 3 }

// InitializeGen3 runs the generation 2 -> 3 transition: it seeds the
// default withdrawal delay and advances the generation counter. It runs at
// most once, and only after generation 2 has run.
func (v *V3) InitializeGen3(ctx context.Context) error {
	release, err := v.begin()
	if err != nil {
		return err
	}
	defer release()

	switch gen := v.storageGeneration(); {
	case gen < 2:
		return errors.Precondition("generation 2 has not been initialized (counter at %d)", gen)
	case gen >= 3:
		return errors.Precondition("generation 3 already initialized (counter at %d)", gen)
	}
	v.store.SetUint(FieldWithdrawalDelay, DefaultWithdrawalDelay)
	v.store.SetUint(FieldGeneration, 3)

	v.log.Info("storage advanced to generation 3")
	return nil
}

// RequestWithdrawal opens a delayed withdrawal for the caller. A new
// request unconditionally overwrites any prior unexecuted one; the
// semantics are cancel-and-replace, never additive.
func (v *V3) RequestWithdrawal(caller string, amount int64) error {
	if amount <= 0 {
		return errors.Validation("withdrawal amount must be positive")
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
	v.store.SetRequest(FieldWithdrawalRequests, caller, record.Request{
		Amount:      amount,
		RequestTime: v.clock.Now().Unix(),
	})
	return nil
}

// ExecuteWithdrawal completes the caller's pending request once the delay
// has elapsed. The request is cleared and the balance debited before the
// push; a failed push rolls everything back.
func (v *V3) ExecuteWithdrawal(ctx context.Context, caller string) (int64, error) {
	release, err := v.begin()
	if err != nil {
		return 0, err
	}
	defer release()

	req := v.store.Request(FieldWithdrawalRequests, caller)
	if req.Amount == 0 {
		return 0, errors.Precondition("no pending withdrawal")
	}
	delay := int64(v.store.Uint(FieldWithdrawalDelay))
	if v.clock.Now().Unix() < req.RequestTime+delay {
		return 0, errors.Precondition("withdrawal delay has not elapsed")
	}
	balance := v.store.Amount(FieldBalances, caller)
	if req.Amount > balance {
		return 0, errors.Precondition("balance fell below requested amount: have %d, want %d", balance, req.Amount)
	}

	txn := v.store.Begin()
	defer txn.Rollback()
	v.store.SetRequest(FieldWithdrawalRequests, caller, record.Request{})
	v.store.SetAmount(FieldBalances, caller, balance-req.Amount)
	v.store.SetUint(FieldTotalDeposits, v.store.Uint(FieldTotalDeposits)-uint64(req.Amount))
	if err := v.assets.Push(ctx, caller, req.Amount); err != nil {
		return 0, errors.External(err, "asset push failed")
	}
	txn.Commit()
	return req.Amount, nil
}

// EmergencyWithdraw pays out the caller's entire balance immediately,
// clearing any pending request and bypassing the delay. The bypass is a
// deliberate user safety valve: no emergency declaration or approval gates
// it.
func (v *V3) EmergencyWithdraw(ctx context.Context, caller string) (int64, error) {
	release, err := v.begin()
	if err != nil {
		return 0, err
	}
	defer release()

	balance := v.store.Amount(FieldBalances, caller)
	if balance == 0 {
		return 0, errors.Precondition("nothing to withdraw")
	}

	txn := v.store.Begin()
	defer txn.Rollback()
	v.store.SetRequest(FieldWithdrawalRequests, caller, record.Request{})
	v.store.SetAmount(FieldBalances, caller, 0)
	v.store.SetUint(FieldTotalDeposits, v.store.Uint(FieldTotalDeposits)-uint64(balance))
	if err := v.assets.Push(ctx, caller, balance); err != nil {
		return 0, errors.External(err, "asset push failed")
	}
	txn.Commit()

	v.log.WithField("caller", caller).Infof("emergency withdrawal of %d", balance)
	return balance, nil
}

// SetWithdrawalDelay updates the global delay. Admin only, bounded.
func (v *V3) SetWithdrawalDelay(caller string, seconds uint64) error {
	if seconds > MaxWithdrawalDelay {
		return errors.Validation("delay %d exceeds maximum %d seconds", seconds, MaxWithdrawalDelay)
	}
	release, err := v.begin()
	if err != nil {
		return err
	}
	defer release()
	if err := v.reg.Require(access.RoleAdmin, caller); err != nil {
		return err
	}
	v.store.SetUint(FieldWithdrawalDelay, seconds)
	return nil
}

// WithdrawalDelay reads the global delay in seconds.
func (v *V3) WithdrawalDelay() (uint64, error) {
	if v.store == nil {
		return 0, errors.Precondition("logic module is not bound to storage")
	}
	return v.store.Uint(FieldWithdrawalDelay), nil
}

// WithdrawalRequest reads the caller's pending request; a zero amount means
// none.
func (v *V3) WithdrawalRequest(principal string) (record.Request, error) {
	if v.store == nil {
		return record.Request{}, errors.Precondition("logic module is not bound to storage")
	}
	return v.store.Request(FieldWithdrawalRequests, principal), nil
}
