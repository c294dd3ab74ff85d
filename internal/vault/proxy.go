package vault

import (
	"context"
	"sync"

	"github.com/R3E-Network/vault_layer/internal/access"
	"github.com/R3E-Network/vault_layer/internal/errors"
	"github.com/R3E-Network/vault_layer/internal/record"
	"github.com/R3E-Network/vault_layer/pkg/logger"
)

// Proxy is the forwarding layer: every external call targets the current
// logic module while the storage instance stays fixed. It also serializes
// operations, which is the single-writer execution model the business logic
// assumes. Retargeting is an atomic, role-gated pointer swap with no
// partial-upgrade state.
//
// Proxy implements Logic by delegation, so callers never see which
// generation is live except through Version.
//
// The proxy mutex is held for the full duration of an operation and is not
// reentrant. A callback that fires while an operation is in flight (a
// ledger hook, for example) must call back into the logic module, never
// into the Proxy: the store's busy latch rejects the nested call with a
// reentrancy error, whereas re-entering the Proxy on the same goroutine
// would block on its own mutex.
type Proxy struct {
	mu      sync.Mutex
	store   *record.Store
	current Logic
	log     *logger.Logger
}

// NewProxy creates a forwarding layer over the store, initially targeting
// the given logic module. The module must be bound to the same store.
func NewProxy(store *record.Store, initial Logic, log *logger.Logger) (*Proxy, error) {
	if store == nil || initial == nil {
		return nil, errors.Validation("proxy needs a store and an initial logic module")
	}
	if initial.Store() != store {
		return nil, errors.Validation("initial logic module is bound to different storage")
	}
	if log == nil {
		log = logger.NewDefault("vault-proxy")
	}
	return &Proxy{store: store, current: initial, log: log}, nil
}

// Current returns the live logic module.
func (p *Proxy) Current() Logic {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// UpgradeTo retargets the proxy to a new logic module. The authorization
// check is part of the swap itself: there is no path that moves the pointer
// without it. The store is rebound to the new generation's layout, which
// fails unless that layout is a prefix extension of the current one.
func (p *Proxy) UpgradeTo(caller string, next Logic) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := authorizeLogicSwap(p.store, caller); err != nil {
		return err
	}
	if next == nil {
		return errors.Validation("nil logic module")
	}
	if next.Store() != p.store {
		return errors.Validation("logic module is bound to different storage")
	}
	schema, err := SchemaFor(next.Generation())
	if err != nil {
		return errors.Validation("unknown generation %d", next.Generation()).WithCause(err)
	}
	if err := p.store.Bind(schema); err != nil {
		return errors.Precondition("layout rejected: %v", err)
	}
	prev := p.current
	p.current = next

	p.log.Infof("logic swapped from %s to %s", prev.Version(), next.Version())
	return nil
}

// authorizeLogicSwap is the upgrade authorizer: a pure predicate over the
// role registry stored in the state being protected. Only upgrade-role
// holders pass; everyone else fails closed.
func authorizeLogicSwap(store *record.Store, caller string) error {
	reg := access.NewRegistry(store, FieldRoles)
	return reg.Require(access.RoleUpgrader, caller)
}

var _ Logic = (*Proxy)(nil)

// Version implements Logic.
func (p *Proxy) Version() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.Version()
}

// Generation implements Logic.
func (p *Proxy) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.Generation()
}

// Store implements Logic.
func (p *Proxy) Store() *record.Store { return p.store }

// Initialize implements Logic.
func (p *Proxy) Initialize(ctx context.Context, admin, ledgerRef string, feeBps uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.Initialize(ctx, admin, ledgerRef, feeBps)
}

// InitializeGen2 implements Logic.
func (p *Proxy) InitializeGen2(ctx context.Context, pauser string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.InitializeGen2(ctx, pauser)
}

// InitializeGen3 implements Logic.
func (p *Proxy) InitializeGen3(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.InitializeGen3(ctx)
}

// Deposit implements Logic.
func (p *Proxy) Deposit(ctx context.Context, caller string, amount int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.Deposit(ctx, caller, amount)
}

// Withdraw implements Logic.
func (p *Proxy) Withdraw(ctx context.Context, caller string, amount int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.Withdraw(ctx, caller, amount)
}

// ClaimYield implements Logic.
func (p *Proxy) ClaimYield(ctx context.Context, caller string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.ClaimYield(ctx, caller)
}

// RequestWithdrawal implements Logic.
func (p *Proxy) RequestWithdrawal(caller string, amount int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.RequestWithdrawal(caller, amount)
}

// ExecuteWithdrawal implements Logic.
func (p *Proxy) ExecuteWithdrawal(ctx context.Context, caller string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.ExecuteWithdrawal(ctx, caller)
}

// EmergencyWithdraw implements Logic.
func (p *Proxy) EmergencyWithdraw(ctx context.Context, caller string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.EmergencyWithdraw(ctx, caller)
}

// GrantRole implements Logic.
func (p *Proxy) GrantRole(caller, principal string, role access.Role) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.GrantRole(caller, principal, role)
}

// RevokeRole implements Logic.
func (p *Proxy) RevokeRole(caller, principal string, role access.Role) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.RevokeRole(caller, principal, role)
}

// SetDepositFee implements Logic.
func (p *Proxy) SetDepositFee(caller string, bps uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.SetDepositFee(caller, bps)
}

// SetYieldRate implements Logic.
func (p *Proxy) SetYieldRate(caller string, bps uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.SetYieldRate(caller, bps)
}

// PauseDeposits implements Logic.
func (p *Proxy) PauseDeposits(caller string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.PauseDeposits(caller)
}

// UnpauseDeposits implements Logic.
func (p *Proxy) UnpauseDeposits(caller string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.UnpauseDeposits(caller)
}

// SetWithdrawalDelay implements Logic.
func (p *Proxy) SetWithdrawalDelay(caller string, seconds uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.SetWithdrawalDelay(caller, seconds)
}

// BalanceOf implements Logic.
func (p *Proxy) BalanceOf(principal string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.BalanceOf(principal)
}

// TotalDeposits implements Logic.
func (p *Proxy) TotalDeposits() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.TotalDeposits()
}

// DepositFeeBps implements Logic.
func (p *Proxy) DepositFeeBps() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.DepositFeeBps()
}

// HasRole implements Logic.
func (p *Proxy) HasRole(role access.Role, principal string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.HasRole(role, principal)
}

// UserYield implements Logic.
func (p *Proxy) UserYield(principal string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.UserYield(principal)
}

// YieldRateBps implements Logic.
func (p *Proxy) YieldRateBps() (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.YieldRateBps()
}

// DepositsPaused implements Logic.
func (p *Proxy) DepositsPaused() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.DepositsPaused()
}

// WithdrawalDelay implements Logic.
func (p *Proxy) WithdrawalDelay() (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.WithdrawalDelay()
}

// WithdrawalRequest implements Logic.
func (p *Proxy) WithdrawalRequest(principal string) (record.Request, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.WithdrawalRequest(principal)
}
