package vault

import (
	"context"

	"github.com/R3E-Network/vault_layer/internal/access"
	"github.com/R3E-Network/vault_layer/internal/record"
)

const (
	// BpsDenominator is the basis-point scale; 10000 bps = 100%.
	BpsDenominator = 10000

	// SecondsPerYear is the accrual year used by linear yield.
	SecondsPerYear = 365 * 24 * 60 * 60

	// MaxWithdrawalDelay bounds setWithdrawalDelay, in seconds.
	MaxWithdrawalDelay = 30 * 24 * 60 * 60

	// DefaultWithdrawalDelay is seeded by the generation-3 transition,
	// in seconds.
	DefaultWithdrawalDelay = 24 * 60 * 60
)

// Logic is the full dispatch surface of a vault logic module. Every
// generation implements all of it; operations a generation has not yet
// introduced reject with a precondition error, so the forwarding layer can
// stay a dumb pointer.
type Logic interface {
	// Version reports the generation's fixed version string.
	Version() string
	// Generation reports the generation number this module implements.
	Generation() uint64
	// Store exposes the bound storage instance; nil for a detached module.
	Store() *record.Store

	// Initialization guard: one entry point per generation transition,
	// each callable exactly once, strictly in order.
	Initialize(ctx context.Context, admin, ledgerRef string, feeBps uint64) error
	InitializeGen2(ctx context.Context, pauser string) error
	InitializeGen3(ctx context.Context) error

	// User surface, mutating.
	Deposit(ctx context.Context, caller string, amount int64) error
	Withdraw(ctx context.Context, caller string, amount int64) error
	ClaimYield(ctx context.Context, caller string) (int64, error)
	RequestWithdrawal(caller string, amount int64) error
	ExecuteWithdrawal(ctx context.Context, caller string) (int64, error)
	EmergencyWithdraw(ctx context.Context, caller string) (int64, error)

	// Administrative surface, role-gated.
	GrantRole(caller, principal string, role access.Role) error
	RevokeRole(caller, principal string, role access.Role) error
	SetDepositFee(caller string, bps uint64) error
	SetYieldRate(caller string, bps uint64) error
	PauseDeposits(caller string) error
	UnpauseDeposits(caller string) error
	SetWithdrawalDelay(caller string, seconds uint64) error

	// Readers.
	BalanceOf(principal string) int64
	TotalDeposits() int64
	DepositFeeBps() uint64
	HasRole(role access.Role, principal string) bool
	UserYield(principal string) (int64, error)
	YieldRateBps() (uint64, error)
	DepositsPaused() (bool, error)
	WithdrawalDelay() (uint64, error)
	WithdrawalRequest(principal string) (record.Request, error)
}
