// Package app wires the vault core to its persistence, cache, and metrics
// infrastructure and exposes the operation surface the HTTP API serves.
package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/vault_layer/internal/access"
	"github.com/R3E-Network/vault_layer/internal/app/domain/journal"
	"github.com/R3E-Network/vault_layer/internal/app/storage"
	"github.com/R3E-Network/vault_layer/internal/app/storage/memory"
	"github.com/R3E-Network/vault_layer/internal/cache"
	"github.com/R3E-Network/vault_layer/internal/errors"
	"github.com/R3E-Network/vault_layer/internal/ledger"
	"github.com/R3E-Network/vault_layer/internal/metrics"
	"github.com/R3E-Network/vault_layer/internal/record"
	"github.com/R3E-Network/vault_layer/internal/vault"
	"github.com/R3E-Network/vault_layer/pkg/logger"
)

// Options configures an Application. Nil stores fall back to the in-memory
// implementations, which keeps tests and local runs free of external
// dependencies.
type Options struct {
	// Assets settles value movement against the external ledger. Required.
	Assets ledger.AssetLedger

	// VaultAccount is the ledger account custodying pulled funds.
	VaultAccount string

	Journal   storage.JournalStore
	Snapshots storage.SnapshotStore
	Cache     *cache.ReadCache
	Metrics   *metrics.Metrics
	Clock     vault.Clock
	Log       *logger.Logger

	// SnapshotSpec is a cron expression for periodic state snapshots.
	// Empty disables the scheduler.
	SnapshotSpec string
}

// Application is the composition root: one storage instance, one proxy,
// and the infrastructure around them.
type Application struct {
	store     *record.Store
	proxy     *vault.Proxy
	cfg       vault.Config
	journal   storage.JournalStore
	snapshots storage.SnapshotStore
	cache     *cache.ReadCache
	metrics   *metrics.Metrics
	log       *logger.Logger
	cron      *cron.Cron
}

// New builds an application over a fresh generation-1 storage instance,
// restoring the latest persisted snapshot when one exists.
func New(ctx context.Context, opts Options) (*Application, error) {
	if opts.Assets == nil {
		return nil, errors.Validation("asset ledger is required")
	}

	log := opts.Log
	if log == nil {
		log = logger.NewDefault("app")
	}
	if opts.Journal == nil || opts.Snapshots == nil {
		mem := memory.New()
		if opts.Journal == nil {
			opts.Journal = mem
		}
		if opts.Snapshots == nil {
			opts.Snapshots = mem
		}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New("vault")
	}
	if opts.Cache == nil {
		opts.Cache = cache.New(nil, 0)
	}

	store := record.New(vault.SchemaV1())

	snap, ok, err := opts.Snapshots.LatestSnapshot(ctx)
	if ok && err == nil {
		store, err = restoredStore(snap)
	}
	if err != nil {
		return nil, fmt.Errorf("restore snapshot: %w", err)
	}

	cfg := vault.Config{
		Store:        store,
		Assets:       opts.Assets,
		VaultAccount: opts.VaultAccount,
		Clock:        opts.Clock,
		Log:          log,
	}

	logic, err := logicFor(store.Uint(vault.FieldGeneration), cfg)
	if err != nil {
		return nil, err
	}
	proxy, err := vault.NewProxy(store, logic, log)
	if err != nil {
		return nil, err
	}

	a := &Application{
		store:     store,
		proxy:     proxy,
		cfg:       cfg,
		journal:   opts.Journal,
		snapshots: opts.Snapshots,
		cache:     opts.Cache,
		metrics:   opts.Metrics,
		log:       log,
	}

	if opts.SnapshotSpec != "" {
		a.cron = cron.New()
		if _, err := a.cron.AddFunc(opts.SnapshotSpec, a.snapshotJob); err != nil {
			return nil, errors.Validation("invalid snapshot schedule %q: %v", opts.SnapshotSpec, err)
		}
		a.cron.Start()
	}

	if ok {
		log.WithField("generation", store.Schema().Generation()).Infof("restored vault state from snapshot")
	}
	return a, nil
}

// restoredStore rebuilds a storage instance from a persisted snapshot. The
// store is created on the snapshot's own generation layout so lineage
// validation accepts it, then logic modules bind on top.
func restoredStore(snap record.Snapshot) (*record.Store, error) {
	schema, err := vault.SchemaFor(generationOrBase(snap.Generation))
	if err != nil {
		return nil, err
	}
	store := record.New(schema)
	if err := store.Restore(snap); err != nil {
		return nil, err
	}
	return store, nil
}

func generationOrBase(gen uint64) uint64 {
	if gen == 0 {
		return 1
	}
	return gen
}

// logicFor picks the logic module matching the storage generation. A fresh
// store (generation 0) starts on generation-1 logic awaiting initialization.
func logicFor(gen uint64, cfg vault.Config) (vault.Logic, error) {
	switch gen {
	case 0, 1:
		return vault.NewV1(cfg), nil
	case 2:
		return vault.NewV2(cfg), nil
	case 3:
		return vault.NewV3(cfg), nil
	default:
		return nil, errors.Precondition("unsupported storage generation %d", gen)
	}
}

// Close stops background work and takes a final snapshot.
func (a *Application) Close(ctx context.Context) error {
	if a.cron != nil {
		cronCtx := a.cron.Stop()
		<-cronCtx.Done()
	}
	return a.SnapshotNow(ctx)
}

// Vault exposes the proxy for callers that need the raw operation surface.
func (a *Application) Vault() *vault.Proxy { return a.proxy }

// Metrics exposes the metrics registry for the HTTP server.
func (a *Application) Metrics() *metrics.Metrics { return a.metrics }

// snapshotJob runs on the cron schedule.
func (a *Application) snapshotJob() {
	if err := a.SnapshotNow(context.Background()); err != nil {
		a.log.WithError(err).Errorf("scheduled snapshot failed")
	}
}

// SnapshotNow persists the current storage state.
func (a *Application) SnapshotNow(ctx context.Context) error {
	return a.snapshots.SaveSnapshot(ctx, a.store.Snapshot())
}

func (a *Application) record(ctx context.Context, principal, op string, amount int64, err error) error {
	if err != nil {
		a.metrics.RecordRejection(op, string(errors.ClassOf(err)))
		return err
	}

	a.metrics.RecordOperation(op)
	a.metrics.SetTotalDeposits(a.proxy.TotalDeposits())
	a.cache.Invalidate(ctx, principal)

	if _, jerr := a.journal.AppendEntry(ctx, journal.Entry{
		Principal:  principal,
		Operation:  op,
		Amount:     amount,
		Generation: a.proxy.Generation(),
	}); jerr != nil {
		// The operation itself succeeded; a journal failure must not
		// unwind it.
		a.log.WithError(jerr).Errorf("journal append failed for %s", op)
	}
	return nil
}

// Initialize runs first-generation initialization.
func (a *Application) Initialize(ctx context.Context, admin, ledgerRef string, feeBps uint64) error {
	return a.record(ctx, admin, "initialize", 0, a.proxy.Initialize(ctx, admin, ledgerRef, feeBps))
}

// InitializeGen2 runs second-generation initialization.
func (a *Application) InitializeGen2(ctx context.Context, pauser string) error {
	return a.record(ctx, pauser, "initialize_gen2", 0, a.proxy.InitializeGen2(ctx, pauser))
}

// InitializeGen3 runs third-generation initialization.
func (a *Application) InitializeGen3(ctx context.Context) error {
	return a.record(ctx, "", "initialize_gen3", 0, a.proxy.InitializeGen3(ctx))
}

// Deposit credits caller with amount less the deposit fee.
func (a *Application) Deposit(ctx context.Context, caller string, amount int64) error {
	return a.record(ctx, caller, journal.OpDeposit, amount, a.proxy.Deposit(ctx, caller, amount))
}

// Withdraw debits caller and pays out amount.
func (a *Application) Withdraw(ctx context.Context, caller string, amount int64) error {
	return a.record(ctx, caller, journal.OpWithdraw, amount, a.proxy.Withdraw(ctx, caller, amount))
}

// ClaimYield pays out the caller's accrued yield.
func (a *Application) ClaimYield(ctx context.Context, caller string) (int64, error) {
	paid, err := a.proxy.ClaimYield(ctx, caller)
	return paid, a.record(ctx, caller, journal.OpClaimYield, paid, err)
}

// RequestWithdrawal schedules a delayed withdrawal, replacing any pending
// request.
func (a *Application) RequestWithdrawal(ctx context.Context, caller string, amount int64) error {
	return a.record(ctx, caller, journal.OpRequestWithdrawal, amount, a.proxy.RequestWithdrawal(caller, amount))
}

// ExecuteWithdrawal completes a matured withdrawal request.
func (a *Application) ExecuteWithdrawal(ctx context.Context, caller string) (int64, error) {
	paid, err := a.proxy.ExecuteWithdrawal(ctx, caller)
	return paid, a.record(ctx, caller, journal.OpExecuteWithdrawal, paid, err)
}

// EmergencyWithdraw pays out the caller's full balance immediately.
func (a *Application) EmergencyWithdraw(ctx context.Context, caller string) (int64, error) {
	paid, err := a.proxy.EmergencyWithdraw(ctx, caller)
	return paid, a.record(ctx, caller, journal.OpEmergencyWithdraw, paid, err)
}

// GrantRole grants a role to a principal.
func (a *Application) GrantRole(ctx context.Context, caller, principal string, role access.Role) error {
	return a.record(ctx, caller, "grant_role", 0, a.proxy.GrantRole(caller, principal, role))
}

// RevokeRole revokes a role from a principal.
func (a *Application) RevokeRole(ctx context.Context, caller, principal string, role access.Role) error {
	return a.record(ctx, caller, "revoke_role", 0, a.proxy.RevokeRole(caller, principal, role))
}

// SetDepositFee updates the deposit fee.
func (a *Application) SetDepositFee(ctx context.Context, caller string, bps uint64) error {
	return a.record(ctx, caller, "set_deposit_fee", 0, a.proxy.SetDepositFee(caller, bps))
}

// SetYieldRate updates the yield rate.
func (a *Application) SetYieldRate(ctx context.Context, caller string, bps uint64) error {
	return a.record(ctx, caller, "set_yield_rate", 0, a.proxy.SetYieldRate(caller, bps))
}

// PauseDeposits pauses deposits.
func (a *Application) PauseDeposits(ctx context.Context, caller string) error {
	return a.record(ctx, caller, "pause_deposits", 0, a.proxy.PauseDeposits(caller))
}

// UnpauseDeposits resumes deposits.
func (a *Application) UnpauseDeposits(ctx context.Context, caller string) error {
	return a.record(ctx, caller, "unpause_deposits", 0, a.proxy.UnpauseDeposits(caller))
}

// SetWithdrawalDelay updates the withdrawal delay.
func (a *Application) SetWithdrawalDelay(ctx context.Context, caller string, seconds uint64) error {
	return a.record(ctx, caller, "set_withdrawal_delay", 0, a.proxy.SetWithdrawalDelay(caller, seconds))
}

// Upgrade swaps the active logic module to the given generation. The swap
// is authorized against the upgrader role and validated against the
// storage lineage; initialization for the new generation is a separate,
// explicit call.
func (a *Application) Upgrade(ctx context.Context, caller string, generation uint64) error {
	next, err := logicFor(generation, a.cfg)
	if err != nil {
		return a.record(ctx, caller, journal.OpUpgrade, 0, err)
	}
	if err := a.record(ctx, caller, journal.OpUpgrade, int64(generation), a.proxy.UpgradeTo(caller, next)); err != nil {
		return err
	}
	a.metrics.RecordUpgrade()
	return nil
}

// BalanceOf returns a principal's balance, served from cache when warm.
func (a *Application) BalanceOf(ctx context.Context, principal string) int64 {
	if v, ok := a.cache.Balance(ctx, principal); ok {
		return v
	}
	balance := a.proxy.BalanceOf(principal)
	a.cache.SetBalance(ctx, principal, balance)
	return balance
}

// TotalDeposits returns the tracked total, served from cache when warm.
func (a *Application) TotalDeposits(ctx context.Context) int64 {
	if v, ok := a.cache.TotalDeposits(ctx); ok {
		return v
	}
	total := a.proxy.TotalDeposits()
	a.cache.SetTotalDeposits(ctx, total)
	return total
}

// Journal lists journal entries, optionally filtered by principal.
func (a *Application) Journal(ctx context.Context, principal string) ([]journal.Entry, error) {
	return a.journal.ListEntries(ctx, principal)
}
