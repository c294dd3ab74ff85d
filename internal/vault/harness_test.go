package vault

import (
	"context"
	"testing"
	"time"

	"github.com/R3E-Network/vault_layer/internal/ledger"
	"github.com/R3E-Network/vault_layer/internal/record"
	"github.com/R3E-Network/vault_layer/pkg/logger"
)

const (
	testAdmin     = "admin-1"
	testLedgerRef = "neo:gas"
	testVaultAcct = "vault"
)

type harness struct {
	store  *record.Store
	assets *ledger.Memory
	clock  *ManualClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		store:  record.New(SchemaV1()),
		assets: ledger.NewMemory(testVaultAcct),
		clock:  NewManualClock(time.Unix(1_700_000_000, 0)),
	}
}

func (h *harness) config() Config {
	return Config{
		Store:        h.store,
		Assets:       h.assets,
		VaultAccount: testVaultAcct,
		Clock:        h.clock,
		Log:          logger.Nop(),
	}
}

// v1 builds and initializes a generation-1 module with a 5% deposit fee.
func (h *harness) v1(t *testing.T) *V1 {
	t.Helper()
	v := NewV1(h.config())
	if err := v.Initialize(context.Background(), testAdmin, testLedgerRef, 500); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return v
}

// v2 advances the harness through generation 2.
func (h *harness) v2(t *testing.T) *V2 {
	t.Helper()
	h.v1(t)
	if err := h.store.Bind(SchemaV2()); err != nil {
		t.Fatalf("bind v2: %v", err)
	}
	v := NewV2(h.config())
	if err := v.InitializeGen2(context.Background(), testAdmin); err != nil {
		t.Fatalf("initialize gen2: %v", err)
	}
	return v
}

// v3 advances the harness through generation 3.
func (h *harness) v3(t *testing.T) *V3 {
	t.Helper()
	h.v2(t)
	if err := h.store.Bind(SchemaV3()); err != nil {
		t.Fatalf("bind v3: %v", err)
	}
	v := NewV3(h.config())
	if err := v.InitializeGen3(context.Background()); err != nil {
		t.Fatalf("initialize gen3: %v", err)
	}
	return v
}

func (h *harness) fund(account string, amount int64) {
	h.assets.Mint(account, amount)
}

// checkInvariant verifies TotalDeposits == sum of all balances.
func checkInvariant(t *testing.T, st *record.Store) {
	t.Helper()
	total := int64(st.Uint(FieldTotalDeposits))
	if sum := st.SumAmounts(FieldBalances); sum != total {
		t.Fatalf("invariant broken: total %d, sum of balances %d", total, sum)
	}
}
