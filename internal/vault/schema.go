// Package vault implements the custodial vault's business logic across its
// three generations, the generation-gated initialization guard, and the
// forwarding proxy with its upgrade authorizer.
package vault

import (
	"fmt"

	"github.com/R3E-Network/vault_layer/internal/record"
)

// Durable field names. Once a name ships in a generation's layout it keeps
// its meaning forever; new state is only ever appended.
const (
	// Generation 1.
	FieldAssetLedgerRef = "asset_ledger_ref"
	FieldDepositFeeBps  = "deposit_fee_bps"
	FieldBalances       = "balances"
	FieldTotalDeposits  = "total_deposits"
	FieldRoles          = "roles"
	FieldGeneration     = "generation"

	// Generation 2.
	FieldYieldRateBps   = "yield_rate_bps"
	FieldLastClaimTime  = "last_claim_time"
	FieldDepositsPaused = "deposits_paused"

	// Generation 3.
	FieldWithdrawalDelay    = "withdrawal_delay_seconds"
	FieldWithdrawalRequests = "withdrawal_requests"
)

// baseReserved is the reserved tail pool allocated at first deployment.
// Every later generation's fields are carved out of it.
const baseReserved = 44

// SchemaV1 builds the generation-1 layout.
func SchemaV1() *record.Schema {
	s, err := record.NewBase([]record.Field{
		{Name: FieldAssetLedgerRef, Kind: record.KindString},
		{Name: FieldDepositFeeBps, Kind: record.KindUint64},
		{Name: FieldBalances, Kind: record.KindAmountMap},
		{Name: FieldTotalDeposits, Kind: record.KindUint64},
		{Name: FieldRoles, Kind: record.KindFlagMap},
		{Name: FieldGeneration, Kind: record.KindUint64},
	}, baseReserved)
	if err != nil {
		panic(fmt.Sprintf("vault: generation 1 layout: %v", err))
	}
	return s
}

// SchemaV2 builds the generation-2 layout as a prefix extension of V1.
func SchemaV2() *record.Schema {
	s, err := SchemaV1().Extend([]record.Field{
		{Name: FieldYieldRateBps, Kind: record.KindUint64},
		{Name: FieldLastClaimTime, Kind: record.KindTimeMap},
		{Name: FieldDepositsPaused, Kind: record.KindBool},
	})
	if err != nil {
		panic(fmt.Sprintf("vault: generation 2 layout: %v", err))
	}
	return s
}

// SchemaV3 builds the generation-3 layout as a prefix extension of V2.
func SchemaV3() *record.Schema {
	s, err := SchemaV2().Extend([]record.Field{
		{Name: FieldWithdrawalDelay, Kind: record.KindUint64},
		{Name: FieldWithdrawalRequests, Kind: record.KindRequestMap},
	})
	if err != nil {
		panic(fmt.Sprintf("vault: generation 3 layout: %v", err))
	}
	return s
}

// SchemaFor returns the layout for a generation number.
func SchemaFor(generation uint64) (*record.Schema, error) {
	switch generation {
	case 1:
		return SchemaV1(), nil
	case 2:
		return SchemaV2(), nil
	case 3:
		return SchemaV3(), nil
	default:
		return nil, fmt.Errorf("vault: no layout for generation %d", generation)
	}
}
