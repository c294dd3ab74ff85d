// Package ledger defines the external asset ledger the vault moves value
// through. The vault consumes it as a narrow collaborator: a failed pull or
// push aborts the whole enclosing operation with every staged write rolled
// back.
package ledger

import "context"

// AssetLedger moves value between external accounts and the vault.
type AssetLedger interface {
	// Pull transfers amount from the payer's account into the vault's.
	Pull(ctx context.Context, from, to string, amount int64) error
	// Push transfers amount out of the vault's account to the payee.
	Push(ctx context.Context, to string, amount int64) error
}
