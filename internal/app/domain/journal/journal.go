// Package journal defines the audit record written for every mutating vault
// operation.
package journal

import "time"

// Entry is one completed mutating operation.
type Entry struct {
	ID         string    `json:"id"`
	Principal  string    `json:"principal"`
	Operation  string    `json:"operation"`
	Amount     int64     `json:"amount"`
	Generation uint64    `json:"generation"`
	CreatedAt  time.Time `json:"created_at"`
}

// Operation names as journaled.
const (
	OpDeposit           = "deposit"
	OpWithdraw          = "withdraw"
	OpClaimYield        = "claim_yield"
	OpRequestWithdrawal = "request_withdrawal"
	OpExecuteWithdrawal = "execute_withdrawal"
	OpEmergencyWithdraw = "emergency_withdraw"
	OpUpgrade           = "upgrade"
)
