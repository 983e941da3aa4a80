// Package ledger is the account-balance application: transaction
// payload validation and the fold from a committed log to balances.
// It is deliberately thin - spec.md §1 scopes the application logic
// out of the hard part of this repository - but it is still grounded
// on the teacher's row/attribute model (storage/row.go), simplified
// from an indexed, lockable row store down to the single totally
// ordered log a replicated state machine actually needs.
package ledger

import (
	"errors"
	"pbft/configs"
	"sort"
	"strconv"
)

// Tx is one ledger entry. It is never deleted once created - status
// only moves forward, per spec.md §3.
type Tx struct {
	TxID          string
	Payload       map[string]string
	Status        uint8
	CommitStarted bool
	// PrimaryAddr remembers which primary proposed this tx, so a
	// replica can correlate a later ABORT/REPLY even across a view
	// change that hasn't reached it yet.
	PrimaryAddr string
	View        int
	Seq         uint64
}

var (
	ErrUnknownOperation = errors.New("operation must be deposit or withdraw")
	ErrMissingAccount   = errors.New("account must be non-empty")
	ErrBadAmount        = errors.New("amount must be an integer")
)

// ValidatePayload enforces spec.md §4.1's submit() preconditions.
func ValidatePayload(payload map[string]string) error {
	op := payload["operation"]
	if op != configs.OpDeposit && op != configs.OpWithdraw {
		return ErrUnknownOperation
	}
	if payload["account"] == "" {
		return ErrMissingAccount
	}
	if _, err := strconv.ParseInt(payload["amount"], 10, 64); err != nil {
		return ErrBadAmount
	}
	return nil
}

// CanonicalPayload renders payload as a stable, key-sorted record for
// checkpoint snapshots (spec.md §4.3).
func CanonicalPayload(payload map[string]string) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := "{"
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		out += k + "=" + payload[k]
	}
	out += "}"
	return out
}

// StatusName renders a status code for logs and snapshots.
func StatusName(status uint8) string {
	switch status {
	case configs.Started:
		return "STARTED"
	case configs.Prepared:
		return "PREPARED"
	case configs.Committed:
		return "COMMITTED"
	case configs.Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}
