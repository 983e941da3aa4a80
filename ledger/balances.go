package ledger

import (
	"pbft/configs"
	"sort"
	"strconv"
)

// Fold replays committed transactions, in log order, into a balance
// per account. An unknown operation contributes zero; withdraw is not
// prevented from driving a balance negative - both are the reference
// implementation's behavior, kept deliberately per spec.md §9.
func Fold(log []*Tx) map[string]int64 {
	balances := make(map[string]int64)
	for _, tx := range log {
		if tx.Status != configs.Committed {
			continue
		}
		account := tx.Payload["account"]
		amount, err := strconv.ParseInt(tx.Payload["amount"], 10, 64)
		if err != nil {
			continue
		}
		switch tx.Payload["operation"] {
		case configs.OpDeposit:
			balances[account] += amount
		case configs.OpWithdraw:
			balances[account] -= amount
		default:
			// unrecognized operation: contributes zero.
		}
	}
	return balances
}

// FormatBalances renders balances as a stable, account-sorted line per
// entry, for inclusion in a checkpoint snapshot.
func FormatBalances(balances map[string]int64) []string {
	accounts := make([]string, 0, len(balances))
	for a := range balances {
		accounts = append(accounts, a)
	}
	sort.Strings(accounts)
	lines := make([]string, 0, len(accounts))
	for _, a := range accounts {
		lines = append(lines, a+"="+strconv.FormatInt(balances[a], 10))
	}
	return lines
}
