package ledger

import (
	"pbft/configs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func tx(id string, status uint8, account string, amount string, op string) *Tx {
	return &Tx{TxID: id, Status: status, Payload: map[string]string{"account": account, "amount": amount, "operation": op}}
}

func TestFoldIgnoresUncommitted(t *testing.T) {
	log := []*Tx{
		tx("1", configs.Committed, "alice", "100", configs.OpDeposit),
		tx("2", configs.Started, "alice", "50", configs.OpDeposit),
		tx("3", configs.Aborted, "alice", "999", configs.OpWithdraw),
	}
	balances := Fold(log)
	assert.Equal(t, int64(100), balances["alice"])
}

func TestFoldAllowsNegativeBalances(t *testing.T) {
	log := []*Tx{tx("1", configs.Committed, "bob", "50", configs.OpWithdraw)}
	balances := Fold(log)
	assert.Equal(t, int64(-50), balances["bob"])
}

func TestFoldUnknownOperationContributesZero(t *testing.T) {
	log := []*Tx{tx("1", configs.Committed, "carol", "50", "transfer")}
	balances := Fold(log)
	assert.Equal(t, int64(0), balances["carol"])
}

func TestFormatBalancesIsAccountSorted(t *testing.T) {
	lines := FormatBalances(map[string]int64{"bob": 10, "alice": -5})
	assert.Equal(t, []string{"alice=-5", "bob=10"}, lines)
}
