package ledger

import (
	"pbft/configs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePayload(t *testing.T) {
	assert.NoError(t, ValidatePayload(map[string]string{"operation": "deposit", "account": "alice", "amount": "100"}))
	assert.ErrorIs(t, ValidatePayload(map[string]string{"operation": "transfer", "account": "alice", "amount": "100"}), ErrUnknownOperation)
	assert.ErrorIs(t, ValidatePayload(map[string]string{"operation": "deposit", "account": "", "amount": "100"}), ErrMissingAccount)
	assert.ErrorIs(t, ValidatePayload(map[string]string{"operation": "deposit", "account": "alice", "amount": "abc"}), ErrBadAmount)
}

func TestCanonicalPayloadIsKeySorted(t *testing.T) {
	a := CanonicalPayload(map[string]string{"amount": "1", "account": "alice", "operation": "deposit"})
	b := CanonicalPayload(map[string]string{"operation": "deposit", "account": "alice", "amount": "1"})
	assert.Equal(t, a, b)
	assert.Equal(t, "{account=alice,amount=1,operation=deposit}", a)
}

func TestStatusName(t *testing.T) {
	assert.Equal(t, "STARTED", StatusName(configs.Started))
	assert.Equal(t, "PREPARED", StatusName(configs.Prepared))
	assert.Equal(t, "COMMITTED", StatusName(configs.Committed))
	assert.Equal(t, "ABORTED", StatusName(configs.Aborted))
	assert.Equal(t, "UNKNOWN", StatusName(99))
}
