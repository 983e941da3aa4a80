package replica

import (
	"pbft/configs"
	"pbft/ledger"
	"pbft/network"
	"testing"

	"github.com/stretchr/testify/assert"
)

func prepareMsg(from string, vote string, txid string) *network.Record {
	return &network.Record{Type: configs.MsgPrepare, From: from, TxID: txid, Vote: vote}
}

func commitMsg(from string, ack string, txid string) *network.Record {
	return &network.Record{Type: configs.MsgCommitVote, From: from, TxID: txid, Ack: ack}
}

func fourReplica(t *testing.T) *Replica {
	r := New(configs.BootstrapID, "127.0.0.1", 5000, nil, nil)
	r.AddMember("P1", "127.0.0.1", 5001)
	r.AddMember("P2", "127.0.0.1", 5002)
	r.AddMember("P3", "127.0.0.1", 5003)
	return r
}

func TestQuorumArithmetic(t *testing.T) {
	cases := []struct {
		n         int
		f         int
		threshold int
	}{
		{1, 0, 1}, {2, 0, 1}, {3, 0, 1},
		{4, 1, 3}, {5, 1, 3}, {6, 1, 3},
		{7, 2, 5},
	}
	for _, c := range cases {
		f, threshold := Quorum(c.n)
		assert.Equal(t, c.f, f, "f for N=%d", c.n)
		assert.Equal(t, c.threshold, threshold, "threshold for N=%d", c.n)
	}
}

func TestPrimaryIsDeterministicBootstrapFirst(t *testing.T) {
	r := fourReplica(t)
	assert.Equal(t, "P0", r.PrimaryFor(0))
	assert.Equal(t, "P1", r.PrimaryFor(1))
	assert.Equal(t, "P2", r.PrimaryFor(2))
	assert.Equal(t, "P3", r.PrimaryFor(3))
	assert.Equal(t, "P0", r.PrimaryFor(4))
}

func TestByzantineIDFixedAtFourthMember(t *testing.T) {
	r := New(configs.BootstrapID, "127.0.0.1", 5000, nil, nil)
	assert.Equal(t, "", r.ByzantineID)
	r.AddMember("P1", "127.0.0.1", 5001)
	assert.Equal(t, "", r.ByzantineID)
	r.AddMember("P2", "127.0.0.1", 5002)
	assert.Equal(t, "", r.ByzantineID)
	r.AddMember("P3", "127.0.0.1", 5003)
	assert.Equal(t, "P3", r.ByzantineID)
}

func TestSubmitRejectsInvalidPayload(t *testing.T) {
	r := fourReplica(t)
	_, err := r.Submit(map[string]string{"operation": "transfer", "account": "alice", "amount": "1"})
	assert.Error(t, err)
}

func TestSubmitRejectsWhenNotPrimary(t *testing.T) {
	r := fourReplica(t)
	r.View = 1 // primary is now P1, not P0
	_, err := r.Submit(map[string]string{"operation": "deposit", "account": "alice", "amount": "1"})
	assert.ErrorIs(t, err, ErrNotPrimary)
}

func TestHappyPathCommits(t *testing.T) {
	r := fourReplica(t)
	txid, err := r.Submit(map[string]string{"operation": "deposit", "account": "alice", "amount": "100"})
	assert.NoError(t, err)

	r.OnPrepare(prepareMsg("P1", configs.VoteYes, txid))
	r.OnPrepare(prepareMsg("P2", configs.VoteYes, txid))
	r.OnPrepare(prepareMsg("P3", configs.VoteYes, txid))

	assert.NoError(t, r.Progress(txid))
	status, ok := r.TxStatus(txid)
	assert.True(t, ok)
	assert.Equal(t, configs.Prepared, status)

	r.OnCommitVote(commitMsg("P1", configs.AckCommit, txid))
	r.OnCommitVote(commitMsg("P2", configs.AckCommit, txid))
	r.OnCommitVote(commitMsg("P3", configs.AckCommit, txid))

	assert.NoError(t, r.Progress(txid))
	status, ok = r.TxStatus(txid)
	assert.True(t, ok)
	assert.Equal(t, configs.Committed, status)
}

func TestOnReplyConvergesNonPrimaryStatus(t *testing.T) {
	// P1 is a non-primary replica that saw the PRE_PREPARE but never ran
	// Finalize itself; it only learns the outcome via a forwarded REPLY.
	p1 := New("P1", "127.0.0.1", 5001, nil, nil)
	p1.AddMember(configs.BootstrapID, "127.0.0.1", 5000)
	p1.OnPrePrepare(&network.Record{
		Type: configs.MsgPrePrepare, TxID: "t1", From: configs.BootstrapID,
		Data: map[string]string{"operation": "deposit", "account": "alice", "amount": "100"},
		PrimaryHost: "127.0.0.1", PrimaryPort: 5000,
	})

	status, ok := p1.TxStatus("t1")
	assert.True(t, ok)
	assert.Equal(t, configs.Started, status)

	p1.OnReply(&network.Record{Type: configs.MsgReply, TxID: "t1", Result: configs.ResultCommitted, From: configs.BootstrapID})

	status, ok = p1.TxStatus("t1")
	assert.True(t, ok)
	assert.Equal(t, configs.Committed, status)

	balances := ledger.FormatBalances(ledger.Fold(p1.TxLog()))
	assert.Contains(t, balances, "alice=100")
}

func TestOnReplyIgnoresUnknownTx(t *testing.T) {
	p1 := New("P1", "127.0.0.1", 5001, nil, nil)
	assert.NotPanics(t, func() {
		p1.OnReply(&network.Record{Type: configs.MsgReply, TxID: "missing", Result: configs.ResultCommitted, From: configs.BootstrapID})
	})
	_, ok := p1.TxStatus("missing")
	assert.False(t, ok)
}

func TestInsufficientPreparesAborts(t *testing.T) {
	r := fourReplica(t)
	txid, err := r.Submit(map[string]string{"operation": "deposit", "account": "alice", "amount": "100"})
	assert.NoError(t, err)

	r.OnPrepare(prepareMsg("P1", configs.VoteNo, txid))
	r.OnPrepare(prepareMsg("P2", configs.VoteNo, txid))
	r.OnPrepare(prepareMsg("P3", configs.VoteYes, txid))

	assert.NoError(t, r.Progress(txid))
	status, ok := r.TxStatus(txid)
	assert.True(t, ok)
	assert.Equal(t, configs.Aborted, status)
}

func TestTerminalStatusNeverRegresses(t *testing.T) {
	r := fourReplica(t)
	txid, _ := r.Submit(map[string]string{"operation": "deposit", "account": "alice", "amount": "100"})
	r.Finalize(txid, true)
	status, _ := r.TxStatus(txid)
	assert.Equal(t, configs.Committed, status)

	r.Finalize(txid, false) // a second, contradictory call must not regress the terminal status
	status, _ = r.TxStatus(txid)
	assert.Equal(t, configs.Committed, status)
}

func TestFirstWriterWinsOnDuplicateVote(t *testing.T) {
	r := fourReplica(t)
	txid, _ := r.Submit(map[string]string{"operation": "deposit", "account": "alice", "amount": "100"})

	r.OnPrepare(prepareMsg("P1", configs.VoteYes, txid))
	r.OnPrepare(prepareMsg("P1", configs.VoteNo, txid)) // later arrival from same voter

	assert.Equal(t, configs.VoteYes, r.prepareVotes[txid]["P1"])
}

func TestByzantineEquivocationStillReachesQuorum(t *testing.T) {
	// P3 sends inconsistent votes to different peers; two honest YES
	// votes plus the primary's implicit YES still meet the 2f+1=3
	// threshold regardless of what P3 sent.
	r := fourReplica(t)
	txid, _ := r.Submit(map[string]string{"operation": "deposit", "account": "alice", "amount": "100"})

	r.OnPrepare(prepareMsg("P1", configs.VoteYes, txid))
	r.OnPrepare(prepareMsg("P2", configs.VoteYes, txid))
	// P3 (byzantine) never reaches this replica with a YES in this run.

	assert.NoError(t, r.Progress(txid))
	status, _ := r.TxStatus(txid)
	assert.Equal(t, configs.Prepared, status)
}
