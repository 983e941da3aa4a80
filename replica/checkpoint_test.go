package replica

import (
	"pbft/checkpoint"
	"pbft/configs"
	"pbft/network"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoordinatedCheckpointAssemblesAllReports(t *testing.T) {
	store := checkpoint.NewFileStore(t.TempDir())
	r := New(configs.BootstrapID, "127.0.0.1", 5000, nil, store)
	r.AddMember("P1", "127.0.0.1", 5001)
	r.AddMember("P2", "127.0.0.1", 5002)
	r.AddMember("P3", "127.0.0.1", 5003)

	id, err := r.CoordinatedCheckpoint()
	assert.NoError(t, err)

	// Simulate the three reports a real transport round-trip would
	// deliver to the collector.
	r.OnCheckpointReport(&network.Record{Type: configs.MsgCheckpointReport, CheckpointID: id, NodeID: "P1", Text: "snap-P1"})
	r.OnCheckpointReport(&network.Record{Type: configs.MsgCheckpointReport, CheckpointID: id, NodeID: "P2", Text: "snap-P2"})
	r.OnCheckpointReport(&network.Record{Type: configs.MsgCheckpointReport, CheckpointID: id, NodeID: "P3", Text: "snap-P3"})

	r.guard.RLock()
	final := r.lastFinalText
	r.guard.RUnlock()

	assert.Equal(t, 4, strings.Count(final, "snap-")+1) // P0's own snapshot is real text, not the "snap-" placeholder
	assert.Contains(t, final, "snap-P1")
	assert.Contains(t, final, "snap-P2")
	assert.Contains(t, final, "snap-P3")
}

func TestCheckpointSyncRoundTrip(t *testing.T) {
	a := New(configs.BootstrapID, "127.0.0.1", 5000, nil, nil)
	a.AddMember("P1", "127.0.0.1", 5001)
	a.View = 2
	a.OnPrePrepare(&network.Record{
		Type: configs.MsgPrePrepare, TxID: "t1", From: configs.BootstrapID,
		Data: map[string]string{"account": "alice", "amount": "10", "operation": "deposit"},
		PrimaryHost: "127.0.0.1", PrimaryPort: 5000, View: 2,
	})

	b := New("P1", "127.0.0.1", 5001, nil, nil)
	sync := &network.Record{
		Type: configs.MsgCheckpointSync,
		Text: "final-text",
		View: a.CurrentView(),
		CurrentPrimary: configs.BootstrapID,
		PrimaryHost: "127.0.0.1", PrimaryPort: 5000,
		Members: map[string]network.MemberAddr{
			configs.BootstrapID: {Host: "127.0.0.1", Port: 5000},
			"P1":                {Host: "127.0.0.1", Port: 5001},
		},
		TxLog: recordsFrom(a),
	}
	b.OnCheckpointSync(sync)

	assert.Equal(t, a.CurrentView(), b.CurrentView())
	assert.Equal(t, a.Roster(), b.Roster())
	assert.Equal(t, len(a.TxLog()), len(b.TxLog()))
	assert.Equal(t, a.TxLog()[0].TxID, b.TxLog()[0].TxID)
}

func TestCheckpointAssemblyUsesCanonicalIDOrder(t *testing.T) {
	store := checkpoint.NewFileStore(t.TempDir())
	r := New(configs.BootstrapID, "127.0.0.1", 5000, nil, store)
	r.AddMember("P1", "127.0.0.1", 5001)
	r.AddMember("P2", "127.0.0.1", 5002)

	id, err := r.CoordinatedCheckpoint()
	assert.NoError(t, err)

	// Report out of canonical order; assembly must still place P0 first
	// and the rest lexicographically, matching sortedIDs' primary-
	// selection order rather than arrival or string-sort order.
	r.OnCheckpointReport(&network.Record{Type: configs.MsgCheckpointReport, CheckpointID: id, NodeID: "P2", Text: "snap-P2"})
	r.OnCheckpointReport(&network.Record{Type: configs.MsgCheckpointReport, CheckpointID: id, NodeID: "P1", Text: "snap-P1"})

	r.guard.RLock()
	final := r.lastFinalText
	r.guard.RUnlock()

	p0Index := strings.Index(final, "node=P0")
	p1Index := strings.Index(final, "snap-P1")
	p2Index := strings.Index(final, "snap-P2")
	assert.True(t, p0Index >= 0 && p1Index >= 0 && p2Index >= 0)
	assert.Less(t, p0Index, p1Index)
	assert.Less(t, p1Index, p2Index)
}

func recordsFrom(r *Replica) []network.TxRecord {
	out := make([]network.TxRecord, 0)
	for _, tx := range r.TxLog() {
		out = append(out, network.TxRecord{TxID: tx.TxID, Status: tx.Status, Payload: tx.Payload, CommitStarted: tx.CommitStarted})
	}
	return out
}
