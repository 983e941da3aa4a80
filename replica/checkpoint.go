package replica

import (
	"context"
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set"
	"pbft/configs"
	"pbft/ledger"
	"pbft/network"
)

// Snapshot renders spec.md §4.3's local snapshot text: node id,
// timestamp, current view and leader, the full log (txid, status,
// payload as a canonical record), and derived balances.
func (r *Replica) Snapshot() string {
	r.guard.RLock()
	view := r.View
	leader := r.PrimaryFor(r.View)
	log := make([]*ledger.Tx, 0, len(r.txOrder))
	for _, txid := range r.txOrder {
		tx := *r.txLog[txid]
		log = append(log, &tx)
	}
	id := r.ID
	r.guard.RUnlock()

	balances := ledger.Fold(log)

	var b strings.Builder
	fmt.Fprintf(&b, "node=%s time=%s view=%d leader=%s\n", id, time.Now().Format(time.RFC3339), view, leader)
	for _, tx := range log {
		fmt.Fprintf(&b, "tx %s %s %s\n", tx.TxID, ledger.StatusName(tx.Status), ledger.CanonicalPayload(tx.Payload))
	}
	for _, line := range ledger.FormatBalances(balances) {
		fmt.Fprintf(&b, "balance %s\n", line)
	}
	return b.String()
}

// LocalCheckpoint is a local append: every node, regardless of role,
// can write its own snapshot to its append log. No console command
// calls it; the console's "checkpoint" runs CoordinatedCheckpoint.
func (r *Replica) LocalCheckpoint() error {
	id := time.Now().UnixNano()
	text := r.Snapshot()
	if r.Store == nil {
		return nil
	}
	return r.Store.AppendLocal(r.ID, id, text)
}

// CoordinatedCheckpoint is the leader-only driver: mint a fresh
// checkpoint id, reset the reports table, insert the leader's own
// snapshot, and broadcast CHECKPOINT_REQUEST to every other member.
func (r *Replica) CoordinatedCheckpoint() (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), configs.LockTimeout)
	defer cancel()
	if !r.guard.TryLockWithContext(ctx) {
		return 0, ErrBusy
	}
	if r.PrimaryFor(r.View) != r.ID {
		r.guard.Unlock()
		return 0, ErrNotPrimary
	}
	id := time.Now().UnixNano()
	r.lastCkptID = id
	r.ckptReports[id] = mapset.NewSet()
	r.ckptTexts[id] = make(map[string]string)
	self := r.Members[r.ID]
	targets := r.otherMembersLocked()
	r.guard.Unlock()

	text := r.Snapshot()
	r.recordCheckpointReport(id, r.ID, text)
	if r.Store != nil {
		if err := r.Store.AppendLocal(r.ID, id, text); err != nil {
			configs.Warn(false, "local checkpoint append failed: "+err.Error())
		}
	}

	configs.DPrintf("%s coordinating checkpoint %d", r.ID, id)
	r.broadcast(targets, &network.Record{
		Type:          configs.MsgCheckpointReq,
		CheckpointID:  id,
		CollectorHost: self.Host,
		CollectorPort: self.Port,
	})
	r.maybeFinalizeCheckpoint(id)
	return id, nil
}

// OnCheckpointRequest computes this node's snapshot and reports it back
// to the collector named in the request.
func (r *Replica) OnCheckpointRequest(rec *network.Record) {
	text := r.Snapshot()
	if r.Store != nil {
		if err := r.Store.AppendLocal(r.ID, rec.CheckpointID, text); err != nil {
			configs.Warn(false, "local checkpoint append failed: "+err.Error())
		}
	}
	collector := Member{Host: rec.CollectorHost, Port: rec.CollectorPort}.Addr()
	r.Comm.Send(collector, &network.Record{
		Type:         configs.MsgCheckpointReport,
		CheckpointID: rec.CheckpointID,
		NodeID:       r.ID,
		Text:         text,
	})
}

// OnCheckpointReport accumulates one node's report at the collector.
// Once every current member has reported, the collector assembles and
// persists the final checkpoint.
func (r *Replica) OnCheckpointReport(rec *network.Record) {
	r.recordCheckpointReport(rec.CheckpointID, rec.NodeID, rec.Text)
	r.maybeFinalizeCheckpoint(rec.CheckpointID)
}

func (r *Replica) recordCheckpointReport(id int64, nodeID string, text string) {
	r.guard.Lock()
	defer r.guard.Unlock()
	reports, ok := r.ckptReports[id]
	if !ok {
		reports = mapset.NewSet()
		r.ckptReports[id] = reports
	}
	reports.Add(nodeID)
	texts, ok := r.ckptTexts[id]
	if !ok {
		texts = make(map[string]string)
		r.ckptTexts[id] = texts
	}
	texts[nodeID] = text
}

func (r *Replica) maybeFinalizeCheckpoint(id int64) {
	r.guard.Lock()
	reports, ok := r.ckptReports[id]
	if !ok {
		r.guard.Unlock()
		return
	}
	expected := len(r.Members)
	if reports.Cardinality() < expected {
		r.guard.Unlock()
		return
	}
	order := make([]string, 0, reports.Cardinality())
	for v := range reports.Iter() {
		order = append(order, v.(string))
	}
	order = canonicalIDOrder(order)
	texts := make(map[string]string, len(r.ckptTexts[id]))
	for k, v := range r.ckptTexts[id] {
		texts[k] = v
	}
	store := r.Store
	r.guard.Unlock()

	if store == nil {
		return
	}
	final, err := store.WriteFinal(id, texts, order)
	if err != nil {
		configs.Warn(false, "final checkpoint assembly failed: "+err.Error())
		return
	}
	r.guard.Lock()
	r.lastFinalText = final
	r.guard.Unlock()
	configs.DPrintf("final checkpoint %d assembled from %d reports", id, len(order))
}

// OnRecoverHello is the current primary's side of state transfer: reply
// with CHECKPOINT_SYNC carrying the latest final checkpoint text plus
// enough live state for the recovering node to rebuild its log.
func (r *Replica) OnRecoverHello(rec *network.Record) {
	r.guard.RLock()
	if r.PrimaryFor(r.View) != r.ID {
		r.guard.RUnlock()
		return // only the primary answers RECOVER_HELLO
	}
	view := r.View
	members := make(map[string]network.MemberAddr, len(r.Members))
	for id, m := range r.Members {
		members[id] = network.MemberAddr{Host: m.Host, Port: m.Port}
	}
	byzantineID := r.ByzantineID
	self := r.Members[r.ID]
	finalText := r.lastFinalText
	txLog := make([]network.TxRecord, 0, len(r.txOrder))
	for _, txid := range r.txOrder {
		tx := r.txLog[txid]
		txLog = append(txLog, network.TxRecord{
			TxID: tx.TxID, Status: tx.Status, Payload: tx.Payload, CommitStarted: tx.CommitStarted,
		})
	}
	r.guard.RUnlock()

	stateData := ledger.Fold(r.TxLog())

	recoverer := Member{Host: rec.Host, Port: rec.Port}.Addr()
	r.Comm.Send(recoverer, &network.Record{
		Type:           configs.MsgCheckpointSync,
		Text:           finalText,
		View:           view,
		CurrentPrimary: r.ID,
		Members:        members,
		PrimaryHost:    self.Host,
		PrimaryPort:    self.Port,
		TxLog:          txLog,
		StateData:      stateData,
		ByzantineID:    byzantineID,
	})
}

// OnCheckpointSync is the recovering node's side: overwrite in-memory
// state wholesale from a single record, per spec.md §5's atomicity
// requirement. Missing state_data is derived from the committed tx_log
// entries carried on the same record.
func (r *Replica) OnCheckpointSync(rec *network.Record) {
	r.guard.Lock()
	r.View = rec.View
	r.ByzantineID = rec.ByzantineID
	if len(rec.Members) > 0 {
		r.Members = make(map[string]Member, len(rec.Members))
		for id, addr := range rec.Members {
			r.Members[id] = Member{Host: addr.Host, Port: addr.Port}
		}
	}
	r.primaryAddr = Member{Host: rec.PrimaryHost, Port: rec.PrimaryPort}.Addr()
	r.txLog = make(map[string]*ledger.Tx, len(rec.TxLog))
	r.txOrder = make([]string, 0, len(rec.TxLog))
	for _, t := range rec.TxLog {
		r.txLog[t.TxID] = &ledger.Tx{TxID: t.TxID, Status: t.Status, Payload: t.Payload, CommitStarted: t.CommitStarted}
		r.txOrder = append(r.txOrder, t.TxID)
	}
	r.lastFinalText = rec.Text
	r.guard.Unlock()

	if r.Store != nil {
		if err := r.Store.WriteRecovered(r.ID, rec.Text); err != nil {
			configs.Warn(false, "recording recovered checkpoint failed: "+err.Error())
		}
	}
	configs.DPrintf("%s applied checkpoint sync: view=%d primary=%s log=%d entries", r.ID, rec.View, rec.CurrentPrimary, len(rec.TxLog))
}

// Recover is the console's "recover" command: clear the crashed flag
// and announce readiness to the current primary via RECOVER_HELLO.
func (r *Replica) Recover() {
	r.SetCrashed(false)
	r.guard.RLock()
	self := r.Members[r.ID]
	primary := r.primaryAddr
	if primary == "" {
		primaryID := r.PrimaryFor(r.View)
		if m, ok := r.Members[primaryID]; ok {
			primary = m.Addr()
		}
	}
	r.guard.RUnlock()
	if primary == "" || r.Comm == nil {
		return
	}
	r.Comm.Send(primary, &network.Record{Type: configs.MsgRecoverHello, Host: self.Host, Port: self.Port})
}
