package replica

import (
	"context"
	"errors"
	"pbft/configs"
	"pbft/ledger"
	"pbft/network"
	"pbft/utils"
	"strconv"

	"golang.org/x/sync/errgroup"
)

var (
	ErrNotPrimary    = errors.New("only the primary accepts this command")
	ErrNoMembers     = errors.New("at least one other replica must have registered")
	ErrUnknownTx     = errors.New("unknown txid")
	ErrNoPendingTx   = errors.New("no transaction awaiting a vote")
	ErrNotByzantine  = errors.New("targeted votes are a byzantine-only affordance")
	ErrUnknownTarget = errors.New("unknown target replica id")
	ErrBusy          = errors.New("replica busy, try again")
)

// Submit is spec.md §4.1's primary-only entry point: validate, mint a
// txid, record it STARTED, and fan the PRE_PREPARE out to every other
// member.
func (r *Replica) Submit(payload map[string]string) (string, error) {
	if err := ledger.ValidatePayload(payload); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), configs.LockTimeout)
	defer cancel()
	if !r.guard.TryLockWithContext(ctx) {
		return "", ErrBusy
	}
	if r.PrimaryFor(r.View) != r.ID {
		r.guard.Unlock()
		return "", ErrNotPrimary
	}
	if len(r.Members) < 2 {
		r.guard.Unlock()
		return "", ErrNoMembers
	}
	txid := utils.NewTxID()
	seq := r.seq
	r.seq++
	self := r.Members[r.ID]
	tx := &ledger.Tx{
		TxID:        txid,
		Payload:     payload,
		Status:      configs.Started,
		PrimaryAddr: self.Addr(),
		View:        r.View,
		Seq:         seq,
	}
	r.txLog[txid] = tx
	r.txOrder = append(r.txOrder, txid)
	targets := r.otherMembersLocked()
	r.guard.Unlock()

	configs.TxnPrint(txid, "submitted by primary %s at view %d seq %d", r.ID, tx.View, seq)

	r.broadcast(targets, &network.Record{
		Type:        configs.MsgPrePrepare,
		TxID:        txid,
		Data:        payload,
		From:        r.ID,
		PrimaryHost: self.Host,
		PrimaryPort: self.Port,
		View:        tx.View,
		Seq:         seq,
	})
	return txid, nil
}

// OnPrePrepare records the proposed tx (first arrival wins the STARTED
// record) and remembers which primary proposed it. The engine never
// auto-votes; a PREPARE vote is operator-driven.
func (r *Replica) OnPrePrepare(rec *network.Record) {
	r.guard.Lock()
	defer r.guard.Unlock()
	if _, ok := r.txLog[rec.TxID]; ok {
		return
	}
	r.txLog[rec.TxID] = &ledger.Tx{
		TxID:        rec.TxID,
		Payload:     rec.Data,
		Status:      configs.Started,
		PrimaryAddr: rec.PrimaryHost + ":" + strconv.Itoa(rec.PrimaryPort),
		View:        rec.View,
		Seq:         rec.Seq,
	}
	r.txOrder = append(r.txOrder, rec.TxID)
	configs.TxnPrint(rec.TxID, "pre-prepare received from %s", rec.From)
}

// OnPrepare appends a PREPARE vote to the table, first-writer-wins per
// (txid, voter) - the reference's classical-robustness alternative
// called out in spec.md §9. Out-of-order arrival (before the matching
// PRE_PREPARE) is tolerated: the vote is recorded regardless.
func (r *Replica) OnPrepare(rec *network.Record) {
	r.recordVote(r.prepareVotes, rec.TxID, rec.From, rec.Vote)
	configs.TxnPrint(rec.TxID, "prepare vote %s from %s", rec.Vote, rec.From)
}

// OnCommitVote appends a COMMIT_VOTE ack, same first-writer-wins policy.
func (r *Replica) OnCommitVote(rec *network.Record) {
	r.recordVote(r.commitVotes, rec.TxID, rec.From, rec.Ack)
	configs.TxnPrint(rec.TxID, "commit ack %s from %s", rec.Ack, rec.From)
}

func (r *Replica) recordVote(table map[string]map[string]string, txid string, voter string, value string) {
	r.guard.Lock()
	votes, ok := table[txid]
	if !ok {
		votes = make(map[string]string)
		table[txid] = votes
	}
	r.guard.Unlock()

	txLock := r.txLockFor(txid)
	txLock.Lock()
	defer txLock.Unlock()
	if _, already := votes[voter]; already {
		return // first-writer-wins
	}
	votes[voter] = value
}

// CastPrepare broadcasts this replica's own PREPARE vote for txid to
// every member, and records it locally. Used by the console's
// "prepare yes|no".
func (r *Replica) CastPrepare(txid string, yes bool) error {
	return r.castVote(configs.MsgPrepare, txid, yes, configs.VoteYes, configs.VoteNo, "", r.prepareVotes)
}

// CastPrepareTo is the Byzantine-only "prepare to <id> yes|no": a vote
// sent only to targetID, letting the designated faulty replica
// equivocate across recipients.
func (r *Replica) CastPrepareTo(txid string, targetID string, yes bool) error {
	return r.castVote(configs.MsgPrepare, txid, yes, configs.VoteYes, configs.VoteNo, targetID, r.prepareVotes)
}

// CastCommitVote and CastCommitVoteTo mirror the prepare-vote pair, one
// phase later.
func (r *Replica) CastCommitVote(txid string, commit bool) error {
	return r.castVote(configs.MsgCommitVote, txid, commit, configs.AckCommit, configs.AckAbort, "", r.commitVotes)
}

func (r *Replica) CastCommitVoteTo(txid string, targetID string, commit bool) error {
	return r.castVote(configs.MsgCommitVote, txid, commit, configs.AckCommit, configs.AckAbort, targetID, r.commitVotes)
}

func (r *Replica) castVote(msgType string, txid string, positive bool, yesValue string, noValue string, targetID string, table map[string]map[string]string) error {
	value := noValue
	if positive {
		value = yesValue
	}

	r.guard.Lock()
	if _, ok := r.txLog[txid]; !ok {
		r.guard.Unlock()
		return ErrUnknownTx
	}
	if targetID != "" && r.ByzantineID != r.ID {
		r.guard.Unlock()
		return ErrNotByzantine
	}
	var targets []Member
	if targetID != "" {
		m, ok := r.Members[targetID]
		if !ok {
			r.guard.Unlock()
			return ErrUnknownTarget
		}
		targets = []Member{m}
	} else {
		targets = r.allMembersLocked()
	}
	votes, ok := table[txid]
	if !ok {
		votes = make(map[string]string)
		table[txid] = votes
	}
	r.guard.Unlock()

	txLock := r.txLockFor(txid)
	txLock.Lock()
	if _, already := votes[r.ID]; !already {
		votes[r.ID] = value
	}
	txLock.Unlock()

	rec := &network.Record{Type: msgType, TxID: txid, From: r.ID}
	if msgType == configs.MsgPrepare {
		rec.Vote = value
	} else {
		rec.Ack = value
	}

	r.broadcast(targets, rec)
	return nil
}

// Progress is spec.md §4.1's primary-only two-step driver: phase A
// tallies PREPARE votes toward COMMIT, phase B tallies COMMIT_VOTE acks
// toward a terminal status. commit_started gates re-entry into phase A,
// making repeated calls idempotent.
func (r *Replica) Progress(txid string) error {
	ctx, cancel := context.WithTimeout(context.Background(), configs.LockTimeout)
	defer cancel()
	if !r.guard.TryLockWithContext(ctx) {
		return ErrBusy
	}
	if r.PrimaryFor(r.View) != r.ID {
		r.guard.Unlock()
		return ErrNotPrimary
	}
	tx, ok := r.txLog[txid]
	if !ok {
		r.guard.Unlock()
		return ErrUnknownTx
	}
	n := len(r.Members)
	_, threshold := Quorum(n)

	if !tx.CommitStarted {
		yes := r.countLocked(r.prepareVotes, txid, configs.VoteYes)
		if tx.Status == configs.Started {
			yes++ // the primary's implicit YES
		}
		if yes < threshold {
			r.guard.Unlock()
			r.Finalize(txid, false)
			return nil
		}
		tx.Status = configs.Prepared
		tx.CommitStarted = true
		r.guard.Unlock()
		configs.TxnPrint(txid, "prepared with %d/%d votes, entering commit phase", yes, n)
		return nil
	}

	commits := r.countLocked(r.commitVotes, txid, configs.AckCommit)
	commits++ // the primary's implicit COMMIT
	r.guard.Unlock()
	if commits < threshold {
		r.Finalize(txid, false)
		return nil
	}
	r.Finalize(txid, true)
	return nil
}

// countLocked tallies votes for txid. Callers hold r.guard; the votes
// submap itself is mutated under the finer per-txid lock rather than
// r.guard (see recordVote/castVote), so reading it here also takes
// that lock.
func (r *Replica) countLocked(table map[string]map[string]string, txid string, wants string) int {
	txLock := r.txLockFor(txid)
	txLock.RLock()
	defer txLock.RUnlock()
	count := 0
	for _, v := range table[txid] {
		if v == wants {
			count++
		}
	}
	return count
}

// Finalize sets the terminal status (one-way, per spec.md §3) and
// broadcasts REPLY to every known client and replica; an abort also
// sends the legacy ABORT to every other replica. A duplicate call
// after the tx is already terminal is a no-op - phase transitions never
// regress.
func (r *Replica) Finalize(txid string, commit bool) {
	r.guard.Lock()
	tx, ok := r.txLog[txid]
	if !ok {
		r.guard.Unlock()
		return
	}
	if tx.Status == configs.Committed || tx.Status == configs.Aborted {
		r.guard.Unlock()
		return
	}
	result := configs.ResultAborted
	if commit {
		tx.Status = configs.Committed
		result = configs.ResultCommitted
	} else {
		tx.Status = configs.Aborted
	}
	clients := make([]string, 0, r.clients.Cardinality())
	for v := range r.clients.Iter() {
		clients = append(clients, v.(string))
	}
	replicas := r.otherMembersLocked()
	payload := tx.Payload
	from := r.ID
	r.guard.Unlock()

	configs.TxnPrint(txid, "finalized %s", result)

	rec := &network.Record{Type: configs.MsgReply, TxID: txid, Result: result, Data: payload, From: from}
	for _, addr := range clients {
		r.Comm.Send(addr, rec)
	}
	r.broadcast(replicas, rec)
	if !commit {
		// legacy courtesy ABORT to replicas, alongside REPLY{ABORTED}
		r.broadcast(replicas, &network.Record{Type: configs.MsgAbort, TxID: txid, From: from})
	}
}

// OnReply is a non-primary replica's side of REPLY: adopt the result
// onto its own tx_log entry (mirroring OnCheckpointSync's pattern of
// trusting a single incoming record) and re-forward to any clients
// this replica has independently registered, beyond whatever the
// sender already reached. Every correct replica ends up at the same
// terminal status this way, not just the one that ran Finalize.
func (r *Replica) OnReply(rec *network.Record) {
	r.guard.Lock()
	tx, ok := r.txLog[rec.TxID]
	if !ok {
		r.guard.Unlock()
		return
	}
	if tx.Status == configs.Committed || tx.Status == configs.Aborted {
		r.guard.Unlock()
		return
	}
	if rec.Result == configs.ResultCommitted {
		tx.Status = configs.Committed
	} else {
		tx.Status = configs.Aborted
	}
	clients := make([]string, 0, r.clients.Cardinality())
	for v := range r.clients.Iter() {
		clients = append(clients, v.(string))
	}
	r.guard.Unlock()

	configs.TxnPrint(rec.TxID, "adopted %s from REPLY forwarded by %s", rec.Result, rec.From)
	for _, addr := range clients {
		r.Comm.Send(addr, rec)
	}
}

func (r *Replica) otherMembersLocked() []Member {
	out := make([]Member, 0, len(r.Members))
	for id, m := range r.Members {
		if id != r.ID {
			out = append(out, m)
		}
	}
	return out
}

func (r *Replica) allMembersLocked() []Member {
	out := make([]Member, 0, len(r.Members))
	for _, m := range r.Members {
		out = append(out, m)
	}
	return out
}

// broadcast fans rec out to every member concurrently via errgroup,
// grounded on the teacher's broadcast helpers in network/coordinator -
// Send itself never blocks on a reply, so the group only bounds the
// fan-out's own completion, not protocol progress.
func (r *Replica) broadcast(targets []Member, rec *network.Record) {
	if r.Comm == nil || len(targets) == 0 {
		return
	}
	g, _ := errgroup.WithContext(context.Background())
	for _, m := range targets {
		m := m
		g.Go(func() error {
			r.Comm.Send(m.Addr(), rec)
			return nil
		})
	}
	_ = g.Wait()
}

// TxStatus and TxPayload are small console-facing accessors.
func (r *Replica) TxStatus(txid string) (uint8, bool) {
	r.guard.RLock()
	defer r.guard.RUnlock()
	tx, ok := r.txLog[txid]
	if !ok {
		return 0, false
	}
	return tx.Status, true
}

// LatestPendingTxID returns the most recently logged txid still awaiting
// a phase transition (STARTED awaits PREPARE, PREPARED awaits
// COMMIT_VOTE), for the console's "prepare"/"ack" commands that act on
// "the" pending tx rather than naming one explicitly.
func (r *Replica) LatestPendingTxID() (string, bool) {
	r.guard.RLock()
	defer r.guard.RUnlock()
	for i := len(r.txOrder) - 1; i >= 0; i-- {
		txid := r.txOrder[i]
		tx := r.txLog[txid]
		if tx.Status == configs.Started || tx.Status == configs.Prepared {
			return txid, true
		}
	}
	return "", false
}

// TxLog returns a snapshot of the log in recorded order, for the
// console's "list"/"data" commands and for checkpoint snapshots.
func (r *Replica) TxLog() []*ledger.Tx {
	r.guard.RLock()
	defer r.guard.RUnlock()
	out := make([]*ledger.Tx, 0, len(r.txOrder))
	for _, txid := range r.txOrder {
		tx := *r.txLog[txid]
		out = append(out, &tx)
	}
	return out
}

// Balances folds the committed log into account balances, rendered as
// sorted "account=amount" lines, for the console's "data" command.
func (r *Replica) Balances() []string {
	return ledger.FormatBalances(ledger.Fold(r.TxLog()))
}
