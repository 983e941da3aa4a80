package replica

import (
	mapset "github.com/deckarep/golang-set"
	"pbft/configs"
	"pbft/network"
)

// StartViewChange is the console's "view change" command: broadcast a
// VIEW_CHANGE for this replica's current view to every member (including
// itself, so its own vote counts toward the quorum it tallies below).
func (r *Replica) StartViewChange() {
	r.guard.RLock()
	view := r.View
	targets := r.allMembersLocked()
	self := r.ID
	r.guard.RUnlock()

	configs.DPrintf("%s broadcasting VIEW_CHANGE for view %d", self, view)
	r.broadcast(targets, &network.Record{Type: configs.MsgViewChange, From: self, View: view})
}

// OnViewChange is spec.md §4.2's aggregation rule. Every recipient
// records the sender's vote for the *sender's* declared view; only the
// deterministic next primary for that view acts once a 2f+1 quorum of
// distinct senders (including itself) is reached.
func (r *Replica) OnViewChange(rec *network.Record) {
	r.guard.Lock()
	view := rec.View
	votes, ok := r.vcVotes[view]
	if !ok {
		votes = mapset.NewSet()
		r.vcVotes[view] = votes
	}
	votes.Add(rec.From)
	votes.Add(r.ID) // this replica's own implicit vote for the view it is tallying

	nextView := view + 1
	iAmNextPrimary := r.PrimaryFor(nextView) == r.ID
	alreadyDone := r.vcDone.Contains(view)
	n := len(r.Members)
	_, threshold := Quorum(n)
	reached := votes.Cardinality() >= threshold

	if !iAmNextPrimary || alreadyDone || !reached {
		r.guard.Unlock()
		return
	}
	r.vcDone.Add(view)
	r.View = nextView
	self := r.Members[r.ID]
	members := make(map[string]network.MemberAddr, len(r.Members))
	for id, m := range r.Members {
		members[id] = network.MemberAddr{Host: m.Host, Port: m.Port}
	}
	byzantineID := r.ByzantineID
	targets := r.allMembersLocked()
	selfID := r.ID
	r.guard.Unlock()

	configs.DPrintf("%s becomes primary of view %d", selfID, nextView)
	r.broadcast(targets, &network.Record{
		Type:        configs.MsgNewView,
		NewView:     nextView,
		From:        selfID,
		PrimaryHost: self.Host,
		PrimaryPort: self.Port,
		Members:     members,
		ByzantineID: byzantineID,
	})
	r.reproposeUncommitted()
}

// OnNewView is unconditional adoption, per spec.md §4.2.
func (r *Replica) OnNewView(rec *network.Record) {
	r.guard.Lock()
	r.View = rec.NewView
	r.ByzantineID = rec.ByzantineID
	if len(rec.Members) > 0 {
		r.Members = make(map[string]Member, len(rec.Members))
		for id, addr := range rec.Members {
			r.Members[id] = Member{Host: addr.Host, Port: addr.Port}
		}
	}
	r.primaryAddr = Member{Host: rec.PrimaryHost, Port: rec.PrimaryPort}.Addr()
	r.guard.Unlock()
	configs.DPrintf("adopting view %d, primary %s", rec.NewView, rec.From)
}

// reproposeUncommitted is spec.md §4.2's re-execution step: the new
// primary scans its local log for the most recent tx still in
// {STARTED, PREPARED} and rebroadcasts PRE_PREPARE for it unchanged.
// Existing vote tables carry over untouched; idempotent OnPrePrepare
// handling makes the rebroadcast safe even where replicas already hold
// the tx.
func (r *Replica) reproposeUncommitted() {
	r.guard.Lock()
	var pending *network.Record
	for i := len(r.txOrder) - 1; i >= 0; i-- {
		txid := r.txOrder[i]
		tx := r.txLog[txid]
		if tx.Status == configs.Started || tx.Status == configs.Prepared {
			self := r.Members[r.ID]
			pending = &network.Record{
				Type:        configs.MsgPrePrepare,
				TxID:        tx.TxID,
				Data:        tx.Payload,
				From:        r.ID,
				PrimaryHost: self.Host,
				PrimaryPort: self.Port,
				View:        r.View,
				Seq:         tx.Seq,
			}
			break
		}
	}
	targets := r.otherMembersLocked()
	r.guard.Unlock()

	if pending == nil {
		return
	}
	configs.TxnPrint(pending.TxID, "re-proposed by new primary after view change")
	r.broadcast(targets, pending)
}
