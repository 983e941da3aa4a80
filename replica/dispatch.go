package replica

import (
	"net"
	"pbft/configs"
	"pbft/network"
)

// Dispatch is the Handler passed to transport.Listen: one switchboard
// routing each inbound record to the engine method that owns its type,
// grounded on the teacher's own per-message-type handler registration
// in network/coordinator. A crashed replica drops everything silently,
// per spec.md §4.5.
func (r *Replica) Dispatch(_ net.Addr, rec *network.Record) {
	if r.IsCrashed() {
		return
	}
	switch rec.Type {
	case configs.MsgRegister:
		r.handleRegister(rec)
	case configs.MsgMembers:
		r.ApplyMembers(rec)
	case configs.MsgClientHello:
		r.handleClientHello(rec)
	case configs.MsgClientJoin:
		r.RegisterClient((Member{Host: rec.Host, Port: rec.Port}).Addr())
	case configs.MsgClientTx:
		r.handleClientTx(rec)
	case configs.MsgPrePrepare:
		r.OnPrePrepare(rec)
	case configs.MsgPrepare:
		r.OnPrepare(rec)
	case configs.MsgCommitVote:
		r.OnCommitVote(rec)
	case configs.MsgAbort:
		r.handleAbort(rec)
	case configs.MsgReply:
		r.OnReply(rec)
	case configs.MsgViewChange:
		r.OnViewChange(rec)
	case configs.MsgNewView:
		r.OnNewView(rec)
	case configs.MsgCheckpointReq:
		r.OnCheckpointRequest(rec)
	case configs.MsgCheckpointReport:
		r.OnCheckpointReport(rec)
	case configs.MsgCheckpointSync:
		r.OnCheckpointSync(rec)
	case configs.MsgRecoverHello:
		r.OnRecoverHello(rec)
	default:
		configs.Warn(false, "dispatch: unrecognized record type "+rec.Type)
	}
}

// handleRegister is the bootstrap replica's side of REGISTER: add the
// joining replica to the roster and broadcast the refreshed MEMBERS
// snapshot to every member, including the new one.
func (r *Replica) handleRegister(rec *network.Record) {
	if r.ID != configs.BootstrapID {
		configs.Warn(false, "REGISTER received by non-bootstrap replica "+r.ID)
		return
	}
	r.AddMember(rec.ID, rec.Host, rec.Port)
	members := r.MembersRecord()
	for _, m := range r.Roster() {
		r.Comm.Send(m.Addr(), members)
	}
}

// handleClientHello is P0's side of CLIENT_HELLO: register the client
// and advertise it to every replica via CLIENT_JOIN.
func (r *Replica) handleClientHello(rec *network.Record) {
	addr := Member{Host: rec.Host, Port: rec.Port}.Addr()
	r.RegisterClient(addr)
	join := &network.Record{Type: configs.MsgClientJoin, Host: rec.Host, Port: rec.Port}
	for id, m := range r.Roster() {
		if id == r.ID {
			continue
		}
		r.Comm.Send(m.Addr(), join)
	}
}

// handleClientTx is the primary's side of CLIENT_TX: submit the payload
// as a new transaction. Rejection reasons never reach the client on the
// wire (spec.md §7) - they are operator-visible only, via the return
// value surfaced through whatever local console invoked Submit.
func (r *Replica) handleClientTx(rec *network.Record) {
	if !r.IsPrimary() {
		configs.Warn(false, "CLIENT_TX received while not primary; dropping")
		return
	}
	if _, err := r.Submit(rec.Data); err != nil {
		configs.Warn(false, "CLIENT_TX rejected: "+err.Error())
	}
}

// handleAbort is the legacy ABORT broadcast (spec.md §4.1): retained as
// a courtesy, carries no safety obligation beyond what REPLY already
// guarantees.
func (r *Replica) handleAbort(rec *network.Record) {
	r.Finalize(rec.TxID, false)
}
