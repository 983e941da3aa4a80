package replica

import (
	"pbft/configs"
	"pbft/network"
)

// AddMember records a new replica in the roster. On the bootstrap node
// P0 this is driven by an incoming REGISTER; every other node takes its
// roster from the MEMBERS broadcast via ApplyMembers instead. ByzantineID is
// recomputed every time the roster grows, per spec.md §3: once N>=4,
// sorted_ids[3] is the fixed designated-faulty id.
func (r *Replica) AddMember(id string, host string, port int) {
	r.guard.Lock()
	defer r.guard.Unlock()
	r.Members[id] = Member{Host: host, Port: port}
	r.recomputeByzantineLocked()
}

// Roster returns a snapshot of the current membership map.
func (r *Replica) Roster() map[string]Member {
	r.guard.RLock()
	defer r.guard.RUnlock()
	out := make(map[string]Member, len(r.Members))
	for id, m := range r.Members {
		out[id] = m
	}
	return out
}

func (r *Replica) recomputeByzantineLocked() {
	ids := r.sortedIDs()
	if len(ids) >= 4 {
		r.ByzantineID = ids[3]
	} else {
		r.ByzantineID = ""
	}
}

// IsByzantine reports whether id is this view's fixed designated-faulty
// replica.
func (r *Replica) IsByzantine(id string) bool {
	r.guard.RLock()
	defer r.guard.RUnlock()
	return r.ByzantineID != "" && r.ByzantineID == id
}

// MembersRecord builds the MEMBERS broadcast record P0 sends to every
// registrant once it has accepted them into the roster.
func (r *Replica) MembersRecord() *network.Record {
	r.guard.RLock()
	defer r.guard.RUnlock()
	members := make(map[string]network.MemberAddr, len(r.Members))
	for id, m := range r.Members {
		members[id] = network.MemberAddr{Host: m.Host, Port: m.Port}
	}
	return &network.Record{
		Type:        configs.MsgMembers,
		Members:     members,
		ByzantineID: r.ByzantineID,
		View:        r.View,
	}
}

// ApplyMembers replaces the local roster wholesale with the contents of
// an incoming MEMBERS broadcast - how every non-bootstrap replica first
// learns the full roster.
func (r *Replica) ApplyMembers(rec *network.Record) {
	r.guard.Lock()
	defer r.guard.Unlock()
	r.Members = make(map[string]Member, len(rec.Members))
	for id, addr := range rec.Members {
		r.Members[id] = Member{Host: addr.Host, Port: addr.Port}
	}
	r.ByzantineID = rec.ByzantineID
	r.View = rec.View
}

// RegisterClient records a client address that has said CLIENT_HELLO /
// CLIENT_JOIN, so replies and broadcasts know where to reach it.
func (r *Replica) RegisterClient(addr string) {
	r.guard.Lock()
	defer r.guard.Unlock()
	r.clients.Add(addr)
}

// Clients returns every known client address.
func (r *Replica) Clients() []string {
	r.guard.RLock()
	defer r.guard.RUnlock()
	out := make([]string, 0, r.clients.Cardinality())
	for v := range r.clients.Iter() {
		out = append(out, v.(string))
	}
	return out
}

// CurrentView returns the view this replica currently believes is
// active.
func (r *Replica) CurrentView() int {
	r.guard.RLock()
	defer r.guard.RUnlock()
	return r.View
}

// IsPrimary reports whether this replica is the primary of its current
// view.
func (r *Replica) IsPrimary() bool {
	r.guard.RLock()
	defer r.guard.RUnlock()
	return r.PrimaryFor(r.View) == r.ID
}

// SetCrashed toggles the operator-driven crash/recover simulation
// (console "crash" / "recover"): a crashed replica's dispatcher still
// runs but every handler is a no-op, per spec.md §4.5.
func (r *Replica) SetCrashed(crashed bool) {
	r.guard.Lock()
	defer r.guard.Unlock()
	r.Crashed = crashed
}

func (r *Replica) IsCrashed() bool {
	r.guard.RLock()
	defer r.guard.RUnlock()
	return r.Crashed
}
