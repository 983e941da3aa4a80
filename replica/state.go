// Package replica is the protocol engine: membership, the three-phase
// agreement state machine, view change, and checkpoint/recovery. It is
// grounded throughout on the teacher's network/coordinator package -
// a Manager holding per-tx handlers behind a sync.Map, a LogManager
// wrapping a WAL, a Commu doing connection-per-peer TCP fan-out - with
// the 2PC/3PC/G-PAC state machine replaced by PBFT's pre-prepare /
// prepare / commit-vote / reply.
package replica

import (
	"github.com/deckarep/golang-set"
	lock "github.com/viney-shih/go-lock"
	"pbft/checkpoint"
	"pbft/configs"
	"pbft/ledger"
	"pbft/locks"
	"pbft/network/transport"
	"sort"
	"strconv"
	"sync"
)

// Member is one entry of the roster: id -> listen address.
type Member struct {
	Host string
	Port int
}

func (m Member) Addr() string {
	return m.Host + ":" + strconv.Itoa(m.Port)
}

// Replica is the per-node state the spec calls out in §3: view, role,
// transaction log, vote buffers, checkpoint bookkeeping - all guarded
// by one logical lock (per spec.md §5), implemented with
// viney-shih/go-lock's RWMutex. Leadership-gated commands that should
// not queue behind unrelated work (Submit, Progress,
// CoordinatedCheckpoint) take the guard via TryLockWithContext and fail
// fast instead of blocking the dispatcher; everything else takes it
// with the plain blocking Lock()/RLock(). Vote-table mutations
// additionally take a finer per-txid lock (package locks) as the
// spec's "finer-grained locks" escape hatch, so concurrent votes on
// different txids never serialize on each other.
type Replica struct {
	ID string

	guard lock.RWMutex // the single logical lock over the fields below

	View        int
	Members     map[string]Member
	ByzantineID string
	Crashed     bool

	primaryAddr string // primary address from the last NEW_VIEW/CHECKPOINT_SYNC; Recover sends RECOVER_HELLO there

	txLog   map[string]*ledger.Tx
	txOrder []string // insertion order, i.e. the local log order
	txLocks sync.Map // txid -> *locks.RWLock

	// prepareVotes[txid][voterID] = VOTE_YES|VOTE_NO, first-writer-wins.
	prepareVotes map[string]map[string]string
	// commitVotes[txid][voterID] = ACK_COMMIT|ACK_ABORT, first-writer-wins.
	commitVotes map[string]map[string]string

	seq uint64 // primary-side, per-view monotonic PRE_PREPARE counter

	clients mapset.Set // set of "host:port" client addresses known to this node

	vcVotes map[int]mapset.Set // view -> set of voter ids having sent VIEW_CHANGE for that view
	vcDone  mapset.Set         // set of view numbers for which NEW_VIEW has already been emitted

	ckptReports   map[int64]mapset.Set // checkpoint id -> set of node ids reported
	ckptTexts     map[int64]map[string]string
	lastCkptID    int64
	lastFinalText string

	Comm   *transport.Comm
	Tuning *configs.NodeTuning
	Store  checkpoint.Store
}

// New creates a replica with just itself in the roster. Bootstrap (P0)
// starts this way; joining replicas overwrite Members once MEMBERS
// arrives.
func New(id string, host string, port int, tuning *configs.NodeTuning, store checkpoint.Store) *Replica {
	r := &Replica{
		ID:      id,
		Members: map[string]Member{id: {Host: host, Port: port}},
		txLog:   make(map[string]*ledger.Tx),
		txOrder: make([]string, 0),

		prepareVotes: make(map[string]map[string]string),
		commitVotes:  make(map[string]map[string]string),

		clients: mapset.NewSet(),

		vcVotes: make(map[int]mapset.Set),
		vcDone:  mapset.NewSet(),

		ckptReports: make(map[int64]mapset.Set),
		ckptTexts:   make(map[int64]map[string]string),

		Tuning: tuning,
		Store:  store,
	}
	return r
}

// sortedIDs returns every member id in canonical order: P0 first, the
// rest lexicographic.
func (r *Replica) sortedIDs() []string {
	ids := make([]string, 0, len(r.Members))
	for id := range r.Members {
		ids = append(ids, id)
	}
	return canonicalIDOrder(ids)
}

// canonicalIDOrder sorts ids in place per spec.md §3's canonical order
// (P0 first, the rest lexicographic) and returns the same slice. Used
// both for primary selection (sortedIDs) and for checkpoint report
// assembly, so the two never disagree about what "canonical order"
// means.
func canonicalIDOrder(ids []string) []string {
	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if a == configs.BootstrapID {
			return true
		}
		if b == configs.BootstrapID {
			return false
		}
		return a < b
	})
	return ids
}

// PrimaryFor is spec.md §3's deterministic primary rule:
// sorted_ids[v mod N], P0 first.
func (r *Replica) PrimaryFor(view int) string {
	ids := r.sortedIDs()
	if len(ids) == 0 {
		return ""
	}
	return ids[view%len(ids)]
}

// Quorum returns f and the 2f+1 threshold for a roster of n replicas.
func Quorum(n int) (f int, threshold int) {
	f = (n - 1) / 3
	return f, 2*f + 1
}

func (r *Replica) txLockFor(txid string) *locks.RWLock {
	l, _ := r.txLocks.LoadOrStore(txid, locks.NewLocker())
	return l.(*locks.RWLock)
}
