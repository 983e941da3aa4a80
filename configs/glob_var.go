package configs

import (
	"time"
)

// Debugging parameters.
var (
	ShowDebugInfo = false
	ShowWarnings  = true
	ShowTestInfo  = ShowDebugInfo
	LogToFile     = false
)

// Message types. Every record on the wire carries one of these in its
// "type" field.
const (
	MsgRegister         string = "REGISTER"
	MsgMembers          string = "MEMBERS"
	MsgClientHello      string = "CLIENT_HELLO"
	MsgClientJoin       string = "CLIENT_JOIN"
	MsgClientTx         string = "CLIENT_TX"
	MsgPrePrepare       string = "PRE_PREPARE"
	MsgPrepare          string = "PREPARE"
	MsgCommitVote       string = "COMMIT_VOTE"
	MsgAbort            string = "ABORT"
	MsgReply            string = "REPLY"
	MsgViewChange       string = "VIEW_CHANGE"
	MsgNewView          string = "NEW_VIEW"
	MsgCheckpointReq    string = "CHECKPOINT_REQUEST"
	MsgCheckpointReport string = "CHECKPOINT_REPORT"
	MsgCheckpointSync   string = "CHECKPOINT_SYNC"
	MsgRecoverHello     string = "RECOVER_HELLO"
)

// Vote values carried by PREPARE / COMMIT_VOTE records.
const (
	VoteYes   string = "VOTE_YES"
	VoteNo    string = "VOTE_NO"
	AckCommit string = "ACK_COMMIT"
	AckAbort  string = "ACK_ABORT"
)

// Tx.Status values.
const (
	Started   uint8 = 0
	Prepared  uint8 = 1
	Committed uint8 = 2
	Aborted   uint8 = 3
)

// Reply results carried on REPLY records.
const (
	ResultCommitted string = "COMMITTED"
	ResultAborted   string = "ABORTED"
)

// Payload operation kinds.
const (
	OpDeposit  = "deposit"
	OpWithdraw = "withdraw"
)

// BootstrapID is the well-known id of the replica that owns the
// well-known port and brokers REGISTER/MEMBERS.
const BootstrapID = "P0"

// System timeouts and sizing, per spec.md §5.
const (
	SendTimeout          = 3 * time.Second
	ReadTimeout          = 10 * time.Second
	MaxConnectionHandler = 16
	CheckpointDir        = "checkpoints"

	// LockTimeout bounds how long a leadership-gated command waits on the
	// replica's single logical lock before failing fast rather than
	// queuing behind whatever else is mutating state.
	LockTimeout = 200 * time.Millisecond
)

// Workload parameters. No flag or properties key sets these; the
// properties file's max_conns sets NodeTuning.MaxConns instead.
var (
	ListenBacklog = MaxConnectionHandler
)
