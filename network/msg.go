// Package network defines the wire records exchanged between replicas
// and clients. Every record is a flat, self-describing JSON object
// carrying a "type" tag, framed one-per-line on a TCP connection - see
// Comm in network/transport/conn.go. The flat combined-struct style (one struct wide
// enough to carry every message type's fields) follows the teacher's
// own Response4Coordinator/PaGossip records.
package network

import "strconv"

// MemberAddr is a replica's listen address as carried in MEMBERS/NEW_VIEW.
type MemberAddr struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// TxRecord is a wire-flattened transaction log entry, carried on
// CHECKPOINT_SYNC so a recovering replica can rebuild its log.
type TxRecord struct {
	TxID          string            `json:"txid"`
	Status        uint8             `json:"status"`
	Payload       map[string]string `json:"payload"`
	CommitStarted bool              `json:"commit_started"`
}

// Record is the single envelope type for every message on the wire.
// Type selects which of the remaining fields are meaningful; unused
// fields are omitted by the codec.
type Record struct {
	Type string `json:"type"`

	// REGISTER, CLIENT_HELLO, CLIENT_JOIN, RECOVER_HELLO
	ID   string `json:"id,omitempty"`
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`

	// MEMBERS, NEW_VIEW, CHECKPOINT_SYNC
	Members     map[string]MemberAddr `json:"members,omitempty"`
	View        int                   `json:"view,omitempty"`
	Leader      string                `json:"leader,omitempty"`
	ByzantineID string                `json:"byzantine_id,omitempty"`

	// CLIENT_TX
	Data     map[string]string `json:"data,omitempty"`
	FromPort int               `json:"from_port,omitempty"`

	// PRE_PREPARE
	TxID        string `json:"txid,omitempty"`
	From        string `json:"from,omitempty"`
	PrimaryHost string `json:"primary_host,omitempty"`
	PrimaryPort int    `json:"primary_port,omitempty"`
	Seq         uint64 `json:"seq,omitempty"`

	// PREPARE
	Vote string `json:"vote,omitempty"`

	// COMMIT_VOTE
	Ack string `json:"ack,omitempty"`

	// REPLY
	Result string `json:"result,omitempty"`

	// NEW_VIEW (VIEW_CHANGE carries its view in View)
	NewView int `json:"new_view,omitempty"`

	// CHECKPOINT_REQUEST
	CheckpointID  int64  `json:"checkpoint_id,omitempty"`
	CollectorHost string `json:"collector_host,omitempty"`
	CollectorPort int    `json:"collector_port,omitempty"`

	// CHECKPOINT_REPORT
	NodeID string `json:"node_id,omitempty"`
	Text   string `json:"text,omitempty"`

	// CHECKPOINT_SYNC
	CurrentPrimary string           `json:"current_primary,omitempty"`
	TxLog          []TxRecord       `json:"tx_log,omitempty"`
	StateData      map[string]int64 `json:"state_data,omitempty"`
}

func (r *Record) Addr(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}
