package model

// Operation names, as recorded in the journal.
const (
	OpFundOneSide     = "fund_one_side"
	OpRemoveSelective = "remove_selective"
	OpRemoveAll       = "remove_all"
	OpClose           = "close"
)

// Operation statuses.
const (
	StatusLanded   = "landed"
	StatusDryRun   = "dry_run"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// OperationRecord is one journaled hand-off attempt.
type OperationRecord struct {
	ID         string  `json:"id"`
	Operation  string  `json:"operation"`
	Position   string  `json:"position"`
	LbPair     string  `json:"lb_pair"`
	Owner      string  `json:"owner"`
	Side       string  `json:"side,omitempty"`
	Amount     uint64  `json:"amount,omitempty"`
	BinIDs     []int32 `json:"bin_ids,omitempty"`
	LowerShard int64   `json:"lower_shard"`
	UpperShard int64   `json:"upper_shard"`
	FromState  string  `json:"from_state"`
	ToState    string  `json:"to_state"`
	Signature  string  `json:"signature,omitempty"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
	CreatedAt  string  `json:"created_at"`
}
