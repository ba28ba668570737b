package domain

import "time"

// Bus channels and streams.
const (
	ChannelBalances    = "govledger:balances"
	ChannelSubmissions = "govledger:submissions"
	ChannelClaims      = "govledger:claims"
	StreamSubmissions  = "govledger:submissions:log"
)

// BalancesUpdatedEvent is published once per successful refresh, and with
// Cleared set when the store is emptied.
type BalancesUpdatedEvent struct {
	AccountID string    `json:"account_id"`
	Version   uint64    `json:"version"`
	Records   int       `json:"records"`
	Cleared   bool      `json:"cleared"`
	At        time.Time `json:"at"`
}

// SubmissionEvent is published whenever a submission changes status.
type SubmissionEvent struct {
	ID        string           `json:"id"`
	AccountID string           `json:"account_id"`
	Action    ActionKind       `json:"action"`
	Status    SubmissionStatus `json:"status"`
	TxHash    string           `json:"tx_hash,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// ClaimableEvent announces that a vote or lock can now be claimed back.
type ClaimableEvent struct {
	AccountID string    `json:"account_id"`
	RecordID  string    `json:"record_id"`
	Kind      string    `json:"kind"`
	Amount    string    `json:"amount"`
	Asset     string    `json:"asset"`
	Since     time.Time `json:"since"`
}
