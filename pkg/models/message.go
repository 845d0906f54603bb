package models

import "time"

// Outcomes of processing a message
const (
	OutcomeRead         = "read"         // no command in the subject
	OutcomeNoCommand    = "no_command"   // prefix present, body did not match the grammar
	OutcomeUnauthorized = "unauthorized" // sender not on the allow-list
	OutcomeDispatched   = "dispatched"
	OutcomeUnknownVerb  = "unknown_verb"
	OutcomeFailed       = "failed" // action sink returned an error
)

// MessageRecord is the journal entry for a processed message
type MessageRecord struct {
	ID          int64     `db:"id"`
	Account     string    `db:"account"`      // mailbox the message was read from
	UID         uint32    `db:"uid"`          // IMAP UID
	MessageID   string    `db:"message_id"`   // Message-ID header
	FromAddr    string    `db:"from_addr"`    // Sender email
	FromName    string    `db:"from_name"`    // Sender name
	Subject     string    `db:"subject"`      // Decoded subject
	Preview     string    `db:"preview"`      // Short plain-text preview
	Verb        string    `db:"verb"`         // Command verb, empty when none
	Argument    string    `db:"argument"`     // Command argument
	Outcome     string    `db:"outcome"`      // One of the Outcome constants
	Detail      string    `db:"detail"`       // Error text or action summary
	ReceivedAt  time.Time `db:"received_at"`  // Date header
	ProcessedAt time.Time `db:"processed_at"` // When the watcher handled it
}
