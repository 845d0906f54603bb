package database

// migrations are applied in order; PRAGMA user_version records how many ran
var migrations = []string{
	// 1: message journal
	`
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account TEXT NOT NULL,
    uid INTEGER NOT NULL,
    message_id TEXT,
    from_addr TEXT NOT NULL,
    from_name TEXT,
    subject TEXT,
    preview TEXT,
    verb TEXT,
    argument TEXT,
    outcome TEXT NOT NULL,
    detail TEXT,
    received_at DATETIME,
    processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_processed ON messages(processed_at);
CREATE INDEX IF NOT EXISTS idx_messages_account_uid ON messages(account, uid);
`,
}
