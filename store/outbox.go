package store

import (
	"time"
)

// OutboxMessage is an encoded protocol message waiting to be published.
// Key is the addressee (vendor or requester id) and doubles as the Kafka
// partition key, so messages to one vendor stay in order.
type OutboxMessage struct {
	ID        int64
	Topic     string
	Key       string
	MsgType   string
	Payload   []byte
	Attempts  int
	LastError string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// OutboxBacklog counts unsent messages and those given up on.
type OutboxBacklog struct {
	Pending int `json:"pending"`
	Dropped int `json:"dropped"`
}

const (
	DropExpired   = "expired"
	DropExhausted = "retries exhausted"
)

func (db *DB) EnqueueOutbox(m *OutboxMessage) error {
	id, err := db.insertID(db.DB, `INSERT INTO outbox (topic, msg_key, msg_type, payload, expires_at) VALUES (?, ?, ?, ?, ?)`,
		m.Topic, m.Key, m.MsgType, m.Payload, db.tsPtr(m.ExpiresAt))
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

// ListPendingOutbox returns unsent messages still worth delivering at now,
// oldest first.
func (db *DB) ListPendingOutbox(now time.Time, limit int) ([]*OutboxMessage, error) {
	rows, err := db.Query(db.Q(`SELECT id, topic, msg_key, msg_type, payload, attempts, last_error, expires_at, created_at
		FROM outbox
		WHERE sent_at IS NULL AND dropped_at IS NULL AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY id LIMIT ?`), db.ts(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []*OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var expiresAt, createdAt any
		if err := rows.Scan(&m.ID, &m.Topic, &m.Key, &m.MsgType, &m.Payload, &m.Attempts, &m.LastError, &expiresAt, &createdAt); err != nil {
			return nil, err
		}
		m.ExpiresAt = parseTimePtr(expiresAt)
		m.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (db *DB) MarkOutboxSent(id int64, now time.Time) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET sent_at=?, attempts=attempts+1 WHERE id=?`), db.ts(now), id)
	return err
}

// RecordOutboxFailure counts a failed publish and keeps the cause.
func (db *DB) RecordOutboxFailure(id int64, cause string) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET attempts=attempts+1, last_error=? WHERE id=?`), cause, id)
	return err
}

// DropStaleOutbox gives up on unsent messages that expired before they
// could be delivered or that failed maxAttempts times.
func (db *DB) DropStaleOutbox(now time.Time, maxAttempts int) (expired, exhausted int64, err error) {
	at := db.ts(now)
	res, err := db.Exec(db.Q(`UPDATE outbox SET dropped_at=?, drop_reason=?
		WHERE sent_at IS NULL AND dropped_at IS NULL AND expires_at IS NOT NULL AND expires_at <= ?`), at, DropExpired, at)
	if err != nil {
		return 0, 0, err
	}
	expired, _ = res.RowsAffected()

	res, err = db.Exec(db.Q(`UPDATE outbox SET dropped_at=?, drop_reason=?
		WHERE sent_at IS NULL AND dropped_at IS NULL AND attempts >= ?`), at, DropExhausted, maxAttempts)
	if err != nil {
		return expired, 0, err
	}
	exhausted, _ = res.RowsAffected()
	return expired, exhausted, nil
}

func (db *DB) CountOutbox() (OutboxBacklog, error) {
	var b OutboxBacklog
	err := db.QueryRow(`SELECT
		COALESCE(SUM(CASE WHEN sent_at IS NULL AND dropped_at IS NULL THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN dropped_at IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM outbox`).Scan(&b.Pending, &b.Dropped)
	return b, err
}
