package store

import (
	"strings"
	"time"
)

type AuditEntry struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	Action     string    `json:"action"`
	OldValue   string    `json:"old_value,omitempty"`
	NewValue   string    `json:"new_value,omitempty"`
	Actor      string    `json:"actor"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditFilter narrows an audit query. Zero fields match everything.
// BeforeID pages backwards from a previous result.
type AuditFilter struct {
	EntityType string
	EntityID   int64
	Action     string
	Actor      string
	BeforeID   int64
	Limit      int
}

func (db *DB) AppendAudit(e *AuditEntry) error {
	if e.Actor == "" {
		e.Actor = "system"
	}
	id, err := db.insertID(db.DB, `INSERT INTO audit_log (entity_type, entity_id, action, old_value, new_value, actor) VALUES (?, ?, ?, ?, ?, ?)`,
		e.EntityType, e.EntityID, e.Action, e.OldValue, e.NewValue, e.Actor)
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// ListAudit returns matching entries, newest first.
func (db *DB) ListAudit(f AuditFilter) ([]*AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.EntityType != "" {
		where = append(where, "entity_type=?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != 0 {
		where = append(where, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Action != "" {
		where = append(where, "action=?")
		args = append(args, f.Action)
	}
	if f.Actor != "" {
		where = append(where, "actor=?")
		args = append(args, f.Actor)
	}
	if f.BeforeID > 0 {
		where = append(where, "id<?")
		args = append(args, f.BeforeID)
	}

	q := `SELECT id, entity_type, entity_id, action, old_value, new_value, actor, created_at FROM audit_log`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.Query(db.Q(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var createdAt any
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.OldValue, &e.NewValue, &e.Actor, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
