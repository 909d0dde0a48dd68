package store

import (
	"time"
)

// Operator is a dispatch desk login.
type Operator struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (db *DB) CreateOperator(username, passwordHash string) (*Operator, error) {
	id, err := db.insertID(db.DB, `INSERT INTO operators (username, password_hash) VALUES (?, ?)`, username, passwordHash)
	if err != nil {
		return nil, err
	}
	return db.getOperator(`id=?`, id)
}

func (db *DB) GetOperator(username string) (*Operator, error) {
	return db.getOperator(`username=?`, username)
}

func (db *DB) getOperator(cond string, arg any) (*Operator, error) {
	var o Operator
	var lastLogin, createdAt any
	err := db.QueryRow(db.Q(`SELECT id, username, password_hash, last_login_at, created_at FROM operators WHERE `+cond), arg).
		Scan(&o.ID, &o.Username, &o.PasswordHash, &lastLogin, &createdAt)
	if err != nil {
		return nil, notFound(err)
	}
	o.LastLoginAt = parseTimePtr(lastLogin)
	o.CreatedAt = parseTime(createdAt)
	return &o, nil
}

func (db *DB) CountOperators() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM operators`).Scan(&n)
	return n, err
}

func (db *DB) SetOperatorPassword(username, passwordHash string) error {
	res, err := db.Exec(db.Q(`UPDATE operators SET password_hash=?, updated_at=`+db.dialect.now()+` WHERE username=?`), passwordHash, username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) TouchOperatorLogin(username string, now time.Time) error {
	_, err := db.Exec(db.Q(`UPDATE operators SET last_login_at=? WHERE username=?`), db.ts(now), username)
	return err
}
