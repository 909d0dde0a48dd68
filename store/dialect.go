package store

import (
	"strconv"
	"strings"
	"time"
)

// Queries are written once in SQLite form with ? placeholders and the
// sqliteNow clock expression; a dialect adapts them to its engine.
type dialect interface {
	rebind(query string) string
	now() string
	timestamp(t time.Time) any
	timestampType() string
	floatType() string
	// returning reports whether new ids come back via RETURNING id
	// rather than LastInsertId.
	returning() bool
}

const (
	// sqliteNow renders UTC in sqliteTimeLayout so database-stamped columns
	// parse the same way as values written through timestamp.
	sqliteNow = "strftime('%Y-%m-%d %H:%M:%f','now')"
	// sqliteTimeLayout is fixed width so text comparison orders by time.
	sqliteTimeLayout = "2006-01-02 15:04:05.000"
)

type sqliteDialect struct{}

func (sqliteDialect) rebind(query string) string { return query }
func (sqliteDialect) now() string                { return sqliteNow }
func (sqliteDialect) timestamp(t time.Time) any  { return t.UTC().Format(sqliteTimeLayout) }
func (sqliteDialect) timestampType() string      { return "TEXT" }
func (sqliteDialect) floatType() string          { return "REAL" }
func (sqliteDialect) returning() bool            { return false }

type postgresDialect struct{}

func (postgresDialect) now() string               { return "NOW()" }
func (postgresDialect) timestamp(t time.Time) any { return t.UTC() }
func (postgresDialect) timestampType() string     { return "TIMESTAMPTZ" }
func (postgresDialect) floatType() string         { return "DOUBLE PRECISION" }
func (postgresDialect) returning() bool           { return true }

// rebind numbers the placeholders ($1, $2, ...) and swaps the SQLite
// clock expression for NOW(). A ? inside a string literal is left alone.
func (postgresDialect) rebind(query string) string {
	query = strings.ReplaceAll(query, sqliteNow, "NOW()")
	var b strings.Builder
	b.Grow(len(query) + 8)
	n, quoted := 0, false
	for _, r := range query {
		switch {
		case r == '\'':
			quoted = !quoted
		case r == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var scanLayouts = []string{
	sqliteTimeLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999-07:00",
}

// parseTime accepts what either driver hands back for a timestamp column:
// time.Time from pgx, text from SQLite. Unparseable values become zero.
func parseTime(v any) time.Time {
	var s string
	switch t := v.(type) {
	case time.Time:
		return t
	case []byte:
		s = string(t)
	case string:
		s = t
	default:
		return time.Time{}
	}
	for _, layout := range scanLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func parseTimePtr(v any) *time.Time {
	if t := parseTime(v); !t.IsZero() {
		return &t
	}
	return nil
}
