// Schema for the cart key-value table.
package sqlite

// Schema DDL. Every blob lives in one row keyed by its storage key.
const (
	createKV = `CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at TEXT NOT NULL
);`
)

// schemaDDL lists all CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	createKV,
}

// Queries used by Backend.
const (
	selectBlob = `SELECT value FROM kv WHERE key = ?`
	upsertBlob = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
)
