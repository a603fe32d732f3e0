package docstore

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// persistence mirrors the in-memory record set to a local SQLite database so
// documents and their embeddings survive restarts.
type persistence struct {
	db *sql.DB
}

// DefaultDBPath returns the default knowledge database path. It resolves to
// ~/.recall/knowledge.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("docstore: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".recall")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("docstore: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "knowledge.db"), nil
}

// openPersistence opens (or creates) the database at path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func openPersistence(path string) (*persistence, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	p := &persistence{db: db}
	if err := p.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// migrate creates the schema if it does not already exist.
func (p *persistence) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    id           TEXT PRIMARY KEY,
    title        TEXT    NOT NULL,
    content      TEXT    NOT NULL,
    fields       TEXT    NOT NULL DEFAULT '{}',
    title_vec    BLOB,
    content_vec  BLOB,
    updated_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
`
	if _, err := p.db.Exec(ddl); err != nil {
		return fmt.Errorf("docstore: migrate: %w", err)
	}
	return nil
}

// save upserts a single record.
func (p *persistence) save(r *record) error {
	fields, err := json.Marshal(r.doc.Fields)
	if err != nil {
		return fmt.Errorf("docstore: encode fields for %q: %w", r.doc.ID, err)
	}
	const q = `
INSERT INTO documents (id, title, content, fields, title_vec, content_vec, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    title = excluded.title, content = excluded.content, fields = excluded.fields,
    title_vec = excluded.title_vec, content_vec = excluded.content_vec,
    updated_at = excluded.updated_at`
	_, err = p.db.Exec(q, r.doc.ID, r.doc.Title, r.doc.Content, string(fields),
		encodeVector(r.titleVec), encodeVector(r.contentVec), r.doc.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("docstore: save %q: %w", r.doc.ID, err)
	}
	return nil
}

// remove deletes a record by ID.
func (p *persistence) remove(id string) error {
	if _, err := p.db.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("docstore: remove %q: %w", id, err)
	}
	return nil
}

// loadAll reads every persisted record back into memory.
func (p *persistence) loadAll() ([]*record, error) {
	rows, err := p.db.Query(`SELECT id, title, content, fields, title_vec, content_vec, updated_at FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("docstore: load: %w", err)
	}
	defer rows.Close()

	var recs []*record
	for rows.Next() {
		var (
			r       record
			fields  string
			tvec    []byte
			cvec    []byte
			updated int64
		)
		if err := rows.Scan(&r.doc.ID, &r.doc.Title, &r.doc.Content, &fields, &tvec, &cvec, &updated); err != nil {
			return nil, fmt.Errorf("docstore: load scan: %w", err)
		}
		if err := json.Unmarshal([]byte(fields), &r.doc.Fields); err != nil {
			return nil, fmt.Errorf("docstore: decode fields for %q: %w", r.doc.ID, err)
		}
		r.titleVec = decodeVector(tvec)
		r.contentVec = decodeVector(cvec)
		r.doc.UpdatedAt = time.Unix(updated, 0)
		recs = append(recs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docstore: load rows: %w", err)
	}
	return recs, nil
}

// Close releases the database connection pool.
func (p *persistence) Close() error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("docstore: close: %w", err)
	}
	return nil
}

// encodeVector packs a vector as little-endian float32 bytes. A nil vector
// encodes as nil so NULL round-trips.
func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}
