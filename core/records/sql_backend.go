package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// DocumentName is the row holding the records document.
const DocumentName = "records"

// SQLBackend keeps the records document as one row of record_documents.
// The table is created by the database migrations in production; tests may
// call EnsureSchema instead.
type SQLBackend struct {
	db   *sqlx.DB
	name string
}

// NewSQLBackend returns a backend storing the document under DocumentName.
func NewSQLBackend(db *sqlx.DB) *SQLBackend {
	return &SQLBackend{db: db, name: DocumentName}
}

// Name identifies the backend in logs.
func (b *SQLBackend) Name() string { return "sql" }

const schemaDDL = `CREATE TABLE IF NOT EXISTS record_documents (
	name       TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// EnsureSchema creates record_documents when it does not exist.
func (b *SQLBackend) EnsureSchema(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("records: ensure schema: %w", err)
	}
	return nil
}

// Load reads the document row. No row is an empty store.
func (b *SQLBackend) Load(ctx context.Context) (Records, error) {
	var body string
	query := b.db.Rebind(`SELECT body FROM record_documents WHERE name = ?`)
	err := b.db.GetContext(ctx, &body, query, b.name)
	if errors.Is(err, sql.ErrNoRows) {
		return Records{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("records: load %s: %w", b.name, err)
	}
	return decode([]byte(body))
}

// Save upserts the whole document in one statement.
func (b *SQLBackend) Save(ctx context.Context, rs Records) error {
	body, err := encode(rs)
	if err != nil {
		return fmt.Errorf("records: encode: %w", err)
	}
	query := b.db.Rebind(`INSERT INTO record_documents (name, body, updated_at) VALUES (?, ?, ?)
ON CONFLICT (name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`)
	if _, err := b.db.ExecContext(ctx, query, b.name, string(body), time.Now().UTC()); err != nil {
		return fmt.Errorf("records: save %s: %w", b.name, err)
	}
	return nil
}
