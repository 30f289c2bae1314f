package ledgerstore

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tecp-protocol/tecp/pkg/errcodes"
)

// Dialect abstracts the placeholder syntax and schema column types that
// differ between Postgres and SQLite; everything else about the schema
// and queries is shared.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// SQLStore implements Store over database/sql, generalizing
// core/pkg/store/ledger/sql_ledger.go's obligations table to a single
// append-only ledger_entries table keyed by sequence.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewPostgresStore wraps db (expected to use github.com/lib/pq) as a
// ledger Store.
func NewPostgresStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: DialectPostgres}
}

// NewSQLiteStore wraps db (expected to use modernc.org/sqlite) as a
// ledger Store.
func NewSQLiteStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: DialectSQLite}
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	seq BIGINT PRIMARY KEY,
	leaf TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'
);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	seq INTEGER PRIMARY KEY,
	leaf TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);
`

// Init creates ledger_entries if it does not already exist.
func (s *SQLStore) Init(ctx context.Context) error {
	schema := pgSchema
	if s.dialect == DialectSQLite {
		schema = sqliteSchema
	}
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return errcodes.Wrap(errcodes.EStoreIO, "init ledger_entries schema", err)
	}
	return nil
}

// placeholder renders the nth (1-based) bind parameter in this store's
// dialect: $1, $2, ... for Postgres, ? for SQLite.
func (s *SQLStore) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) Append(ctx context.Context, leaf [32]byte, metadata map[string]interface{}) (uint64, error) {
	leafHex := hex.EncodeToString(leaf[:])

	// Idempotent append per spec §9's pinned reference policy: if the
	// leaf is already present, return its existing seq rather than
	// erroring or inserting a duplicate. The unique constraint on leaf
	// is the concurrency backstop for the race between this check and
	// the insert below.
	if seq, err := s.FindByLeaf(ctx, leaf); err == nil {
		return seq, nil
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return 0, errcodes.Wrap(errcodes.EStoreIO, "marshal entry metadata", err)
	}

	var nextSeq uint64
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM ledger_entries"))
	if err := row.Scan(&nextSeq); err != nil {
		return 0, errcodes.Wrap(errcodes.EStoreIO, "compute next seq", err)
	}

	now := time.Now().UTC()
	query := fmt.Sprintf(
		"INSERT INTO ledger_entries (seq, leaf, created_at, metadata) VALUES (%s, %s, %s, %s)",
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4))
	if _, err := s.db.ExecContext(ctx, query, nextSeq, leafHex, now, string(metaJSON)); err != nil {
		// A unique-constraint violation here means a concurrent Append
		// won the race for this leaf; re-read its seq rather than error.
		if seq, ferr := s.FindByLeaf(ctx, leaf); ferr == nil {
			return seq, nil
		}
		return 0, errcodes.Wrap(errcodes.EStoreIO, "insert ledger entry", err)
	}
	return nextSeq, nil
}

func (s *SQLStore) Entry(ctx context.Context, seq uint64) (Entry, error) {
	query := fmt.Sprintf(
		"SELECT seq, leaf, created_at, metadata FROM ledger_entries WHERE seq = %s",
		s.placeholder(1))
	row := s.db.QueryRowContext(ctx, query, seq)
	return scanEntry(row)
}

func (s *SQLStore) FindByLeaf(ctx context.Context, leaf [32]byte) (uint64, error) {
	leafHex := hex.EncodeToString(leaf[:])
	query := fmt.Sprintf(
		"SELECT seq FROM ledger_entries WHERE leaf = %s", s.placeholder(1))
	row := s.db.QueryRowContext(ctx, query, leafHex)
	var seq uint64
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, errcodes.Wrap(errcodes.EStoreIO, "find ledger entry by leaf", err)
	}
	return seq, nil
}

func (s *SQLStore) Range(ctx context.Context, offset, limit uint64) ([]Entry, error) {
	query := fmt.Sprintf(
		"SELECT seq, leaf, created_at, metadata FROM ledger_entries WHERE seq > %s ORDER BY seq ASC",
		s.placeholder(1))
	args := []interface{}{offset}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %s", s.placeholder(2))
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errcodes.Wrap(errcodes.EStoreIO, "range ledger entries", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Entry, 0)
	for rows.Next() {
		e, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errcodes.Wrap(errcodes.EStoreIO, "range ledger entries", err)
	}
	return out, nil
}

func (s *SQLStore) Size(ctx context.Context) (uint64, error) {
	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger_entries")
	var n uint64
	if err := row.Scan(&n); err != nil {
		return 0, errcodes.Wrap(errcodes.EStoreIO, "count ledger entries", err)
	}
	return n, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		seq       uint64
		leafHex   string
		createdAt time.Time
		metaJSON  string
	)
	if err := row.Scan(&seq, &leafHex, &createdAt, &metaJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, errcodes.Wrap(errcodes.EStoreIO, "scan ledger entry", err)
	}
	return decodeEntry(seq, leafHex, createdAt, metaJSON)
}

func scanRow(rows *sql.Rows) (Entry, error) {
	var (
		seq       uint64
		leafHex   string
		createdAt time.Time
		metaJSON  string
	)
	if err := rows.Scan(&seq, &leafHex, &createdAt, &metaJSON); err != nil {
		return Entry{}, errcodes.Wrap(errcodes.EStoreIO, "scan ledger entry", err)
	}
	return decodeEntry(seq, leafHex, createdAt, metaJSON)
}

func decodeEntry(seq uint64, leafHex string, createdAt time.Time, metaJSON string) (Entry, error) {
	leafBytes, err := hex.DecodeString(leafHex)
	if err != nil || len(leafBytes) != 32 {
		return Entry{}, errcodes.Wrap(errcodes.EStoreCorrupt, "malformed leaf hex in ledger_entries", err)
	}
	var leaf [32]byte
	copy(leaf[:], leafBytes)

	var meta map[string]interface{}
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return Entry{}, errcodes.Wrap(errcodes.EStoreCorrupt, "malformed metadata json in ledger_entries", err)
	}

	return Entry{Seq: seq, Leaf: leaf, CreatedAt: createdAt, Metadata: meta}, nil
}
