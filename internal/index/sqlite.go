package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/codematch/codematch/internal/winnow"
	"github.com/codematch/codematch/pkg/types"
)

// SQLiteStore is the persistent implementation of Store, backed by
// modernc.org/sqlite. SimHash fingerprints live in one code_fingerprints
// table; winnowing postings are partitioned into 64 shard tables on disk,
// matching the logical sharded-posting design.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, ensures
// the schema exists, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create index data directory: %w", err)
			}
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping index database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	var b strings.Builder
	b.WriteString(`
CREATE TABLE IF NOT EXISTS code_orders (
	id INTEGER PRIMARY KEY,
	project_name TEXT,
	api_key TEXT,
	base_url TEXT,
	client_ip TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY,
	order_id INTEGER NOT NULL,
	path TEXT,
	content TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_documents_order ON documents(order_id);

CREATE TABLE IF NOT EXISTS code_fingerprints (
	document_id INTEGER NOT NULL,
	order_id INTEGER NOT NULL,
	fp INTEGER NOT NULL,
	band0 INTEGER NOT NULL,
	band1 INTEGER NOT NULL,
	band2 INTEGER NOT NULL,
	band3 INTEGER NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	tlsh TEXT
);
CREATE INDEX IF NOT EXISTS idx_fingerprints_band0 ON code_fingerprints(band0);
CREATE INDEX IF NOT EXISTS idx_fingerprints_band1 ON code_fingerprints(band1);
CREATE INDEX IF NOT EXISTS idx_fingerprints_band2 ON code_fingerprints(band2);
CREATE INDEX IF NOT EXISTS idx_fingerprints_band3 ON code_fingerprints(band3);
CREATE INDEX IF NOT EXISTS idx_fingerprints_doc ON code_fingerprints(document_id);

CREATE TABLE IF NOT EXISTS code_doc_stats (
	document_id INTEGER PRIMARY KEY,
	fp_count INTEGER NOT NULL,
	token_count INTEGER NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`)
	for i := 0; i < winnow.ShardCount; i++ {
		fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS code_postings_%02x (
	document_id INTEGER NOT NULL,
	order_id INTEGER NOT NULL,
	fp INTEGER NOT NULL,
	pos INTEGER NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_postings_%02x_fp_order ON code_postings_%02x(fp, order_id);
CREATE INDEX IF NOT EXISTS idx_postings_%02x_order_pos ON code_postings_%02x(order_id, pos);
CREATE INDEX IF NOT EXISTS idx_postings_%02x_doc ON code_postings_%02x(document_id);
`, i, i, i, i, i, i, i)
	}

	_, err := s.db.ExecContext(ctx, b.String())
	if err != nil {
		return fmt.Errorf("ensure index schema: %w", err)
	}
	return nil
}

func shardTable(shard int) string {
	return fmt.Sprintf("code_postings_%02x", shard)
}

func (s *SQLiteStore) PutSimHash(ctx context.Context, documentID, orderID int64, fps []types.SimHashFingerprint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM code_fingerprints WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete existing fingerprints: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO code_fingerprints
		(document_id, order_id, fp, band0, band1, band2, band3, start_line, end_line, tlsh)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, fp := range fps {
		if _, err := stmt.ExecContext(ctx, documentID, orderID, int64(fp.Fingerprint),
			fp.Parts[0], fp.Parts[1], fp.Parts[2], fp.Parts[3], fp.StartLine, fp.EndLine, fp.TLSH); err != nil {
			return fmt.Errorf("insert fingerprint: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) RecallBand(ctx context.Context, bandIndex int, bandValue uint16, excludeOrderIDs []int64) ([]types.SimHashFingerprint, error) {
	col := fmt.Sprintf("band%d", bandIndex)
	query := fmt.Sprintf(`SELECT document_id, order_id, fp, band0, band1, band2, band3, start_line, end_line, COALESCE(tlsh, '')
		FROM code_fingerprints WHERE %s = ?`, col)
	args := []any{bandValue}
	query, args = appendExclusion(query, args, "order_id", excludeOrderIDs)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.SimHashFingerprint
	for rows.Next() {
		var fp types.SimHashFingerprint
		var rawFP int64
		if err := rows.Scan(&fp.DocumentID, &fp.OrderID, &rawFP,
			&fp.Parts[0], &fp.Parts[1], &fp.Parts[2], &fp.Parts[3], &fp.StartLine, &fp.EndLine, &fp.TLSH); err != nil {
			return nil, err
		}
		fp.Fingerprint = uint64(rawFP)
		out = append(out, fp)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PutWinnow(ctx context.Context, documentID, orderID int64, postings []types.WinnowPosting) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	byShard := make(map[int][]types.WinnowPosting)
	for _, p := range postings {
		shard := winnow.Shard(p.Fingerprint)
		byShard[shard] = append(byShard[shard], p)
	}

	for shard := 0; shard < winnow.ShardCount; shard++ {
		table := shardTable(shard)
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = ?`, table), documentID); err != nil {
			return fmt.Errorf("delete existing postings in %s: %w", table, err)
		}
		list := byShard[shard]
		if len(list) == 0 {
			continue
		}
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s
			(document_id, order_id, fp, pos, start_line, end_line) VALUES (?, ?, ?, ?, ?, ?)`, table))
		if err != nil {
			return err
		}
		for _, p := range list {
			if _, err := stmt.ExecContext(ctx, documentID, orderID, p.Fingerprint, p.Pos, p.StartLine, p.EndLine); err != nil {
				stmt.Close()
				return fmt.Errorf("insert posting into %s: %w", table, err)
			}
		}
		stmt.Close()
	}

	return tx.Commit()
}

func (s *SQLiteStore) RecallShard(ctx context.Context, shard int, fps []int64, excludeOrderIDs []int64) ([]types.WinnowPosting, error) {
	if len(fps) == 0 {
		return nil, nil
	}
	table := shardTable(shard)
	placeholders := make([]string, len(fps))
	args := make([]any, 0, len(fps)+len(excludeOrderIDs))
	for i, fp := range fps {
		placeholders[i] = "?"
		args = append(args, fp)
	}
	query := fmt.Sprintf(`SELECT document_id, order_id, fp, pos, start_line, end_line FROM %s WHERE fp IN (%s)`,
		table, strings.Join(placeholders, ","))
	query, args = appendExclusion(query, args, "order_id", excludeOrderIDs)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.WinnowPosting
	for rows.Next() {
		var p types.WinnowPosting
		if err := rows.Scan(&p.DocumentID, &p.OrderID, &p.Fingerprint, &p.Pos, &p.StartLine, &p.EndLine); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, documentID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM code_fingerprints WHERE document_id = ?`, documentID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM code_doc_stats WHERE document_id = ?`, documentID); err != nil {
		return err
	}
	for shard := 0; shard < winnow.ShardCount; shard++ {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = ?`, shardTable(shard)), documentID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteOrder(ctx context.Context, orderID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM code_doc_stats WHERE document_id IN (SELECT document_id FROM code_fingerprints WHERE order_id = ?)`, orderID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM code_fingerprints WHERE order_id = ?`, orderID); err != nil {
		return err
	}
	for shard := 0; shard < winnow.ShardCount; shard++ {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM code_doc_stats WHERE document_id IN (SELECT document_id FROM %s WHERE order_id = ?)`, shardTable(shard)), orderID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE order_id = ?`, shardTable(shard)), orderID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) HasDocument(ctx context.Context, documentID int64) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM code_fingerprints WHERE document_id = ?)`, documentID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}

func (s *SQLiteStore) MaxIndexedDocumentID(ctx context.Context) (int64, bool, error) {
	var max sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(document_id) FROM code_doc_stats`).Scan(&max); err != nil {
		return 0, false, err
	}
	if !max.Valid {
		return 0, false, nil
	}
	return max.Int64, true, nil
}

func (s *SQLiteStore) PutDocStat(ctx context.Context, stat types.DocStat) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO code_doc_stats (document_id, fp_count, token_count, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(document_id) DO UPDATE SET fp_count = excluded.fp_count, token_count = excluded.token_count, updated_at = CURRENT_TIMESTAMP`,
		stat.DocumentID, stat.FPCount, stat.TokenCount)
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// appendExclusion adds `AND col NOT IN (...)` to query when ids is
// non-empty, returning the updated query and argument list.
func appendExclusion(query string, args []any, col string, ids []int64) (string, []any) {
	if len(ids) == 0 {
		return query, args
	}
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	return query + fmt.Sprintf(" AND %s NOT IN (%s)", col, strings.Join(placeholders, ",")), args
}

var _ Store = (*SQLiteStore)(nil)
