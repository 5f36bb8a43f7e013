package builder

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codematch/codematch/pkg/types"
)

// SQLiteDocumentSource streams documents from a "documents" table in
// ascending id order, the external document store the rebuild CLI reads
// from. It is a minimal concrete stand-in for the document lifecycle the
// specification treats as an external collaborator.
type SQLiteDocumentSource struct {
	db      *sql.DB
	from    int64
	batch   int
	buf     []types.Document
	pos     int
	cursor  int64
	done    bool
}

// NewSQLiteDocumentSource streams documents with id >= from, batchSize rows
// per underlying query.
func NewSQLiteDocumentSource(db *sql.DB, from int64, batchSize int) *SQLiteDocumentSource {
	if batchSize <= 0 {
		batchSize = 300
	}
	return &SQLiteDocumentSource{db: db, from: from, batch: batchSize, cursor: from}
}

// Next implements builder.DocumentIterator.
func (s *SQLiteDocumentSource) Next(ctx context.Context) (types.Document, bool, error) {
	if s.pos >= len(s.buf) {
		if s.done {
			return types.Document{}, false, nil
		}
		if err := s.fill(ctx); err != nil {
			return types.Document{}, false, err
		}
		if len(s.buf) == 0 {
			s.done = true
			return types.Document{}, false, nil
		}
	}
	doc := s.buf[s.pos]
	s.pos++
	s.cursor = doc.ID + 1
	return doc, true, nil
}

func (s *SQLiteDocumentSource) fill(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, path, content, created_at FROM documents WHERE id >= ? ORDER BY id ASC LIMIT ?`,
		s.cursor, s.batch)
	if err != nil {
		return fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	s.buf = s.buf[:0]
	s.pos = 0
	for rows.Next() {
		var d types.Document
		if err := rows.Scan(&d.ID, &d.OrderID, &d.Path, &d.Content, &d.CreatedAt); err != nil {
			return fmt.Errorf("scan document row: %w", err)
		}
		s.buf = append(s.buf, d)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate document rows: %w", err)
	}
	if len(s.buf) < s.batch {
		s.done = true
	}
	return nil
}
