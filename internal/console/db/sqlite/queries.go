package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trellisgw/trellis/internal/console/db"
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// executor abstracts *sql.DB and *sql.Tx for shared query logic.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	exec executor
}

var _ db.Queries = (*queries)(nil)

func (q *queries) Documents() db.DocumentRepository {
	return &documentRepository{exec: q.exec}
}

func (q *queries) Revisions() db.RevisionRepository {
	return &revisionRepository{exec: q.exec}
}

type documentRepository struct {
	exec executor
}

var _ db.DocumentRepository = (*documentRepository)(nil)

func (r *documentRepository) Get(ctx context.Context) (*db.DocumentRecord, error) {
	row := r.exec.QueryRowContext(ctx, `SELECT payload, revision, updated_at FROM documents WHERE id = 1;`)

	var rec db.DocumentRecord
	var updated any
	if err := row.Scan(&rec.Payload, &rec.Revision, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select document: %w", err)
	}
	rec.Payload = append([]byte(nil), rec.Payload...)
	rec.UpdatedAt, _ = parseTimeField(updated)
	return &rec, nil
}

func (r *documentRepository) Put(ctx context.Context, rec db.DocumentRecord) error {
	if _, err := r.exec.ExecContext(ctx, `INSERT INTO documents (id, payload, revision, updated_at)
        VALUES (1, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, revision = excluded.revision, updated_at = CURRENT_TIMESTAMP;`,
		rec.Payload, rec.Revision); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

type revisionRepository struct {
	exec executor
}

var _ db.RevisionRepository = (*revisionRepository)(nil)

func (r *revisionRepository) Append(ctx context.Context, rec db.RevisionRecord) (int64, error) {
	res, err := r.exec.ExecContext(ctx, `INSERT INTO document_revisions (revision, payload, summary) VALUES (?, ?, ?);`,
		rec.Revision, rec.Payload, rec.Summary)
	if err != nil {
		return 0, fmt.Errorf("insert revision: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("revision last insert id: %w", err)
	}
	return id, nil
}

func (r *revisionRepository) List(ctx context.Context, limit int) ([]db.RevisionRecord, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := r.exec.QueryContext(ctx, `SELECT id, revision, payload, summary, created_at FROM document_revisions ORDER BY id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	var result []db.RevisionRecord
	for rows.Next() {
		rec, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return result, nil
}

func (r *revisionRepository) Get(ctx context.Context, revision string) (*db.RevisionRecord, error) {
	row := r.exec.QueryRowContext(ctx, `SELECT id, revision, payload, summary, created_at FROM document_revisions WHERE revision = ?;`, revision)
	rec, err := scanRevision(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *revisionRepository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := r.exec.ExecContext(ctx, `DELETE FROM document_revisions WHERE id NOT IN (
        SELECT id FROM document_revisions ORDER BY id DESC LIMIT ?);`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune revisions: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRevision(row rowScanner) (db.RevisionRecord, error) {
	var rec db.RevisionRecord
	var created any
	if err := row.Scan(&rec.ID, &rec.Revision, &rec.Payload, &rec.Summary, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return db.RevisionRecord{}, sql.ErrNoRows
		}
		return db.RevisionRecord{}, fmt.Errorf("scan revision: %w", err)
	}
	rec.Payload = append([]byte(nil), rec.Payload...)
	rec.CreatedAt, _ = parseTimeField(created)
	return rec, nil
}

func parseTimeField(value any) (time.Time, error) {
	if value == nil {
		return time.Time{}, fmt.Errorf("time field nil")
	}
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
	case []byte:
		str := string(v)
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, str); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time value %T", value)
}
