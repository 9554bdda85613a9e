package repo

import (
	"context"
	"database/sql"

	"github.com/seelix/docqa/internal/model"
	"github.com/seelix/docqa/internal/pathcodec"
	"github.com/seelix/docqa/internal/pkg/dbutil"
	appErr "github.com/seelix/docqa/internal/pkg/errors"
)

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

const documentColumns = `id, folder_id, filename, original_filename, storage_path, content_type, status, error_message, processing_since, ctime, mtime`

// Create inserts the document and derives its storage path from the
// generated id, filling doc.ID and doc.StoragePath on success. The path is
// written in a second statement inside the same transaction because it
// embeds the id.
func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	const insertQuery = `
		INSERT INTO documents (folder_id, filename, original_filename, storage_path, content_type, status, error_message, processing_since, ctime, mtime)
		VALUES ($1, $2, $3, '', $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	var id int64
	err = tx.QueryRowContext(ctx, insertQuery,
		doc.FolderID,
		doc.Filename,
		doc.OriginalFilename,
		doc.ContentType,
		string(doc.Status),
		doc.ErrorMessage,
		doc.ProcessingSince,
		doc.Ctime,
		doc.Mtime,
	).Scan(&id)
	if err != nil {
		return err
	}
	storagePath := pathcodec.Encode(doc.FolderID, id, doc.Filename)
	const pathQuery = `UPDATE documents SET storage_path = $1 WHERE id = $2`
	if _, err := tx.ExecContext(ctx, pathQuery, storagePath, id); err != nil {
		if dbutil.IsUniqueViolation(err) {
			return appErr.ErrConflict
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	doc.ID = id
	doc.StoragePath = storagePath
	return nil
}

func (r *DocumentRepo) Get(ctx context.Context, docID int64) (*model.Document, error) {
	const query = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, docID))
}

func (r *DocumentRepo) GetByStoragePath(ctx context.Context, storagePath string) (*model.Document, error) {
	const query = `SELECT ` + documentColumns + ` FROM documents WHERE storage_path = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, storagePath))
}

func (r *DocumentRepo) ListByFolder(ctx context.Context, folderID int64, limit, offset int) ([]model.Document, error) {
	const query = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE folder_id = $1
		ORDER BY ctime DESC
		LIMIT $2 OFFSET $3
	`
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, query, folderID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// TransitionStatus applies one state-machine edge as a compare-and-swap: the
// allowed source states are part of the WHERE clause, so two concurrent
// callers for the same document cannot double-apply a transition. Returns
// whether the update took effect.
func (r *DocumentRepo) TransitionStatus(ctx context.Context, docID int64, to model.DocumentStatus, errMsg string, now int64) (bool, error) {
	var query string
	var args []interface{}
	switch to {
	case model.StatusProcessing:
		query = `
			UPDATE documents
			SET status = 'processing', processing_since = $1, mtime = $2
			WHERE id = $3 AND status = 'pending'
		`
		args = []interface{}{now, now, docID}
	case model.StatusIndexed:
		query = `
			UPDATE documents
			SET status = 'indexed', error_message = '', processing_since = 0, mtime = $1
			WHERE id = $2 AND status IN ('pending', 'processing')
		`
		args = []interface{}{now, docID}
	case model.StatusFailed:
		query = `
			UPDATE documents
			SET status = 'failed', error_message = $1, processing_since = 0, mtime = $2
			WHERE id = $3 AND status IN ('pending', 'processing')
		`
		args = []interface{}{errMsg, now, docID}
	case model.StatusPending:
		// Requeue: only non-terminal processing rows may go back.
		query = `
			UPDATE documents
			SET status = 'pending', error_message = '', processing_since = 0, mtime = $1
			WHERE id = $2 AND status = 'processing'
		`
		args = []interface{}{now, docID}
	default:
		return false, appErr.ErrInvalid
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListStaleProcessing returns documents stuck in processing since before the
// cutoff, oldest first. Used by the reconciliation sweep.
func (r *DocumentRepo) ListStaleProcessing(ctx context.Context, cutoff int64, limit int) ([]model.Document, error) {
	const query = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE status = 'processing' AND processing_since > 0 AND processing_since < $1
		ORDER BY processing_since ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *DocumentRepo) scanOne(row *sql.Row) (*model.Document, error) {
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	return doc, err
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var doc model.Document
	var status string
	if err := row.Scan(
		&doc.ID,
		&doc.FolderID,
		&doc.Filename,
		&doc.OriginalFilename,
		&doc.StoragePath,
		&doc.ContentType,
		&status,
		&doc.ErrorMessage,
		&doc.ProcessingSince,
		&doc.Ctime,
		&doc.Mtime,
	); err != nil {
		return nil, err
	}
	doc.Status = model.DocumentStatus(status)
	return &doc, nil
}
