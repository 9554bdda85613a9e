package searchindex

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
)

// pgvectorIndex reads chunks the pipeline wrote into the service's own
// Postgres instance. Ranking is cosine similarity over the stored
// embeddings, so a query vector is mandatory; the semantic flag has no
// extra meaning here.
type pgvectorIndex struct {
	db *sqlx.DB
}

func init() {
	Register("pgvector", createPgvectorIndex)
}

func createPgvectorIndex(_ interface{}, deps Deps) (Index, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("search pgvector backend: db handle is required")
	}
	return &pgvectorIndex{
		db: sqlx.NewDb(deps.DB, "postgres"),
	}, nil
}

type chunkRow struct {
	ParentID string  `db:"parent_id"`
	Content  string  `db:"content"`
	Score    float64 `db:"score"`
}

func (s *pgvectorIndex) Search(ctx context.Context, query string, vector []float32, top int, semantic bool) ([]RawHit, error) {
	_ = query
	_ = semantic
	if len(vector) == 0 {
		return nil, fmt.Errorf("pgvector backend requires a query vector")
	}
	const stmt = `
		SELECT parent_id, content, 1 - (embedding <=> $1) AS score
		FROM document_chunks
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	var rows []chunkRow
	if err := s.db.SelectContext(ctx, &rows, stmt, pgvector.NewVector(vector), top); err != nil {
		return nil, err
	}
	hits := make([]RawHit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, RawHit{
			Key:     row.ParentID,
			Content: row.Content,
			Score:   row.Score,
		})
	}
	return hits, nil
}

func (s *pgvectorIndex) MergeDocumentTags(ctx context.Context, opaqueKey string, tags Tags) (int, error) {
	const stmt = `
		UPDATE document_chunks
		SET folder_id = $1, user_id = $2, document_id = $3
		WHERE parent_id = $4
	`
	res, err := s.db.ExecContext(ctx, stmt, tags.FolderID, tags.UserID, tags.DocumentID, opaqueKey)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
