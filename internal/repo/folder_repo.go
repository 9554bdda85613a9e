package repo

import (
	"context"
	"database/sql"

	"github.com/seelix/docqa/internal/model"
	appErr "github.com/seelix/docqa/internal/pkg/errors"
)

type FolderRepo struct {
	db *sql.DB
}

func NewFolderRepo(db *sql.DB) *FolderRepo {
	return &FolderRepo{db: db}
}

func (r *FolderRepo) Get(ctx context.Context, folderID int64) (*model.Folder, error) {
	const query = `SELECT id, user_id, name, ctime, mtime FROM folders WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, folderID)
	var folder model.Folder
	if err := row.Scan(&folder.ID, &folder.UserID, &folder.Name, &folder.Ctime, &folder.Mtime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &folder, nil
}

func (r *FolderRepo) ListByUser(ctx context.Context, userID string) ([]model.Folder, error) {
	const query = `SELECT id, user_id, name, ctime, mtime FROM folders WHERE user_id = $1 ORDER BY ctime DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	folders := make([]model.Folder, 0)
	for rows.Next() {
		var folder model.Folder
		if err := rows.Scan(&folder.ID, &folder.UserID, &folder.Name, &folder.Ctime, &folder.Mtime); err != nil {
			return nil, err
		}
		folders = append(folders, folder)
	}
	return folders, rows.Err()
}
