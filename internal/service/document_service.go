package service

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/seelix/docqa/internal/filestore"
	"github.com/seelix/docqa/internal/model"
	"github.com/seelix/docqa/internal/pathcodec"
	appErr "github.com/seelix/docqa/internal/pkg/errors"
	"github.com/seelix/docqa/internal/repo"
)

// DocumentService exposes document metadata and content to folder owners.
// Uploads land in blob storage out-of-band; Register records the metadata
// row and hands back the storage path the uploader must use, which is what
// later lets a storage notification resolve to a document.
type DocumentService struct {
	docs    *repo.DocumentRepo
	folders *repo.FolderRepo
	files   filestore.Store
}

func NewDocumentService(docs *repo.DocumentRepo, folders *repo.FolderRepo, files filestore.Store) *DocumentService {
	return &DocumentService{docs: docs, folders: folders, files: files}
}

func (s *DocumentService) Register(ctx context.Context, userID string, folderID int64, filename, contentType string) (*model.Document, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, appErr.ErrInvalid
	}
	if !strings.EqualFold(strings.TrimSpace(contentType), "application/pdf") {
		return nil, appErr.ErrInvalid
	}
	if _, err := s.ownedFolder(ctx, userID, folderID); err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	doc := &model.Document{
		FolderID:         folderID,
		Filename:         pathcodec.SanitizeFilename(filename),
		OriginalFilename: filename,
		ContentType:      "application/pdf",
		Status:           model.StatusPending,
		Ctime:            now,
		Mtime:            now,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ListFolders returns the caller's folders; folder management itself lives
// with the auth collaborator.
func (s *DocumentService) ListFolders(ctx context.Context, userID string) ([]model.Folder, error) {
	return s.folders.ListByUser(ctx, userID)
}

func (s *DocumentService) Get(ctx context.Context, userID string, docID int64) (*model.Document, error) {
	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedFolder(ctx, userID, doc.FolderID); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, userID string, folderID int64, limit, offset int) ([]model.Document, error) {
	if _, err := s.ownedFolder(ctx, userID, folderID); err != nil {
		return nil, err
	}
	return s.docs.ListByFolder(ctx, folderID, limit, offset)
}

// OpenFile streams the stored PDF for a document the caller owns.
func (s *DocumentService) OpenFile(ctx context.Context, userID string, docID int64) (*model.Document, io.ReadCloser, error) {
	doc, err := s.Get(ctx, userID, docID)
	if err != nil {
		return nil, nil, err
	}
	if doc.StoragePath == "" {
		return nil, nil, appErr.ErrNotFound
	}
	rc, err := s.files.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	return doc, rc, nil
}

func (s *DocumentService) ownedFolder(ctx context.Context, userID string, folderID int64) (*model.Folder, error) {
	folder, err := s.folders.Get(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if folder.UserID != userID {
		return nil, appErr.ErrNotFound
	}
	return folder, nil
}
