package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/seelix/docqa/internal/config"
	"github.com/seelix/docqa/internal/indexer"
	"github.com/seelix/docqa/internal/model"
	"github.com/seelix/docqa/internal/pathcodec"
	appErr "github.com/seelix/docqa/internal/pkg/errors"
	"github.com/seelix/docqa/internal/searchindex"
)

// DocumentStore is the status-store surface the orchestrator needs.
// Implemented by repo.DocumentRepo; tests substitute an in-memory fake.
type DocumentStore interface {
	Get(ctx context.Context, docID int64) (*model.Document, error)
	GetByStoragePath(ctx context.Context, storagePath string) (*model.Document, error)
	TransitionStatus(ctx context.Context, docID int64, to model.DocumentStatus, errMsg string, now int64) (bool, error)
}

type FolderStore interface {
	Get(ctx context.Context, folderID int64) (*model.Folder, error)
}

var errWaitExhausted = errors.New("indexer wait exhausted")

// IngestService converges one blob-created notification to a terminal
// document status. Notifications are delivered at least once and unordered;
// every step is idempotent and no code path leaves a document un-finalized
// once this invocation claimed it.
type IngestService struct {
	docs    DocumentStore
	folders FolderStore
	indexer indexer.Client
	index   searchindex.Index

	pollInterval   time.Duration
	pollTimeout    time.Duration
	maxWait        time.Duration
	triggerRetries int
	triggerBackoff time.Duration
	mergeTags      bool

	now func() time.Time
}

func NewIngestService(docs DocumentStore, folders FolderStore, idx indexer.Client, index searchindex.Index, cfg config.IndexerConfig) *IngestService {
	return &IngestService{
		docs:           docs,
		folders:        folders,
		indexer:        idx,
		index:          index,
		pollInterval:   time.Duration(cfg.PollIntervalSeconds) * time.Second,
		pollTimeout:    30 * time.Second,
		maxWait:        time.Duration(cfg.MaxWaitSeconds) * time.Second,
		triggerRetries: cfg.TriggerMaxAttempts,
		triggerBackoff: 2 * time.Second,
		mergeTags:      cfg.MergeTags,
		now:            time.Now,
	}
}

// HandleNotification processes one storage notification end to end. A nil
// return means the event was fully handled, including the case where it was
// discarded or the document already reached a terminal state; a non-nil
// return means the store itself was unreachable and the event should be
// redelivered.
func (s *IngestService) HandleNotification(ctx context.Context, evt model.StorageEvent) error {
	logger := logutil.GetLogger(ctx).With(zap.String("subject", evt.Subject))
	if !isPDF(evt.ContentType) {
		logger.Info("skip notification: unsupported content type", zap.String("content_type", evt.ContentType))
		return nil
	}
	storagePath, ok := blobPath(evt.Subject)
	if !ok {
		logger.Info("skip notification: subject outside document container")
		return nil
	}
	doc, err := s.docs.GetByStoragePath(ctx, storagePath)
	if err != nil {
		if appErr.IsNotFound(err) {
			logger.Warn("skip notification: no document for blob", zap.String("storage_path", storagePath))
			return nil
		}
		return fmt.Errorf("lookup document by storage path: %w", err)
	}
	logger = logger.With(zap.Int64("document_id", doc.ID), zap.Int64("folder_id", doc.FolderID))

	claimed, err := s.docs.TransitionStatus(ctx, doc.ID, model.StatusProcessing, "", s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("transition to processing: %w", err)
	}
	if !claimed {
		// Duplicate delivery: either another invocation owns the document or
		// it already reached a terminal state. Both are clean no-ops.
		current, err := s.docs.Get(ctx, doc.ID)
		if err != nil {
			return fmt.Errorf("reload document: %w", err)
		}
		logger.Info("skip notification: document already claimed", zap.String("status", string(current.Status)))
		return nil
	}

	s.runPipeline(ctx, logger, doc)
	return nil
}

// runPipeline drives the external job and finalizes the document. It never
// returns an error: every outcome, including panics from collaborator
// clients, ends in a terminal status transition.
func (s *IngestService) runPipeline(ctx context.Context, logger *zap.Logger, doc *model.Document) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("ingest pipeline panic", zap.Any("panic", r))
			s.finalizeFailed(ctx, logger, doc.ID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := s.triggerWithRetry(ctx, logger); err != nil {
		s.finalizeFailed(ctx, logger, doc.ID, fmt.Sprintf("trigger indexing job: %v", err))
		return
	}

	status, err := s.awaitCompletion(ctx, logger)
	if err != nil {
		if errors.Is(err, errWaitExhausted) {
			s.finalizeFailed(ctx, logger, doc.ID, fmt.Sprintf("indexing did not complete within %s", s.maxWait))
			return
		}
		s.finalizeFailed(ctx, logger, doc.ID, fmt.Sprintf("poll indexing job: %v", err))
		return
	}
	if status.State != indexer.RunSuccess {
		detail := status.ErrorMessage
		if detail == "" {
			detail = fmt.Sprintf("indexing job reported %s", status.State)
		}
		s.finalizeFailed(ctx, logger, doc.ID, detail)
		return
	}

	if s.mergeTags {
		if err := s.mergeChunkTags(ctx, logger, doc); err != nil {
			s.finalizeFailed(ctx, logger, doc.ID, fmt.Sprintf("merge chunk tags: %v", err))
			return
		}
	}

	applied, err := s.finalize(ctx, doc.ID, model.StatusIndexed, "")
	if err != nil {
		logger.Error("failed to mark document indexed", zap.Error(err))
		return
	}
	if applied {
		logger.Info("document indexed", zap.Int("items_processed", status.ItemsProcessed))
	}
}

func (s *IngestService) triggerWithRetry(ctx context.Context, logger *zap.Logger) error {
	backoff := s.triggerBackoff
	var lastErr error
	for attempt := 1; attempt <= s.triggerRetries; attempt++ {
		err := s.indexer.TriggerRun(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		logger.Warn("trigger indexing job failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.triggerRetries),
			zap.Error(err),
		)
		if attempt == s.triggerRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("exhausted %d attempts: %w", s.triggerRetries, lastErr)
}

// awaitCompletion polls the job until it reports a terminal state or the
// total wait ceiling passes. Each poll carries its own timeout so a stuck
// status endpoint cannot hang the invocation.
func (s *IngestService) awaitCompletion(ctx context.Context, logger *zap.Logger) (*indexer.RunStatus, error) {
	deadline := s.now().Add(s.maxWait)
	for {
		pollCtx, cancel := context.WithTimeout(ctx, s.pollTimeout)
		status, err := s.indexer.Status(pollCtx)
		cancel()
		if err != nil {
			return nil, err
		}
		switch status.State {
		case indexer.RunSuccess, indexer.RunFailed, indexer.RunTransientFailure:
			return status, nil
		}
		if !s.now().Add(s.pollInterval).Before(deadline) {
			return nil, errWaitExhausted
		}
		logger.Debug("indexing job still running", zap.Duration("poll_interval", s.pollInterval))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *IngestService) mergeChunkTags(ctx context.Context, logger *zap.Logger, doc *model.Document) error {
	tags := searchindex.Tags{
		FolderID:   doc.FolderID,
		DocumentID: doc.ID,
	}
	if folder, err := s.folders.Get(ctx, doc.FolderID); err == nil {
		tags.UserID = folder.UserID
	}
	key := pathcodec.OpaqueKey(doc.StoragePath)
	merged, err := s.index.MergeDocumentTags(ctx, key, tags)
	if err != nil {
		return err
	}
	logger.Info("chunk tags merged", zap.Int("chunks", merged))
	return nil
}

func (s *IngestService) finalizeFailed(ctx context.Context, logger *zap.Logger, docID int64, detail string) {
	if len(detail) > 500 {
		detail = detail[:500]
	}
	applied, err := s.finalize(ctx, docID, model.StatusFailed, detail)
	if err != nil {
		logger.Error("failed to mark document failed", zap.Error(err), zap.String("detail", detail))
		return
	}
	if applied {
		logger.Warn("document failed", zap.String("detail", detail))
	}
}

// finalize applies a terminal transition. A lost race against an already
// terminal row is a no-op success; a lost race against a concurrent requeue
// is retried once.
func (s *IngestService) finalize(ctx context.Context, docID int64, to model.DocumentStatus, detail string) (bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		applied, err := s.docs.TransitionStatus(ctx, docID, to, detail, s.now().UnixMilli())
		if err != nil {
			return false, err
		}
		if applied {
			return true, nil
		}
		current, err := s.docs.Get(ctx, docID)
		if err != nil {
			return false, err
		}
		if current.Status.Terminal() {
			return false, nil
		}
	}
	return false, appErr.ErrConflict
}

func isPDF(contentType string) bool {
	return strings.EqualFold(strings.TrimSpace(contentType), "application/pdf")
}

// blobPath extracts the storage path from a notification subject. Subjects
// arrive either as a bare path or in the bus form
// ".../containers/<container>/blobs/<path>"; only the document container is
// accepted in the latter form.
func blobPath(subject string) (string, bool) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", false
	}
	if idx := strings.Index(subject, "/blobs/"); idx >= 0 {
		prefix := subject[:idx]
		if !strings.HasSuffix(prefix, "/containers/raw-documents") {
			return "", false
		}
		path := subject[idx+len("/blobs/"):]
		if path == "" {
			return "", false
		}
		return path, true
	}
	return strings.TrimPrefix(subject, "/"), true
}
