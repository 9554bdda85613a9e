package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/seelix/docqa/internal/model"
)

type documentStore interface {
	ListStaleProcessing(ctx context.Context, cutoff int64, limit int) ([]model.Document, error)
	TransitionStatus(ctx context.Context, docID int64, to model.DocumentStatus, errMsg string, now int64) (bool, error)
}

// StaleProcessingSweepJob requeues documents whose indexing run died without
// finalizing: an invocation that claimed a document and then crashed leaves
// it in processing forever. Rows older than the stale age go back to pending
// so a redelivered notification or a fresh run can pick them up. Terminal
// rows are never touched.
type StaleProcessingSweepJob struct {
	docs     documentStore
	staleAge time.Duration
	batch    int
}

func NewStaleProcessingSweepJob(docs documentStore, staleAge time.Duration, batch int) *StaleProcessingSweepJob {
	return &StaleProcessingSweepJob{docs: docs, staleAge: staleAge, batch: batch}
}

func (j *StaleProcessingSweepJob) Name() string {
	return "stale_processing_sweep"
}

func (j *StaleProcessingSweepJob) Run(ctx context.Context) error {
	if j.docs == nil {
		return nil
	}
	logger := logutil.GetLogger(ctx)
	now := time.Now()
	cutoff := now.Add(-j.staleAge).UnixMilli()
	docs, err := j.docs.ListStaleProcessing(ctx, cutoff, j.batch)
	if err != nil {
		return err
	}
	requeued := 0
	for _, doc := range docs {
		applied, err := j.docs.TransitionStatus(ctx, doc.ID, model.StatusPending, "", now.UnixMilli())
		if err != nil {
			logger.Error("failed to requeue stale document", zap.Int64("document_id", doc.ID), zap.Error(err))
			continue
		}
		if applied {
			requeued++
			logger.Warn("requeued stale document",
				zap.Int64("document_id", doc.ID),
				zap.Int64("processing_since", doc.ProcessingSince),
			)
		}
	}
	if len(docs) > 0 {
		logger.Info("stale sweep done", zap.Int("scanned", len(docs)), zap.Int("requeued", requeued))
	}
	return nil
}
