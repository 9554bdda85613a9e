package service

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/seelix/docqa/internal/config"
	"github.com/seelix/docqa/internal/model"
	"github.com/seelix/docqa/internal/pathcodec"
	"github.com/seelix/docqa/internal/searchindex"
)

// RetrievalService narrows raw index hits to the caller's folders. The index
// carries no trustworthy scope field, so scope is reconstructed from each
// hit's opaque key and anything undecodable is dropped. Filtering happens
// after a single over-fetched query; a short post-filter result is returned
// as-is rather than re-queried.
type RetrievalService struct {
	index     searchindex.Index
	overFetch int
	semantic  bool
}

func NewRetrievalService(index searchindex.Index, cfg config.SearchConfig) *RetrievalService {
	return &RetrievalService{
		index:     index,
		overFetch: cfg.OverFetch,
		semantic:  cfg.Semantic,
	}
}

// SearchScoped returns at most topN chunks belonging to the given folders,
// in index ranking order.
func (s *RetrievalService) SearchScoped(ctx context.Context, query string, vector []float32, folderIDs []int64, topN int) ([]*model.ScoredChunk, error) {
	if topN <= 0 {
		return nil, nil
	}
	allowed := make(map[int64]struct{}, len(folderIDs))
	for _, id := range folderIDs {
		allowed[id] = struct{}{}
	}
	hits, err := s.index.Search(ctx, query, vector, topN*s.overFetch, s.semantic)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	logger := logutil.GetLogger(ctx)
	out := make([]*model.ScoredChunk, 0, topN)
	dropped := 0
	for _, hit := range hits {
		ref, ok := pathcodec.Decode(hit.Key)
		if !ok {
			dropped++
			continue
		}
		if _, ok := allowed[ref.FolderID]; !ok {
			continue
		}
		out = append(out, &model.ScoredChunk{
			Key:        hit.Key,
			FolderID:   ref.FolderID,
			DocumentID: ref.DocumentID,
			Content:    hit.Content,
			Score:      hit.Score,
		})
		if len(out) == topN {
			break
		}
	}
	if dropped > 0 {
		logger.Warn("dropped hits with undecodable keys", zap.Int("dropped", dropped), zap.Int("total", len(hits)))
	}
	return out, nil
}
