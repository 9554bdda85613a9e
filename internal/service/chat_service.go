package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/seelix/docqa/internal/ai"
	"github.com/seelix/docqa/internal/config"
	"github.com/seelix/docqa/internal/model"
	appErr "github.com/seelix/docqa/internal/pkg/errors"
)

var ErrAIUnavailable = ai.ErrUnavailable

const answerPrompt = `You are a document assistant. Answer the question using only the context below.
If the context does not contain the answer, say that you cannot answer from the available documents.

Context:
%s

Question: %s`

type ChatService struct {
	docs      DocumentStore
	folders   FolderStore
	retrieval *RetrievalService
	embedder  ai.IEmbedder
	generator ai.IGenerator
	markdown  goldmark.Markdown
	cache     *expirable.LRU[string, string]

	topN            int
	maxContextChars int
}

func NewChatService(docs DocumentStore, folders FolderStore, retrieval *RetrievalService, embedder ai.IEmbedder, generator ai.IGenerator, searchCfg config.SearchConfig, aiCfg config.AIConfig) *ChatService {
	return &ChatService{
		docs:            docs,
		folders:         folders,
		retrieval:       retrieval,
		embedder:        embedder,
		generator:       generator,
		markdown:        goldmark.New(),
		cache:           expirable.NewLRU[string, string](2000, nil, 30*time.Minute),
		topN:            searchCfg.TopN,
		maxContextChars: aiCfg.MaxContextChars,
	}
}

// Ask answers a question against the documents of one folder the caller owns.
func (s *ChatService) Ask(ctx context.Context, userID string, folderID int64, query string, renderHTML bool) (*model.ChatAnswer, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("user_id", userID), zap.Int64("folder_id", folderID))
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, appErr.ErrInvalid
	}
	folder, err := s.folders.Get(ctx, folderID)
	if err != nil {
		return nil, err
	}
	// Foreign folders look identical to missing ones.
	if folder.UserID != userID {
		return nil, appErr.ErrNotFound
	}

	vector, err := s.embedder.Embed(ctx, query, "RETRIEVAL_QUERY")
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: embed query: %v", appErr.ErrUpstream, err)
	}
	chunks, err := s.retrieval.SearchScoped(ctx, query, vector, []int64{folderID}, s.topN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrUpstream, err)
	}
	logger.Debug("retrieved context chunks", zap.Int("count", len(chunks)))

	contextText, retained := s.assembleContext(chunks)
	answer, err := s.generate(ctx, folderID, query, contextText)
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: generate answer: %v", appErr.ErrUpstream, err)
	}

	res := &model.ChatAnswer{
		Answer:  answer,
		Sources: s.buildSources(ctx, retained),
	}
	if renderHTML {
		var buf bytes.Buffer
		if err := s.markdown.Convert([]byte(answer), &buf); err == nil {
			res.AnswerHTML = buf.String()
		} else {
			logger.Warn("failed to render answer html", zap.Error(err))
		}
	}
	return res, nil
}

// assembleContext concatenates chunk contents under the context budget,
// dropping from the low-ranked end first. Retained chunks feed citations.
func (s *ChatService) assembleContext(chunks []*model.ScoredChunk) (string, []*model.ScoredChunk) {
	var sb strings.Builder
	retained := make([]*model.ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		piece := strings.TrimSpace(chunk.Content)
		if piece == "" {
			continue
		}
		if sb.Len() > 0 && sb.Len()+len(piece)+2 > s.maxContextChars {
			break
		}
		if sb.Len() == 0 && len(piece) > s.maxContextChars {
			piece = piece[:s.maxContextChars]
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(piece)
		retained = append(retained, chunk)
	}
	return sb.String(), retained
}

func (s *ChatService) generate(ctx context.Context, folderID int64, query, contextText string) (string, error) {
	if contextText == "" {
		contextText = "(no matching document content)"
	}
	prompt := fmt.Sprintf(answerPrompt, contextText, query)
	cacheKey := s.cacheKey(folderID, prompt)
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached, nil
	}
	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	s.cache.Add(cacheKey, answer)
	return answer, nil
}

// buildSources dedupes retained chunks per document, keeping each document's
// best score, and enriches with the stored filename when resolvable.
func (s *ChatService) buildSources(ctx context.Context, retained []*model.ScoredChunk) []model.ChatSource {
	sources := make([]model.ChatSource, 0, len(retained))
	seen := make(map[int64]int, len(retained))
	for _, chunk := range retained {
		if idx, ok := seen[chunk.DocumentID]; ok {
			if chunk.Score > sources[idx].Score {
				sources[idx].Score = chunk.Score
			}
			continue
		}
		src := model.ChatSource{
			DocumentID: chunk.DocumentID,
			Score:      chunk.Score,
		}
		if doc, err := s.docs.Get(ctx, chunk.DocumentID); err == nil {
			src.Filename = doc.OriginalFilename
		}
		seen[chunk.DocumentID] = len(sources)
		sources = append(sources, src)
	}
	return sources
}

func (s *ChatService) cacheKey(folderID int64, prompt string) string {
	hash := sha256.Sum256([]byte(prompt))
	return fmt.Sprintf("chat:%d:%s", folderID, hex.EncodeToString(hash[:]))
}
