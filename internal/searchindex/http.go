package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const searchAPIVersion = "2024-07-01"

type httpConfig struct {
	Endpoint       string `json:"endpoint"`
	IndexName      string `json:"index_name"`
	APIKey         string `json:"api_key"`
	SemanticConfig string `json:"semantic_config"`
	VectorField    string `json:"vector_field"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// httpIndex talks to a hosted search service over its REST documents API.
type httpIndex struct {
	endpoint       string
	indexName      string
	apiKey         string
	semanticConfig string
	vectorField    string
	client         *http.Client
}

func init() {
	Register("http", createHTTPIndex)
}

func createHTTPIndex(args interface{}, _ Deps) (Index, error) {
	cfg := &httpConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Endpoint == "" || cfg.IndexName == "" {
		return nil, fmt.Errorf("search http backend: endpoint and index_name are required")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.VectorField == "" {
		cfg.VectorField = "text_vector"
	}
	return &httpIndex{
		endpoint:       strings.TrimSuffix(cfg.Endpoint, "/"),
		indexName:      cfg.IndexName,
		apiKey:         cfg.APIKey,
		semanticConfig: cfg.SemanticConfig,
		vectorField:    cfg.VectorField,
		client:         &http.Client{Timeout: timeout},
	}, nil
}

type searchRequest struct {
	Search         string        `json:"search"`
	Top            int           `json:"top"`
	Select         string        `json:"select"`
	QueryType      string        `json:"queryType,omitempty"`
	SemanticConfig string        `json:"semanticConfiguration,omitempty"`
	VectorQueries  []vectorQuery `json:"vectorQueries,omitempty"`
}

type vectorQuery struct {
	Kind   string    `json:"kind"`
	Vector []float32 `json:"vector"`
	Fields string    `json:"fields"`
	K      int       `json:"k"`
}

type searchResultDoc struct {
	ChunkID  string  `json:"chunk_id"`
	ParentID string  `json:"parent_id"`
	Content  string  `json:"chunk_content"`
	Score    float64 `json:"@search.score"`
}

type searchResponse struct {
	Value []searchResultDoc `json:"value"`
}

func (s *httpIndex) Search(ctx context.Context, query string, vector []float32, top int, semantic bool) ([]RawHit, error) {
	req := searchRequest{
		Search: query,
		Top:    top,
		Select: "chunk_id, parent_id, chunk_content",
	}
	if semantic && s.semanticConfig != "" {
		req.QueryType = "semantic"
		req.SemanticConfig = s.semanticConfig
	}
	if len(vector) > 0 {
		req.VectorQueries = []vectorQuery{{
			Kind:   "vector",
			Vector: vector,
			Fields: s.vectorField,
			K:      top,
		}}
	}
	var resp searchResponse
	if err := s.post(ctx, s.docsURL("search"), req, &resp); err != nil {
		return nil, err
	}
	hits := make([]RawHit, 0, len(resp.Value))
	for _, doc := range resp.Value {
		hits = append(hits, RawHit{
			Key:     doc.ParentID,
			Content: doc.Content,
			Score:   doc.Score,
		})
	}
	return hits, nil
}

func (s *httpIndex) MergeDocumentTags(ctx context.Context, opaqueKey string, tags Tags) (int, error) {
	chunkIDs, err := s.listChunkIDs(ctx, opaqueKey)
	if err != nil {
		return 0, err
	}
	if len(chunkIDs) == 0 {
		return 0, nil
	}
	actions := make([]map[string]interface{}, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		actions = append(actions, map[string]interface{}{
			"@search.action": "merge",
			"chunk_id":       id,
			"folder_id":      fmt.Sprintf("%d", tags.FolderID),
			"user_id":        tags.UserID,
			"document_id":    fmt.Sprintf("%d", tags.DocumentID),
		})
	}
	var result struct {
		Value []struct {
			Status bool `json:"status"`
		} `json:"value"`
	}
	if err := s.post(ctx, s.docsURL("index"), map[string]interface{}{"value": actions}, &result); err != nil {
		return 0, err
	}
	merged := 0
	for _, item := range result.Value {
		if item.Status {
			merged++
		}
	}
	return merged, nil
}

func (s *httpIndex) listChunkIDs(ctx context.Context, opaqueKey string) ([]string, error) {
	req := searchRequest{
		Search: fmt.Sprintf("parent_id:'%s'", opaqueKey),
		Top:    1000,
		Select: "chunk_id",
	}
	var resp searchResponse
	if err := s.post(ctx, s.docsURL("search"), req, &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Value))
	for _, doc := range resp.Value {
		ids = append(ids, doc.ChunkID)
	}
	return ids, nil
}

func (s *httpIndex) docsURL(action string) string {
	return fmt.Sprintf("%s/indexes/%s/docs/%s?api-version=%s", s.endpoint, s.indexName, action, searchAPIVersion)
}

func (s *httpIndex) post(ctx context.Context, url string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("search request failed: status=%d body=%s", resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
