package searchindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/seelix/docqa/internal/config"
)

// RawHit is one unfiltered result from the external index. Key is the opaque
// composite key the pipeline attaches to every chunk; tenant identity must be
// recovered from it by the caller.
type RawHit struct {
	Key     string
	Content string
	Score   float64
}

// Tags is the side-channel metadata merged into chunks after indexing. The
// pipeline itself discards custom attributes, so this is best-effort
// bookkeeping, never the isolation mechanism.
type Tags struct {
	FolderID   int64
	UserID     string
	DocumentID int64
}

type Index interface {
	// Search returns the raw ranked hits for a query. vector is the
	// caller-computed query embedding; backends that rank by text alone may
	// ignore it, vector-only backends require it.
	Search(ctx context.Context, query string, vector []float32, top int, semantic bool) ([]RawHit, error)
	MergeDocumentTags(ctx context.Context, opaqueKey string, tags Tags) (int, error)
}

// Deps carries the shared handles a backend may need; unused fields are nil
// for backends that do not need them.
type Deps struct {
	DB *sql.DB
}

type Factory func(args interface{}, deps Deps) (Index, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.SearchConfig, deps Deps) (Index, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if key == "" {
		return nil, fmt.Errorf("search.backend is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported search backend: %s", cfg.Backend)
	}
	return factory(cfg.Data, deps)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("search backend config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode search backend config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode search backend config: %w", err)
	}
	return nil
}
