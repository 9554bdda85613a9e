package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seelix/docqa/internal/indexer"
	"github.com/seelix/docqa/internal/model"
	appErr "github.com/seelix/docqa/internal/pkg/errors"
	"github.com/seelix/docqa/internal/searchindex"
)

type fakeDocStore struct {
	mu   sync.Mutex
	docs map[int64]*model.Document
}

func newFakeDocStore(docs ...*model.Document) *fakeDocStore {
	s := &fakeDocStore{docs: make(map[int64]*model.Document)}
	for _, doc := range docs {
		clone := *doc
		s.docs[doc.ID] = &clone
	}
	return s
}

func (s *fakeDocStore) Get(ctx context.Context, docID int64) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	clone := *doc
	return &clone, nil
}

func (s *fakeDocStore) GetByStoragePath(ctx context.Context, storagePath string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.docs {
		if doc.StoragePath == storagePath {
			clone := *doc
			return &clone, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (s *fakeDocStore) TransitionStatus(ctx context.Context, docID int64, to model.DocumentStatus, errMsg string, now int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docID]
	if !ok {
		return false, nil
	}
	allowed := map[model.DocumentStatus][]model.DocumentStatus{
		model.StatusProcessing: {model.StatusPending},
		model.StatusIndexed:    {model.StatusPending, model.StatusProcessing},
		model.StatusFailed:     {model.StatusPending, model.StatusProcessing},
		model.StatusPending:    {model.StatusProcessing},
	}
	for _, from := range allowed[to] {
		if doc.Status == from {
			doc.Status = to
			doc.ErrorMessage = errMsg
			if to == model.StatusProcessing {
				doc.ProcessingSince = now
			} else {
				doc.ProcessingSince = 0
			}
			doc.Mtime = now
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeDocStore) status(docID int64) model.DocumentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[docID].Status
}

func (s *fakeDocStore) errorMessage(docID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[docID].ErrorMessage
}

type fakeFolderStore struct {
	folders map[int64]*model.Folder
}

func (s *fakeFolderStore) Get(ctx context.Context, folderID int64) (*model.Folder, error) {
	folder, ok := s.folders[folderID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return folder, nil
}

type fakeIndexerClient struct {
	mu           sync.Mutex
	triggerErrs  []error
	triggerCalls int
	statuses     []indexer.RunStatus
	statusCalls  int
}

func (c *fakeIndexerClient) TriggerRun(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.triggerCalls++
	if len(c.triggerErrs) > 0 {
		err := c.triggerErrs[0]
		c.triggerErrs = c.triggerErrs[1:]
		return err
	}
	return nil
}

func (c *fakeIndexerClient) Status(ctx context.Context) (*indexer.RunStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCalls++
	if len(c.statuses) == 0 {
		return &indexer.RunStatus{State: indexer.RunInProgress}, nil
	}
	status := c.statuses[0]
	if len(c.statuses) > 1 {
		c.statuses = c.statuses[1:]
	}
	return &status, nil
}

type fakeIndex struct {
	mu         sync.Mutex
	hits       []searchindex.RawHit
	searchErr  error
	mergeKeys  []string
	mergeTags  []searchindex.Tags
	mergeErr   error
	mergeCount int
}

func (f *fakeIndex) Search(ctx context.Context, query string, vector []float32, top int, semantic bool) ([]searchindex.RawHit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if top < len(f.hits) {
		return f.hits[:top], nil
	}
	return f.hits, nil
}

func (f *fakeIndex) MergeDocumentTags(ctx context.Context, opaqueKey string, tags searchindex.Tags) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mergeErr != nil {
		return 0, f.mergeErr
	}
	f.mergeKeys = append(f.mergeKeys, opaqueKey)
	f.mergeTags = append(f.mergeTags, tags)
	return f.mergeCount, nil
}

func newTestIngestService(docs *fakeDocStore, folders *fakeFolderStore, idx *fakeIndexerClient, index *fakeIndex) *IngestService {
	return &IngestService{
		docs:           docs,
		folders:        folders,
		indexer:        idx,
		index:          index,
		pollInterval:   time.Millisecond,
		pollTimeout:    time.Second,
		maxWait:        100 * time.Millisecond,
		triggerRetries: 3,
		triggerBackoff: time.Millisecond,
		mergeTags:      true,
		now:            time.Now,
	}
}

func pendingDoc() *model.Document {
	return &model.Document{
		ID:          42,
		FolderID:    7,
		Filename:    "report.pdf",
		StoragePath: "folder_7/42_report.pdf",
		ContentType: "application/pdf",
		Status:      model.StatusPending,
	}
}

func pdfEvent(path string) model.StorageEvent {
	return model.StorageEvent{
		Subject:     "/storage/containers/raw-documents/blobs/" + path,
		ContentType: "application/pdf",
	}
}

func TestIngest_SuccessConvergesToIndexed(t *testing.T) {
	docs := newFakeDocStore(pendingDoc())
	folders := &fakeFolderStore{folders: map[int64]*model.Folder{7: {ID: 7, UserID: "u1"}}}
	client := &fakeIndexerClient{statuses: []indexer.RunStatus{
		{State: indexer.RunInProgress},
		{State: indexer.RunSuccess, ItemsProcessed: 12},
	}}
	index := &fakeIndex{mergeCount: 12}
	svc := newTestIngestService(docs, folders, client, index)

	err := svc.HandleNotification(context.Background(), pdfEvent("folder_7/42_report.pdf"))
	require.NoError(t, err)
	require.Equal(t, model.StatusIndexed, docs.status(42))
	require.Empty(t, docs.errorMessage(42))
	require.Equal(t, 1, client.triggerCalls)
	require.Len(t, index.mergeKeys, 1)
	require.Equal(t, searchindex.Tags{FolderID: 7, UserID: "u1", DocumentID: 42}, index.mergeTags[0])
}

func TestIngest_DuplicateNotificationIsNoOp(t *testing.T) {
	docs := newFakeDocStore(pendingDoc())
	folders := &fakeFolderStore{folders: map[int64]*model.Folder{7: {ID: 7, UserID: "u1"}}}
	client := &fakeIndexerClient{statuses: []indexer.RunStatus{{State: indexer.RunSuccess}}}
	index := &fakeIndex{}
	svc := newTestIngestService(docs, folders, client, index)

	evt := pdfEvent("folder_7/42_report.pdf")
	require.NoError(t, svc.HandleNotification(context.Background(), evt))
	require.Equal(t, model.StatusIndexed, docs.status(42))

	// Redelivery of the same event after the terminal state: no new trigger,
	// no state change.
	require.NoError(t, svc.HandleNotification(context.Background(), evt))
	require.Equal(t, model.StatusIndexed, docs.status(42))
	require.Equal(t, 1, client.triggerCalls)
	require.Len(t, index.mergeKeys, 1)
}

func TestIngest_ConcurrentDuplicateSkipsWhileProcessing(t *testing.T) {
	doc := pendingDoc()
	doc.Status = model.StatusProcessing
	docs := newFakeDocStore(doc)
	folders := &fakeFolderStore{folders: map[int64]*model.Folder{7: {ID: 7, UserID: "u1"}}}
	client := &fakeIndexerClient{}
	svc := newTestIngestService(docs, folders, client, &fakeIndex{})

	require.NoError(t, svc.HandleNotification(context.Background(), pdfEvent("folder_7/42_report.pdf")))
	require.Equal(t, model.StatusProcessing, docs.status(42))
	require.Zero(t, client.triggerCalls)
}

func TestIngest_IndexerFailureConvergesToFailed(t *testing.T) {
	docs := newFakeDocStore(pendingDoc())
	folders := &fakeFolderStore{folders: map[int64]*model.Folder{7: {ID: 7, UserID: "u1"}}}
	client := &fakeIndexerClient{statuses: []indexer.RunStatus{
		{State: indexer.RunFailed, ErrorMessage: "parser blew up"},
	}}
	svc := newTestIngestService(docs, folders, client, &fakeIndex{})

	require.NoError(t, svc.HandleNotification(context.Background(), pdfEvent("folder_7/42_report.pdf")))
	require.Equal(t, model.StatusFailed, docs.status(42))
	require.Equal(t, "parser blew up", docs.errorMessage(42))
}

func TestIngest_PollCeilingConvergesToFailed(t *testing.T) {
	docs := newFakeDocStore(pendingDoc())
	folders := &fakeFolderStore{folders: map[int64]*model.Folder{7: {ID: 7, UserID: "u1"}}}
	client := &fakeIndexerClient{} // always in progress
	svc := newTestIngestService(docs, folders, client, &fakeIndex{})
	svc.maxWait = 5 * time.Millisecond

	require.NoError(t, svc.HandleNotification(context.Background(), pdfEvent("folder_7/42_report.pdf")))
	require.Equal(t, model.StatusFailed, docs.status(42))
	require.Contains(t, docs.errorMessage(42), "did not complete within")
}

func TestIngest_TriggerRetriesThenFails(t *testing.T) {
	docs := newFakeDocStore(pendingDoc())
	folders := &fakeFolderStore{folders: map[int64]*model.Folder{7: {ID: 7, UserID: "u1"}}}
	client := &fakeIndexerClient{triggerErrs: []error{
		errors.New("503"), errors.New("503"), errors.New("503"),
	}}
	svc := newTestIngestService(docs, folders, client, &fakeIndex{})

	require.NoError(t, svc.HandleNotification(context.Background(), pdfEvent("folder_7/42_report.pdf")))
	require.Equal(t, 3, client.triggerCalls)
	require.Equal(t, model.StatusFailed, docs.status(42))
	require.Contains(t, docs.errorMessage(42), "trigger indexing job")
}

func TestIngest_TriggerRecoversWithinRetryBudget(t *testing.T) {
	docs := newFakeDocStore(pendingDoc())
	folders := &fakeFolderStore{folders: map[int64]*model.Folder{7: {ID: 7, UserID: "u1"}}}
	client := &fakeIndexerClient{
		triggerErrs: []error{errors.New("503")},
		statuses:    []indexer.RunStatus{{State: indexer.RunSuccess}},
	}
	svc := newTestIngestService(docs, folders, client, &fakeIndex{})

	require.NoError(t, svc.HandleNotification(context.Background(), pdfEvent("folder_7/42_report.pdf")))
	require.Equal(t, 2, client.triggerCalls)
	require.Equal(t, model.StatusIndexed, docs.status(42))
}

func TestIngest_MergeFailureConvergesToFailed(t *testing.T) {
	docs := newFakeDocStore(pendingDoc())
	folders := &fakeFolderStore{folders: map[int64]*model.Folder{7: {ID: 7, UserID: "u1"}}}
	client := &fakeIndexerClient{statuses: []indexer.RunStatus{{State: indexer.RunSuccess}}}
	index := &fakeIndex{mergeErr: errors.New("merge rejected")}
	svc := newTestIngestService(docs, folders, client, index)

	require.NoError(t, svc.HandleNotification(context.Background(), pdfEvent("folder_7/42_report.pdf")))
	require.Equal(t, model.StatusFailed, docs.status(42))
	require.Contains(t, docs.errorMessage(42), "merge chunk tags")
}

func TestIngest_DiscardsIrrelevantEvents(t *testing.T) {
	docs := newFakeDocStore(pendingDoc())
	folders := &fakeFolderStore{folders: map[int64]*model.Folder{}}
	client := &fakeIndexerClient{}
	svc := newTestIngestService(docs, folders, client, &fakeIndex{})

	cases := []struct {
		name string
		evt  model.StorageEvent
	}{
		{name: "not a pdf", evt: model.StorageEvent{Subject: "/storage/containers/raw-documents/blobs/folder_7/42_report.pdf", ContentType: "image/png"}},
		{name: "wrong container", evt: model.StorageEvent{Subject: "/storage/containers/exports/blobs/folder_7/42_report.pdf", ContentType: "application/pdf"}},
		{name: "unknown blob", evt: pdfEvent("folder_9/9_missing.pdf")},
		{name: "empty subject", evt: model.StorageEvent{Subject: "", ContentType: "application/pdf"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, svc.HandleNotification(context.Background(), tc.evt))
			require.Equal(t, model.StatusPending, docs.status(42))
			require.Zero(t, client.triggerCalls)
		})
	}
}

func TestIngest_ConcurrentNotificationsIndexExactlyOnce(t *testing.T) {
	docs := newFakeDocStore(pendingDoc())
	folders := &fakeFolderStore{folders: map[int64]*model.Folder{7: {ID: 7, UserID: "u1"}}}
	client := &fakeIndexerClient{statuses: []indexer.RunStatus{{State: indexer.RunSuccess}}}
	index := &fakeIndex{}
	svc := newTestIngestService(docs, folders, client, index)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.HandleNotification(context.Background(), pdfEvent("folder_7/42_report.pdf"))
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, fmt.Sprintf("notification %d", i))
	}
	require.Equal(t, model.StatusIndexed, docs.status(42))
	require.Equal(t, 1, client.triggerCalls)
	require.Len(t, index.mergeKeys, 1)
}
