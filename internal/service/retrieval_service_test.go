package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seelix/docqa/internal/pathcodec"
	"github.com/seelix/docqa/internal/searchindex"
)

func hit(folderID, docID int64, content string, score float64) searchindex.RawHit {
	return searchindex.RawHit{
		Key:     pathcodec.OpaqueKey(pathcodec.Encode(folderID, docID, "doc.pdf")),
		Content: content,
		Score:   score,
	}
}

func newTestRetrievalService(index searchindex.Index) *RetrievalService {
	return &RetrievalService{index: index, overFetch: 3, semantic: false}
}

func TestSearchScoped_FiltersForeignFolders(t *testing.T) {
	index := &fakeIndex{hits: []searchindex.RawHit{
		hit(1, 10, "mine a", 0.9),
		hit(2, 20, "theirs", 0.8),
		hit(1, 11, "mine b", 0.7),
		hit(3, 30, "also theirs", 0.6),
	}}
	svc := newTestRetrievalService(index)

	chunks, err := svc.SearchScoped(context.Background(), "q", nil, []int64{1}, 5)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	for _, chunk := range chunks {
		require.Equal(t, int64(1), chunk.FolderID)
	}
	require.Equal(t, "mine a", chunks[0].Content)
	require.Equal(t, "mine b", chunks[1].Content)
}

func TestSearchScoped_DropsUndecodableKeys(t *testing.T) {
	index := &fakeIndex{hits: []searchindex.RawHit{
		{Key: "!!not-base64!!", Content: "poisoned", Score: 0.99},
		{Key: pathcodec.OpaqueKey("uploads/loose.pdf"), Content: "no folder segment", Score: 0.95},
		hit(1, 10, "good", 0.5),
	}}
	svc := newTestRetrievalService(index)

	chunks, err := svc.SearchScoped(context.Background(), "q", nil, []int64{1}, 5)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "good", chunks[0].Content)
}

func TestSearchScoped_TruncatesToTopNPreservingOrder(t *testing.T) {
	index := &fakeIndex{hits: []searchindex.RawHit{
		hit(1, 10, "first", 0.9),
		hit(1, 11, "second", 0.8),
		hit(1, 12, "third", 0.7),
		hit(1, 13, "fourth", 0.6),
	}}
	svc := newTestRetrievalService(index)

	chunks, err := svc.SearchScoped(context.Background(), "q", nil, []int64{1}, 2)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, "first", chunks[0].Content)
	require.Equal(t, "second", chunks[1].Content)
}

func TestSearchScoped_ShortResultIsNotRetried(t *testing.T) {
	// Most of the over-fetched window belongs to someone else; the caller
	// gets what survived, not a second query.
	index := &fakeIndex{hits: []searchindex.RawHit{
		hit(2, 20, "foreign a", 0.9),
		hit(2, 21, "foreign b", 0.8),
		hit(1, 10, "mine", 0.7),
	}}
	svc := newTestRetrievalService(index)

	chunks, err := svc.SearchScoped(context.Background(), "q", nil, []int64{1}, 3)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "mine", chunks[0].Content)
}

func TestSearchScoped_PropagatesIndexError(t *testing.T) {
	index := &fakeIndex{searchErr: errors.New("index down")}
	svc := newTestRetrievalService(index)

	_, err := svc.SearchScoped(context.Background(), "q", nil, []int64{1}, 3)
	require.Error(t, err)
}

func TestSearchScoped_ZeroTopN(t *testing.T) {
	svc := newTestRetrievalService(&fakeIndex{})
	chunks, err := svc.SearchScoped(context.Background(), "q", nil, []int64{1}, 0)
	require.NoError(t, err)
	require.Empty(t, chunks)
}
