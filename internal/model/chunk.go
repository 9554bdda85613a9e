package model

// ScoredChunk is one retrieved piece of indexed content after folder
// filtering. FolderID and DocumentID are recovered from the chunk's opaque
// key; the index itself does not carry them reliably.
type ScoredChunk struct {
	Key        string  `json:"key"`
	FolderID   int64   `json:"folder_id"`
	DocumentID int64   `json:"document_id"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}
