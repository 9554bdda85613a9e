package model

// DocumentStatus is the lifecycle state of an uploaded document. Transitions
// are driven exclusively by the ingest service after creation; indexed and
// failed are terminal.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusIndexed    DocumentStatus = "indexed"
	StatusFailed     DocumentStatus = "failed"
)

func (s DocumentStatus) Terminal() bool {
	return s == StatusIndexed || s == StatusFailed
}

func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusIndexed, StatusFailed:
		return true
	}
	return false
}

type Document struct {
	ID               int64          `json:"id"`
	FolderID         int64          `json:"folder_id"`
	Filename         string         `json:"filename"`
	OriginalFilename string         `json:"original_filename"`
	StoragePath      string         `json:"storage_path"`
	ContentType      string         `json:"content_type"`
	Status           DocumentStatus `json:"status"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	ProcessingSince  int64          `json:"processing_since,omitempty"`
	Ctime            int64          `json:"ctime"`
	Mtime            int64          `json:"mtime"`
}
