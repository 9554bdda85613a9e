package model

// StorageEvent is the blob-created notification pushed by the storage
// collaborator. Delivery is at-least-once and unordered; handling must be
// idempotent.
type StorageEvent struct {
	Subject     string `json:"subject"`
	ContentType string `json:"contentType"`
}
