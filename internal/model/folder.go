package model

// Folder is the tenant scoping unit. Management of folders (creation,
// password gating) lives outside this service; only ownership is consulted
// here.
type Folder struct {
	ID     int64  `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Ctime  int64  `json:"ctime"`
	Mtime  int64  `json:"mtime"`
}
