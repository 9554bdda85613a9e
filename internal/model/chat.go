package model

type ChatSource struct {
	DocumentID int64   `json:"document_id"`
	Filename   string  `json:"filename"`
	Score      float64 `json:"score"`
}

type ChatAnswer struct {
	Answer     string       `json:"answer"`
	AnswerHTML string       `json:"answer_html,omitempty"`
	Sources    []ChatSource `json:"sources"`
}
