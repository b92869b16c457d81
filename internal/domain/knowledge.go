package domain

import "github.com/saqiah/waterbot/pkg/language"

// KnowledgeEntry is a Q&A pair for the knowledge index. The question text
// is embedded; the answer travels as metadata and is never embedded.
type KnowledgeEntry struct {
	Question string            `json:"question"`
	Answer   string            `json:"answer"`
	Category string            `json:"category"`
	Language language.Lang     `json:"language"`
	Priority int               `json:"priority"`
	Source   string            `json:"source"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// HasAnswer reports whether the entry carries usable answer text.
func (e *KnowledgeEntry) HasAnswer() bool {
	return e.Answer != ""
}
