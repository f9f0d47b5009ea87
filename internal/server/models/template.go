package models

import (
	"encoding/json"
	"time"
)

// Template is a cached grading template. Content stays nil while the entry
// is pending and is written exactly once.
type Template struct {
	ID         int64
	TemplateID string
	PageCount  int
	Content    json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Filled reports whether the template content has been resolved.
func (t *Template) Filled() bool {
	return len(t.Content) > 0
}
