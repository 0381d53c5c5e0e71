package models

import "time"

// Template is the stable identity an edit history hangs off. Its content lives
// in its versions.
type Template struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// TemplateVersion is one immutable entry in a template's history.
type TemplateVersion struct {
	ID          string    `json:"id"`
	TemplateID  string    `json:"template_id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
