// Package ingest turns raw pasted text into documents ready for indexing.
package ingest

import (
	"context"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// Loader wraps a raw text blob.
type Loader struct {
	text string
}

// NewLoader returns a loader for the given text.
func NewLoader(text string) *Loader {
	return &Loader{text: text}
}

// Load returns the text as a single document. The content is kept verbatim:
// no splitting, no trimming and no metadata extraction.
func (l *Loader) Load(_ context.Context) ([]*schema.Document, error) {
	return Load(l.text), nil
}

// Load wraps text as a one-element document slice.
func Load(text string) []*schema.Document {
	return []*schema.Document{{
		ID:      uuid.NewString(),
		Content: text,
	}}
}
