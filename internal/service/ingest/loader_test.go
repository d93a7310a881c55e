package ingest

import (
	"context"
	"testing"
)

func TestLoadWrapsTextVerbatim(t *testing.T) {
	text := "  Paris is the capital of France.\n\nBerlin is the capital of Germany.  "

	docs := Load(text)
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Content != text {
		t.Fatalf("content changed: %q", docs[0].Content)
	}
	if docs[0].ID == "" {
		t.Fatal("expected generated document id")
	}
	if len(docs[0].MetaData) != 0 {
		t.Fatalf("expected no metadata, got %v", docs[0].MetaData)
	}
}

func TestLoadAcceptsBlankText(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		docs := Load(text)
		if len(docs) != 1 || docs[0].Content != text {
			t.Fatalf("blank text %q not passed through: %+v", text, docs)
		}
	}
}

func TestLoaderLoad(t *testing.T) {
	docs, err := NewLoader("hello").Load(context.Background())
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if len(docs) != 1 || docs[0].Content != "hello" {
		t.Fatalf("unexpected documents: %+v", docs)
	}
}
