package pdftext

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/docmind/internal/core/domain"
)

func TestAnalyzeMissingFileIsNotFound(t *testing.T) {
	analyzer := New(nil)
	_, err := analyzer.Analyze(context.Background(), filepath.Join(t.TempDir(), "gone.pdf"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAnalyzeMalformedPDFIsCapabilityFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("this is not a pdf"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	analyzer := New(nil)
	_, err := analyzer.Analyze(context.Background(), path)
	if err == nil {
		t.Fatalf("expected error for malformed pdf")
	}
	if !domain.IsKind(err, domain.ErrCapability) {
		t.Fatalf("expected ErrCapability, got %v", err)
	}
}

func TestAnalyzeHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	analyzer := New(nil)
	_, err := analyzer.Analyze(ctx, "irrelevant.pdf")
	if err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
