// Package pdftext is the reference Analyzer capability: plain-text
// extraction from PDF parts. Heavier OCR/vision engines plug in behind the
// same port.
package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/docmind/internal/core/domain"
	"github.com/kirillkom/docmind/internal/infrastructure/resilience"
)

type Analyzer struct {
	executor *resilience.Executor
}

func New(executor *resilience.Executor) *Analyzer {
	return &Analyzer{executor: executor}
}

// Analyze extracts the text of every page. A transient failure gets one
// internal retry; everything else propagates as a capability failure.
func (a *Analyzer) Analyze(ctx context.Context, path string) (domain.DocumentContent, error) {
	var content domain.DocumentContent

	extract := func(callCtx context.Context) error {
		text, err := extractText(callCtx, path)
		if err != nil {
			return err
		}
		content = domain.DocumentContent{Text: text}
		return nil
	}

	var err error
	if a.executor != nil {
		err = a.executor.Execute(ctx, "pdftext.analyze", extract, resilience.TemporaryOnly)
	} else {
		err = extract(ctx)
	}
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return domain.DocumentContent{}, err
		}
		return domain.DocumentContent{}, domain.WrapError(domain.ErrCapability, "analyze pdf", err)
	}
	return content, nil
}

func extractText(ctx context.Context, path string) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// The pdf library panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", domain.WrapError(domain.ErrNotFound, "open pdf", err)
		}
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract plain text: %w", err)
	}
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	return buf.String(), nil
}
