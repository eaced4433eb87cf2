package ollama

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kirillkom/docmind/internal/core/domain"
	"github.com/kirillkom/docmind/internal/infrastructure/resilience"
)

// Classifier implements the naming/classification capability. Transient
// server failures get one retry via the executor; an unparsable answer gets
// one stricter re-prompt and then degrades to a conservative fallback so
// the pipeline's normalization can take over.
type Classifier struct {
	client   *Client
	executor *resilience.Executor
}

func NewClassifier(client *Client, executor *resilience.Executor) *Classifier {
	return &Classifier{client: client, executor: executor}
}

func (c *Classifier) Suggest(ctx context.Context, content string) (domain.ClassificationResult, error) {
	for _, strict := range []bool{false, true} {
		raw, err := c.generate(ctx, buildNamingPrompt(content, strict))
		if err != nil {
			return domain.ClassificationResult{}, domain.WrapError(domain.ErrCapability, "classify content", err)
		}

		var result domain.ClassificationResult
		if err := json.Unmarshal([]byte(extractJSONObject(raw)), &result); err == nil {
			return result, nil
		}
	}
	return fallbackResult(content), nil
}

func (c *Classifier) generate(ctx context.Context, prompt string) (string, error) {
	if c.executor == nil {
		return c.client.generateJSON(ctx, prompt)
	}

	var raw string
	err := c.executor.Execute(ctx, "ollama.generate", func(callCtx context.Context) error {
		var callErr error
		raw, callErr = c.client.generateJSON(callCtx, prompt)
		return callErr
	}, resilience.TemporaryOnly)
	return raw, err
}

func fallbackResult(content string) domain.ClassificationResult {
	summary := ""
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			summary = trimmed
			break
		}
	}
	if len(summary) > 200 {
		summary = summary[:200]
	}
	return domain.ClassificationResult{Summary: summary}
}
