package ollama

import "unicode/utf8"

const maxContentSnippet = 4000

func buildNamingPrompt(content string, strict bool) string {
	snippet := truncateAtRune(content, maxContentSnippet)

	prompt := `You are a precise document archivist. Based on the document
content and the historical filing decisions embedded in it, determine a one
sentence summary, a filename following the historical pattern, and a target
folder. Return a strict JSON object with keys:
summary (string), filename (string, pattern YYYY-MM-DD_Name.pdf), folder (string, Category/Subcategory).
No markdown, no extra keys.

Document:
` + snippet

	if strict {
		prompt += "\n\nAnswer exclusively with raw JSON, no surrounding text."
	}
	return prompt
}

// truncateAtRune cuts s to at most max bytes without splitting a UTF-8
// sequence at the boundary.
func truncateAtRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
