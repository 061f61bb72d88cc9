package types

import "strings"

// BuildEmbeddingText implements the deterministic vectorization-input
// formula of §4.7: "{concept_name}: {description}" with whitespace
// collapsed and length capped at maxChars characters pre-tokenization.
func BuildEmbeddingText(conceptName, description string, maxChars int) string {
	text := conceptName + ": " + description
	text = collapseWhitespace(text)
	if runes := []rune(text); maxChars > 0 && len(runes) > maxChars {
		text = string(runes[:maxChars])
	}
	return text
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
