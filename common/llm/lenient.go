package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	codeFencePattern     = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	smartQuoteReplacer   = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
)

// ParseLenient tolerates the usual model sloppiness: markdown code fences,
// prose before/after the object, trailing commas and smart quotes. It never
// invents content; if no JSON object can be carved out of the text it fails.
func ParseLenient(text string, result any) error {
	cleaned := text

	if m := codeFencePattern.FindStringSubmatch(cleaned); len(m) == 2 {
		cleaned = m[1]
	}

	cleaned = smartQuoteReplacer.Replace(cleaned)

	start := strings.IndexAny(cleaned, "{[")
	if start < 0 {
		return fmt.Errorf("lenient parse: no JSON payload in text")
	}
	end := strings.LastIndexAny(cleaned, "}]")
	if end < start {
		return fmt.Errorf("lenient parse: unterminated JSON payload")
	}
	cleaned = cleaned[start : end+1]

	cleaned = trailingCommaPattern.ReplaceAllString(cleaned, "$1")

	if err := json.Unmarshal([]byte(cleaned), result); err != nil {
		return fmt.Errorf("lenient parse: %w", err)
	}
	return nil
}
