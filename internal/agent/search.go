package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"deepresearch.app/agent/common/llm"
	"deepresearch.app/agent/common/logger"
	"deepresearch.app/agent/core/config"
	"deepresearch.app/agent/internal/model"
)

const maxQueryVariants = 3

type queryRewrite struct {
	Think   string   `json:"think" jsonschema:"required" jsonschema_description:"Why these variants cover the intent"`
	Queries []string `json:"queries" jsonschema:"required" jsonschema_description:"Up to three keyword queries, 2-4 words each"`
}

var queryRewriteSchema = llm.GenerateSchema[queryRewrite]()

const queryRewriterPrompt = `You rewrite a research intent into web-search keyword queries.

Rules:
- Produce at most three variants, each 2-4 words.
- Strip filler words; keep the terms a search engine actually ranks on.
- Preserve quoted phrases and search operators (site:, filetype:, minus terms) exactly.
- Variants must attack the intent from genuinely different angles, not rephrase each other.
- Avoid angles the previous actions in the context already tried.`

// executeSearch rewrites the request into keyword variants, drops the ones
// already tried, and merges provider hits into the URL shortlist. Bodies are
// not fetched here; that is the visit action's job.
func (a *Agent) executeSearch(ctx context.Context, s *session, gen *llm.Generator, step model.Step) error {
	toolCfg := a.llmConfig.Tool(config.ToolQueryRewriter)
	prompt := buildRewritePrompt(step.SearchQuery, s.diaryContext)
	estimated := (len(queryRewriterPrompt)+len(prompt))/charsPerToken + toolCfg.MaxTokens
	if err := s.tokens.CheckBudget(estimated); err != nil {
		return err
	}

	var rewrite queryRewrite
	if _, err := gen.GenerateObject(ctx, llm.GenerateParams{
		Tool:         config.ToolQueryRewriter,
		SystemPrompt: queryRewriterPrompt,
		Prompt:       prompt,
		SchemaName:   "query_rewrite",
		Schema:       queryRewriteSchema,
		NumRetries:   1,
	}, &rewrite); err != nil {
		return fmt.Errorf("query rewrite: %w", err)
	}

	variants := rewrite.Queries
	if len(variants) > maxQueryVariants {
		variants = variants[:maxQueryVariants]
	}

	unique := a.deduper.Dedup(ctx, variants, s.allKeywords)
	if len(unique) == 0 {
		s.allowSearch = false
		s.addDiary(fmt.Sprintf(
			"At step %d, you took the **search** action for %q, but every query variant duplicates a search you already ran.\nSearching this direction again is pointless; try a different action.",
			s.step, step.SearchQuery))
		return nil
	}

	added := 0
	for _, query := range unique {
		results, err := a.searcher.Search(ctx, query)
		if err != nil {
			// Per-item failures are swallowed; the diary keeps the record.
			slog.WarnContext(ctx, "search provider failed",
				"query", query,
				"error", err)
			s.addDiary(fmt.Sprintf("At step %d, the search for %q failed: %s", s.step, query, err))
			continue
		}
		for _, r := range results {
			if r.URL == "" || s.visitedURLs[r.URL] {
				continue
			}
			if _, seen := s.allURLs[r.URL]; !seen {
				added++
			}
			s.allURLs[r.URL] = r.Title
		}
		s.allKeywords = append(s.allKeywords, query)
	}

	slog.InfoContext(ctx, "search executed",
		"variants", len(unique),
		"urls_added", added,
		"url_shortlist", len(s.allURLs))

	s.addDiary(fmt.Sprintf(
		"At step %d, you took the **search** action for %q.\nYou searched these queries: %s.\nThe results were added to your URL list; visit the promising ones to read their content.",
		s.step, step.SearchQuery, strings.Join(unique, ", ")))
	return nil
}

func buildRewritePrompt(searchQuery string, diary []string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Search intent: %s\n", searchQuery))
	if len(diary) > 0 {
		sb.WriteString("\nRecent actions for context:\n")
		start := len(diary) - 3
		if start < 0 {
			start = 0
		}
		for _, entry := range diary[start:] {
			sb.WriteString(logger.Truncate(entry, 300))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
