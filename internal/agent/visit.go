package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"deepresearch.app/agent/internal/model"
	"deepresearch.app/agent/internal/reader"
)

// executeVisit fetches the chosen URLs in parallel and folds each page into
// the knowledge ledger. Already-visited URLs are skipped; per-URL failures
// are swallowed with a diary note.
func (a *Agent) executeVisit(ctx context.Context, s *session, step model.Step) error {
	var targets []string
	for _, target := range step.URLTargets {
		target = strings.TrimSpace(target)
		if target == "" || s.visitedURLs[target] {
			continue
		}
		targets = append(targets, target)
	}

	if len(targets) == 0 {
		s.allowRead = false
		s.addDiary(fmt.Sprintf(
			"At step %d, you took the **visit** action, but every target URL was already visited.\nRe-reading them gains nothing; try a different action.",
			s.step))
		return nil
	}

	start := time.Now()
	results := make([]*reader.Result, len(targets))
	errs := make([]error, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(idx int, url string) {
			defer wg.Done()
			results[idx], errs[idx] = a.reader.Read(ctx, url)
		}(i, target)
	}
	wg.Wait()

	var visited, failed []string
	for i, target := range targets {
		if errs[i] != nil {
			slog.WarnContext(ctx, "url read failed",
				"url", target,
				"error", errs[i])
			failed = append(failed, target)
			continue
		}

		result := results[i]
		s.addKnowledge(model.KnowledgeItem{
			Question: fmt.Sprintf("What is in %s?", result.URL),
			Answer:   strings.ReplaceAll(result.Content, "\n", " "),
			Type:     model.KnowledgeURL,
		})
		s.visitedURLs[target] = true
		delete(s.allURLs, target)
		s.webContents = append(s.webContents, model.WebContent{
			URL:    result.URL,
			Title:  result.Title,
			Chunks: strings.Split(result.Content, "\n"),
		})
		visited = append(visited, target)
	}

	slog.InfoContext(ctx, "urls visited",
		"requested", len(targets),
		"succeeded", len(visited),
		"failed", len(failed),
		"duration_ms", time.Since(start).Milliseconds())

	if len(visited) == 0 {
		s.allowRead = false
		s.addDiary(fmt.Sprintf(
			"At step %d, you took the **visit** action, but none of the URLs could be read: %s",
			s.step, strings.Join(failed, ", ")))
		return nil
	}

	entry := fmt.Sprintf(
		"At step %d, you took the **visit** action and read these URLs:\n- %s\nTheir content is now part of your knowledge.",
		s.step, strings.Join(visited, "\n- "))
	if len(failed) > 0 {
		entry += fmt.Sprintf("\nThese URLs failed to load: %s", strings.Join(failed, ", "))
	}
	s.addDiary(entry)
	return nil
}
