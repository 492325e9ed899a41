package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"deepresearch.app/agent/core/config"
)

const maxSalvageChars = 8000

// Usage is the token spend of one LLM call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// UsageRecorder receives the token spend of every generator call, tagged by
// tool name. Implemented by the session token tracker.
type UsageRecorder interface {
	Record(tool string, usage Usage)
}

// GenerateParams describes one structured-output request.
type GenerateParams struct {
	Tool         string // tool tag; resolves model/temperature/max-tokens
	SystemPrompt string
	Prompt       string
	SchemaName   string
	Schema       any
	NumRetries   int
}

// Generator is the safe structured-output generator. It wraps the registry
// with a staged recovery chain: strict parse, lenient parse, retry, then a
// fallback-model extraction against a distilled schema. One generator is
// built per research session so usage lands in that session's tracker.
type Generator struct {
	registry *Registry
	recorder UsageRecorder
}

func NewGenerator(registry *Registry, recorder UsageRecorder) *Generator {
	return &Generator{registry: registry, recorder: recorder}
}

// GenerateObject runs the staged generation chain and unmarshals the object
// into result. The returned Response carries the usage of the final
// successful call; intermediate usage is recorded as it is spent.
func (g *Generator) GenerateObject(ctx context.Context, params GenerateParams, result any) (*Response, error) {
	resp, err := g.registry.Chat(ctx, params.Tool, Request{
		SystemPrompt: params.SystemPrompt,
		UserPrompt:   params.Prompt,
		SchemaName:   params.SchemaName,
		Schema:       params.Schema,
	}, result)

	g.record(params.Tool, resp)

	if err == nil {
		return resp, nil
	}

	// The model produced text that failed schema unmarshalling. Try to
	// salvage it before spending more tokens.
	if errors.Is(err, ErrMalformedObject) && resp != nil {
		if lerr := ParseLenient(resp.RawText, result); lerr == nil {
			slog.DebugContext(ctx, "lenient parse recovered malformed output",
				"tool", params.Tool)
			return resp, nil
		}
	}

	if params.NumRetries > 0 && (errors.Is(err, ErrMalformedObject) || IsRetryable(ctx, err)) {
		slog.WarnContext(ctx, "structured generation retrying",
			"tool", params.Tool,
			"retries_left", params.NumRetries-1,
			"error", err)
		retry := params
		retry.NumRetries--
		return g.GenerateObject(ctx, retry, result)
	}

	if errors.Is(err, ErrMalformedObject) && resp != nil {
		fresp, ferr := g.fallbackExtract(ctx, params, resp.RawText, result)
		if ferr == nil {
			return fresp, nil
		}
		slog.ErrorContext(ctx, "fallback extraction failed",
			"tool", params.Tool,
			"error", ferr)
	}

	return nil, fmt.Errorf("generate object (%s): %w", params.Tool, err)
}

// fallbackExtract asks the fallback model to pull the object out of the
// broken text, using a distilled copy of the schema and the text truncated
// at the last problematic key marker.
func (g *Generator) fallbackExtract(ctx context.Context, params GenerateParams, raw string, result any) (*Response, error) {
	salvage := truncateSalvage(raw)

	resp, err := g.registry.Chat(ctx, config.ToolFallback, Request{
		SystemPrompt: "Extract the single JSON object that matches the response schema from the user's text. Output only the object, repaired if necessary. Do not add fields or commentary.",
		UserPrompt:   salvage,
		SchemaName:   params.SchemaName,
		Schema:       DistillSchema(params.Schema),
	}, result)

	g.record(config.ToolFallback, resp)

	if err == nil {
		return resp, nil
	}

	if errors.Is(err, ErrMalformedObject) && resp != nil {
		if lerr := ParseLenient(resp.RawText, result); lerr == nil {
			return resp, nil
		}
	}

	return nil, fmt.Errorf("fallback extract: %w", err)
}

func (g *Generator) record(tool string, resp *Response) {
	if g.recorder == nil || resp == nil {
		return
	}
	g.recorder.Record(tool, Usage{
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.TotalTokens,
	})
}

// truncateSalvage cuts a failed payload at the last `"url":` marker (URL
// values are where truncated outputs most often die mid-string) and caps the
// result so the fallback prompt stays small.
func truncateSalvage(raw string) string {
	if idx := strings.LastIndex(raw, `"url":`); idx > 0 {
		raw = raw[:idx]
	}
	if len(raw) > maxSalvageChars {
		raw = raw[:maxSalvageChars]
	}
	return raw
}
