package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tool tags used to look up per-tool model settings.
const (
	ToolAgent         = "agent"
	ToolAgentBeast    = "agentBeastMode"
	ToolEvaluator     = "evaluator"
	ToolCoder         = "coder"
	ToolDedup         = "dedup"
	ToolQueryRewriter = "queryRewriter"
	ToolErrorAnalyzer = "errorAnalyzer"
	ToolFallback      = "fallback"
)

func defaultToolConfigs() map[string]ToolConfig {
	return map[string]ToolConfig{
		ToolAgent:         {Temperature: temp(0.7), MaxTokens: 4000},
		ToolAgentBeast:    {Temperature: temp(0.7), MaxTokens: 4000},
		ToolEvaluator:     {Temperature: temp(0.3), MaxTokens: 1000},
		ToolCoder:         {Temperature: temp(0.0), MaxTokens: 2000},
		ToolDedup:         {Temperature: temp(0.1), MaxTokens: 500},
		ToolQueryRewriter: {Temperature: temp(0.1), MaxTokens: 500},
		ToolErrorAnalyzer: {Temperature: temp(0.3), MaxTokens: 1000},
		ToolFallback:      {Temperature: temp(0.0), MaxTokens: 4000},
	}
}

// Tool returns the settings for a tool tag, falling back to the default model
// when the tag carries no explicit model.
func (c LLMConfig) Tool(tag string) ToolConfig {
	tc, ok := c.Tools[tag]
	if !ok {
		return ToolConfig{Model: c.DefaultModel}
	}
	if tc.Model == "" {
		tc.Model = c.DefaultModel
	}
	return tc
}

// applyToolOverrides merges per-tool settings from a YAML file into the
// defaults. Unknown tags are accepted so deployments can add tools without a
// code change.
func applyToolOverrides(cfg *LLMConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var overrides map[string]ToolConfig
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for tag, o := range overrides {
		base := cfg.Tools[tag]
		if o.Model != "" {
			base.Model = o.Model
		}
		if o.Temperature != nil {
			base.Temperature = o.Temperature
		}
		if o.MaxTokens > 0 {
			base.MaxTokens = o.MaxTokens
		}
		cfg.Tools[tag] = base
	}

	return nil
}

func temp(t float64) *float64 {
	return &t
}
