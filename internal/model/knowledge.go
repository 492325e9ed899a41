package model

import "time"

// KnowledgeType classifies how a knowledge item was produced.
type KnowledgeType string

const (
	// KnowledgeQA is a sub-question answer accepted by the evaluator.
	KnowledgeQA KnowledgeType = "qa"
	// KnowledgeURL is content harvested verbatim from a visited page.
	KnowledgeURL KnowledgeType = "url"
	// KnowledgeSideInfo is incidental information picked up along the way.
	KnowledgeSideInfo KnowledgeType = "side-info"
)

// KnowledgeItem is one entry in the session's knowledge ledger. Items are
// append-only and rendered into every subsequent prompt.
type KnowledgeItem struct {
	Question   string
	Answer     string
	Type       KnowledgeType
	References []Reference
	Updated    time.Time
}

// Reference links a span of the final answer to a quote from a web source.
type Reference struct {
	ExactQuote          string  `json:"exactQuote" jsonschema_description:"Verbatim quote from the source supporting the answer"`
	URL                 string  `json:"url" jsonschema_description:"Source URL"`
	Title               string  `json:"title,omitempty"`
	RelevanceScore      float64 `json:"relevanceScore,omitempty"`
	AnswerChunk         string  `json:"answerChunk,omitempty"`
	AnswerChunkPosition *[2]int `json:"answerChunkPosition,omitempty"`
}

// SearchResult is one hit returned by a search provider.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// WebContent is the fetched content of one visited URL, pre-chunked for the
// reference builder.
type WebContent struct {
	URL    string
	Title  string
	Chunks []string
}

// BadAttempt is the post-mortem of a rejected answer to the original
// question: the evaluator's verdict plus the error analyzer's narrative.
type BadAttempt struct {
	Question    string
	Answer      string
	Evaluation  string
	Recap       string
	Blame       string
	Improvement string
}
