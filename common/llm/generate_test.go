package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"deepresearch.app/agent/common/llm"
	"deepresearch.app/agent/core/config"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// scriptedClient replays canned raw responses in order, mimicking the real
// client's contract: on unparseable text it returns the response together
// with ErrMalformedObject.
type scriptedClient struct {
	mu        sync.Mutex
	responses []string
	calls     []llm.Request
}

func (c *scriptedClient) Chat(_ context.Context, req llm.Request, result any) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, req)
	if len(c.responses) == 0 {
		return nil, errors.New("script exhausted")
	}
	raw := c.responses[0]
	c.responses = c.responses[1:]

	resp := &llm.Response{
		PromptTokens:     100,
		CompletionTokens: 50,
		TotalTokens:      150,
		RawText:          raw,
	}
	if err := json.Unmarshal([]byte(raw), result); err != nil {
		return resp, fmt.Errorf("%w: %v", llm.ErrMalformedObject, err)
	}
	return resp, nil
}

func (c *scriptedClient) Model() string { return "scripted" }

type recordedUsage struct {
	mu      sync.Mutex
	entries map[string]llm.Usage
}

func (r *recordedUsage) Record(tool string, usage llm.Usage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = make(map[string]llm.Usage)
	}
	entry := r.entries[tool]
	entry.TotalTokens += usage.TotalTokens
	r.entries[tool] = entry
}

type answerObject struct {
	Answer string `json:"answer"`
}

var answerSchema = llm.GenerateSchema[answerObject]()

var _ = Describe("Generator", func() {
	var (
		client   *scriptedClient
		recorder *recordedUsage
		gen      *llm.Generator
		ctx      context.Context
	)

	newGenerator := func(responses ...string) {
		client = &scriptedClient{responses: responses}
		recorder = &recordedUsage{}
		registry := llm.NewRegistryWithClient(client, config.LLMConfig{
			DefaultModel: "scripted",
			Tools:        map[string]config.ToolConfig{},
		})
		gen = llm.NewGenerator(registry, recorder)
	}

	params := func(retries int) llm.GenerateParams {
		return llm.GenerateParams{
			Tool:       config.ToolAgent,
			Prompt:     "answer the question",
			SchemaName: "answer",
			Schema:     answerSchema,
			NumRetries: retries,
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("returns the object on a clean response", func() {
		newGenerator(`{"answer": "42"}`)

		var out answerObject
		resp, err := gen.GenerateObject(ctx, params(0), &out)

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Answer).To(Equal("42"))
		Expect(resp.TotalTokens).To(Equal(150))
		Expect(client.calls).To(HaveLen(1))
		Expect(recorder.entries[config.ToolAgent].TotalTokens).To(Equal(150))
	})

	It("recovers fenced output with the lenient parser without another call", func() {
		newGenerator("```json\n{\"answer\": \"fenced\"}\n```")

		var out answerObject
		_, err := gen.GenerateObject(ctx, params(0), &out)

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Answer).To(Equal("fenced"))
		Expect(client.calls).To(HaveLen(1))
	})

	It("retries malformed output when retries remain", func() {
		newGenerator("total garbage", `{"answer": "second try"}`)

		var out answerObject
		_, err := gen.GenerateObject(ctx, params(1), &out)

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Answer).To(Equal("second try"))
		Expect(client.calls).To(HaveLen(2))
	})

	It("falls back to extraction with a distilled schema when retries are spent", func() {
		newGenerator("total garbage", `{"answer": "rescued"}`)

		var out answerObject
		_, err := gen.GenerateObject(ctx, params(0), &out)

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Answer).To(Equal("rescued"))
		Expect(client.calls).To(HaveLen(2))

		// The second call is the fallback: distilled schema, salvaged text.
		fallbackCall := client.calls[1]
		payload, merr := json.Marshal(fallbackCall.Schema)
		Expect(merr).NotTo(HaveOccurred())
		Expect(string(payload)).NotTo(ContainSubstring("description"))
		Expect(fallbackCall.UserPrompt).To(ContainSubstring("total garbage"))

		Expect(recorder.entries[config.ToolFallback].TotalTokens).To(Equal(150))
	})

	It("re-raises when the fallback cannot recover either", func() {
		newGenerator("total garbage", "still garbage")

		var out answerObject
		_, err := gen.GenerateObject(ctx, params(0), &out)

		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, llm.ErrMalformedObject)).To(BeTrue())
	})
})
