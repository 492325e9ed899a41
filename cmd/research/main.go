package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"deepresearch.app/agent/common/id"
	"deepresearch.app/agent/common/logger"
	"deepresearch.app/agent/core/config"
	"deepresearch.app/agent/internal/agent"
	"deepresearch.app/agent/internal/model"
	"deepresearch.app/agent/internal/service"
	"deepresearch.app/agent/internal/trackers"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

func main() {
	budget := flag.Int("budget", 1_000_000, "token budget for the session")
	maxBadAttempts := flag.Int("max-bad-attempts", 2, "rejected answers tolerated before beast mode")
	flag.Parse()

	question := flag.Arg(0)
	if question == "" {
		fmt.Fprintln(os.Stderr, "usage: research [flags] \"question\"")
		flag.PrintDefaults()
		os.Exit(1)
	}

	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	logger.Setup(cfg)

	if err := id.Init(1); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize id generator:", err)
		os.Exit(1)
	}

	researchAgent, err := service.BuildAgent(cfg, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build agent:", err)
		os.Exit(1)
	}

	tk := agent.NewTrackers(*budget)
	tk.Actions.Subscribe(printProgress)

	outcome, err := researchAgent.GetResponse(ctx, agent.Params{
		Question:       question,
		TokenBudget:    *budget,
		MaxBadAttempts: *maxBadAttempts,
		Trackers:       &tk,
	})
	if err != nil {
		color.Red("research failed: %v", err)
		os.Exit(1)
	}

	printAnswer(outcome)
	usage := tk.Tokens.TotalUsage()
	color.HiBlack("\n%d tokens (%d prompt, %d completion)",
		usage.TotalTokens, usage.PromptTokens, usage.CompletionTokens)
}

func printProgress(state trackers.ActionState) {
	label := color.New(color.FgCyan, color.Bold)
	switch model.Action(state.ThisStep.Action) {
	case model.ActionSearch:
		label.Printf("[%d] search ", state.TotalStep)
		fmt.Println(state.ThisStep.SearchQuery)
	case model.ActionVisit:
		label.Printf("[%d] visit ", state.TotalStep)
		fmt.Println(len(state.ThisStep.URLTargets), "urls")
	case model.ActionReflect:
		label.Printf("[%d] reflect ", state.TotalStep)
		fmt.Println(len(state.ThisStep.QuestionsToAnswer), "gap questions")
	case model.ActionAnswer:
		label.Printf("[%d] answer ", state.TotalStep)
		fmt.Println("candidate drafted")
	}
}

func printAnswer(outcome *agent.Outcome) {
	color.New(color.FgGreen, color.Bold).Println("\nAnswer")
	fmt.Println(outcome.FinalStep.Answer)

	if len(outcome.References) > 0 {
		color.New(color.FgGreen, color.Bold).Println("\nReferences")
		for i, ref := range outcome.References {
			fmt.Printf("[^%d]: %s — %q\n", i+1, ref.URL, logger.Truncate(ref.ExactQuote, 120))
		}
	}
}
