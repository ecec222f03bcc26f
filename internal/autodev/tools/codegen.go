package tools

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"

	"ragctx/internal/apperr"
	"ragctx/internal/autodev"
)

// CodegenConfig selects and authenticates the LLM provider used to turn
// an objective plus search hits into a unified diff (§6).
type CodegenConfig struct {
	Provider string // "openai" (default) or "anthropic"
	BaseURL  string
	APIKey   string
	Model    string
}

// Codegen generates a unified diff addressing the task's objective.
type Codegen struct {
	Cfg CodegenConfig
}

func (Codegen) Name() string { return "codegen" }

const codegenSystemPrompt = `You are a code-change generator. Given an objective and relevant code excerpts, respond with a single unified diff (git apply compatible) that satisfies the objective. Respond with only the diff, no commentary.`

func (t Codegen) Run(ctx context.Context, _ *autodev.Workspace, input map[string]any) (map[string]any, error) {
	objective, _ := input["objective"].(string)
	if strings.TrimSpace(objective) == "" {
		return nil, apperr.Invalid("codegen requires objective")
	}
	prompt := buildCodegenPrompt(objective, input["hits"], input["constraints"])

	var diff string
	var err error
	if strings.EqualFold(t.Cfg.Provider, "anthropic") {
		diff, err = t.runAnthropic(ctx, prompt)
	} else {
		diff, err = t.runOpenAI(ctx, prompt)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"diff": diff}, nil
}

func buildCodegenPrompt(objective string, hits any, constraints any) string {
	var sb strings.Builder
	sb.WriteString("Objective: ")
	sb.WriteString(objective)
	if cs, ok := constraints.([]string); ok && len(cs) > 0 {
		sb.WriteString("\n\nConstraints:\n")
		for _, c := range cs {
			fmt.Fprintf(&sb, "- %s\n", c)
		}
	}
	if searchHits, ok := hits.([]SearchHit); ok && len(searchHits) > 0 {
		sb.WriteString("\n\nRelevant excerpts:\n")
		for _, h := range searchHits {
			fmt.Fprintf(&sb, "%s:%d: %s\n", h.Path, h.Line, h.Text)
		}
	}
	return sb.String()
}

func (t Codegen) runOpenAI(ctx context.Context, prompt string) (string, error) {
	opts := []openaioption.RequestOption{openaioption.WithAPIKey(t.Cfg.APIKey)}
	if t.Cfg.BaseURL != "" {
		opts = append(opts, openaioption.WithBaseURL(t.Cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	model := t.Cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	comp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(codegenSystemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", apperr.Internal("openai codegen request", err)
	}
	if len(comp.Choices) == 0 {
		return "", apperr.Internal("openai codegen returned no choices", nil)
	}
	return comp.Choices[0].Message.Content, nil
}

func (t Codegen) runAnthropic(ctx context.Context, prompt string) (string, error) {
	opts := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(t.Cfg.APIKey)}
	if t.Cfg.BaseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(t.Cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	model := t.Cfg.Model
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 4096,
		System:    []anthropic.TextBlockParam{{Text: codegenSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", apperr.Internal("anthropic codegen request", err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
