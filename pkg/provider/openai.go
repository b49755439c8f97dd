// Package provider contains producer adapters for model backends. The
// agent depends only on the Producer interface; everything
// provider-specific stays behind these adapters.
package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/droidpilot-ai/droidpilot/pkg/agent"
	"github.com/droidpilot-ai/droidpilot/pkg/config"
	"github.com/droidpilot-ai/droidpilot/pkg/models"
	"github.com/droidpilot-ai/droidpilot/pkg/tools"
)

// OpenAI is a producer for OpenAI-compatible chat completion endpoints,
// including local Ollama servers exposing /v1.
type OpenAI struct {
	client       *openai.Client
	name         string
	model        string
	systemPrompt string
	registry     *tools.Registry
}

// NewOpenAI creates a producer for one provider and model. The registry
// supplies the tool schemas advertised to the model; nil disables tools.
func NewOpenAI(cfg config.ProviderConfig, model, systemPrompt string, registry *tools.Registry) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.URL != "" {
		clientCfg.BaseURL = cfg.URL
	}
	if model == "" {
		model = cfg.Model
	}
	return &OpenAI{
		client:       openai.NewClientWithConfig(clientCfg),
		name:         cfg.Name,
		model:        model,
		systemPrompt: systemPrompt,
		registry:     registry,
	}
}

// Produce sends the request to the model and maps the response to a
// ThinkResult. A tool_calls response becomes a tool_call result; plain
// text becomes a final answer.
func (p *OpenAI) Produce(ctx context.Context, req agent.Request) (models.ThinkResult, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if p.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: p.systemPrompt,
		})
	}
	for _, m := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	userMsg, err := buildUserMessage(req)
	if err != nil {
		return models.ThinkResult{}, err
	}
	messages = append(messages, userMsg)

	chatReq := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: messages,
	}
	if p.registry != nil {
		chatReq.Tools = toolDefinitions(p.registry)
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return models.ThinkResult{}, fmt.Errorf("provider %s: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return models.ThinkResult{}, fmt.Errorf("provider %s: empty response", p.name)
	}

	result := mapChoice(resp.Choices[0])
	result.Usage = &models.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return result, nil
}

func buildUserMessage(req agent.Request) (openai.ChatCompletionMessage, error) {
	content := req.Query
	if req.UITree != "" {
		content += "\n\nCurrent screen hierarchy:\n" + req.UITree
	}

	if req.Screenshot == "" {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: content}, nil
	}

	img, err := os.ReadFile(req.Screenshot)
	if err != nil {
		return openai.ChatCompletionMessage{}, fmt.Errorf("read screenshot: %w", err)
	}
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: content},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
				},
			},
		},
	}, nil
}

func mapChoice(choice openai.ChatCompletionChoice) models.ThinkResult {
	if len(choice.Message.ToolCalls) > 0 {
		call := choice.Message.ToolCalls[0]
		args := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return models.ThinkResult{
					Action:  models.ActionError,
					Content: fmt.Sprintf("malformed tool arguments for %s: %v", call.Function.Name, err),
				}
			}
		}
		return models.ThinkResult{
			Action:   models.ActionToolCall,
			ToolName: call.Function.Name,
			ToolArgs: args,
			Content:  choice.Message.Content,
		}
	}
	return models.ThinkResult{
		Action:  models.ActionFinalAnswer,
		Content: choice.Message.Content,
	}
}

func toolDefinitions(registry *tools.Registry) []openai.Tool {
	specs := registry.Specs()
	defs := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.InputSchema,
			},
		})
	}
	return defs
}
