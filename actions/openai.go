package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultModel = openai.GPT4oMini

const systemPrompt = `You control a collaborative architecture whiteboard. Convert what the
speaker said into edit instructions and reply with a single JSON object:

{"actions": [{"type": "...", "id": "...", "from": "...", "to": "...", "text": "...", "node_type": "..."}]}

Action types and their required fields:
- create_node: id, node_type (service, database, gateway, queue, user or generic)
- delete_node: id
- rename_node: id, text (the new name)
- create_edge: from, to, optional text as the edge label
- delete_edge: from, to
- add_label: id, text
- suggestion: text, for questions or advice

Use node names as ids. Create nodes that an edge refers to if they are new.
Pick the most likely reading of unclear speech. Return JSON only.`

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("action generation needs OPENAI_API_KEY")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIGenerator{client: openai.NewClientWithConfig(oc), model: model}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, transcript string) (*Plan, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return &Plan{}, nil
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", ErrMalformed)
	}
	return Parse([]byte(resp.Choices[0].Message.Content))
}
