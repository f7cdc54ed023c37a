package llm

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"intake-card/pkg"
)

// Message is a minimal chat message used by the core services.
// Role must be one of: "system", "user", or "assistant".
type Message struct {
	Role    string
	Content string
}

// Tool declares a function the model may invoke instead of replying in text.
// Parameters is a JSON schema value, usually a jsonschema.Definition.
type Tool struct {
	Name        string
	Description string
	Parameters  any
}

// ToolCall is one function invocation returned by the model. Arguments is the
// raw JSON argument payload.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Reply is the model's decision for a turn: a TextReply or a ToolCallReply.
type Reply interface {
	isReply()
}

// TextReply is a plain assistant message.
type TextReply struct {
	Content string
}

// ToolCallReply carries one or more tool invocations. Content holds any text
// the model emitted alongside the calls.
type ToolCallReply struct {
	Calls   []ToolCall
	Content string
}

func (TextReply) isReply()     {}
func (ToolCallReply) isReply() {}

// Completion is a model reply plus optional token usage.
type Completion struct {
	Reply Reply
	Usage *pkg.Usage
}

// Client defines the methods required by the intake protocol and the card
// enricher. Chat accepts the full message history (system + prior turns +
// latest user) and the tools the model may call with "auto" selection.
type Client interface {
	Chat(ctx context.Context, messages []Message, tools []Tool) (*Completion, error)
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config holds credentials and model names for OpenAIClient.
type Config struct {
	APIKey    string
	BaseURL   string
	ChatModel string
	JSONModel string
}

// OpenAIClient calls the OpenAI chat completion API.
type OpenAIClient struct {
	client    *openai.Client
	chatModel string
	jsonModel string
}

// NewOpenAIClient constructs an OpenAI-backed client. BaseURL may point at any
// OpenAI-compatible endpoint (including its /v1 prefix).
func NewOpenAIClient(cfg Config) *OpenAIClient {
	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		oaCfg.BaseURL = base
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = openai.GPT4o
	}
	jsonModel := cfg.JSONModel
	if jsonModel == "" {
		jsonModel = chatModel
	}
	return &OpenAIClient{
		client:    openai.NewClientWithConfig(oaCfg),
		chatModel: chatModel,
		jsonModel: jsonModel,
	}
}

// Chat sends the message history to the chat completion API with the given
// tools and lets the model decide whether to call one.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, tools []Tool) (*Completion, error) {
	if c.client == nil {
		return nil, errors.New("openai client not initialized")
	}

	req := openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: toOpenAIMessages(messages),
	}
	if len(tools) > 0 {
		req.Tools = make([]openai.Tool, 0, len(tools))
		for _, t := range tools {
			req.Tools = append(req.Tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		req.ToolChoice = "auto"
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	out := &Completion{Reply: TextReply{}}
	if resp.Usage.TotalTokens > 0 {
		out.Usage = &pkg.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	if len(resp.Choices) == 0 {
		return out, nil
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonToolCalls && len(choice.Message.ToolCalls) > 0 {
		calls := make([]ToolCall, 0, len(choice.Message.ToolCalls))
		for _, tc := range choice.Message.ToolCalls {
			calls = append(calls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		out.Reply = ToolCallReply{Calls: calls, Content: choice.Message.Content}
		return out, nil
	}
	out.Reply = TextReply{Content: choice.Message.Content}
	return out, nil
}

// CompleteJSON asks the model for a single JSON object and returns it raw.
// The caller is responsible for decoding and validating the payload.
func (c *OpenAIClient) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.client == nil {
		return "", errors.New("openai client not initialized")
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.jsonModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role != openai.ChatMessageRoleSystem && role != openai.ChatMessageRoleUser && role != openai.ChatMessageRoleAssistant {
			// coerce anything unknown to user
			role = openai.ChatMessageRoleUser
		}
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return oaMsgs
}
