// Package llm talks to an OpenAI-compatible chat completion API (OpenRouter by default).
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"voicebot/internal/config"
)

type Role string

const (
	RoleSystem    Role = openai.ChatMessageRoleSystem
	RoleUser      Role = openai.ChatMessageRoleUser
	RoleAssistant Role = openai.ChatMessageRoleAssistant
	RoleTool      Role = openai.ChatMessageRoleTool
)

type Message struct {
	Role       Role
	Content    string
	ToolCallID string
	ToolCalls  []ToolCall
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Reply is one assistant turn: spoken text, tool calls, or both.
type Reply struct {
	Content   string
	ToolCalls []ToolCall
}

var ErrEmptyResponse = errors.New("llm: empty response")

type Client struct {
	api               *openai.Client
	conversationModel string
	analysisModel     string
}

func New(cfg config.LLMConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: api key is required")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:               openai.NewClientWithConfig(oc),
		conversationModel: cfg.ConversationModel,
		analysisModel:     cfg.AnalysisModel,
	}, nil
}

// Chat runs one conversation turn with the given tools available.
func (c *Client) Chat(ctx context.Context, msgs []Message, tools []Tool) (Reply, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.conversationModel,
		Messages: toOpenAI(msgs),
	}
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

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return Reply{}, fmt.Errorf("llm: chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, ErrEmptyResponse
	}
	msg := resp.Choices[0].Message
	out := Reply{Content: strings.TrimSpace(msg.Content)}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return out, nil
}

// CompleteJSON asks the analysis model for a JSON object answer.
func (c *Client) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.analysisModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.2,
	})
	if err != nil {
		return "", fmt.Errorf("llm: complete: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func toOpenAI(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:       tc.ID,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		out = append(out, om)
	}
	return out
}
