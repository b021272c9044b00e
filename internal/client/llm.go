package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Chat model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderAzure     = "azure"
)

const (
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	defaultMaxTokens        = 1024
	llmRequestTimeout       = 120 * time.Second
)

// Message is one turn of the model conversation. Role is "system",
// "user", "assistant" or "tool".
type Message struct {
	Role       string
	Name       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolDef describes a callable tool to the model. Schema is the JSON
// schema of the tool arguments.
type ToolDef struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ChatModel produces one assistant turn from the conversation so far.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDef) (Message, error)
}

// NewChatModel selects a chat model from the model name and provider.
// An empty provider is inferred from the model name prefix; API keys and
// endpoints come from the environment.
func NewChatModel(modelName, provider string) (ChatModel, error) {
	if modelName == "" {
		modelName = os.Getenv("JOINLY_MODEL_NAME")
	}
	if modelName == "" {
		return nil, fmt.Errorf("no model name given; set JOINLY_MODEL_NAME")
	}
	if provider == "" {
		provider = os.Getenv("JOINLY_MODEL_PROVIDER")
	}
	if provider == "" {
		if strings.HasPrefix(modelName, "claude") {
			provider = ProviderAnthropic
		} else {
			provider = ProviderOpenAI
		}
	}

	switch provider {
	case ProviderOpenAI:
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		baseURL := os.Getenv("OPENAI_BASE_URL")
		if baseURL == "" {
			baseURL = defaultOpenAIBaseURL
		}
		return &openAIModel{
			url:    strings.TrimRight(baseURL, "/") + "/v1/chat/completions",
			auth:   "Bearer " + apiKey,
			model:  modelName,
			client: &http.Client{Timeout: llmRequestTimeout},
		}, nil

	case ProviderAzure:
		apiKey := os.Getenv("AZURE_OPENAI_API_KEY")
		endpoint := os.Getenv("AZURE_OPENAI_ENDPOINT")
		version := os.Getenv("AZURE_OPENAI_API_VERSION")
		if apiKey == "" || endpoint == "" || version == "" {
			return nil, fmt.Errorf("azure provider requires AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_API_VERSION")
		}
		return &openAIModel{
			url: fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
				strings.TrimRight(endpoint, "/"), modelName, version),
			apiKeyHeader: apiKey,
			model:        modelName,
			client:       &http.Client{Timeout: llmRequestTimeout},
		}, nil

	case ProviderAnthropic:
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
		baseURL := os.Getenv("ANTHROPIC_BASE_URL")
		if baseURL == "" {
			baseURL = defaultAnthropicBaseURL
		}
		return &anthropicModel{
			url:    strings.TrimRight(baseURL, "/") + "/v1/messages",
			apiKey: apiKey,
			model:  modelName,
			client: &http.Client{Timeout: llmRequestTimeout},
		}, nil
	}
	return nil, fmt.Errorf("unknown model provider %q, must be one of: openai, azure, anthropic", provider)
}

type openAIModel struct {
	url          string
	auth         string
	apiKeyHeader string
	model        string
	client       *http.Client
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Name       string           `json:"name,omitempty"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

func (m *openAIModel) Chat(ctx context.Context, messages []Message, tools []ToolDef) (Message, error) {
	msgs := make([]openAIMessage, 0, len(messages))
	for _, msg := range messages {
		om := openAIMessage{
			Role:       msg.Role,
			Name:       msg.Name,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				return Message{}, fmt.Errorf("encode tool call arguments: %w", err)
			}
			otc := openAIToolCall{ID: tc.ID, Type: "function"}
			otc.Function.Name = tc.Name
			otc.Function.Arguments = string(args)
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		msgs = append(msgs, om)
	}

	type toolWire struct {
		Type     string `json:"type"`
		Function struct {
			Name        string         `json:"name"`
			Description string         `json:"description,omitempty"`
			Parameters  map[string]any `json:"parameters,omitempty"`
		} `json:"function"`
	}
	wireTools := make([]toolWire, 0, len(tools))
	for _, t := range tools {
		tw := toolWire{Type: "function"}
		tw.Function.Name = t.Name
		tw.Function.Description = t.Description
		tw.Function.Parameters = t.Schema
		wireTools = append(wireTools, tw)
	}

	payload := map[string]any{
		"model":    m.model,
		"messages": msgs,
	}
	if len(wireTools) > 0 {
		payload["tools"] = wireTools
	}

	var response struct {
		Choices []struct {
			Message openAIMessage `json:"message"`
		} `json:"choices"`
	}
	if err := m.post(ctx, payload, &response); err != nil {
		return Message{}, err
	}
	if len(response.Choices) == 0 {
		return Message{}, fmt.Errorf("chat completion returned no choices")
	}

	out := Message{
		Role:    "assistant",
		Content: response.Choices[0].Message.Content,
	}
	for _, tc := range response.Choices[0].Message.ToolCalls {
		call := ToolCall{ID: tc.ID, Name: tc.Function.Name}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &call.Arguments); err != nil {
				return Message{}, fmt.Errorf("decode tool call arguments for %s: %w", tc.Function.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}
	return out, nil
}

func (m *openAIModel) post(ctx context.Context, payload, response any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.auth != "" {
		req.Header.Set("Authorization", m.auth)
	}
	if m.apiKeyHeader != "" {
		req.Header.Set("api-key", m.apiKeyHeader)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("chat completion failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.NewDecoder(resp.Body).Decode(response)
}

type anthropicModel struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

type anthropicContent struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

func (m *anthropicModel) Chat(ctx context.Context, messages []Message, tools []ToolDef) (Message, error) {
	type wireMessage struct {
		Role    string             `json:"role"`
		Content []anthropicContent `json:"content"`
	}

	var system string
	msgs := make([]wireMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = msg.Content
		case "assistant":
			var content []anthropicContent
			if msg.Content != "" {
				content = append(content, anthropicContent{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				content = append(content, anthropicContent{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: tc.Arguments,
				})
			}
			msgs = append(msgs, wireMessage{Role: "assistant", Content: content})
		case "tool":
			msgs = append(msgs, wireMessage{Role: "user", Content: []anthropicContent{{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   msg.Content,
			}}})
		default:
			text := msg.Content
			if msg.Name != "" {
				text = msg.Name + ": " + text
			}
			msgs = append(msgs, wireMessage{Role: "user", Content: []anthropicContent{{
				Type: "text",
				Text: text,
			}}})
		}
	}

	type toolWire struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		InputSchema map[string]any `json:"input_schema"`
	}
	wireTools := make([]toolWire, 0, len(tools))
	for _, t := range tools {
		schema := t.Schema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		wireTools = append(wireTools, toolWire{Name: t.Name, Description: t.Description, InputSchema: schema})
	}

	payload := map[string]any{
		"model":      m.model,
		"max_tokens": defaultMaxTokens,
		"messages":   msgs,
	}
	if system != "" {
		payload["system"] = system
	}
	if len(wireTools) > 0 {
		payload["tools"] = wireTools
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return Message{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", m.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := m.client.Do(req)
	if err != nil {
		return Message{}, fmt.Errorf("messages request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Message{}, fmt.Errorf("messages request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var response struct {
		Content []anthropicContent `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return Message{}, err
	}

	out := Message{Role: "assistant"}
	for _, block := range response.Content {
		switch block.Type {
		case "text":
			if out.Content != "" {
				out.Content += "\n"
			}
			out.Content += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}
	return out, nil
}
