// Package google provides the Google Gemini client implementation for the llm.Client interface.
package google

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"nbagent/pkg/agent/llm"
	"nbagent/pkg/agent/llmerrors"
)

// Client wraps the Google GenAI client to implement llm.Client.
type Client struct {
	client *genai.Client
	apiKey string
	model  string
}

// NewClient creates a new Gemini client for the given model. The underlying
// SDK client requires a context, so creation is deferred to first use.
func NewClient(apiKey, model string) llm.Client {
	return &Client{
		apiKey: apiKey,
		model:  model,
	}
}

func (g *Client) ensureClient(ctx context.Context) error {
	if g.client != nil {
		return nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeConfiguration, err, "failed to create Gemini client")
	}
	g.client = client
	return nil
}

// convertMessages converts our message format to Gemini's Content format,
// extracting system messages into a system instruction.
func convertMessages(messages []llm.CompletionMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	var systemInstruction string
	var contents []*genai.Content

	for i := range messages {
		msg := &messages[i]

		if msg.Role == llm.RoleSystem {
			if systemInstruction != "" {
				systemInstruction += "\n\n" + msg.Content
			} else {
				systemInstruction = msg.Content
			}
			continue
		}

		var role string
		switch msg.Role {
		case llm.RoleUser:
			role = "user"
		case llm.RoleAssistant:
			role = "model" // Gemini uses "model" instead of "assistant"
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		if msg.Content == "" {
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	return contents, systemInstruction, nil
}

func (g *Client) buildConfig(in *llm.CompletionRequest, systemInstruction string) *genai.GenerateContentConfig {
	//nolint:gosec // MaxTokens validated at higher layer, overflow acceptable
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(in.MaxTokens),
	}
	if in.Temperature > 0 {
		temp := in.Temperature
		cfg.Temperature = &temp
	}
	if in.TopP > 0 {
		topP := in.TopP
		cfg.TopP = &topP
	}
	if in.TopK > 0 {
		topK := float32(in.TopK)
		cfg.TopK = &topK
	}
	if systemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}
	return cfg
}

// Complete implements the llm.Client interface.
func (g *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if err := g.ensureClient(ctx); err != nil {
		return llm.CompletionResponse{}, err
	}

	contents, systemInstruction, err := convertMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorf(llmerrors.ErrorTypeBadPrompt, "message conversion error: %v", err)
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.buildConfig(&in, systemInstruction))
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "Gemini API call failed")
	}
	if result == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	return llm.CompletionResponse{
		Content:    result.Text(),
		StopReason: "end_turn",
	}, nil
}

// Stream implements the llm.Client interface using GenerateContentStream.
func (g *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	if err := g.ensureClient(ctx); err != nil {
		return nil, err
	}

	contents, systemInstruction, err := convertMessages(in.Messages)
	if err != nil {
		return nil, llmerrors.NewErrorf(llmerrors.ErrorTypeBadPrompt, "message conversion error: %v", err)
	}
	cfg := g.buildConfig(&in, systemInstruction)

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
			if err != nil {
				select {
				case ch <- llm.StreamChunk{Error: llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "Gemini stream failed")}:
				case <-ctx.Done():
				}
				return
			}
			if text := resp.Text(); text != "" {
				select {
				case ch <- llm.StreamChunk{Content: text}:
				case <-ctx.Done():
					return
				}
			}
		}
		select {
		case ch <- llm.StreamChunk{Done: true}:
		case <-ctx.Done():
		}
	}()

	return ch, nil
}

// ModelName returns the model name for this client.
func (g *Client) ModelName() string {
	return g.model
}
