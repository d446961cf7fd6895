package agent

import (
	"context"
	"fmt"

	"nbagent/pkg/agent/llm"
)

// MockClient provides a controllable implementation of llm.Client for testing.
type MockClient struct {
	responses     []llm.CompletionResponse
	responseIndex int
	errors        []error
	errorIndex    int

	// Streaming script: fragments are emitted in order, then streamErr (if
	// set) is emitted as a chunk error instead of a normal termination.
	fragments []string
	streamErr error

	requests []llm.CompletionRequest
}

// NewMockClient creates a mock client with predefined responses.
func NewMockClient(responses []llm.CompletionResponse, errors []error) *MockClient {
	return &MockClient{
		responses: responses,
		errors:    errors,
	}
}

// ScriptStream configures the fragments (and optional terminal error) that
// Stream emits.
func (m *MockClient) ScriptStream(fragments []string, streamErr error) {
	m.fragments = fragments
	m.streamErr = streamErr
}

// Requests returns every request seen so far, in order.
func (m *MockClient) Requests() []llm.CompletionRequest {
	return m.requests
}

// Complete returns the next predefined response or error.
func (m *MockClient) Complete(_ context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.requests = append(m.requests, in)
	if m.errorIndex < len(m.errors) && m.errors[m.errorIndex] != nil {
		err := m.errors[m.errorIndex]
		m.errorIndex++
		return llm.CompletionResponse{}, err
	}

	if m.responseIndex >= len(m.responses) {
		return llm.CompletionResponse{}, fmt.Errorf("mock client: no more responses")
	}

	resp := m.responses[m.responseIndex]
	m.responseIndex++
	return resp, nil
}

// Stream emits the scripted fragments, then either the scripted error or a
// normal Done chunk. With no script, it streams the next Complete response
// as a single chunk.
func (m *MockClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)

	if m.fragments == nil && m.streamErr == nil {
		resp, err := m.Complete(ctx, in)
		if err != nil {
			return nil, err
		}
		go func() {
			defer close(ch)
			select {
			case ch <- llm.StreamChunk{Content: resp.Content, Done: true}:
			case <-ctx.Done():
			}
		}()
		return ch, nil
	}

	m.requests = append(m.requests, in)
	go func() {
		defer close(ch)
		for _, fragment := range m.fragments {
			select {
			case ch <- llm.StreamChunk{Content: fragment}:
			case <-ctx.Done():
				return
			}
		}
		if m.streamErr != nil {
			select {
			case ch <- llm.StreamChunk{Error: m.streamErr}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case ch <- llm.StreamChunk{Done: true}:
		case <-ctx.Done():
		}
	}()

	return ch, nil
}

// ModelName returns a fixed mock model name.
func (m *MockClient) ModelName() string {
	return "mock-model"
}
