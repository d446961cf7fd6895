package agent

import (
	"context"
	"fmt"

	"nbagent/pkg/agent/llm"
	"nbagent/pkg/agent/llmerrors"
	"nbagent/pkg/logx"
)

// Streamer produces lazy, forward-only fragment sequences from the
// provider registry. Each call yields a single-pass stream; retrying
// requires a fresh call.
type Streamer struct {
	registry *Registry
	logger   *logx.Logger
}

// NewStreamer creates a streamer over the given registry.
func NewStreamer(registry *Registry) *Streamer {
	return &Streamer{
		registry: registry,
		logger:   logx.NewLogger("streamer"),
	}
}

// Stream resolves the model key and yields text fragments on the returned
// channel. Providers without a streaming implementation fall back to a
// single non-streaming call whose whole output is one fragment.
//
// Configuration errors (unknown provider, missing credential) fail fast.
// Any backend failure after that point is contained: every fragment
// produced before the failure is delivered, followed by exactly one
// terminal diagnostic fragment, then the channel closes. The consumer
// never sees an error value.
func (s *Streamer) Stream(ctx context.Context, key string, req llm.CompletionRequest) (<-chan string, error) {
	client, provider, err := s.registry.Resolve(key)
	if err != nil {
		return nil, err
	}

	out := make(chan string)

	if !s.registry.SupportsStreaming(provider) {
		s.logger.Debug("provider %s has no streaming implementation, falling back to complete", provider)
		go func() {
			defer close(out)
			resp, err := client.Complete(ctx, req)
			if err != nil {
				s.logger.Warn("fallback completion failed: %v", err)
				send(ctx, out, diagnosticFragment(err))
				return
			}
			send(ctx, out, resp.Content)
		}()
		return out, nil
	}

	chunks, err := client.Stream(ctx, req)
	if err != nil {
		if llmerrors.IsConfiguration(err) {
			return nil, err
		}
		// Non-configuration call failure is contained like a mid-stream one.
		go func() {
			defer close(out)
			send(ctx, out, diagnosticFragment(err))
		}()
		return out, nil
	}

	go func() {
		defer close(out)
		for chunk := range chunks {
			if chunk.Error != nil {
				s.logger.Warn("stream from %s failed mid-flight: %v", provider, chunk.Error)
				send(ctx, out, diagnosticFragment(chunk.Error))
				return
			}
			if chunk.Content != "" {
				if !send(ctx, out, chunk.Content) {
					return
				}
			}
			if chunk.Done {
				return
			}
		}
	}()

	return out, nil
}

// send delivers one fragment unless the context is cancelled first. It
// reports whether the fragment was delivered; a false return means the
// consumer is gone and the stream should stop.
func send(ctx context.Context, out chan<- string, fragment string) bool {
	select {
	case out <- fragment:
		return true
	case <-ctx.Done():
		return false
	}
}

// CanStream reports whether the key resolves to a provider with a
// streaming implementation. Resolution errors are configuration errors.
func (s *Streamer) CanStream(key string) (bool, error) {
	_, provider, err := s.registry.Resolve(key)
	if err != nil {
		return false, err
	}
	return s.registry.SupportsStreaming(provider), nil
}

// Complete performs a single non-streaming generation for the model key.
func (s *Streamer) Complete(ctx context.Context, key string, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	client, _, err := s.registry.Resolve(key)
	if err != nil {
		return llm.CompletionResponse{}, err
	}
	return client.Complete(ctx, req)
}

func diagnosticFragment(err error) string {
	return fmt.Sprintf("[Error: %v]", err)
}
