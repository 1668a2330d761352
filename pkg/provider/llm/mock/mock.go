// Package mock provides a scripted test double for the llm.Provider interface.
//
// Use Provider in unit tests to check the requests the report pipeline sends
// and to feed controlled responses without a live backend. Configure fields
// before the first call; call records are safe to read once the code under
// test returns.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteScript: []mock.CompleteResult{
//	        {Err: &llm.APIError{Provider: "mock", StatusCode: 529}},
//	        {Response: &llm.CompletionResponse{Content: "ok"}},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/eduardocaminha/reporter-sub000/pkg/provider/llm"
)

// CompleteResult is one scripted outcome of Complete.
type CompleteResult struct {
	Response *llm.CompletionResponse
	Err      error
}

// Call records a single invocation of Complete or StreamCompletion.
type Call struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// StreamChunks is emitted in order on the channel returned by
	// StreamCompletion. The channel is closed after the last chunk.
	StreamChunks []llm.Chunk

	// StreamErr, if non-nil, is returned from StreamCompletion instead of a
	// channel.
	StreamErr error

	// CompleteScript is consumed one entry per Complete call. Once exhausted,
	// CompleteResponse and CompleteErr are returned.
	CompleteScript []CompleteResult

	// CompleteResponse is returned by Complete when the script is exhausted.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr is returned by Complete when the script is exhausted.
	CompleteErr error

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities llm.ModelCapabilities

	StreamCalls   []Call
	CompleteCalls []Call
}

// StreamCompletion records the call and replays StreamChunks.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, Call{Ctx: ctx, Req: req})
	chunks := make([]llm.Chunk, len(p.StreamChunks))
	copy(chunks, p.StreamChunks)
	err := p.StreamErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	ch := make(chan llm.Chunk)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Complete records the call and returns the next scripted result.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, Call{Ctx: ctx, Req: req})

	if len(p.CompleteScript) > 0 {
		next := p.CompleteScript[0]
		p.CompleteScript = p.CompleteScript[1:]
		return next.Response, next.Err
	}
	return p.CompleteResponse, p.CompleteErr
}

// CountTokens returns the shared character-based estimate.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	return llm.EstimateTokens(messages), nil
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// CompleteCount returns the number of Complete calls recorded so far.
func (p *Provider) CompleteCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

// StreamCount returns the number of StreamCompletion calls recorded so far.
func (p *Provider) StreamCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StreamCalls)
}

var _ llm.Provider = (*Provider)(nil)
