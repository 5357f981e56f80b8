// Package llm abstracts the language-model completion provider used for
// goal analysis, decomposition, review scoring, and failure classification.
// The provider is a swappable external collaborator: nothing downstream may
// depend on exact response wording, only on text and bounded scores.
package llm

import (
	"context"
	"errors"
)

// Sentinel errors representing provider failure modes. The recovery engine
// maps these to failure categories.
var (
	// ErrRateLimited indicates the provider rejected the call for rate limiting.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrTimeout indicates the call exceeded its deadline.
	ErrTimeout = errors.New("provider timeout")
	// ErrOverloaded indicates a transient provider-side overload.
	ErrOverloaded = errors.New("provider overloaded")
)

// Message is one turn of conversation history.
type Message struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}

// Request is a completion request.
type Request struct {
	// RoleContext is the system context establishing the caller's role.
	RoleContext string `json:"role_context"`
	// History is the conversation so far, ending with the prompt.
	History []Message `json:"conversation_history"`
	// MaxTokens bounds the response length.
	MaxTokens int64 `json:"max_tokens"`
}

// Response is a completion response with measured token usage.
type Response struct {
	// Text is the completion text.
	Text string `json:"text"`
	// InputTokens is the prompt token count.
	InputTokens int64 `json:"input_tokens"`
	// OutputTokens is the completion token count.
	OutputTokens int64 `json:"output_tokens"`
}

// TotalTokens returns the combined token usage of the call.
func (r *Response) TotalTokens() int64 {
	return r.InputTokens + r.OutputTokens
}

// Cost estimates the call cost in dollars at approximate Sonnet pricing.
func (r *Response) Cost() float64 {
	return float64(r.InputTokens)/1_000_000*3.0 + float64(r.OutputTokens)/1_000_000*15.0
}

// Provider is the completion provider contract.
type Provider interface {
	// Complete performs one completion call.
	Complete(ctx context.Context, req Request) (*Response, error)
}
