package executor

import (
	"context"
	"fmt"

	"github.com/ghostpirates/crew/internal/llm"
)

// CompletionProvider adapts a language-model provider to the uniform tool
// provider contract. Parameters: role_context, prompt, max_tokens.
type CompletionProvider struct {
	provider llm.Provider
}

// NewCompletionProvider wraps an llm.Provider as a tool backend.
func NewCompletionProvider(p llm.Provider) *CompletionProvider {
	return &CompletionProvider{provider: p}
}

// Invoke implements ToolProvider.
func (c *CompletionProvider) Invoke(ctx context.Context, params map[string]any) (*ToolOutput, error) {
	prompt, _ := params["prompt"].(string)
	if prompt == "" {
		return nil, fmt.Errorf("completion tool requires a prompt parameter")
	}

	req := llm.Request{
		History: []llm.Message{{Role: "user", Content: prompt}},
	}
	if rc, ok := params["role_context"].(string); ok {
		req.RoleContext = rc
	}
	switch mt := params["max_tokens"].(type) {
	case int:
		req.MaxTokens = int64(mt)
	case float64:
		req.MaxTokens = int64(mt)
	}

	resp, err := c.provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	return &ToolOutput{
		Output:    resp.Text,
		CostUnits: resp.Cost(),
		Tokens:    resp.TotalTokens(),
	}, nil
}
