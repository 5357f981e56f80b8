package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ghostpirates/crew/internal/executor"
	"github.com/ghostpirates/crew/internal/llm"
	"github.com/ghostpirates/crew/internal/tools"
	"github.com/ghostpirates/crew/pkg/models"
)

// builtinTools are the tool definitions every crewd install ships with.
// All four are backed by the language-model provider; they differ in the
// capability tags the selector matches against task requirements and in
// the working style the preamble establishes.
var builtinTools = []struct {
	def      models.ToolDefinition
	preamble string
}{
	{
		def: models.ToolDefinition{
			ID:       "tool-completion",
			Name:     "completion",
			Category: models.ToolCategoryCompletion,
			Tags:     []string{"write", "draft", "plan", "summarize", "review", "explain", "document", "completion"},
			Healthy:  true,
		},
		preamble: "Produce the requested deliverable directly. Be concrete and complete.",
	},
	{
		def: models.ToolDefinition{
			ID:       "tool-search",
			Name:     "search",
			Category: models.ToolCategorySearch,
			Tags:     []string{"search", "research", "find", "lookup", "gather", "investigate"},
			Healthy:  true,
		},
		preamble: "Research the question from what you know. List findings with the reasoning behind each.",
	},
	{
		def: models.ToolDefinition{
			ID:       "tool-code-exec",
			Name:     "code_exec",
			Category: models.ToolCategoryCodeExec,
			Tags:     []string{"code", "implement", "build", "debug", "test", "refactor", "code_exec"},
			Healthy:  true,
		},
		preamble: "Write working code for the task. Include only the code and a short usage note.",
	},
	{
		def: models.ToolDefinition{
			ID:       "tool-file-io",
			Name:     "file_io",
			Category: models.ToolCategoryFileIO,
			Tags:     []string{"file", "organize", "format", "convert", "extract", "file_io"},
			Healthy:  true,
		},
		preamble: "Transform the given content as requested. Output only the transformed result.",
	},
}

// registerBuiltinTools registers the built-in tool set and binds each to
// the completion backend, with the tool's preamble appended to the role
// context of every invocation.
func registerBuiltinTools(reg *tools.Registry, exec *executor.Executor, provider llm.Provider, maxTokens int) error {
	base := executor.NewCompletionProvider(provider)
	for _, bt := range builtinTools {
		def := bt.def
		if err := reg.Register(&def); err != nil {
			return fmt.Errorf("register %s: %w", def.Name, err)
		}
		preamble := bt.preamble
		exec.Bind(def.ID, executor.ProviderFunc(func(ctx context.Context, params map[string]any) (*executor.ToolOutput, error) {
			p := make(map[string]any, len(params)+2)
			for k, v := range params {
				p[k] = v
			}
			rc, _ := params["role_context"].(string)
			p["role_context"] = strings.TrimSpace(rc + "\n" + preamble)
			if _, ok := p["max_tokens"]; !ok {
				p["max_tokens"] = maxTokens
			}
			return base.Invoke(ctx, p)
		}))
	}
	return nil
}
