package ai

import (
	"context"
	"encoding/json"

	"github.com/flitsinc/go-llms/llms"
	llmtools "github.com/flitsinc/go-llms/tools"
)

// ExternalHandler answers a tool call the model makes mid-completion.
type ExternalHandler func(ctx context.Context, name string, params json.RawMessage) (any, error)

// AddExternalTools registers tool schemas on the client's LLM so the model
// can invoke them natively while generating. Callers decide which tools are
// safe to expose this way.
func AddExternalTools(client *Client, schemas []llmtools.FunctionSchema, handler ExternalHandler) {
	if client == nil || client.LLM == nil || len(schemas) == 0 {
		return
	}
	client.LLM.AddExternalTools(schemas, func(r llmtools.Runner, params json.RawMessage) llmtools.Result {
		toolCall, ok := llms.GetToolCall(r.Context())
		if !ok {
			return llmtools.Errorf("missing tool call")
		}
		result, err := handler(r.Context(), toolCall.Name, params)
		if err != nil {
			return llmtools.Error(err)
		}
		return llmtools.Success(result)
	})
}
