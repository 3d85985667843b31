package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/flitsinc/go-llms/content"
	"github.com/flitsinc/go-llms/llms"
	llmtools "github.com/flitsinc/go-llms/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queryProvider asks for one native tool call, then finishes.
type queryProvider struct {
	calls int
}

type queryStream struct {
	statuses []llms.StreamStatus
	toolCall llms.ToolCall
	message  llms.Message
}

func (p *queryProvider) Company() string              { return "fake" }
func (p *queryProvider) Model() string                { return "fake" }
func (p *queryProvider) SetDebugger(d llms.Debugger)  {}
func (p *queryProvider) SetHTTPClient(_ *http.Client) {}

func (p *queryProvider) Generate(_ context.Context, _ content.Content, _ []llms.Message, _ *llmtools.Toolbox, _ *llmtools.ValueSchema) llms.ProviderStream {
	p.calls++
	if p.calls == 1 {
		toolCall := llms.ToolCall{ID: "call-1", Name: "querySelf", Arguments: json.RawMessage(`{}`)}
		return &queryStream{
			statuses: []llms.StreamStatus{llms.StreamStatusToolCallBegin, llms.StreamStatusToolCallDelta, llms.StreamStatusToolCallReady},
			toolCall: toolCall,
			message:  llms.Message{Role: "assistant", ToolCalls: []llms.ToolCall{toolCall}},
		}
	}
	return &queryStream{
		statuses: []llms.StreamStatus{llms.StreamStatusText},
		message:  llms.Message{Role: "assistant", Content: content.FromText("done")},
	}
}

func (s *queryStream) Err() error               { return nil }
func (s *queryStream) Message() llms.Message    { return s.message }
func (s *queryStream) Text() string             { return "done" }
func (s *queryStream) Image() (string, string)  { return "", "" }
func (s *queryStream) Audio() (string, string)  { return "", "" }
func (s *queryStream) Thought() content.Thought { return content.Thought{} }
func (s *queryStream) ToolCall() llms.ToolCall  { return s.toolCall }
func (s *queryStream) Usage() llms.Usage        { return llms.Usage{} }
func (s *queryStream) Iter() func(func(llms.StreamStatus) bool) {
	return func(yield func(llms.StreamStatus) bool) {
		for _, status := range s.statuses {
			if !yield(status) {
				return
			}
		}
	}
}

func TestAddExternalToolsDispatch(t *testing.T) {
	provider := &queryProvider{}
	client := &Client{LLM: llms.New(provider)}

	schemas := []llmtools.FunctionSchema{{Name: "querySelf", Description: "Report own state", Parameters: llmtools.ValueSchema{Type: "object"}}}
	var gotName string
	AddExternalTools(client, schemas, func(_ context.Context, name string, _ json.RawMessage) (any, error) {
		gotName = name
		return map[string]any{"health": 20.0}, nil
	})

	for range client.LLM.Chat("check yourself") {
	}
	require.NoError(t, client.LLM.Err())
	assert.Equal(t, "querySelf", gotName)
}

func TestAddExternalToolsNilSafe(t *testing.T) {
	AddExternalTools(nil, nil, nil)

	var client *Client
	AddExternalTools(client, nil, func(context.Context, string, json.RawMessage) (any, error) {
		return nil, nil
	})
}
