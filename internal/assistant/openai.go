package assistant

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// OpenAIPlatform implements Platform using the OpenAI Assistants API
type OpenAIPlatform struct {
	client *openai.Client
}

// NewOpenAIPlatform creates a new OpenAI platform client. baseURL may be empty.
func NewOpenAIPlatform(apiKey string, baseURL string) *OpenAIPlatform {
	// Create HTTP client with proper timeouts
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: otelhttp.NewTransport(&http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}),
	}

	config := openai.DefaultConfig(apiKey)
	config.HTTPClient = httpClient
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}

	return &OpenAIPlatform{
		client: openai.NewClientWithConfig(config),
	}
}

// CreateAssistant registers an assistant carrying the given function tools and returns its id
func (p *OpenAIPlatform) CreateAssistant(ctx context.Context, spec AssistantSpec, tools []ToolDefinition) (string, error) {
	apiTools := make([]openai.AssistantTool, len(tools))
	for i, t := range tools {
		apiTools[i] = openai.AssistantTool{
			Type: openai.AssistantToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}

	name, instructions := spec.Name, spec.Instructions
	resp, err := p.client.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        spec.Model,
		Name:         &name,
		Instructions: &instructions,
		Tools:        apiTools,
	})
	if err != nil {
		return "", fmt.Errorf("openai create assistant: %w", err)
	}
	return resp.ID, nil
}

func (p *OpenAIPlatform) CreateThread(ctx context.Context, firstMessage string) (string, error) {
	thread, err := p.client.CreateThread(ctx, openai.ThreadRequest{
		Messages: []openai.ThreadMessage{
			{Role: openai.ThreadMessageRoleUser, Content: firstMessage},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai create thread: %w", err)
	}
	return thread.ID, nil
}

func (p *OpenAIPlatform) AppendMessage(ctx context.Context, threadID, content string) error {
	_, err := p.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    string(openai.ThreadMessageRoleUser),
		Content: content,
	})
	if err != nil {
		return fmt.Errorf("openai create message: %w", err)
	}
	return nil
}

func (p *OpenAIPlatform) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	run, err := p.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: assistantID})
	if err != nil {
		return nil, fmt.Errorf("openai create run: %w", err)
	}
	return convertRun(run), nil
}

func (p *OpenAIPlatform) RetrieveRun(ctx context.Context, threadID, runID string) (*Run, error) {
	run, err := p.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return nil, fmt.Errorf("openai retrieve run: %w", err)
	}
	return convertRun(run), nil
}

func (p *OpenAIPlatform) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Run, error) {
	apiOutputs := make([]openai.ToolOutput, len(outputs))
	for i, o := range outputs {
		apiOutputs[i] = openai.ToolOutput{ToolCallID: o.ToolCallID, Output: o.Output}
	}
	run, err := p.client.SubmitToolOutputs(ctx, threadID, runID, openai.SubmitToolOutputsRequest{
		ToolOutputs: apiOutputs,
	})
	if err != nil {
		return nil, fmt.Errorf("openai submit tool outputs: %w", err)
	}
	return convertRun(run), nil
}

func (p *OpenAIPlatform) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := p.client.CancelRun(ctx, threadID, runID); err != nil {
		return fmt.Errorf("openai cancel run: %w", err)
	}
	return nil
}

func (p *OpenAIPlatform) ListMessages(ctx context.Context, threadID string) ([]ThreadMessage, error) {
	limit := 100
	order := "desc"
	list, err := p.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("openai list messages: %w", err)
	}

	msgs := make([]ThreadMessage, len(list.Messages))
	for i, m := range list.Messages {
		var parts []string
		for _, c := range m.Content {
			if c.Type == "text" && c.Text != nil {
				parts = append(parts, c.Text.Value)
			}
		}
		msgs[i] = ThreadMessage{ID: m.ID, Role: m.Role, Text: strings.Join(parts, "\n")}
	}
	return msgs, nil
}

func convertRun(run openai.Run) *Run {
	result := &Run{
		ID:       run.ID,
		ThreadID: run.ThreadID,
		Status:   RunStatus(run.Status),
	}
	if run.LastError != nil {
		result.LastError = fmt.Sprintf("%s: %s", run.LastError.Code, run.LastError.Message)
	}
	if run.RequiredAction != nil && run.RequiredAction.SubmitToolOutputs != nil {
		calls := run.RequiredAction.SubmitToolOutputs.ToolCalls
		result.ToolCalls = make([]ToolCall, len(calls))
		for i, tc := range calls {
			result.ToolCalls[i] = ToolCall{
				ID:   tc.ID,
				Type: string(tc.Type),
				Function: FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}
	return result
}
