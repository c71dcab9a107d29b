package assistant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newFakeOpenAI serves the subset of the Assistants API the platform adapter uses.
func newFakeOpenAI(t *testing.T, bodies map[string]*json.RawMessage) *OpenAIPlatform {
	t.Helper()

	capture := func(key string, r *http.Request) {
		if bodies == nil {
			return
		}
		b, _ := io.ReadAll(r.Body)
		raw := json.RawMessage(b)
		bodies[key] = &raw
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/assistants", func(w http.ResponseWriter, r *http.Request) {
		capture("assistant", r)
		w.Write([]byte(`{"id":"asst_1","object":"assistant","model":"gpt-4o-mini","tools":[]}`))
	})
	mux.HandleFunc("POST /v1/threads", func(w http.ResponseWriter, r *http.Request) {
		capture("thread", r)
		w.Write([]byte(`{"id":"thread_1","object":"thread"}`))
	})
	mux.HandleFunc("POST /v1/threads/thread_1/messages", func(w http.ResponseWriter, r *http.Request) {
		capture("message", r)
		w.Write([]byte(`{"id":"msg_9","object":"thread.message","role":"user"}`))
	})
	mux.HandleFunc("POST /v1/threads/thread_1/runs", func(w http.ResponseWriter, r *http.Request) {
		capture("run", r)
		w.Write([]byte(`{"id":"run_1","thread_id":"thread_1","status":"queued"}`))
	})
	mux.HandleFunc("GET /v1/threads/thread_1/runs/run_1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("OpenAI-Beta") != "assistants=v2" {
			t.Errorf("OpenAI-Beta = %q", r.Header.Get("OpenAI-Beta"))
		}
		w.Write([]byte(`{"id":"run_1","thread_id":"thread_1","status":"requires_action",
"required_action":{"type":"submit_tool_outputs","submit_tool_outputs":{"tool_calls":[
 {"id":"call_1","type":"function","function":{"name":"get_ticker","arguments":"{\"company_name\":\"Apple\"}"}},
 {"id":"call_2","type":"function","function":{"name":"get_balance_sheet","arguments":"{\"ticker\":\"AAPL\"}"}}]}}}`))
	})
	mux.HandleFunc("GET /v1/threads/thread_1/runs/run_failed", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"run_failed","thread_id":"thread_1","status":"failed","last_error":{"code":"rate_limit_exceeded","message":"quota"}}`))
	})
	mux.HandleFunc("POST /v1/threads/thread_1/runs/run_1/submit_tool_outputs", func(w http.ResponseWriter, r *http.Request) {
		capture("outputs", r)
		w.Write([]byte(`{"id":"run_1","thread_id":"thread_1","status":"queued"}`))
	})
	mux.HandleFunc("POST /v1/threads/thread_1/runs/run_1/cancel", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"run_1","thread_id":"thread_1","status":"cancelling"}`))
	})
	mux.HandleFunc("GET /v1/threads/thread_1/messages", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("order"); got != "desc" {
			t.Errorf("order = %q, want desc", got)
		}
		w.Write([]byte(`{"object":"list","has_more":false,"data":[
 {"id":"msg_2","role":"assistant","content":[{"type":"text","text":{"value":"Apple trades as AAPL.","annotations":[]}}]},
 {"id":"msg_1","role":"user","content":[{"type":"text","text":{"value":"What is Apple's ticker?","annotations":[]}}]}]}`))
	})
	mux.HandleFunc("GET /v1/threads/missing/messages", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"No thread found with id 'missing'.","type":"invalid_request_error"}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewOpenAIPlatform("sk-test", srv.URL+"/v1")
}

func TestOpenAIPlatform_TurnCalls(t *testing.T) {
	bodies := map[string]*json.RawMessage{}
	p := newFakeOpenAI(t, bodies)
	ctx := context.Background()

	threadID, err := p.CreateThread(ctx, "What is Apple's ticker?")
	if err != nil || threadID != "thread_1" {
		t.Fatalf("CreateThread() = %q, %v", threadID, err)
	}
	var thread struct {
		Messages []struct{ Role, Content string } `json:"messages"`
	}
	json.Unmarshal(*bodies["thread"], &thread)
	if len(thread.Messages) != 1 || thread.Messages[0].Role != "user" || thread.Messages[0].Content != "What is Apple's ticker?" {
		t.Errorf("thread request = %s", *bodies["thread"])
	}

	if err := p.AppendMessage(ctx, threadID, "and Microsoft?"); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	run, err := p.CreateRun(ctx, threadID, "asst_1")
	if err != nil || run.ID != "run_1" || run.Status != RunStatusQueued {
		t.Fatalf("CreateRun() = %+v, %v", run, err)
	}
	var runReq struct {
		AssistantID string `json:"assistant_id"`
	}
	json.Unmarshal(*bodies["run"], &runReq)
	if runReq.AssistantID != "asst_1" {
		t.Errorf("assistant_id = %q", runReq.AssistantID)
	}

	run, err = p.RetrieveRun(ctx, threadID, "run_1")
	if err != nil {
		t.Fatalf("RetrieveRun() error = %v", err)
	}
	if run.Status != RunStatusRequiresAction || len(run.ToolCalls) != 2 {
		t.Fatalf("RetrieveRun() = %+v", run)
	}
	if tc := run.ToolCalls[0]; tc.ID != "call_1" || tc.Function.Name != "get_ticker" || tc.Function.Arguments != `{"company_name":"Apple"}` {
		t.Errorf("ToolCalls[0] = %+v", tc)
	}

	run, err = p.SubmitToolOutputs(ctx, threadID, "run_1", []ToolOutput{
		{ToolCallID: "call_1", Output: "AAPL"},
		{ToolCallID: "call_2", Output: `{"2023-09-30":{"TotalAssets":1}}`},
	})
	if err != nil || run.Status != RunStatusQueued {
		t.Fatalf("SubmitToolOutputs() = %+v, %v", run, err)
	}
	var outputs struct {
		ToolOutputs []struct {
			ToolCallID string `json:"tool_call_id"`
			Output     string `json:"output"`
		} `json:"tool_outputs"`
	}
	json.Unmarshal(*bodies["outputs"], &outputs)
	if len(outputs.ToolOutputs) != 2 || outputs.ToolOutputs[0].ToolCallID != "call_1" || outputs.ToolOutputs[0].Output != "AAPL" {
		t.Errorf("submit request = %s", *bodies["outputs"])
	}

	if err := p.CancelRun(ctx, threadID, "run_1"); err != nil {
		t.Errorf("CancelRun() error = %v", err)
	}

	msgs, err := p.ListMessages(ctx, threadID)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != "assistant" || msgs[0].Text != "Apple trades as AAPL." {
		t.Errorf("ListMessages() = %+v", msgs)
	}
}

func TestOpenAIPlatform_FailedRunCarriesReason(t *testing.T) {
	p := newFakeOpenAI(t, nil)

	run, err := p.RetrieveRun(context.Background(), "thread_1", "run_failed")
	if err != nil {
		t.Fatal(err)
	}
	if !run.Status.Failed() {
		t.Errorf("status %s should be a failure", run.Status)
	}
	if run.LastError != "rate_limit_exceeded: quota" {
		t.Errorf("LastError = %q", run.LastError)
	}
}

func TestOpenAIPlatform_APIError(t *testing.T) {
	p := newFakeOpenAI(t, nil)

	if _, err := p.ListMessages(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown thread")
	}
}

func TestOpenAIPlatform_CreateAssistant(t *testing.T) {
	bodies := map[string]*json.RawMessage{}
	p := newFakeOpenAI(t, bodies)
	registry := NewStockToolRegistry(&stubSearcher{}, &fakeMarket{}, 0)

	id, err := p.CreateAssistant(context.Background(), AssistantSpec{
		Name: "AssistantGPT", Instructions: DefaultInstructions, Model: "gpt-4o-mini",
	}, registry.Definitions())
	if err != nil || id != "asst_1" {
		t.Fatalf("CreateAssistant() = %q, %v", id, err)
	}

	var req struct {
		Model string `json:"model"`
		Name  string `json:"name"`
		Tools []struct {
			Type     string `json:"type"`
			Function struct {
				Name       string          `json:"name"`
				Parameters json.RawMessage `json:"parameters"`
			} `json:"function"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(*bodies["assistant"], &req); err != nil {
		t.Fatal(err)
	}
	if req.Model != "gpt-4o-mini" || req.Name != "AssistantGPT" {
		t.Errorf("assistant request = %s", *bodies["assistant"])
	}
	if len(req.Tools) != 4 {
		t.Fatalf("tools = %d, want 4", len(req.Tools))
	}
	for _, tool := range req.Tools {
		if tool.Type != "function" || len(tool.Function.Parameters) == 0 {
			t.Errorf("tool = %+v", tool)
		}
		if _, ok := registry.Get(tool.Function.Name); !ok {
			t.Errorf("advertised unknown tool %q", tool.Function.Name)
		}
	}
}
