package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/reinhart/assistantGPT/internal/logger"
	"github.com/reinhart/assistantGPT/internal/session"
)

var (
	// ErrPollTimeout is returned when a run is still pending after the last poll attempt.
	ErrPollTimeout = errors.New("run did not finish within the polling limit")
	// ErrNoAnswer is returned when a run completed but the thread holds no assistant reply.
	ErrNoAnswer = errors.New("run completed without an assistant reply")
	// ErrEmptyInput is returned for blank user messages.
	ErrEmptyInput = errors.New("message is empty")
)

// RunError reports a run that ended in failed, cancelled, expired or incomplete.
type RunError struct {
	RunID  string
	Status RunStatus
	Reason string
}

func (e *RunError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("run %s ended with status %s: %s", e.RunID, e.Status, e.Reason)
	}
	return fmt.Sprintf("run %s ended with status %s", e.RunID, e.Status)
}

// StatusUpdate represents a real-time update from the agent
type StatusUpdate struct {
	Message string
}

// Options bound the poll loop of a single turn
type Options struct {
	PollInterval    time.Duration
	MaxPollAttempts int
}

// DefaultOptions polls every 500ms for at most two minutes.
func DefaultOptions() Options {
	return Options{PollInterval: 500 * time.Millisecond, MaxPollAttempts: 240}
}

// Agent drives conversational turns against a hosted assistant: it submits the
// user's message, polls the run and answers tool calls from the registry.
type Agent struct {
	platform    Platform
	registry    *ToolRegistry
	assistantID string
	opts        Options
	updates     chan StatusUpdate // Channel for sending updates to UI
	tracer      trace.Tracer
}

// NewAgent creates a new agent instance
func NewAgent(platform Platform, registry *ToolRegistry, assistantID string, opts Options) *Agent {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if opts.MaxPollAttempts <= 0 {
		opts.MaxPollAttempts = DefaultOptions().MaxPollAttempts
	}
	return &Agent{
		platform:    platform,
		registry:    registry,
		assistantID: assistantID,
		opts:        opts,
		updates:     make(chan StatusUpdate, 10), // Buffered channel
		tracer:      otel.Tracer("github.com/reinhart/assistantGPT/internal/assistant"),
	}
}

// EnsureAssistant returns assistantID when set, otherwise creates an assistant
// advertising every tool in the registry. created reports whether a new
// assistant was made, so the caller can tell the user which id to configure.
func EnsureAssistant(ctx context.Context, platform Platform, registry *ToolRegistry, assistantID string, spec AssistantSpec) (id string, created bool, err error) {
	if assistantID != "" {
		return assistantID, false, nil
	}
	if spec.Instructions == "" {
		spec.Instructions = DefaultInstructions
	}
	id, err = platform.CreateAssistant(ctx, spec, registry.Definitions())
	if err != nil {
		return "", false, err
	}
	logger.Info("Created assistant %s with tools %v", id, registry.Names())
	return id, true, nil
}

// DefaultInstructions is the system prompt used when the app creates its own assistant.
const DefaultInstructions = `You are a stock research assistant.
You help users decide whether a public company's stock is worth buying.
Use get_ticker to find a company's ticker symbol when you do not know it; its result is raw search text, so extract the symbol yourself.
Use get_income_statement, get_balance_sheet and get_daily_stock_performance with a clean ticker symbol (for example AAPL).
Base your opinion on the data you fetched and say when data is missing.`

// Updates returns the channel for status updates
func (a *Agent) Updates() <-chan StatusUpdate {
	return a.updates
}

// sendUpdate sends a status update non-blocking
func (a *Agent) sendUpdate(msg string) {
	select {
	case a.updates <- StatusUpdate{Message: msg}:
	default:
		// Drop if channel full or no listener
	}
}

// ProcessMessage runs one turn: it posts input to the session's thread (creating
// the thread on the first turn), starts a run and polls it to a terminal status.
func (a *Agent) ProcessMessage(ctx context.Context, sess *session.Session, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyInput
	}

	ctx, span := a.tracer.Start(ctx, "assistant.turn", trace.WithAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("assistant.id", a.assistantID),
	))
	defer span.End()

	logger.Info("Processing user input: %s", input)
	sess.Append(session.Message{Content: input, Role: session.RoleHuman})

	answer, err := a.runTurn(ctx, sess, input)
	if err != nil {
		logger.Error(err, "Turn failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.sendUpdate("Error: " + err.Error())
		return "", err
	}

	sess.Append(session.Message{Content: answer, Role: session.RoleAI})
	a.sendUpdate("Done")
	return answer, nil
}

func (a *Agent) runTurn(ctx context.Context, sess *session.Session, input string) (string, error) {
	threadID := sess.ThreadID()
	if threadID == "" {
		a.sendUpdate("Creating thread...")
		id, err := a.platform.CreateThread(ctx, input)
		if err != nil {
			return "", err
		}
		logger.Debug("Created thread %s", id)
		sess.SetThread(id)
		threadID = id
	} else {
		a.sendUpdate("Sending message...")
		if err := a.platform.AppendMessage(ctx, threadID, input); err != nil {
			return "", err
		}
	}

	a.sendUpdate("Starting run...")
	run, err := a.platform.CreateRun(ctx, threadID, a.assistantID)
	if err != nil {
		return "", err
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("thread.id", threadID),
		attribute.String("run.id", run.ID),
	)

	if err := a.awaitRun(ctx, threadID, run); err != nil {
		return "", err
	}
	return a.latestAnswer(ctx, threadID)
}

// awaitRun polls until the run completes. Failure statuses, tool errors, an
// exhausted attempt budget and ctx cancellation all end the loop with an error.
func (a *Agent) awaitRun(ctx context.Context, threadID string, run *Run) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(a.opts.PollInterval), uint64(a.opts.MaxPollAttempts)),
		ctx,
	)

	var lastStatus RunStatus
	for {
		if run.Status != lastStatus {
			logger.Debug("Run %s status: %s", run.ID, run.Status)
			a.sendUpdate(fmt.Sprintf("Run status: %s", run.Status))
			lastStatus = run.Status
		}

		switch {
		case run.Status == RunStatusCompleted:
			return nil
		case run.Status.Failed():
			return &RunError{RunID: run.ID, Status: run.Status, Reason: run.LastError}
		case run.Status == RunStatusRequiresAction:
			next, err := a.submitToolOutputs(ctx, threadID, run)
			if err != nil {
				a.cancelRun(ctx, threadID, run.ID)
				return err
			}
			run = next
		case !run.Status.Pending():
			logger.Info("Run %s reported unexpected status %q, polling again", run.ID, run.Status)
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			a.cancelRun(ctx, threadID, run.ID)
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("%w (%d attempts, last status %s)", ErrPollTimeout, a.opts.MaxPollAttempts, run.Status)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.cancelRun(ctx, threadID, run.ID)
			return ctx.Err()
		case <-timer.C:
		}

		next, err := a.platform.RetrieveRun(ctx, threadID, run.ID)
		if err != nil {
			a.cancelRun(ctx, threadID, run.ID)
			return err
		}
		run = next
	}
}

// submitToolOutputs answers every tool call of a requires_action run, one after
// another, and submits the whole batch in one request.
func (a *Agent) submitToolOutputs(ctx context.Context, threadID string, run *Run) (*Run, error) {
	if len(run.ToolCalls) == 0 {
		return nil, fmt.Errorf("run %s requires action but carries no tool calls", run.ID)
	}

	outputs := make([]ToolOutput, 0, len(run.ToolCalls))
	for _, tc := range run.ToolCalls {
		output, err := a.executeTool(ctx, tc)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, ToolOutput{ToolCallID: tc.ID, Output: output})
	}

	a.sendUpdate(fmt.Sprintf("Submitting %d tool output(s)...", len(outputs)))
	return a.platform.SubmitToolOutputs(ctx, threadID, run.ID, outputs)
}

func (a *Agent) executeTool(ctx context.Context, tc ToolCall) (string, error) {
	ctx, span := a.tracer.Start(ctx, "assistant.tool", trace.WithAttributes(
		attribute.String("tool.name", tc.Function.Name),
		attribute.String("tool.call_id", tc.ID),
	))
	defer span.End()

	logger.Info("Tool Call Request: %s(%s)", tc.Function.Name, tc.Function.Arguments)
	a.sendUpdate(fmt.Sprintf("Calling %s...", tc.Function.Name))

	start := time.Now()
	output, err := a.registry.Dispatch(ctx, tc.Function.Name, tc.Function.Arguments)
	if err != nil {
		logger.Info("Tool Execution Error (%s): %v", tc.Function.Name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("tool call %s failed: %w", tc.ID, err)
	}
	logger.Debug("Tool Output (%s, %s): %d bytes", tc.Function.Name, time.Since(start), len(output))
	a.sendUpdate(fmt.Sprintf("Finished %s", tc.Function.Name))
	return output, nil
}

// cancelRun releases the thread after an aborted turn; a thread with an active
// run rejects new messages. Failures are only logged.
func (a *Agent) cancelRun(ctx context.Context, threadID, runID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := a.platform.CancelRun(cctx, threadID, runID); err != nil {
		logger.Info("Failed to cancel run %s: %v", runID, err)
	}
}

func (a *Agent) latestAnswer(ctx context.Context, threadID string) (string, error) {
	msgs, err := a.platform.ListMessages(ctx, threadID)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 || msgs[0].Role != "assistant" {
		return "", ErrNoAnswer
	}
	return msgs[0].Text, nil
}

// Transcript returns the session's thread messages oldest first.
func (a *Agent) Transcript(ctx context.Context, sess *session.Session) ([]ThreadMessage, error) {
	threadID := sess.ThreadID()
	if threadID == "" {
		return nil, nil
	}
	msgs, err := a.platform.ListMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
