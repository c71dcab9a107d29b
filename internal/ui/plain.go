package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/reinhart/assistantGPT/internal/assistant"
	"github.com/reinhart/assistantGPT/internal/session"
)

// RunPlain is the line-based front end used when stdin is not a terminal.
// Without an agent it reads the API key from the first non-empty line.
// It returns when in is exhausted, ctx ends or the user types exit.
func RunPlain(ctx context.Context, in io.Reader, out io.Writer, opts Options) error {
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = 3 * time.Minute
	}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	agent, sess, notice := opts.Agent, opts.Session, opts.Notice
	for agent == nil || sess == nil {
		if opts.Connect == nil {
			return fmt.Errorf("no API key and no connector configured")
		}
		fmt.Fprint(out, "OpenAI API Key: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		key := strings.TrimSpace(scanner.Text())
		if key == "" {
			fmt.Fprintln(out, MsgInvalidKey)
			continue
		}

		cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		a, n, err := opts.Connect(cctx, key)
		cancel()
		if err != nil {
			fmt.Fprintf(out, "Could not connect: %v\n", err)
			continue
		}
		agent, sess, notice = a, session.New(key), n
	}
	defer sess.Close()

	fmt.Fprintf(out, "%s ready. Ask about a company's stock, /history to show the conversation, or exit to quit.\n", appName)
	if notice != "" {
		fmt.Fprintln(out, notice)
	}
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/history":
			if err := printTranscript(ctx, out, agent, sess); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
			}
			continue
		}

		tctx, cancel := context.WithTimeout(ctx, opts.TurnTimeout)
		answer, err := agent.ProcessMessage(tctx, sess, input)
		cancel()
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", appName, session.EscapeForDisplay(answer))
	}
}

// printTranscript prints the thread as the assistant service stores it, oldest first.
func printTranscript(ctx context.Context, out io.Writer, agent *assistant.Agent, sess *session.Session) error {
	msgs, err := agent.Transcript(ctx, sess)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Fprintln(out, "No messages yet.")
		return nil
	}
	for _, msg := range msgs {
		who := "You"
		if msg.Role == "assistant" {
			who = appName
		}
		fmt.Fprintf(out, "%s: %s\n", who, session.EscapeForDisplay(msg.Text))
	}
	return nil
}
