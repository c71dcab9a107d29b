// Package session holds the state of one conversation: the credential, the
// server-side thread handle and the rendered message history.
package session

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
)

// Message is one entry of the visible history. It is never mutated after Append.
type Message struct {
	Content string
	Role    Role
}

// Session is owned by a single conversation. Turns are expected to run one at a
// time; the mutex only guards reads from the UI while a turn is in flight.
type Session struct {
	ID string

	mu         sync.RWMutex
	credential string
	threadID   string
	history    []Message
}

// New starts a session for the given credential.
func New(credential string) *Session {
	return &Session{
		ID:         uuid.NewString(),
		credential: credential,
	}
}

func (s *Session) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

// ThreadID returns the assistant thread bound to this session, or "" before the first turn.
func (s *Session) ThreadID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threadID
}

func (s *Session) SetThread(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threadID = id
}

func (s *Session) Append(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, m)
}

// History returns a copy of the stored messages in insertion order.
func (s *Session) History() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// Display returns the history prepared for rendering.
func (s *Session) Display() []Message {
	msgs := s.History()
	for i := range msgs {
		msgs[i].Content = EscapeForDisplay(msgs[i].Content)
	}
	return msgs
}

// Close drops everything the session holds.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = ""
	s.threadID = ""
	s.history = nil
}

// EscapeForDisplay escapes currency signs so markdown renderers do not read them as math delimiters.
func EscapeForDisplay(text string) string {
	return strings.ReplaceAll(text, "$", `\$`)
}
