// Package agent keeps a conversation with the back office assistant.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cambista/internal/core"
	applog "cambista/internal/log"
)

// WelcomeMessage opens every conversation.
const WelcomeMessage = "Hola. Soy el Agente Amoretti. Puedo consultar transacciones, clientes y balances. ¿Qué necesitas?"

// Chatter sends one message and returns the assistant's reply.
type Chatter interface {
	Chat(ctx context.Context, message string) (string, error)
}

// Message is one line of the conversation.
type Message struct {
	Text     string
	FromUser bool
	At       time.Time
}

// Session is safe for concurrent use. Replies are appended in completion
// order.
type Session struct {
	chat   Chatter
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	messages []Message
	pending  int
}

func NewSession(chat Chatter, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default().With(applog.FieldComponent, applog.ComponentAgent)
	}
	s := &Session{chat: chat, logger: logger, now: time.Now}
	s.messages = []Message{{Text: WelcomeMessage, At: s.now()}}
	return s
}

// Messages returns a copy of the conversation so far.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Busy reports whether a reply is still outstanding.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending > 0
}

// Send posts text and waits for the reply. Blank input is ignored and
// reported with ok=false. Failures become an assistant line rather than an
// error so the conversation always records what happened.
func (s *Session) Send(ctx context.Context, text string) (reply Message, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, false
	}

	s.mu.Lock()
	s.messages = append(s.messages, Message{Text: text, FromUser: true, At: s.now()})
	s.pending++
	s.mu.Unlock()

	answer, err := s.chat.Chat(ctx, text)
	if err != nil {
		s.logger.WarnContext(ctx, "Agent call failed", applog.FieldError, err)
		answer = failureText(err)
	}
	reply = Message{Text: answer, At: s.now()}

	s.mu.Lock()
	s.messages = append(s.messages, reply)
	s.pending--
	s.mu.Unlock()
	return reply, true
}

func failureText(err error) string {
	if errors.Is(err, core.ErrConnectivity) {
		return "Connection error: " + strings.TrimPrefix(err.Error(), core.ErrConnectivity.Error()+": ")
	}
	return "Error: " + err.Error()
}
