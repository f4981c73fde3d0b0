// Package chat holds the server-side conversation with the language model:
// one Session per relay connection, with a fixed system instruction and an
// ordered history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 30 * time.Second

// Provider opens chat conversations with a hosted model.
type Provider interface {
	Name() string
	NewSession(ctx context.Context, systemInstruction string) (Handle, error)
}

// Handle is one provider-side conversation. The provider keeps the context
// of prior turns.
type Handle interface {
	Send(ctx context.Context, text string) (string, error)
}

// Role identifies the author of a history entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one history entry.
type Turn struct {
	Role Role
	Text string
}

// Config configures a Session.
type Config struct {
	SystemInstruction string
	Timeout           time.Duration
	Logger            *slog.Logger
}

// Session is a conversation bound to one relay connection.
type Session struct {
	ID string

	provider string
	handle   Handle
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	history []Turn
}

// New starts a provider conversation seeded with the system instruction.
func New(ctx context.Context, p Provider, cfg Config) (*Session, error) {
	if p == nil {
		return nil, core.NewInvalidRequestError("chat provider is required")
	}
	if cfg.SystemInstruction == "" {
		cfg.SystemInstruction = DefaultSystemInstruction
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h, err := p.NewSession(ctx, cfg.SystemInstruction)
	if err != nil {
		return nil, wrapProviderError(p.Name(), err)
	}

	id := uuid.NewString()
	return &Session{
		ID:       id,
		provider: p.Name(),
		handle:   h,
		timeout:  cfg.Timeout,
		logger:   logger.With("session_id", id),
	}, nil
}

// SendAndAwaitReply sends one user message and returns the model's full
// reply. Calls are serialized so history stays ordered.
func (s *Session) SendAndAwaitReply(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	reply, err := s.handle.Send(callCtx, text)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = core.NewProviderError(s.provider, core.CodeTimeout, fmt.Errorf("no reply within %s", s.timeout))
		}
		err = wrapProviderError(s.provider, err)
		s.logger.Warn("provider call failed", "error", err, "elapsed", time.Since(start))
		return "", err
	}
	if reply == "" {
		return "", core.NewProviderError(s.provider, core.CodeEmptyResponse, nil)
	}

	s.history = append(s.history, Turn{Role: RoleUser, Text: text}, Turn{Role: RoleModel, Text: reply})
	s.logger.Debug("provider reply", "chars", len(reply), "elapsed", time.Since(start))
	return reply, nil
}

// History returns a copy of the conversation so far.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

func wrapProviderError(provider string, err error) error {
	if ce, ok := core.AsError(err); ok && ce.Type == core.ErrProvider {
		return err
	}
	return core.NewProviderError(provider, core.CodeUpstream, err)
}
