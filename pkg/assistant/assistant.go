package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tgcommands/pkg/assistant/openai"
	"tgcommands/pkg/assistant/opencode"
	"tgcommands/pkg/config"
)

// Provider is one LLM backend with server-side sessions.
type Provider interface {
	Health(ctx context.Context) error
	CreateSession(ctx context.Context, title string) (string, error)
	Prompt(ctx context.Context, sessionID string, prompt string, model string) (string, error)
}

// Assistant answers prompts, keeping one provider session per conversation
// key. Prompts within a conversation are serialized.
type Assistant struct {
	provider Provider
	model    string
	log      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	id       string
	promptMu sync.Mutex
}

// New builds the configured assistant. It returns nil, nil when no provider
// is configured.
func New(cfg config.AssistantConfig, log *slog.Logger) (*Assistant, error) {
	var (
		provider Provider
		err      error
	)

	switch strings.TrimSpace(cfg.Provider) {
	case "":
		return nil, nil
	case "openai":
		provider, err = openai.New(cfg.OpenAI)
	case "opencode":
		provider, err = opencode.New(cfg.OpenCode)
	default:
		return nil, fmt.Errorf("unsupported assistant provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s assistant: %w", cfg.Provider, err)
	}

	return NewWithProvider(provider, cfg.Model, log), nil
}

// NewWithProvider wraps an already constructed provider.
func NewWithProvider(provider Provider, model string, log *slog.Logger) *Assistant {
	if log == nil {
		log = slog.Default()
	}

	return &Assistant{
		provider: provider,
		model:    strings.TrimSpace(model),
		log:      log.With("component", "assistant"),
		sessions: make(map[string]*session),
	}
}

func (a *Assistant) Health(ctx context.Context) error {
	return a.provider.Health(ctx)
}

// Ask sends prompt within the session tracked for conversation.
func (a *Assistant) Ask(ctx context.Context, conversation string, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt is required")
	}

	s, err := a.sessionFor(ctx, conversation)
	if err != nil {
		return "", err
	}

	s.promptMu.Lock()
	defer s.promptMu.Unlock()

	answer, err := a.provider.Prompt(ctx, s.id, prompt, a.model)
	if err != nil {
		return "", fmt.Errorf("ask %s: %w", conversation, err)
	}
	return answer, nil
}

// Sessions reports how many conversations hold a provider session.
func (a *Assistant) Sessions() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.sessions)
}

// Reset drops the session for conversation so the next Ask starts fresh.
func (a *Assistant) Reset(conversation string) {
	a.mu.Lock()
	delete(a.sessions, conversation)
	a.mu.Unlock()
}

// sessionFor returns an existing session or lazily creates a new one.
func (a *Assistant) sessionFor(ctx context.Context, conversation string) (*session, error) {
	a.mu.RLock()
	s, ok := a.sessions[conversation]
	a.mu.RUnlock()
	if ok {
		return s, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if s, ok = a.sessions[conversation]; ok {
		return s, nil
	}

	id, err := a.provider.CreateSession(ctx, "tgcommands:"+conversation)
	if err != nil {
		return nil, fmt.Errorf("start session for %s: %w", conversation, err)
	}

	s = &session{id: id}
	a.sessions[conversation] = s
	a.log.Debug("Started assistant session", "conversation", conversation, "session_id", id)
	return s, nil
}
