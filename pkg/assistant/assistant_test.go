package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"tgcommands/pkg/assistant/openai"
	"tgcommands/pkg/assistant/opencode"
	"tgcommands/pkg/config"
)

type fakeProvider struct {
	mu                 sync.Mutex
	createSessionCount int
	prompts            []string
	models             []string
	promptErr          error
}

func (f *fakeProvider) Health(context.Context) error {
	return nil
}

func (f *fakeProvider) CreateSession(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createSessionCount++
	return fmt.Sprintf("session-%d", f.createSessionCount), nil
}

func (f *fakeProvider) Prompt(_ context.Context, sessionID string, prompt string, model string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.promptErr != nil {
		return "", f.promptErr
	}
	f.prompts = append(f.prompts, sessionID+":"+prompt)
	f.models = append(f.models, model)
	return "ok:" + prompt, nil
}

func TestNewWithoutProviderIsDisabled(t *testing.T) {
	a, err := New(config.AssistantConfig{}, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if a != nil {
		t.Fatalf("expected nil assistant, got %+v", a)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(config.AssistantConfig{Provider: "unknown"}, nil); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestNewBuildsConfiguredProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	a, err := New(config.AssistantConfig{Provider: "openai", Model: "gpt-5-nano"}, nil)
	if err != nil {
		t.Fatalf("New openai error: %v", err)
	}
	if _, ok := a.provider.(*openai.Client); !ok {
		t.Fatalf("provider = %T, want *openai.Client", a.provider)
	}

	a, err = New(config.AssistantConfig{Provider: "opencode", OpenCode: config.OpenCodeProviderConfig{BaseURL: "http://127.0.0.1:4096"}}, nil)
	if err != nil {
		t.Fatalf("New opencode error: %v", err)
	}
	if _, ok := a.provider.(*opencode.Client); !ok {
		t.Fatalf("provider = %T, want *opencode.Client", a.provider)
	}
}

func TestAskReusesSessionPerConversation(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	a := NewWithProvider(provider, " gpt-5-nano ", nil)

	for _, prompt := range []string{"one", "two"} {
		if _, err := a.Ask(context.Background(), "telegram:100", prompt); err != nil {
			t.Fatalf("Ask error: %v", err)
		}
	}
	if _, err := a.Ask(context.Background(), "telegram:200", "three"); err != nil {
		t.Fatalf("Ask error: %v", err)
	}

	if provider.createSessionCount != 2 {
		t.Fatalf("createSessionCount = %d, want 2", provider.createSessionCount)
	}
	if a.Sessions() != 2 {
		t.Fatalf("Sessions = %d, want 2", a.Sessions())
	}
	if provider.prompts[1] != "session-1:two" || provider.prompts[2] != "session-2:three" {
		t.Fatalf("prompts = %v", provider.prompts)
	}
	if provider.models[0] != "gpt-5-nano" {
		t.Fatalf("model = %q, want trimmed model", provider.models[0])
	}
}

func TestAskConcurrentCreatesOneSession(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	a := NewWithProvider(provider, "", nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := a.Ask(context.Background(), "telegram:1", fmt.Sprintf("p%d", i)); err != nil {
				t.Errorf("Ask error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if provider.createSessionCount != 1 {
		t.Fatalf("createSessionCount = %d, want 1", provider.createSessionCount)
	}
}

func TestAskRejectsEmptyPromptAndWrapsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	a := NewWithProvider(&fakeProvider{promptErr: boom}, "", nil)

	if _, err := a.Ask(context.Background(), "c", "   "); err == nil {
		t.Fatal("expected error for empty prompt")
	}
	if _, err := a.Ask(context.Background(), "c", "hi"); !errors.Is(err, boom) {
		t.Fatalf("Ask error = %v, want wrapped boom", err)
	}
}

func TestResetStartsNewSession(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	a := NewWithProvider(provider, "", nil)

	_, _ = a.Ask(context.Background(), "c", "one")
	a.Reset("c")
	_, _ = a.Ask(context.Background(), "c", "two")

	if provider.createSessionCount != 2 {
		t.Fatalf("createSessionCount = %d, want 2", provider.createSessionCount)
	}
}
