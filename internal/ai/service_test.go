package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/celemqhele/cvtailorpro/internal/fallback"
	"github.com/celemqhele/cvtailorpro/internal/secrets"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestServiceGenerateFallsBackToSecondGeminiKey(t *testing.T) {
	factory := newStubFactory()
	factory.byKey["gemini-a"] = &stubGenerator{err: errors.New("generate content: 429 RESOURCE_EXHAUSTED")}
	factory.byKey["gemini-b"] = &stubGenerator{response: "Tailored CV"}

	attempts, err := BuildAttempts(context.Background(), []ProviderConfig{{
		Name:        "gemini",
		Kind:        KindGemini,
		Models:      []string{"gemini-2.5-flash"},
		Credentials: []secrets.Source{{Value: "gemini-a"}, {Value: "gemini-b"}},
	}}, factory.build, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	core, observed := observer.New(zapcore.WarnLevel)
	log := zap.New(core)
	svc := NewService(fallback.New("ai", attempts, fallback.WithLogger(log)), log, 0)

	resp, err := svc.Generate(context.Background(), Request{SystemPrompt: "You are a CV writer", UserPrompt: "Tailor my CV"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Text != "Tailored CV" || resp.Provider != "gemini#2" || resp.Model != "gemini-2.5-flash" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if observed.Len() != 1 {
		t.Fatalf("expected exactly 1 failure logged, got %d", observed.Len())
	}
}

func TestServiceGenerateRejectsInvalidRequest(t *testing.T) {
	gen := &stubGenerator{response: "unused"}
	attempts := []fallback.Attempt[Request, string]{{Provider: "gemini", Model: "flash", Call: call(gen, "flash")}}
	svc := NewService(fallback.New("ai", attempts), nil, 0)

	tooHot := 3.5
	for _, req := range []Request{
		{SystemPrompt: "only system"},
		{UserPrompt: "cv", Temperature: &tooHot},
	} {
		_, err := svc.Generate(context.Background(), req)
		if !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", req, err)
		}
	}

	if gen.calls != 0 {
		t.Fatalf("expected no provider calls, got %d", gen.calls)
	}
}

func TestServiceDescribe(t *testing.T) {
	gen := &stubGenerator{response: "ok"}
	attempts := []fallback.Attempt[Request, string]{
		{Provider: "groq", Model: "llama", Rank: 1, Call: call(gen, "llama")},
		{Provider: "gemini", Model: "flash", Rank: 0, Call: call(gen, "flash")},
	}

	infos := NewService(fallback.New("ai", attempts), nil, 0).Describe()
	if len(infos) != 2 || infos[0].Provider != "gemini" {
		t.Fatalf("unexpected describe output: %+v", infos)
	}
}
