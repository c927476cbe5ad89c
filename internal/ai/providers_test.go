package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/celemqhele/cvtailorpro/internal/fallback"
	"github.com/celemqhele/cvtailorpro/internal/secrets"

	"go.uber.org/zap"
)

type stubGenerator struct {
	key      string
	response string
	err      error
	calls    int
	models   []string
}

func (s *stubGenerator) Generate(_ context.Context, model string, _ Request) (string, error) {
	s.calls++
	s.models = append(s.models, model)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

type stubFactory struct {
	byKey map[string]*stubGenerator
	built []string
}

func (f *stubFactory) build(_ context.Context, provider ProviderConfig, apiKey string) (Generator, error) {
	f.built = append(f.built, provider.Name+":"+apiKey)
	gen, ok := f.byKey[apiKey]
	if !ok {
		gen = &stubGenerator{key: apiKey, response: "ok"}
		f.byKey[apiKey] = gen
	}
	return gen, nil
}

func newStubFactory() *stubFactory {
	return &stubFactory{byKey: make(map[string]*stubGenerator)}
}

func TestBuildAttemptsOrder(t *testing.T) {
	factory := newStubFactory()
	providers := []ProviderConfig{
		{
			Name:        "gemini",
			Kind:        KindGemini,
			Models:      []string{"flash", "pro"},
			Credentials: []secrets.Source{{Value: "key-a"}, {Value: "key-b"}},
		},
		{
			Name:        "groq",
			Kind:        KindOpenAI,
			Models:      []string{"llama"},
			Credentials: []secrets.Source{{Value: "key-c"}},
		},
	}

	attempts, err := BuildAttempts(context.Background(), providers, factory.build, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []fallback.Info{
		{Provider: "gemini#1", Model: "flash", Rank: 0},
		{Provider: "gemini#1", Model: "pro", Rank: 1},
		{Provider: "gemini#2", Model: "flash", Rank: 2},
		{Provider: "gemini#2", Model: "pro", Rank: 3},
		{Provider: "groq", Model: "llama", Rank: 4},
	}

	if len(attempts) != len(want) {
		t.Fatalf("expected %d attempts, got %d", len(want), len(attempts))
	}
	for i, a := range attempts {
		got := fallback.Info{Provider: a.Provider, Model: a.Model, Rank: a.Rank}
		if got != want[i] {
			t.Fatalf("attempt %d: expected %+v, got %+v", i, want[i], got)
		}
	}
}

func TestBuildAttemptsSkipsProviderWithoutCredentials(t *testing.T) {
	factory := newStubFactory()
	providers := []ProviderConfig{
		{
			Name:        "gemini",
			Models:      []string{"flash"},
			Credentials: secrets.FromEnv("CVTAILOR_TEST_NO_SUCH_KEY"),
		},
		{
			Name:   "deepseek",
			Models: []string{"deepseek-chat"},
		},
	}

	attempts, err := BuildAttempts(context.Background(), providers, factory.build, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(attempts) != 0 {
		t.Fatalf("expected no attempts, got %d", len(attempts))
	}
	if len(factory.built) != 0 {
		t.Fatalf("expected no transports to be built, got %v", factory.built)
	}

	_, err = fallback.New("ai", attempts).Run(context.Background(), Request{UserPrompt: "hi"})
	if !errors.Is(err, fallback.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestBuildAttemptsRequiresModels(t *testing.T) {
	_, err := BuildAttempts(context.Background(), []ProviderConfig{{Name: "groq", Credentials: []secrets.Source{{Value: "k"}}}}, newStubFactory().build, nil)
	if err == nil {
		t.Fatal("expected error for provider without models")
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		jsonMode bool
		want     string
		wantErr  bool
	}{
		{name: "plain text", text: "  Summary  ", want: "Summary"},
		{name: "empty", text: "   ", wantErr: true},
		{name: "json fenced", text: "```json\n{\"skills\": [\"Go\"]}\n```", jsonMode: true, want: `{"skills": ["Go"]}`},
		{name: "json bare", text: `{"a":1}`, jsonMode: true, want: `{"a":1}`},
		{name: "json malformed", text: "Here is your CV: {", jsonMode: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := normalize(tt.text, tt.jsonMode)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestMalformedJSONAdvancesToNextAttempt(t *testing.T) {
	factory := newStubFactory()
	factory.byKey["key-a"] = &stubGenerator{response: "Sure! Here is the JSON you asked for"}
	factory.byKey["key-b"] = &stubGenerator{response: "```json\n{\"ok\":true}\n```"}

	attempts, err := BuildAttempts(context.Background(), []ProviderConfig{{
		Name:        "gemini",
		Models:      []string{"flash"},
		Credentials: []secrets.Source{{Value: "key-a"}, {Value: "key-b"}},
	}}, factory.build, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := fallback.New("ai", attempts).Run(context.Background(), Request{UserPrompt: "cv", JSONMode: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Value != `{"ok":true}` || res.Attempt.Provider != "gemini#2" {
		t.Fatalf("unexpected result: %+v", res)
	}
}
