package fallback

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeProvider struct {
	name  string
	text  string
	err   error
	calls int
}

func (f *fakeProvider) call(_ context.Context, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text + ":" + prompt, nil
}

func attemptsFor(providers ...*fakeProvider) []Attempt[string, string] {
	attempts := make([]Attempt[string, string], 0, len(providers))
	for i, p := range providers {
		attempts = append(attempts, Attempt[string, string]{
			Provider: p.name,
			Model:    "model-" + p.name,
			Rank:     i,
			Call:     p.call,
		})
	}
	return attempts
}

func TestRunReturnsFirstSuccessAndStops(t *testing.T) {
	t.Parallel()

	for _, k := range []int{0, 1, 3} {
		providers := make([]*fakeProvider, 5)
		for i := range providers {
			providers[i] = &fakeProvider{name: string(rune('a' + i)), text: "ok"}
			if i < k {
				providers[i].err = errors.New("upstream 500")
			}
		}

		chain := New("ai", attemptsFor(providers...))
		res, err := chain.Run(context.Background(), "cv")
		if err != nil {
			t.Fatalf("k=%d: unexpected error: %v", k, err)
		}

		if res.Attempt.Provider != providers[k].name {
			t.Fatalf("k=%d: expected provider %s, got %s", k, providers[k].name, res.Attempt.Provider)
		}
		if res.Value != "ok:cv" {
			t.Fatalf("k=%d: unexpected value %q", k, res.Value)
		}
		if len(res.Failures) != k {
			t.Fatalf("k=%d: expected %d failures, got %d", k, k, len(res.Failures))
		}

		for i, p := range providers {
			want := 0
			if i <= k {
				want = 1
			}
			if p.calls != want {
				t.Fatalf("k=%d: provider %s called %d times, want %d", k, p.name, p.calls, want)
			}
		}
	}
}

func TestRunAllFailReferencesEveryAttempt(t *testing.T) {
	t.Parallel()

	providers := []*fakeProvider{
		{name: "gemini", err: errors.New("quota exceeded")},
		{name: "groq", err: errors.New("bad status: 503")},
		{name: "openrouter", err: errors.New("empty response")},
	}

	_, err := New("ai", attemptsFor(providers...)).Run(context.Background(), "cv")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *ExhaustedError, got %T", err)
	}
	if len(exhausted.Failures) != len(providers) {
		t.Fatalf("expected %d failures, got %d", len(providers), len(exhausted.Failures))
	}

	for _, p := range providers {
		if p.calls != 1 {
			t.Fatalf("provider %s called %d times, want exactly 1", p.name, p.calls)
		}
		if !strings.Contains(err.Error(), p.name+"/model-"+p.name) {
			t.Fatalf("error does not mention %s: %v", p.name, err)
		}
		if !strings.Contains(err.Error(), p.err.Error()) {
			t.Fatalf("error does not carry %q: %v", p.err, err)
		}
	}
}

func TestRunEmptyChainIsNotConfigured(t *testing.T) {
	t.Parallel()

	_, err := New[string, string]("ai", nil).Run(context.Background(), "cv")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Fatalf("not configured must not look like exhaustion")
	}
}

func TestRunLogsEachFailure(t *testing.T) {
	t.Parallel()

	core, observed := observer.New(zapcore.WarnLevel)
	geminiA := &fakeProvider{name: "gemini-a", err: errors.New("429 resource exhausted")}
	geminiB := &fakeProvider{name: "gemini-b", text: "tailored"}

	res, err := New("ai", attemptsFor(geminiA, geminiB), WithLogger(zap.New(core))).Run(context.Background(), "cv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Value != "tailored:cv" {
		t.Fatalf("unexpected value %q", res.Value)
	}

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 failure log, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["ai_provider"] != "gemini-a" || ctx["chain"] != "ai" {
		t.Fatalf("unexpected log fields: %v", ctx)
	}
}

func TestNewOrdersByRank(t *testing.T) {
	t.Parallel()

	var order []string
	mk := func(name string, rank int) Attempt[string, string] {
		return Attempt[string, string]{
			Provider: name,
			Rank:     rank,
			Call: func(context.Context, string) (string, error) {
				order = append(order, name)
				return "", errors.New("fail")
			},
		}
	}

	chain := New("pdf", []Attempt[string, string]{mk("chrome", 9), mk("cloudconvert-1", 0), mk("cloudconvert-2", 0)})
	_, _ = chain.Run(context.Background(), "<p>cv</p>")

	want := []string{"cloudconvert-1", "cloudconvert-2", "chrome"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Fatalf("expected order %v, got %v", want, order)
	}

	infos := chain.Describe()
	if len(infos) != 3 || infos[2].Provider != "chrome" {
		t.Fatalf("unexpected describe output: %+v", infos)
	}
}

func TestRunAppliesAttemptTimeout(t *testing.T) {
	t.Parallel()

	slow := Attempt[string, string]{
		Provider: "slow",
		Call: func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	fast := Attempt[string, string]{
		Provider: "fast",
		Rank:     1,
		Call:     func(context.Context, string) (string, error) { return "done", nil },
	}

	res, err := New("ai", []Attempt[string, string]{slow, fast}, WithAttemptTimeout(10*time.Millisecond)).Run(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempt.Provider != "fast" {
		t.Fatalf("expected fast provider, got %s", res.Attempt.Provider)
	}
	if !errors.Is(res.Failures[0].Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline failure, got %v", res.Failures[0].Err)
	}
}

func TestRunStopsWhenParentContextEnds(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	first := &fakeProvider{name: "first"}
	second := &fakeProvider{name: "second", text: "never"}

	attempts := attemptsFor(first, second)
	attempts[0].Call = func(context.Context, string) (string, error) {
		first.calls++
		cancel()
		return "", errors.New("connection reset")
	}

	_, err := New("ai", attempts).Run(ctx, "cv")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if second.calls != 0 {
		t.Fatalf("second attempt must not run after cancellation")
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) || len(exhausted.Skipped) != 1 {
		t.Fatalf("expected one skipped attempt, got %+v", exhausted)
	}
}

func TestRunNotifiesObserver(t *testing.T) {
	t.Parallel()

	var reports []Report
	chain := New("ai", attemptsFor(
		&fakeProvider{name: "a", err: errors.New("boom")},
		&fakeProvider{name: "b", text: "ok"},
	), WithObserver(func(r Report) { reports = append(reports, r) }))

	if _, err := chain.Run(context.Background(), "cv"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].Err == nil || reports[1].Err != nil {
		t.Fatalf("unexpected report outcomes: %+v", reports)
	}
	if reports[1].Chain != "ai" || reports[1].Attempt.Provider != "b" {
		t.Fatalf("unexpected report: %+v", reports[1])
	}
}
