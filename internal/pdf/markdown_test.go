package pdf

import (
	"strings"
	"testing"
)

func TestMarkdownToHTML(t *testing.T) {
	out, err := MarkdownToHTML("# Jane Doe\n\n- Go\n- Kubernetes\n\n| Year | Role |\n|---|---|\n| 2024 | SRE |", "Jane <CV>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"<h1>Jane Doe</h1>", "<li>Go</li>", "<table>", "<title>Jane &lt;CV&gt;</title>"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestWrapHTML(t *testing.T) {
	t.Parallel()

	full := "<!DOCTYPE html><html><body>cv</body></html>"
	if got := WrapHTML(full, "ignored"); got != full {
		t.Fatalf("complete documents must be returned unchanged")
	}

	wrapped := WrapHTML("<p>cv</p>", "")
	if !strings.HasPrefix(wrapped, "<!DOCTYPE html>") || !strings.Contains(wrapped, "<p>cv</p>") {
		t.Fatalf("unexpected wrapped document:\n%s", wrapped)
	}
	if !strings.Contains(wrapped, "<title>CV</title>") {
		t.Fatalf("expected default title")
	}
}
