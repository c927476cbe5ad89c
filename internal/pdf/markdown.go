package pdf

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const defaultTitle = "CV"

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// MarkdownToHTML renders GitHub flavoured markdown into a printable HTML document.
func MarkdownToHTML(content, title string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>%s</title>
<style>
body { font-family: 'Segoe UI', Arial, sans-serif; line-height: 1.5; max-width: 800px; margin: 0 auto; padding: 32px 24px; color: #222; }
h1, h2, h3 { color: #1f2d3d; margin-bottom: 4px; }
ul { padding-left: 20px; }
table { border-collapse: collapse; width: 100%%; }
th, td { border: 1px solid #ddd; padding: 6px; text-align: left; }
</style>
</head>
<body>
%s
</body>
</html>`, html.EscapeString(titleOrDefault(title)), buf.String()), nil
}

// WrapHTML turns an HTML fragment into a complete document. Complete
// documents are returned unchanged.
func WrapHTML(content, title string) string {
	lower := strings.ToLower(content)
	if strings.Contains(lower, "<!doctype") || strings.Contains(lower, "<html") {
		return content
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>%s</title>
</head>
<body>
%s
</body>
</html>`, html.EscapeString(titleOrDefault(title)), content)
}

func titleOrDefault(title string) string {
	if title = strings.TrimSpace(title); title == "" {
		return defaultTitle
	}
	return title
}
