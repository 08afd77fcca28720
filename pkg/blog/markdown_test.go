package blog

import (
	"strings"
	"testing"
)

func TestRenderMarkdownBasics(t *testing.T) {
	r, err := RenderMarkdown("# Title\n\nSome *emphasis* and a [link](https://example.com).")
	if err != nil {
		t.Fatalf("RenderMarkdown() error = %v", err)
	}
	for _, want := range []string{"<h1", "<em>emphasis</em>", `href="https://example.com"`} {
		if !strings.Contains(r.HTML, want) {
			t.Errorf("HTML missing %q:\n%s", want, r.HTML)
		}
	}
	if len(r.Components) != 0 {
		t.Errorf("components = %d, want 0", len(r.Components))
	}
}

func TestRenderMarkdownGFMTable(t *testing.T) {
	r, err := RenderMarkdown("| a | b |\n|---|---|\n| 1 | 2 |")
	if err != nil {
		t.Fatalf("RenderMarkdown() error = %v", err)
	}
	if !strings.Contains(r.HTML, "<table>") {
		t.Errorf("GFM table not rendered:\n%s", r.HTML)
	}
}

func TestRenderMarkdownComponents(t *testing.T) {
	content := "Intro.\n\n{{skills:backend,frontend}}\n\nMore text.\n\n{{jobs:engineering}}"
	r, err := RenderMarkdown(content)
	if err != nil {
		t.Fatalf("RenderMarkdown() error = %v", err)
	}

	if len(r.Components) != 2 {
		t.Fatalf("components = %d, want 2", len(r.Components))
	}
	first := r.Components[0]
	if first.ID != "component-0" || first.Type != "skills" || first.Data != "backend,frontend" {
		t.Errorf("first component = %+v", first)
	}
	if r.Components[1].Type != "jobs" {
		t.Errorf("second component = %+v", r.Components[1])
	}

	for _, want := range []string{
		`id="component-0"`,
		`data-component="skills"`,
		`data-params="backend,frontend"`,
		`id="component-1"`,
	} {
		if !strings.Contains(r.HTML, want) {
			t.Errorf("HTML missing placeholder %q:\n%s", want, r.HTML)
		}
	}
}

func TestRenderMarkdownCodeHighlighting(t *testing.T) {
	r, err := RenderMarkdown("```go\nfunc main() {}\n```")
	if err != nil {
		t.Fatalf("RenderMarkdown() error = %v", err)
	}
	// chroma's html formatter emits inline-styled pre blocks.
	if !strings.Contains(r.HTML, "<pre") {
		t.Errorf("code block missing:\n%s", r.HTML)
	}
	if !strings.Contains(r.HTML, "func") || !strings.Contains(r.HTML, "main") {
		t.Errorf("code content missing:\n%s", r.HTML)
	}

	// An unknown language still renders as a plain code block.
	r2, err := RenderMarkdown("```nosuchlang-xyz\nplain text\n```")
	if err != nil {
		t.Fatalf("RenderMarkdown() error = %v", err)
	}
	if !strings.Contains(r2.HTML, "plain text") {
		t.Errorf("fallback code block missing content:\n%s", r2.HTML)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello, World!", "hello-world"},
		{"  Already-Slugged  ", "already-slugged"},
		{"Ünïcode Lëtters", "ünïcode-lëtters"},
		{"Multiple   Spaces -- and dashes", "multiple-spaces-and-dashes"},
		{"100% Go", "100-go"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlainTextAndExcerpt(t *testing.T) {
	plain := PlainText("<p>Hello <strong>there</strong>,\nfriend.</p><script>evil()</script>")
	if !strings.Contains(plain, "Hello") || !strings.Contains(plain, "there") {
		t.Errorf("PlainText() = %q", plain)
	}
	if strings.Contains(plain, "<") {
		t.Errorf("PlainText() left markup behind: %q", plain)
	}

	long := strings.Repeat("abcde ", 100)
	e := Excerpt(long, 300)
	if len([]rune(e)) > 300 {
		t.Errorf("Excerpt() length = %d, want <= 300", len([]rune(e)))
	}
	if !strings.HasSuffix(e, "...") {
		t.Errorf("Excerpt() = %q, want ellipsis suffix", e)
	}
	if short := Excerpt("short", 300); short != "short" {
		t.Errorf("Excerpt(short) = %q", short)
	}
}

func TestReadingTime(t *testing.T) {
	if got := ReadingTime("a few words only"); got != 1 {
		t.Errorf("ReadingTime(short) = %d, want 1", got)
	}
	long := strings.Repeat("word ", 700)
	// 700 words at 228 wpm rounds to 3 minutes.
	if got := ReadingTime(long); got != 3 {
		t.Errorf("ReadingTime(700 words) = %d, want 3", got)
	}
}
