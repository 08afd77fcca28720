package themes

import (
	"os"
	"path/filepath"
	"testing"
)

const jsonTheme = `{
  "name": "paper-white",
  "display_name": "Paper White",
  "css_vars": {
    "theme": {"font-sans": "Inter, sans-serif"},
    "light": {"background": "oklch(0.99 0 0)", "foreground": "oklch(0.1 0 0)",
              "primary": "oklch(0.5 0.1 250)", "secondary": "oklch(0.7 0.05 250)"},
    "dark": {"background": "oklch(0.15 0 0)", "foreground": "oklch(0.95 0 0)",
             "primary": "oklch(0.7 0.1 250)", "secondary": "oklch(0.4 0.05 250)"}
  }
}`

const yamlTheme = `name: ink-slate
display_name: Ink Slate
description: dark editorial look
css_vars:
  theme:
    font-sans: "IBM Plex Sans, sans-serif"
  light:
    background: "oklch(0.97 0.01 260)"
    foreground: "oklch(0.2 0.02 260)"
    primary: "oklch(0.55 0.18 265)"
    secondary: "oklch(0.75 0.06 265)"
  dark:
    background: "oklch(0.18 0.02 260)"
    foreground: "oklch(0.93 0.01 260)"
    primary: "oklch(0.7 0.18 265)"
    secondary: "oklch(0.45 0.06 265)"
`

func TestImportDir(t *testing.T) {
	ctx, s := setupTestStore(t)
	dir := t.TempDir()

	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("paper_white.json", jsonTheme)
	write("ink-slate.yaml", yamlTheme)
	write("README.md", "not a theme")

	n, err := s.ImportDir(ctx, dir)
	if err != nil {
		t.Fatalf("ImportDir() error = %v", err)
	}
	if n != 2 {
		t.Errorf("imported = %d, want 2", n)
	}

	paper, err := s.Get(ctx, "paper-white")
	if err != nil {
		t.Fatalf("Get(paper-white) error = %v", err)
	}
	if !paper.IsSystem {
		t.Error("imported theme should be a system theme")
	}

	ink, err := s.Get(ctx, "ink-slate")
	if err != nil {
		t.Fatalf("Get(ink-slate) error = %v", err)
	}
	if ink.Description != "dark editorial look" {
		t.Errorf("yaml description = %q", ink.Description)
	}

	// Re-import updates in place rather than failing on the unique name.
	write("ink-slate.yaml", yamlTheme)
	if _, err = s.ImportDir(ctx, dir); err != nil {
		t.Fatalf("second ImportDir() error = %v", err)
	}
	themes, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(themes) != 2 {
		t.Errorf("after re-import: %d themes, want 2", len(themes))
	}
}

func TestImportDirMissing(t *testing.T) {
	ctx, s := setupTestStore(t)
	n, err := s.ImportDir(ctx, filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("ImportDir(missing) error = %v", err)
	}
	if n != 0 {
		t.Errorf("imported = %d, want 0", n)
	}
}
