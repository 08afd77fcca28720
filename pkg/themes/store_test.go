package themes

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func setupTestStore(t *testing.T) (context.Context, *Store) {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "themes.db")
	db, err := sql.Open("sqlite", dbFile)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}
	return context.Background(), NewStore(db)
}

// testVars returns a minimal valid css_vars set.
func testVars() CSSVars {
	colors := func() map[string]string {
		return map[string]string{
			"background": "oklch(0.98 0.01 90)",
			"foreground": "oklch(0.2 0.02 90)",
			"primary":    "oklch(0.6 0.2 250)",
			"secondary":  "oklch(0.8 0.05 250)",
		}
	}
	return CSSVars{
		"theme": {"font-sans": "Inter, sans-serif", "radius": "0.5rem"},
		"light": colors(),
		"dark":  colors(),
	}
}

func makeTheme(t *testing.T, ctx context.Context, s *Store, name string) *Theme {
	t.Helper()
	theme := &Theme{
		Name:        name,
		DisplayName: strings.ReplaceAll(name, "-", " "),
		CSSVars:     testVars(),
		IsActive:    true,
	}
	if err := s.Create(ctx, theme); err != nil {
		t.Fatalf("Create(%q) error = %v", name, err)
	}
	return theme
}

func TestThemeValidation(t *testing.T) {
	valid := &Theme{Name: "modern-minimal", DisplayName: "Modern Minimal", CSSVars: testVars()}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate(valid) error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Theme)
	}{
		{"uppercase name", func(th *Theme) { th.Name = "Modern" }},
		{"empty name", func(th *Theme) { th.Name = "" }},
		{"missing display name", func(th *Theme) { th.DisplayName = "" }},
		{"nil vars", func(th *Theme) { th.CSSVars = nil }},
		{"missing dark section", func(th *Theme) { delete(th.CSSVars, "dark") }},
		{"missing required color", func(th *Theme) { delete(th.CSSVars["light"], "primary") }},
		{"non-oklch color", func(th *Theme) { th.CSSVars["light"]["primary"] = "#ff0000" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			theme := &Theme{Name: "ok-name", DisplayName: "Ok", CSSVars: testVars()}
			tt.mutate(theme)
			if err := theme.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestThemeCRUD(t *testing.T) {
	ctx, s := setupTestStore(t)
	theme := makeTheme(t, ctx, s, "ocean-breeze")

	got, err := s.Get(ctx, "ocean-breeze")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != theme.ID || got.Var("light", "primary") != "oklch(0.6 0.2 250)" {
		t.Errorf("Get() = %+v", got)
	}

	got.Description = "cool blues"
	got.CSSVars["light"]["primary"] = "oklch(0.5 0.25 240)"
	if err = s.Update(ctx, got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	updated, err := s.Get(ctx, "ocean-breeze")
	if err != nil {
		t.Fatalf("Get() after update error = %v", err)
	}
	if updated.Description != "cool blues" || updated.Var("light", "primary") != "oklch(0.5 0.25 240)" {
		t.Errorf("update not persisted: %+v", updated)
	}

	if err = s.Create(ctx, &Theme{Name: "ocean-breeze", DisplayName: "Dup", CSSVars: testVars()}); !errors.Is(err, ErrNameTaken) {
		t.Errorf("Create(dup) error = %v, want ErrNameTaken", err)
	}

	if err = s.Delete(ctx, "ocean-breeze"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err = s.Get(ctx, "ocean-breeze"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestSettingAndCurrent(t *testing.T) {
	ctx, s := setupTestStore(t)

	// No themes at all.
	if _, err := s.Current(ctx); !errors.Is(err, ErrNoThemes) {
		t.Errorf("Current() on empty store error = %v, want ErrNoThemes", err)
	}

	makeTheme(t, ctx, s, "aurora")
	makeTheme(t, ctx, s, "basalt")

	// No setting yet: first active theme by display name.
	current, err := s.Current(ctx)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if current.Name != "aurora" {
		t.Errorf("Current() = %q, want aurora", current.Name)
	}

	if err = s.SetSetting(ctx, "basalt", "aurora", nil); err != nil {
		t.Fatalf("SetSetting() error = %v", err)
	}
	current, err = s.Current(ctx)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if current.Name != "basalt" {
		t.Errorf("Current() = %q, want basalt", current.Name)
	}

	// Same theme for both slots is rejected.
	if err = s.SetSetting(ctx, "basalt", "basalt", nil); err == nil {
		t.Error("SetSetting(same, same) = nil, want error")
	}

	// Deactivating the current theme falls back to the fallback.
	current.IsActive = false
	if err = s.Update(ctx, current); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	fallback, err := s.Current(ctx)
	if err != nil {
		t.Fatalf("Current() after deactivation error = %v", err)
	}
	if fallback.Name != "aurora" {
		t.Errorf("Current() = %q, want fallback aurora", fallback.Name)
	}

	// A selected theme cannot be deleted.
	if err = s.Delete(ctx, "aurora"); err == nil {
		t.Error("Delete(selected) = nil, want error")
	}
}

func TestCSSGeneration(t *testing.T) {
	theme := &Theme{Name: "x", DisplayName: "X", CSSVars: testVars()}
	css := theme.CSS()

	if !strings.Contains(css, ":root {") || !strings.Contains(css, ".dark {") {
		t.Fatalf("CSS missing rule blocks:\n%s", css)
	}
	if !strings.Contains(css, "--font-sans: Inter, sans-serif;") {
		t.Errorf("CSS missing theme-section var:\n%s", css)
	}
	if !strings.Contains(css, "--background: oklch(0.98 0.01 90);") {
		t.Errorf("CSS missing light var:\n%s", css)
	}
	if css != theme.CSS() {
		t.Error("CSS() is not deterministic")
	}
}

func TestFontFamilyFallback(t *testing.T) {
	theme := &Theme{Name: "x", DisplayName: "X", CSSVars: testVars()}
	if got := theme.FontFamily("sans"); got != "Inter, sans-serif" {
		t.Errorf("FontFamily(sans) = %q", got)
	}
	theme.CSSVars["light"]["font-serif"] = "Lora, serif"
	if got := theme.FontFamily("serif"); got != "Lora, serif" {
		t.Errorf("FontFamily(serif) = %q, want light-mode fallback", got)
	}
}
