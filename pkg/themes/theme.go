package themes

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// CSSVars is a theme's variable set. The top-level keys are the sections
// ("theme", "light", "dark"); each section maps variable names to values.
type CSSVars map[string]map[string]string

// Theme is one named design-token set.
type Theme struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Description string  `json:"description"`
	CSSVars     CSSVars `json:"css_vars"`
	IsSystem    bool    `json:"is_system_theme"`
	IsActive    bool    `json:"is_active"`
	Version     string  `json:"version"`
	CreatedBy   *int64  `json:"created_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	namePattern = regexp.MustCompile(`^[a-z0-9-]+$`)

	requiredSections = []string{"theme", "light", "dark"}
	requiredColors   = []string{"background", "foreground", "primary", "secondary"}
)

// Validate checks the theme's name and css_vars structure.
func (t *Theme) Validate() error {
	if !namePattern.MatchString(t.Name) {
		return fmt.Errorf("themes: name %q must contain only lowercase letters, numbers, and hyphens", t.Name)
	}
	if t.DisplayName == "" {
		return fmt.Errorf("themes: display name is required")
	}
	if t.CSSVars == nil {
		return fmt.Errorf("themes: css_vars is required")
	}
	for _, section := range requiredSections {
		if _, ok := t.CSSVars[section]; !ok {
			return fmt.Errorf("themes: css_vars missing %q section", section)
		}
	}
	for _, mode := range []string{"light", "dark"} {
		vars := t.CSSVars[mode]
		for _, color := range requiredColors {
			value, ok := vars[color]
			if !ok {
				return fmt.Errorf("themes: %s mode missing required variable %q", mode, color)
			}
			if !strings.HasPrefix(value, "oklch(") {
				return fmt.Errorf("themes: %s/%s = %q, colors must use the oklch() format", mode, color, value)
			}
		}
	}
	return nil
}

// Var returns a variable from the given mode, or the empty string.
func (t *Theme) Var(mode, name string) string {
	return t.CSSVars[mode][name]
}

// FontFamily returns the named font stack ("sans", "serif", "mono"),
// preferring the theme section and falling back to light mode.
func (t *Theme) FontFamily(kind string) string {
	key := "font-" + kind
	if v := t.CSSVars["theme"][key]; v != "" {
		return v
	}
	return t.CSSVars["light"][key]
}

// CSS renders the theme into :root and .dark rule blocks for injection into
// the SPA shell. The theme section and light mode share :root. Output is
// deterministic (variables sorted) so responses stay byte-stable for
// caching.
func (t *Theme) CSS() string {
	var b strings.Builder
	b.WriteString(":root {\n")
	writeVars(&b, t.CSSVars["theme"])
	writeVars(&b, t.CSSVars["light"])
	b.WriteString("}\n.dark {\n")
	writeVars(&b, t.CSSVars["dark"])
	b.WriteString("}\n")
	return b.String()
}

func writeVars(b *strings.Builder, vars map[string]string) {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(b, "  --%s: %s;\n", name, vars[name])
	}
}
