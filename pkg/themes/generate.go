package themes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// ErrNoAPIKey is returned by Generate when no API key is configured.
var ErrNoAPIKey = errors.New("themes: theme generation requires an API key")

// GeneratorConfig configures the AI theme generator.
type GeneratorConfig struct {
	// BaseURL is an OpenRouter-compatible chat-completions endpoint.
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	// TimeoutSec bounds one generation request.
	TimeoutSec int `json:"timeout_sec"`
}

// DefaultGeneratorConfig returns the default generator configuration. The
// API key is empty; generation stays disabled until one is configured.
func DefaultGeneratorConfig() *GeneratorConfig {
	return &GeneratorConfig{
		BaseURL:    "https://openrouter.ai/api/v1/chat/completions",
		Model:      "openai/gpt-4.1",
		TimeoutSec: 30,
	}
}

// Generator produces themes from natural-language prompts via a
// chat-completions API.
type Generator struct {
	config *GeneratorConfig
	client *http.Client
}

// NewGenerator creates a generator. A nil config uses defaults.
func NewGenerator(config *GeneratorConfig) *Generator {
	if config == nil {
		config = DefaultGeneratorConfig()
	}
	timeout := time.Duration(config.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Generator{
		config: config,
		client: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether an API key is configured.
func (g *Generator) Enabled() bool {
	return g.config.APIKey != ""
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat any           `json:"response_format"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate asks the model for a theme matching prompt. Referenced themes
// are included in the prompt as a starting point the model must preserve
// except where the prompt asks for changes. The result is validated but not
// stored.
func (g *Generator) Generate(ctx context.Context, prompt string, referenced []*Theme) (*Theme, error) {
	if !g.Enabled() {
		return nil, ErrNoAPIKey
	}

	body, err := json.Marshal(chatRequest{
		Model:          g.config.Model,
		Messages:       []chatMessage{{Role: "user", Content: buildPrompt(prompt, referenced)}},
		ResponseFormat: map[string]string{"type": "json_object"},
		Temperature:    0.7,
		MaxTokens:      4000,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("themes: generation request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("themes: generation API returned %d: %s", resp.StatusCode, detail)
	}

	var chat chatResponse
	if err = json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("themes: decoding generation response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("themes: generation response contained no choices")
	}
	return parseGenerated(chat.Choices[0].Message.Content)
}

var nameCleanPattern = regexp.MustCompile(`[^a-z0-9-]`)

// parseGenerated decodes and validates the model's JSON reply.
func parseGenerated(content string) (*Theme, error) {
	var file themeFile
	if err := json.Unmarshal([]byte(content), &file); err != nil {
		return nil, fmt.Errorf("themes: model reply is not valid JSON: %w", err)
	}
	theme := &Theme{
		Name:        nameCleanPattern.ReplaceAllString(strings.ToLower(file.Name), ""),
		DisplayName: file.DisplayName,
		Description: file.Description,
		Version:     file.Version,
		CSSVars:     file.CSSVars,
		IsActive:    true,
	}
	if theme.Version == "" {
		theme.Version = "1.0.0"
	}
	if err := theme.Validate(); err != nil {
		return nil, err
	}
	return theme, nil
}

func buildPrompt(prompt string, referenced []*Theme) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert UI theme designer. Generate a complete theme for this request: %q\n\n", prompt)

	if len(referenced) > 0 {
		b.WriteString("REFERENCED THEMES (start from these exact values; change only what the request asks for):\n")
		for _, t := range referenced {
			vars, _ := json.Marshal(t.CSSVars)
			fmt.Fprintf(&b, "\n%s (%s):\n%s\n", t.Name, t.DisplayName, vars)
		}
	} else {
		b.WriteString("No referenced themes; create an entirely new theme.\n")
	}

	b.WriteString(`
Requirements:
- Every color must use the oklch() format, with accessible contrast and a
  dark mode that inverts lightness while keeping hue relationships.
- Include "theme" (font-sans/font-serif/font-mono/font-size/radius), "light",
  and "dark" sections; light and dark must define at least background,
  foreground, primary, secondary.
- The theme name is lowercase letters, digits, and hyphens only.

Return ONLY a JSON object of the form:
{"name":"...","display_name":"...","description":"...","css_vars":{"theme":{...},"light":{...},"dark":{...}}}
`)
	return b.String()
}
