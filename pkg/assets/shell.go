package assets

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sync"
)

// ShellTemplateName is the file in the dist directory that the frontend
// build leaves as the SPA shell. It is a Go html/template rather than the
// raw Vite index.html so the server can inject theme CSS and entrypoints.
const ShellTemplateName = "index.gohtml"

// ShellData is the input to the SPA shell template.
type ShellData struct {
	Debug    bool
	MainJS   string
	MainCSS  string
	ThemeCSS template.CSS
}

// fallbackShell is served when the dist directory carries no shell template,
// which happens before the first frontend build in a fresh checkout.
const fallbackShell = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>GaggleHome</title>
<style>{{.ThemeCSS}}</style>
{{if .MainCSS}}<link rel="stylesheet" href="/{{.MainCSS}}">{{end}}
</head>
<body>
<div id="root"></div>
{{if .MainJS}}<script type="module" src="/{{.MainJS}}"></script>{{end}}
</body>
</html>
`

// Shell renders the SPA fallback page. It is concurrent-safe; Reload swaps
// the parsed template atomically.
type Shell struct {
	dir string

	mu   sync.RWMutex
	tmpl *template.Template
}

// NewShell parses the shell template from the dist directory, falling back
// to a built-in minimal shell when the file is absent.
func NewShell(dir string) (*Shell, error) {
	s := &Shell{dir: dir}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-parses the shell template from disk.
func (s *Shell) Reload() error {
	path := filepath.Join(s.dir, ShellTemplateName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("reading shell template: %w", err)
		}
		data = []byte(fallbackShell)
	}
	tmpl, err := template.New(ShellTemplateName).Parse(string(data))
	if err != nil {
		return fmt.Errorf("parsing shell template: %w", err)
	}
	s.mu.Lock()
	s.tmpl = tmpl
	s.mu.Unlock()
	return nil
}

// Render executes the shell template into buf.
func (s *Shell) Render(buf *bytes.Buffer, data ShellData) error {
	s.mu.RLock()
	tmpl := s.tmpl
	s.mu.RUnlock()
	return tmpl.Execute(buf, data)
}
