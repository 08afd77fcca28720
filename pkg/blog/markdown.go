package blog

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	ghtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// Component is one {{type:data}} occurrence extracted from post content.
// The frontend hydrates the matching placeholder div with the named widget.
type Component struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data string `json:"data"`
}

// Rendered is the output of rendering a post's markdown.
type Rendered struct {
	HTML       string      `json:"html"`
	Components []Component `json:"components"`
}

var componentPattern = regexp.MustCompile(`\{\{(\w+):([^}]+)\}\}`)

// markdownInstance is initialized once and reused. The configuration never
// changes and the goldmark instance is safe to share across goroutines.
var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				// Component placeholders are injected as raw HTML before
				// parsing; without this goldmark would escape them.
				ghtml.WithUnsafe(),
				renderer.WithNodeRenderers(
					util.Prioritized(&codeBlockRenderer{}, 100),
				),
			),
		)
	})
	return markdownInstance
}

// RenderMarkdown converts post markdown to HTML. Occurrences of the custom
// {{type:data}} component syntax are replaced with placeholder divs and
// reported alongside the HTML so the frontend can hydrate them.
func RenderMarkdown(content string) (*Rendered, error) {
	var components []Component
	withPlaceholders := componentPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := componentPattern.FindStringSubmatch(match)
		c := Component{
			ID:   fmt.Sprintf("component-%d", len(components)),
			Type: groups[1],
			Data: groups[2],
		}
		components = append(components, c)
		return fmt.Sprintf(`<div id="%s" data-component="%s" data-params="%s"></div>`,
			c.ID, html.EscapeString(c.Type), html.EscapeString(c.Data))
	})

	var buf bytes.Buffer
	if err := getMarkdown().Convert([]byte(withPlaceholders), &buf); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}
	return &Rendered{HTML: buf.String(), Components: components}, nil
}

// codeBlockRenderer replaces goldmark's fenced-code output with
// chroma-highlighted HTML.
type codeBlockRenderer struct{}

func (r *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderCodeBlock)
}

func (r *codeBlockRenderer) renderCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	block := node.(*ast.FencedCodeBlock)

	var code bytes.Buffer
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		code.Write(line.Value(source))
	}

	language := string(block.Language(source))
	var highlighted bytes.Buffer
	if err := quick.Highlight(&highlighted, code.String(), language, "html", "github"); err != nil {
		// Unknown language or formatter failure: fall back to a plain
		// escaped block.
		_, _ = fmt.Fprintf(w, "<pre><code>%s</code></pre>\n", html.EscapeString(code.String()))
		return ast.WalkContinue, nil
	}
	_, _ = w.Write(highlighted.Bytes())
	return ast.WalkContinue, nil
}
