package assets

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeFile creates a file (and any parent dirs) under dir.
func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestStoreTiering(t *testing.T) {
	dir := t.TempDir()
	small := bytes.Repeat([]byte("small css rule;\n"), 10)
	large := bytes.Repeat([]byte("x"), 2048)
	writeFile(t, dir, "app.css", small)
	writeFile(t, dir, "video.bin", large)

	store, err := NewStore(testLogger(), &Config{MemoryLimit: 1024, MinGzipSavings: 0.1}, dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	css := store.Get("/app.css")
	if css == nil {
		t.Fatal("expected /app.css to be loaded")
	}
	if !css.InMemory() {
		t.Error("small file should be memory-tier")
	}
	if !strings.HasPrefix(css.ETag, `"`) {
		t.Errorf("memory-tier ETag should be strong, got %q", css.ETag)
	}

	bin := store.Get("/video.bin")
	if bin == nil {
		t.Fatal("expected /video.bin to be loaded")
	}
	if bin.InMemory() {
		t.Error("file over MemoryLimit should be disk-tier")
	}
	if !strings.HasPrefix(bin.ETag, `W/"`) {
		t.Errorf("disk-tier ETag should be weak, got %q", bin.ETag)
	}
}

func TestStoreGzipVariant(t *testing.T) {
	dir := t.TempDir()
	// Highly repetitive text compresses well.
	writeFile(t, dir, "big.js", bytes.Repeat([]byte("const answer = 42;\n"), 200))
	// Tiny content where gzip overhead loses.
	writeFile(t, dir, "tiny.css", []byte("a{}"))
	// Already-compressed type is never gzipped.
	writeFile(t, dir, "photo.png", bytes.Repeat([]byte("PNGDATA"), 100))

	store, err := NewStore(testLogger(), nil, dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	js := store.Get("/big.js")
	if js.GzipBody == nil {
		t.Fatal("compressible repetitive file should have a gzip variant")
	}
	if len(js.GzipBody) >= len(js.Body) {
		t.Error("gzip variant should be smaller than the original")
	}
	// The variant must round-trip to the original bytes.
	zr, err := gzip.NewReader(bytes.NewReader(js.GzipBody))
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	plain, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(plain, js.Body) {
		t.Error("gzip variant does not round-trip")
	}

	if tiny := store.Get("/tiny.css"); tiny.GzipBody != nil {
		t.Error("gzip variant kept despite insufficient savings")
	}
	if png := store.Get("/photo.png"); png.GzipBody != nil {
		t.Error("non-compressible type should not get a gzip variant")
	}
}

func TestStoreETagStability(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.js", []byte("console.log('hi')"))

	store, err := NewStore(testLogger(), nil, dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	first := store.Get("/app.js").ETag

	if err := store.Refresh(); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if second := store.Get("/app.js").ETag; second != first {
		t.Errorf("ETag changed across reload of identical content: %q -> %q", first, second)
	}

	writeFile(t, dir, "app.js", []byte("console.log('bye')"))
	if err := store.Refresh(); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if third := store.Get("/app.js").ETag; third == first {
		t.Error("ETag did not change with content")
	}
}

func TestStoreImmutablePrefixes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, filepath.Join("assets", "index-Bf8kQz.js"), []byte("hashed build output"))
	writeFile(t, dir, "robots.txt", []byte("User-agent: *"))

	store, err := NewStore(testLogger(), nil, dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if !store.Get("/assets/index-Bf8kQz.js").Immutable {
		t.Error("hashed asset should be immutable")
	}
	if store.Get("/robots.txt").Immutable {
		t.Error("mutable-name asset marked immutable")
	}
}

func TestStoreExcludesShellFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ShellTemplateName, []byte("<html>{{.MainJS}}</html>"))
	writeFile(t, dir, "index.html", []byte("<html></html>"))
	writeFile(t, dir, "app.js", []byte("js"))

	store, err := NewStore(testLogger(), nil, dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if store.Get("/"+ShellTemplateName) != nil {
		t.Error("shell template should not be served raw")
	}
	if store.Get("/index.html") != nil {
		t.Error("index.html should fall through to the rendered shell")
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestStoreMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "never-built")
	store, err := NewStore(testLogger(), nil, dir)
	if err != nil {
		t.Fatalf("NewStore() on missing dir error = %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/assets/app.js", "text/javascript"},
		{"/assets/app.css", "text/css"},
		{"/images/logo.svg", "image/svg+xml"},
		{"/fonts/inter.woff2", "font/woff2"},
		{"/data.unknownext", "application/octet-stream"},
	}
	for _, tt := range tests {
		got := contentTypeFor(tt.path)
		if !strings.HasPrefix(got, tt.want) {
			t.Errorf("contentTypeFor(%q) = %q, want prefix %q", tt.path, got, tt.want)
		}
	}
}
