package assets

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Config holds the tuning knobs for the asset store.
type Config struct {
	// MemoryLimit is the largest file size, in bytes, that is held in
	// memory. Anything larger stays on disk and is streamed per request.
	MemoryLimit int64 `json:"memory_limit_bytes"`
	// MinGzipSavings is the fraction of the original size a gzip variant
	// must save for it to be kept (0.1 = at least 10% smaller).
	MinGzipSavings float64 `json:"min_gzip_savings"`
	// ImmutablePrefixes lists URL path prefixes whose contents are
	// content-hashed by the frontend build and may be cached forever.
	ImmutablePrefixes []string `json:"immutable_prefixes"`
}

// DefaultConfig returns the default asset store configuration.
func DefaultConfig() *Config {
	return &Config{
		MemoryLimit:       512 * 1024,
		MinGzipSavings:    0.1,
		ImmutablePrefixes: []string{"/assets/"},
	}
}

// Asset is a single servable file. Memory-tier assets carry their body (and
// possibly a gzip variant); disk-tier assets carry only the file path and
// the stat info captured at load time.
type Asset struct {
	Path        string // URL path, always starting with "/"
	ContentType string
	ETag        string
	Immutable   bool

	// Memory tier. Body is nil for disk-backed assets.
	Body     []byte
	GzipBody []byte

	// Disk tier.
	FilePath string
	Size     int64
	ModTime  time.Time
}

// InMemory reports whether the asset body is held in memory.
func (a *Asset) InMemory() bool {
	return a.Body != nil
}

// Store holds the loaded asset set. Lookups are concurrent-safe; Load and
// Refresh swap the whole map so in-flight requests keep a consistent view.
type Store struct {
	logger *slog.Logger
	config *Config
	dir    string

	mu      sync.RWMutex
	entries map[string]*Asset
}

// NewStore creates a store for the given dist directory and performs the
// initial load. A missing directory is not an error: the store starts empty
// and every request falls through to the SPA shell.
func NewStore(logger *slog.Logger, config *Config, dir string) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	s := &Store{
		logger:  logger,
		config:  config,
		dir:     dir,
		entries: map[string]*Asset{},
	}
	if err := s.Refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the dist directory the store serves from.
func (s *Store) Dir() string {
	return s.dir
}

// Get returns the asset for an exact URL path, or nil if none is loaded.
func (s *Store) Get(urlPath string) *Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[urlPath]
}

// Len returns the number of loaded assets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// FindFirst returns the path of the first loaded asset, in lexical order,
// matching the given prefix and suffix, or "" if none does. It is how the
// shell locates the hash-named entrypoints of a frontend build.
func (s *Store) FindFirst(prefix, suffix string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best string
	for p := range s.entries {
		if !strings.HasPrefix(p, prefix) || !strings.HasSuffix(p, suffix) {
			continue
		}
		if best == "" || p < best {
			best = p
		}
	}
	return best
}

// Refresh re-walks the dist directory and atomically replaces the asset set.
func (s *Store) Refresh() error {
	entries := map[string]*Asset{}

	var memBytes, diskCount int64
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		urlPath := "/" + filepath.ToSlash(rel)
		// The shell template is rendered, never served raw.
		if urlPath == "/"+ShellTemplateName || urlPath == "/index.html" {
			return nil
		}
		asset, err := s.loadFile(urlPath, path)
		if err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
		if asset.InMemory() {
			memBytes += int64(len(asset.Body))
		} else {
			diskCount++
		}
		entries[urlPath] = asset
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("Asset directory does not exist, serving shell only", "dir", s.dir)
			err = nil
		} else {
			return err
		}
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	s.logger.Info("Assets loaded",
		"dir", s.dir,
		"count", len(entries),
		"memory_bytes", memBytes,
		"disk_backed", diskCount)
	return nil
}

func (s *Store) loadFile(urlPath, filePath string) (*Asset, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, err
	}

	asset := &Asset{
		Path:        urlPath,
		ContentType: contentTypeFor(urlPath),
		Immutable:   s.isImmutable(urlPath),
		FilePath:    filePath,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
	}

	if info.Size() > s.config.MemoryLimit {
		// Disk tier: a weak validator from stat info. Hashing large files
		// on every reload would defeat the point of the tier.
		asset.ETag = fmt.Sprintf(`W/"%x-%x"`, info.ModTime().UnixNano(), info.Size())
		return asset, nil
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	asset.Body = body

	sum := sha256.Sum256(body)
	asset.ETag = `"` + hex.EncodeToString(sum[:8]) + `"`

	if isCompressible(asset.ContentType) {
		if gz, ok := s.compress(body); ok {
			asset.GzipBody = gz
		}
	}
	return asset, nil
}

// compress gzips body and reports whether the result saves enough to keep.
func (s *Store) compress(body []byte) ([]byte, bool) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, false
	}
	if _, err = zw.Write(body); err != nil {
		return nil, false
	}
	if err = zw.Close(); err != nil {
		return nil, false
	}
	limit := float64(len(body)) * (1 - s.config.MinGzipSavings)
	if float64(buf.Len()) > limit {
		return nil, false
	}
	return buf.Bytes(), true
}

func (s *Store) isImmutable(urlPath string) bool {
	for _, prefix := range s.config.ImmutablePrefixes {
		if strings.HasPrefix(urlPath, prefix) {
			return true
		}
	}
	return false
}

func contentTypeFor(urlPath string) string {
	ext := strings.ToLower(filepath.Ext(urlPath))
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	// mime's table misses a few build outputs depending on the host OS.
	switch ext {
	case ".js", ".mjs":
		return "text/javascript; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".svg":
		return "image/svg+xml"
	case ".woff2":
		return "font/woff2"
	case ".wasm":
		return "application/wasm"
	case ".map":
		return "application/json; charset=utf-8"
	}
	return "application/octet-stream"
}

var compressibleTypes = map[string]struct{}{
	"text/html":              {},
	"text/css":               {},
	"text/plain":             {},
	"text/javascript":        {},
	"application/javascript": {},
	"application/json":       {},
	"application/xml":        {},
	"image/svg+xml":          {},
	"application/wasm":       {},
}

func isCompressible(contentType string) bool {
	base := contentType
	if i := strings.Index(base, ";"); i >= 0 {
		base = base[:i]
	}
	_, ok := compressibleTypes[strings.TrimSpace(base)]
	return ok
}

// ReadDisk opens a disk-tier asset for streaming. The caller must close the
// returned file.
func (a *Asset) ReadDisk() (io.ReadSeekCloser, error) {
	return os.Open(a.FilePath)
}
