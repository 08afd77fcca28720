package assets

import (
	"bytes"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
)

// Outcome classifies how a request was answered, for metrics.
type Outcome string

const (
	OutcomeMemory      Outcome = "memory"
	OutcomeDisk        Outcome = "disk"
	OutcomeNotModified Outcome = "not_modified"
	OutcomeShell       Outcome = "shell"
)

// Recorder receives one notification per served request. Implementations
// must be concurrent-safe. A nil Recorder is valid and records nothing.
type Recorder interface {
	Record(outcome Outcome)
}

// ShellDataFunc supplies the shell template input at request time, so theme
// changes take effect without a reload.
type ShellDataFunc func() ShellData

// Handler serves the asset store over HTTP with conditional-request and
// content-negotiation support, falling through to the SPA shell for any
// path that is not a loaded asset.
type Handler struct {
	store     *Store
	shell     *Shell
	shellData ShellDataFunc
	logger    *slog.Logger
	recorder  Recorder
}

// NewHandler wires a handler over a store and shell. recorder may be nil.
func NewHandler(logger *slog.Logger, store *Store, shell *Shell, shellData ShellDataFunc, recorder Recorder) *Handler {
	return &Handler{
		store:     store,
		shell:     shell,
		shellData: shellData,
		logger:    logger,
		recorder:  recorder,
	}
}

func (h *Handler) record(o Outcome) {
	if h.recorder != nil {
		h.recorder.Record(o)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	urlPath := path.Clean(r.URL.Path)
	// Clean collapses dot segments, but an encoded traversal that survives
	// it should never reach the disk tier.
	if strings.Contains(urlPath, "..") {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	asset := h.store.Get(urlPath)
	if asset == nil {
		h.serveShell(w, r)
		return
	}

	if asset.InMemory() {
		h.serveMemory(w, r, asset)
		return
	}
	h.serveDisk(w, r, asset)
}

func (h *Handler) serveMemory(w http.ResponseWriter, r *http.Request, asset *Asset) {
	hdr := w.Header()
	hdr.Set("ETag", asset.ETag)
	setCacheControl(hdr, asset.Immutable)
	if asset.GzipBody != nil {
		hdr.Set("Vary", "Accept-Encoding")
	}

	if etagMatch(r.Header.Get("If-None-Match"), asset.ETag) {
		w.WriteHeader(http.StatusNotModified)
		h.record(OutcomeNotModified)
		return
	}

	body := asset.Body
	if asset.GzipBody != nil && acceptsGzip(r) {
		hdr.Set("Content-Encoding", "gzip")
		body = asset.GzipBody
	}
	hdr.Set("Content-Type", asset.ContentType)
	hdr.Set("Content-Length", strconv.Itoa(len(body)))
	h.record(OutcomeMemory)

	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(body)
}

func (h *Handler) serveDisk(w http.ResponseWriter, r *http.Request, asset *Asset) {
	hdr := w.Header()
	hdr.Set("ETag", asset.ETag)
	hdr.Set("Content-Type", asset.ContentType)
	setCacheControl(hdr, asset.Immutable)

	f, err := asset.ReadDisk()
	if err != nil {
		// Loaded set is stale (file deleted under us); treat as unknown.
		h.logger.Warn("Disk asset vanished, serving shell", "path", asset.Path, "error", err)
		h.serveShell(w, r)
		return
	}
	defer func() {
		_ = f.Close()
	}()

	h.record(OutcomeDisk)
	// ServeContent handles If-None-Match against the ETag header set above,
	// plus Range and If-Modified-Since.
	http.ServeContent(w, r, asset.Path, asset.ModTime, f)
}

func (h *Handler) serveShell(w http.ResponseWriter, r *http.Request) {
	var data ShellData
	if h.shellData != nil {
		data = h.shellData()
	}

	var buf bytes.Buffer
	if err := h.shell.Render(&buf, data); err != nil {
		h.logger.Error("Failed to render SPA shell", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/html; charset=utf-8")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Content-Length", strconv.Itoa(buf.Len()))
	h.record(OutcomeShell)

	if r.Method == http.MethodHead {
		return
	}
	_, _ = buf.WriteTo(w)
}

func setCacheControl(hdr http.Header, immutable bool) {
	if immutable {
		hdr.Set("Cache-Control", "public, max-age=31536000, immutable")
	} else {
		hdr.Set("Cache-Control", "public, max-age=60")
	}
}

// etagMatch implements the If-None-Match comparison: a comma-separated list
// of entity tags, compared weakly (W/ prefixes ignored), with "*" matching
// anything.
func etagMatch(header, etag string) bool {
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	target := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if strings.TrimPrefix(candidate, "W/") == target {
			return true
		}
	}
	return false
}

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		encoding := part
		if i := strings.Index(encoding, ";"); i >= 0 {
			encoding = encoding[:i]
		}
		if strings.TrimSpace(encoding) == "gzip" {
			return true
		}
	}
	return false
}
