package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gagglehome/gagglehome/pkg/blog"
)

// blogImageExtensions is the extension whitelist for editor uploads.
var blogImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".svg":  true,
}

// MediaAPI handles image uploads, the uploaded-media file server and the
// animated background listing.
type MediaAPI struct {
	blogStore *blog.Store
	auth      *AuthAPI
	logger    *slog.Logger
	metrics   *Metrics

	mediaDir  string
	publicDir string
	maxImage  int64
	maxBlog   int64
}

func NewMediaAPI(blogStore *blog.Store, auth *AuthAPI, logger *slog.Logger, metrics *Metrics, cfg *ServerConfig, uploads *UploadConfig) *MediaAPI {
	return &MediaAPI{
		blogStore: blogStore,
		auth:      auth,
		logger:    logger,
		metrics:   metrics,
		mediaDir:  cfg.MediaDir,
		publicDir: cfg.PublicDir,
		maxImage:  uploads.MaxImageBytes,
		maxBlog:   uploads.MaxBlogImageBytes,
	}
}

// RegisterRoutes sets up the routing for uploads, backgrounds and /media.
func (a *MediaAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/upload/image", a.handleUploadImage)
	mux.HandleFunc("/api/v1/blog/upload-image", a.handleUploadBlogImage)
	mux.HandleFunc("/api/v1/backgrounds", a.handleBackgrounds)
	mux.Handle("/media/", http.StripPrefix("/media/", http.FileServer(http.Dir(a.mediaDir))))
}

// handleUploadImage accepts a generic image upload (hero backgrounds,
// avatars). Files are renamed to a uuid so uploads can never collide or
// carry a hostile filename.
func (a *MediaAPI) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if a.auth.RequireStaff(w, r) == nil {
		return
	}

	file, header, ok := a.openUpload(w, r, a.maxImage)
	if !ok {
		return
	}
	defer func() { _ = file.Close() }()

	// Sniff the real content type rather than trusting the client header.
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		respondWithError(w, http.StatusBadRequest, "Unreadable upload")
		return
	}
	contentType := http.DetectContentType(head[:n])
	isSVG := strings.HasSuffix(strings.ToLower(header.Filename), ".svg")
	if !strings.HasPrefix(contentType, "image/") && !isSVG {
		respondWithError(w, http.StatusBadRequest, "Only image uploads are accepted")
		return
	}
	if _, err = file.Seek(0, io.SeekStart); err != nil {
		a.logger.Error("Failed to rewind upload", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	name := uuid.NewString() + ext
	relPath := filepath.Join("uploads", name)
	if err = a.saveUpload(file, relPath); err != nil {
		a.logger.Error("Failed to store upload", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	a.metrics.RecordUpload("generic")
	a.logger.Info("Image uploaded", "file", name, "size", header.Size)
	respondWithJSON(w, http.StatusCreated, map[string]string{
		"url": "/media/uploads/" + name,
	})
}

// handleUploadBlogImage accepts editor uploads. The whitelist is by
// extension and files land in a YYYY/MM layout so the media dir stays
// browsable; a record is kept so the editor can list past uploads.
func (a *MediaAPI) handleUploadBlogImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	user := a.auth.RequireStaff(w, r)
	if user == nil {
		return
	}

	file, header, ok := a.openUpload(w, r, a.maxBlog)
	if !ok {
		return
	}
	defer func() { _ = file.Close() }()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !blogImageExtensions[ext] {
		respondWithError(w, http.StatusBadRequest,
			fmt.Sprintf("File type %q is not allowed", ext))
		return
	}

	now := time.Now()
	name := uuid.NewString() + ext
	relPath := filepath.Join("blog", now.Format("2006"), now.Format("01"), name)
	if err := a.saveUpload(file, relPath); err != nil {
		a.logger.Error("Failed to store blog image", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	url := "/media/" + filepath.ToSlash(relPath)
	img := &blog.Image{
		URL:        url,
		AltText:    r.FormValue("alt_text"),
		Filename:   header.Filename,
		Size:       header.Size,
		UploadedBy: &user.ID,
	}
	if err := a.blogStore.AddImage(r.Context(), img); err != nil {
		a.logger.Error("Failed to record blog image", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	a.metrics.RecordUpload("blog")
	a.logger.Info("Blog image uploaded", "file", name, "by", user.Username)
	respondWithJSON(w, http.StatusCreated, img)
}

// handleBackgrounds lists the animated background SVGs shipped with the
// frontend, for the hero background picker.
func (a *MediaAPI) handleBackgrounds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	dir := filepath.Join(a.publicDir, "backgrounds")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			respondWithJSON(w, http.StatusOK, []string{})
			return
		}
		a.logger.Error("Failed to read backgrounds dir", "dir", dir, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list backgrounds")
		return
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), ".svg") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	respondWithJSON(w, http.StatusOK, names)
}

// openUpload parses the multipart form and returns the "image" part,
// enforcing the size limit before any bytes are buffered.
func (a *MediaAPI) openUpload(w http.ResponseWriter, r *http.Request, limit int64) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+4096) // allowance for the multipart framing
	if err := r.ParseMultipartForm(limit); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondWithError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Upload exceeds the %d MB limit", limit>>20))
			return nil, nil, false
		}
		respondWithError(w, http.StatusBadRequest, "Invalid multipart request body")
		return nil, nil, false
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Missing 'image' form field")
		return nil, nil, false
	}
	if header.Size > limit {
		_ = file.Close()
		respondWithError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Upload exceeds the %d MB limit", limit>>20))
		return nil, nil, false
	}
	return file, header, true
}

// saveUpload writes the upload under the media dir, creating parents.
func (a *MediaAPI) saveUpload(src io.Reader, relPath string) error {
	dst := filepath.Join(a.mediaDir, relPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
